package session

import (
	"context"
	"time"
)

// Session binds a browser to a backend account. It carries the backend
// tokens so the next request can rebuild the signed-in state.
type Session struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"` // backend account id

	IDToken        string    `json:"id_token,omitempty"`
	RefreshToken   string    `json:"refresh_token,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`

	// Provider and ProviderToken let logout revoke the identity provider
	// grant that started or last linked the session.
	Provider      string `json:"provider,omitempty"`
	ProviderToken string `json:"provider_token,omitempty"`

	CreatedAt         time.Time `json:"created_at"`
	AbsoluteExpiresAt time.Time `json:"absolute_expires_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// Expired reports whether s is past either of its deadlines.
func (s Session) Expired(now time.Time) bool {
	if now.After(s.ExpiresAt) {
		return true
	}
	return !s.AbsoluteExpiresAt.IsZero() && now.After(s.AbsoluteExpiresAt)
}

// Store defines how sessions are stored and retrieved.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}
