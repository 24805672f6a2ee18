package middleware

import (
	"context"
	"net/http"
	"time"

	"signin-service/internal/logger"
	"signin-service/internal/session"
)

type sessionContextKeyType struct{}

var sessionKey = sessionContextKeyType{}

// SessionFromContext returns the session attached by RequireAuth.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	return s, ok && s != nil
}

// UserIDFromContext extracts the authenticated account id from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return "", false
	}
	return s.UserID, true
}

// WithSession attaches s to ctx.
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

type AuthMiddleware struct {
	Store session.Store
	now   func() time.Time
}

func NewAuthMiddleware(store session.Store) *AuthMiddleware {
	return &AuthMiddleware{Store: store, now: time.Now}
}

// Load attaches the request's session, if any, and always continues.
func (a *AuthMiddleware) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := a.lookup(r); s != nil {
			r = r.WithContext(WithSession(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth rejects requests without a live session.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := a.lookup(r)
		if s == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

func (a *AuthMiddleware) lookup(r *http.Request) *session.Session {
	sessionID := session.IDFromRequest(r)
	if sessionID == "" {
		return nil
	}

	s, err := a.Store.Get(r.Context(), sessionID)
	if err != nil {
		logger.Warn("session lookup failed", map[string]any{"error": err.Error()})
		return nil
	}
	if s == nil {
		return nil
	}

	if s.Expired(a.now()) {
		_ = a.Store.Delete(r.Context(), sessionID)
		return nil
	}
	return s
}
