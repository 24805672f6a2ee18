// Package firebase implements backend.Core on Firebase Authentication: the
// Identity Toolkit REST API for the user-facing auth instances and the Admin
// SDK for the privileged calls.
package firebase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"signin-service/internal/auth"
	"signin-service/internal/backend"
	"signin-service/internal/logger"
)

// tokenSkew is how early a cached ID token is treated as expired.
const tokenSkew = time.Minute

// googleIdentity is the provider name identity links are recorded under.
const googleIdentity = "google"

// User is a signed-in account and its tokens.
type User struct {
	UID          string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

func (u User) signedIn() bool {
	return u.UID != ""
}

func userFrom(res *SignInResult, prev User) User {
	u := User{
		UID:          res.LocalID,
		Email:        res.Email,
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
	}
	if u.UID == "" {
		u.UID = prev.UID
	}
	if u.Email == "" {
		u.Email = prev.Email
	}
	if u.RefreshToken == "" {
		u.RefreshToken = prev.RefreshToken
	}
	return u
}

// LinkRecorder persists which provider identities belong to which account.
type LinkRecorder interface {
	Resolve(ctx context.Context, identity *auth.Identity) (string, error)
	Link(ctx context.Context, accountID string, identity *auth.Identity) error
}

// Backend holds the long-lived clients. Session binds them to one user.
type Backend struct {
	toolkit *Toolkit
	master  *Toolkit
	admin   Admin
	links   LinkRecorder
}

// NewBackend wires the clients. master signs in the session instance and may
// be the same client as toolkit. links may be nil.
func NewBackend(toolkit, master *Toolkit, admin Admin, links LinkRecorder) *Backend {
	if master == nil {
		master = toolkit
	}
	return &Backend{
		toolkit: toolkit,
		master:  master,
		admin:   admin,
		links:   links,
	}
}

// Session returns a core whose current user and session are u. A zero User
// means signed out.
func (b *Backend) Session(u User) *Core {
	return &Core{
		backend: b,
		user:    u,
		session: u,
	}
}

// Core is the backend state of one browser session.
type Core struct {
	backend *Backend

	mu        sync.Mutex
	user      User
	session   User
	listeners []func(userID string)
}

var _ backend.Core = (*Core)(nil)

// User returns the account signed in on the user-facing instance.
func (c *Core) User() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.user.signedIn()
}

// Session returns the account signed in on the session instance.
func (c *Core) Session() (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.session.signedIn()
}

func (c *Core) CurrentUserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user.UID
}

func (c *Core) RefreshIDToken(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	u := c.user
	c.mu.Unlock()

	if !u.signedIn() {
		return "", &backend.AuthError{Code: backend.CodeNoSignedInUser, Message: "no signed-in user"}
	}
	if !force && u.IDToken != "" && time.Until(u.ExpiresAt) > tokenSkew {
		return u.IDToken, nil
	}
	if u.RefreshToken == "" {
		return "", &backend.AuthError{Code: backend.CodeUserTokenExpired, Message: "id token expired and no refresh token"}
	}

	res, err := c.backend.toolkit.Refresh(ctx, u.RefreshToken)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.user.UID == u.UID {
		c.user = userFrom(res, c.user)
	}
	c.mu.Unlock()

	return res.IDToken, nil
}

func (c *Core) LinkCredential(ctx context.Context, cred backend.Credential) error {
	current, err := c.RefreshIDToken(ctx, false)
	if err != nil {
		return err
	}

	res, err := c.backend.toolkit.SignInWithIdp(ctx, cred, current)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.user = userFrom(res, c.user)
	c.mu.Unlock()
	return nil
}

func (c *Core) ExchangeCredential(ctx context.Context, cred backend.Credential) error {
	res, err := c.backend.toolkit.SignInWithIdp(ctx, cred, "")
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.user = userFrom(res, User{})
	c.mu.Unlock()

	if c.backend.links != nil && res.FederatedID != "" {
		identity := &auth.Identity{
			Provider:       googleIdentity,
			ProviderUserID: federatedSubject(res.FederatedID),
			Email:          res.Email,
			AccountID:      res.LocalID,
		}
		if _, err := c.backend.links.Resolve(ctx, identity); err != nil {
			logger.Warn("identity record not resolved", map[string]any{
				"uid":   res.LocalID,
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (c *Core) CheckLinkEligibility(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}

	owner, found, err := c.backend.admin.LookupEmail(ctx, email)
	if err != nil {
		return false, err
	}
	if !found {
		return true, nil
	}
	return owner == c.CurrentUserID(), nil
}

func (c *Core) MintCustomToken(ctx context.Context, idToken string) (string, error) {
	vt, err := c.backend.admin.VerifyIDToken(ctx, idToken)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &backend.AuthError{Code: backend.CodeInvalidCredential, Message: err.Error()}
	}
	return c.backend.admin.CustomToken(ctx, vt.UID)
}

func (c *Core) LinkProvider(ctx context.Context, idToken string) error {
	vt, err := c.backend.admin.VerifyIDToken(ctx, idToken)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &backend.AuthError{Code: backend.CodeInvalidCredential, Message: err.Error()}
	}

	subs := vt.Identities[backend.GoogleProviderID]
	if len(subs) == 0 {
		return &backend.AuthError{Code: backend.CodeInvalidCredential, Message: "account has no google identity"}
	}
	if c.backend.links == nil {
		return nil
	}

	var errs []error
	for _, sub := range subs {
		err := c.backend.links.Link(ctx, vt.UID, &auth.Identity{
			Provider:       googleIdentity,
			ProviderUserID: sub,
			Email:          vt.Email,
			AccountID:      vt.UID,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("link %s: %w", sub, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Core) StartSession(ctx context.Context, customToken string) error {
	res, err := c.backend.master.SignInWithCustomToken(ctx, customToken)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = userFrom(res, User{})
	uid := c.session.UID
	c.mu.Unlock()

	c.notify(uid)
	return nil
}

// EndSession revokes the session's refresh tokens and forgets both users.
// The local state is cleared even when revocation fails.
func (c *Core) EndSession(ctx context.Context) error {
	c.mu.Lock()
	uid := c.session.UID
	if uid == "" {
		uid = c.user.UID
	}
	c.user = User{}
	c.session = User{}
	c.mu.Unlock()

	if uid == "" {
		return nil
	}

	err := c.backend.admin.RevokeRefreshTokens(ctx, uid)
	c.notify("")
	return err
}

func (c *Core) OnStateChanged(fn func(userID string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Core) notify(uid string) {
	c.mu.Lock()
	listeners := append([]func(string){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(uid)
	}
}

// federatedSubject extracts the provider user id from a federatedId such as
// "https://accounts.google.com/1234".
func federatedSubject(federatedID string) string {
	if i := strings.LastIndex(federatedID, "/"); i >= 0 {
		return federatedID[i+1:]
	}
	return federatedID
}
