package provider

import (
	"context"

	"signin-service/internal/auth"
)

// Options is the fixed request configuration for interactive sign-in.
type Options struct {
	ClientID       string
	RequestEmail   bool
	RequestIDToken bool
	UseGameSignIn  bool
}

// AuthResponse is what the provider sent back to the redirect URL.
type AuthResponse struct {
	Code             string
	CodeVerifier     string
	Error            string
	ErrorDescription string

	// AccessToken is a token from an earlier sign-in. A client built with
	// it and no code can only sign out.
	AccessToken string
}

// AccessTokenHolder is implemented by identity clients that keep the
// provider access token obtained by SignIn.
type AccessTokenHolder interface {
	AccessToken() string
}

// IdentityClient performs one interactive sign-in against a provider.
// Implementations return identity facts only and must not perform user
// creation, linking, or session management.
type IdentityClient interface {
	// Configure applies request options. It is idempotent.
	Configure(opts Options)

	// SignIn completes the interactive sign-in. A user cancellation is
	// reported as auth.ErrCancelled, provider faults as *auth.ProviderError.
	SignIn(ctx context.Context) (*auth.Identity, error)

	// SignOut drops the provider session. Signing out twice is a no-op.
	SignOut(ctx context.Context) error
}

// OAuthProvider is the long-lived side of a provider: it builds the
// authorization URL and hands out per-attempt identity clients.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "google").
	Name() string

	Configure(opts Options)

	// AuthCodeURL returns the OAuth authorization URL.
	// State and PKCE parameters are provided by the caller.
	AuthCodeURL(state string, codeChallenge string) string

	// Client binds an authorization response to a new identity client.
	Client(resp AuthResponse) IdentityClient
}
