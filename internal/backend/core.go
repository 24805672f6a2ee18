// Package backend declares the capabilities the sign-in flow needs from the
// session backend, independent of how the backend is reached.
package backend

import "context"

// GoogleProviderID is the federated provider id for Google credentials.
const GoogleProviderID = "google.com"

// Credential is an opaque provider credential handed to the backend.
type Credential struct {
	ProviderID string
	IDToken    string
}

func GoogleCredential(idToken string) Credential {
	return Credential{ProviderID: GoogleProviderID, IDToken: idToken}
}

// Core owns the authenticated session. Cancellation is reported as
// auth.ErrCancelled or context.Canceled; backend faults as *AuthError.
type Core interface {
	// CurrentUserID returns the signed-in account, or "" when signed out.
	CurrentUserID() string

	// RefreshIDToken returns the current user's ID token, refreshing it when
	// it has expired or force is set.
	RefreshIDToken(ctx context.Context, force bool) (string, error)

	// LinkCredential attaches cred to the current user.
	LinkCredential(ctx context.Context, cred Credential) error

	// ExchangeCredential signs in with cred, replacing the current user.
	ExchangeCredential(ctx context.Context, cred Credential) error

	// CheckLinkEligibility reports whether an account with this email may
	// receive another provider.
	CheckLinkEligibility(ctx context.Context, email string) (bool, error)

	// MintCustomToken exchanges a user ID token for a backend custom token.
	MintCustomToken(ctx context.Context, idToken string) (string, error)

	// LinkProvider records on the backend that the user behind idToken has
	// linked a new provider.
	LinkProvider(ctx context.Context, idToken string) error

	// StartSession signs in to the backend session with a custom token.
	StartSession(ctx context.Context, customToken string) error

	// EndSession signs the current user out. It is a no-op when signed out.
	EndSession(ctx context.Context) error

	// OnStateChanged registers fn to run when a session starts or ends.
	// userID is "" after a sign-out.
	OnStateChanged(fn func(userID string))
}
