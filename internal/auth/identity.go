package auth

// Identity represents a normalized external authentication identity
// returned by an OAuth provider. It contains facts only, no decisions.
type Identity struct {
	Provider       string // e.g. "google"
	ProviderUserID string // provider-scoped unique user identifier (sub)
	Email          string
	EmailVerified  bool
	DisplayName    string

	// IDToken is the raw provider-issued token. It is handed to the backend
	// immediately and never stored.
	IDToken string

	// AccountID is the backend account the identity resolved to, when known.
	AccountID string
}
