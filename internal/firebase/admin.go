package firebase

import (
	"context"
	"fmt"

	fb "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// VerifiedToken is the part of a verified Firebase ID token the backend uses.
type VerifiedToken struct {
	UID   string
	Email string

	// Identities maps a sign-in provider id (e.g. "google.com") to the
	// provider-side user ids linked to the account.
	Identities map[string][]string
}

// Admin is the privileged side of the Firebase project.
type Admin interface {
	CustomToken(ctx context.Context, uid string) (string, error)
	VerifyIDToken(ctx context.Context, idToken string) (*VerifiedToken, error)
	// LookupEmail returns the uid owning email, with found=false when none does.
	LookupEmail(ctx context.Context, email string) (uid string, found bool, err error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

type sdkAdmin struct {
	client *fbauth.Client
}

// NewAdmin initializes the Admin SDK. An empty credentialsFile falls back to
// application default credentials.
func NewAdmin(ctx context.Context, projectID, credentialsFile string) (Admin, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var cfg *fb.Config
	if projectID != "" {
		cfg = &fb.Config{ProjectID: projectID}
	}

	app, err := fb.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: init app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: init auth client: %w", err)
	}

	return &sdkAdmin{client: client}, nil
}

func (a *sdkAdmin) CustomToken(ctx context.Context, uid string) (string, error) {
	tok, err := a.client.CustomToken(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("firebase: mint custom token: %w", err)
	}
	return tok, nil
}

func (a *sdkAdmin) VerifyIDToken(ctx context.Context, idToken string) (*VerifiedToken, error) {
	tok, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("firebase: verify id token: %w", err)
	}

	vt := &VerifiedToken{
		UID:        tok.UID,
		Identities: make(map[string][]string, len(tok.Firebase.Identities)),
	}
	if email, ok := tok.Claims["email"].(string); ok {
		vt.Email = email
	}

	for providerID, raw := range tok.Firebase.Identities {
		list, ok := raw.([]interface{})
		if !ok {
			continue
		}
		for _, v := range list {
			if s, ok := v.(string); ok {
				vt.Identities[providerID] = append(vt.Identities[providerID], s)
			}
		}
	}

	return vt, nil
}

func (a *sdkAdmin) LookupEmail(ctx context.Context, email string) (string, bool, error) {
	u, err := a.client.GetUserByEmail(ctx, email)
	if fbauth.IsUserNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("firebase: lookup email: %w", err)
	}
	return u.UID, true, nil
}

func (a *sdkAdmin) RevokeRefreshTokens(ctx context.Context, uid string) error {
	if err := a.client.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("firebase: revoke refresh tokens: %w", err)
	}
	return nil
}
