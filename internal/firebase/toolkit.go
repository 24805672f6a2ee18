package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signin-service/internal/backend"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

const (
	defaultTokenURL = "https://securetoken.googleapis.com/v1/token"

	// requestURI is required by verifyAssertion even when the credential is
	// an ID token and no redirect takes place.
	requestURI = "http://localhost"
)

// Toolkit is a client for the Identity Toolkit API of one project.
type Toolkit struct {
	apiKey     string
	baseURL    string
	tokenURL   string
	httpClient *http.Client

	svc *identitytoolkit.Service
}

type ToolkitOption func(*Toolkit)

// WithEndpoints points the client at a different Identity Toolkit relying
// party and Secure Token host (emulator, tests).
func WithEndpoints(baseURL, tokenURL string) ToolkitOption {
	return func(t *Toolkit) {
		t.baseURL = baseURL
		t.tokenURL = tokenURL
	}
}

// WithHTTPClient replaces the transport. The API key is then only sent on
// token refreshes.
func WithHTTPClient(c *http.Client) ToolkitOption {
	return func(t *Toolkit) {
		t.httpClient = c
	}
}

func NewToolkit(ctx context.Context, apiKey string, opts ...ToolkitOption) (*Toolkit, error) {
	t := &Toolkit{
		apiKey:   apiKey,
		tokenURL: defaultTokenURL,
	}
	for _, opt := range opts {
		opt(t)
	}

	var clientOpts []option.ClientOption
	if t.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(t.httpClient))
	} else {
		t.httpClient = &http.Client{Timeout: 10 * time.Second}
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}
	if t.baseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(t.baseURL))
	}

	svc, err := identitytoolkit.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firebase: identity toolkit: %w", err)
	}
	t.svc = svc
	return t, nil
}

// SignInResult is a signed-in account and its tokens.
type SignInResult struct {
	LocalID      string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
	FederatedID  string
	ProviderID   string
}

// SignInWithIdp exchanges a provider credential for an account. With a
// non-empty currentIDToken the credential is linked to that account instead.
func (t *Toolkit) SignInWithIdp(
	ctx context.Context,
	cred backend.Credential,
	currentIDToken string,
) (*SignInResult, error) {

	req := &identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		PostBody: url.Values{
			"id_token":   {cred.IDToken},
			"providerId": {cred.ProviderID},
		}.Encode(),
		RequestUri:          requestURI,
		IdToken:             currentIDToken,
		ReturnSecureToken:   true,
		ReturnIdpCredential: true,
	}

	resp, err := t.svc.Relyingparty.VerifyAssertion(req).Context(ctx).Do()
	if err != nil {
		return nil, callError(ctx, err)
	}

	// Link conflicts come back as 200 with an errorMessage when
	// returnIdpCredential is set.
	if resp.ErrorMessage != "" {
		return nil, errorFromMessage(resp.ErrorMessage)
	}

	return &SignInResult{
		LocalID:      resp.LocalId,
		Email:        resp.Email,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt(resp.ExpiresIn),
		FederatedID:  resp.FederatedId,
		ProviderID:   resp.ProviderId,
	}, nil
}

// SignInWithCustomToken starts a session from a backend-minted custom token.
func (t *Toolkit) SignInWithCustomToken(ctx context.Context, customToken string) (*SignInResult, error) {
	req := &identitytoolkit.IdentitytoolkitRelyingpartyVerifyCustomTokenRequest{
		Token:             customToken,
		ReturnSecureToken: true,
	}

	resp, err := t.svc.Relyingparty.VerifyCustomToken(req).Context(ctx).Do()
	if err != nil {
		return nil, callError(ctx, err)
	}

	uid, email, err := tokenSubject(resp.IdToken)
	if err != nil {
		return nil, &backend.AuthError{Code: backend.CodeUnknown, Message: err.Error()}
	}

	return &SignInResult{
		LocalID:      uid,
		Email:        email,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt(resp.ExpiresIn),
	}, nil
}

// Refresh trades a refresh token for a fresh ID token.
func (t *Toolkit) Refresh(ctx context.Context, refreshToken string) (*SignInResult, error) {
	cfg := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  t.tokenURL + "?key=" + url.QueryEscape(t.apiKey),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, t.httpClient)
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, refreshError(re)
		}
		return nil, &backend.AuthError{Code: backend.CodeNetwork, Message: err.Error()}
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, &backend.AuthError{Code: backend.CodeUnknown, Message: "securetoken response missing id_token"}
	}
	userID, _ := tok.Extra("user_id").(string)

	next := tok.RefreshToken
	if next == "" {
		next = refreshToken
	}

	return &SignInResult{
		LocalID:      userID,
		IDToken:      idToken,
		RefreshToken: next,
		ExpiresAt:    tok.Expiry,
	}, nil
}

// callError maps a failed Identity Toolkit call to a backend error.
func callError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Message == "" {
			return &backend.AuthError{Code: backend.CodeUnknown, Message: fmt.Sprintf("http %d", gerr.Code)}
		}
		return errorFromMessage(gerr.Message)
	}
	return &backend.AuthError{Code: backend.CodeNetwork, Message: err.Error()}
}

// refreshError maps a failed Secure Token refresh. The endpoint answers in
// the Google API error envelope, which oauth2 leaves undecoded in re.Body.
func refreshError(re *oauth2.RetrieveError) error {
	var env struct {
		Error googleapi.Error `json:"error"`
	}
	if json.Unmarshal(re.Body, &env) == nil && env.Error.Message != "" {
		return errorFromMessage(env.Error.Message)
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	return &backend.AuthError{Code: backend.CodeUnknown, Message: fmt.Sprintf("http %d", status)}
}

func expiresAt(secs int64) time.Time {
	if secs <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(secs) * time.Second)
}

// tokenSubject reads the account id and email from a Firebase ID token that
// was just issued by the toolkit. The signature is not checked here.
func tokenSubject(idToken string) (string, string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return "", "", fmt.Errorf("toolkit: parse id token: %w", err)
	}

	uid, _ := claims["user_id"].(string)
	if uid == "" {
		uid, _ = claims.GetSubject()
	}
	if uid == "" {
		return "", "", errors.New("toolkit: id token has no subject")
	}
	email, _ := claims["email"].(string)
	return uid, email, nil
}

// errorFromMessage maps Identity Toolkit error messages such as
// "EMAIL_EXISTS" or "TOO_MANY_ATTEMPTS_TRY_LATER : detail" to backend codes.
func errorFromMessage(msg string) error {
	key := strings.TrimSpace(msg)
	if i := strings.IndexAny(key, " :"); i >= 0 {
		key = key[:i]
	}

	code := backend.CodeUnknown
	switch key {
	case "FEDERATED_USER_ID_ALREADY_LINKED", "CREDENTIAL_ALREADY_IN_USE":
		code = backend.CodeCredentialAlreadyInUse
	case "EMAIL_EXISTS":
		code = backend.CodeEmailAlreadyInUse
	case "CREDENTIAL_TOO_OLD_LOGIN_AGAIN":
		code = backend.CodeRequiresRecentLogin
	case "INVALID_IDP_RESPONSE", "INVALID_CUSTOM_TOKEN", "CREDENTIAL_MISMATCH", "MISSING_OR_INVALID_NONCE":
		code = backend.CodeInvalidCredential
	case "TOKEN_EXPIRED", "INVALID_ID_TOKEN", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND", "USER_DISABLED":
		code = backend.CodeUserTokenExpired
	}

	return &backend.AuthError{Code: code, Message: msg}
}
