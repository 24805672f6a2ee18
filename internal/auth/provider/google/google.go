package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"signin-service/internal/auth"
	"signin-service/internal/auth/provider"
	"signin-service/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	providerName = "google"
	issuerURL    = "https://accounts.google.com"

	// errorAccessDenied is what Google redirects with when the user closes
	// or declines the consent screen.
	errorAccessDenied = "access_denied"
)

// Provider signs users in with Google through the authorization code flow.
// Configure must be called before the first Client is used.
type Provider struct {
	issuer       string
	endpoint     oauth2.Endpoint
	keySet       oidc.KeySet
	revokeURL    string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client

	mu          sync.RWMutex
	opts        provider.Options
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
}

// New discovers Google's OIDC endpoints. The client ID is supplied later
// through Configure because it depends on the target platform.
func New(
	ctx context.Context,
	clientSecret string,
	redirectURL string,
) (*Provider, error) {

	if redirectURL == "" {
		return nil, errors.New("google oauth config missing redirect url")
	}

	oidcProvider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	var meta struct {
		JWKSURL       string `json:"jwks_uri"`
		RevocationURL string `json:"revocation_endpoint"`
	}
	if err := oidcProvider.Claims(&meta); err != nil {
		return nil, fmt.Errorf("failed to read google discovery document: %w", err)
	}

	return newProvider(
		issuerURL,
		oidcProvider.Endpoint(),
		oidc.NewRemoteKeySet(ctx, meta.JWKSURL),
		meta.RevocationURL,
		clientSecret,
		redirectURL,
	), nil
}

func newProvider(
	issuer string,
	endpoint oauth2.Endpoint,
	keySet oidc.KeySet,
	revokeURL string,
	clientSecret string,
	redirectURL string,
) *Provider {
	return &Provider{
		issuer:       issuer,
		endpoint:     endpoint,
		keySet:       keySet,
		revokeURL:    revokeURL,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the provider identifier used by the registry.
func (p *Provider) Name() string {
	return providerName
}

// Configure rebuilds the OAuth config and ID token verifier for opts.
func (p *Provider) Configure(opts provider.Options) {
	scopes := []string{"profile"}
	if opts.RequestIDToken {
		scopes = append(scopes, oidc.ScopeOpenID)
	}
	if opts.RequestEmail {
		scopes = append(scopes, "email")
	}

	cfg := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: p.clientSecret,
		RedirectURL:  p.redirectURL,
		Endpoint:     p.endpoint,
		Scopes:       scopes,
	}
	verifier := oidc.NewVerifier(p.issuer, p.keySet, &oidc.Config{
		ClientID: opts.ClientID,
	})

	p.mu.Lock()
	p.opts = opts
	p.oauthConfig = cfg
	p.verifier = verifier
	p.mu.Unlock()
}

func (p *Provider) snapshot() (provider.Options, *oauth2.Config, *oidc.IDTokenVerifier) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opts, p.oauthConfig, p.verifier
}

// AuthCodeURL builds the OAuth authorization URL with PKCE parameters.
func (p *Provider) AuthCodeURL(state string, codeChallenge string) string {
	_, cfg, _ := p.snapshot()
	if cfg == nil {
		return ""
	}
	return cfg.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Client returns an identity client bound to one authorization response.
func (p *Provider) Client(resp provider.AuthResponse) provider.IdentityClient {
	c := &Client{provider: p, resp: resp}
	if resp.AccessToken != "" {
		c.token = &oauth2.Token{AccessToken: resp.AccessToken}
	}
	return c
}

// Client completes a single Google sign-in.
type Client struct {
	provider *Provider
	resp     provider.AuthResponse

	mu    sync.Mutex
	token *oauth2.Token
}

func (c *Client) Configure(opts provider.Options) {
	c.provider.Configure(opts)
}

func (c *Client) SignIn(ctx context.Context) (*auth.Identity, error) {
	opts, cfg, verifier := c.provider.snapshot()

	switch {
	case cfg == nil || opts.ClientID == "":
		return nil, &auth.ProviderError{Status: "DeveloperError", Message: "client id not configured"}
	case opts.UseGameSignIn:
		return nil, &auth.ProviderError{Status: "DeveloperError", Message: "game sign-in is not available"}
	case c.resp.Error == errorAccessDenied:
		return nil, fmt.Errorf("google sign-in: %w", auth.ErrCancelled)
	case c.resp.Error != "":
		return nil, &auth.ProviderError{Status: c.resp.Error, Message: c.resp.ErrorDescription}
	case c.resp.Code == "":
		return nil, &auth.ProviderError{Status: "InvalidRequest", Message: "missing authorization code"}
	}

	var exchangeOpts []oauth2.AuthCodeOption
	if c.resp.CodeVerifier != "" {
		exchangeOpts = append(exchangeOpts, oauth2.SetAuthURLParam("code_verifier", c.resp.CodeVerifier))
	}

	token, err := cfg.Exchange(ctx, c.resp.Code, exchangeOpts...)
	if err != nil {
		return nil, exchangeError(ctx, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, &auth.ProviderError{Status: "InvalidAccount", Message: "google did not return id_token"}
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, &auth.ProviderError{Status: "InvalidAccount", Message: "id_token verification failed: " + err.Error()}
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, &auth.ProviderError{Status: "InvalidAccount", Message: "id_token claims parse failed: " + err.Error()}
	}

	if claims.Subject == "" || (opts.RequestEmail && claims.Email == "") {
		return nil, &auth.ProviderError{Status: "InvalidAccount", Message: "id_token missing required claims"}
	}

	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	logger.Info("google oidc verified", map[string]any{
		"issuer":          idToken.Issuer,
		"subject_present": claims.Subject != "",
		"email_present":   claims.Email != "",
		"email_verified":  claims.EmailVerified,
		"audience":        idToken.Audience,
		"expiry_unix":     idToken.Expiry.Unix(),
	})

	return &auth.Identity{
		Provider:       providerName,
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
		DisplayName:    claims.Name,
		IDToken:        rawIDToken,
	}, nil
}

// AccessToken returns the access token obtained by SignIn, or "" once
// signed out.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil {
		return ""
	}
	return c.token.AccessToken
}

// SignOut revokes the access token obtained by SignIn, if any.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = nil
	c.mu.Unlock()

	if token == nil || token.AccessToken == "" || c.provider.revokeURL == "" {
		return nil
	}

	form := url.Values{"token": {token.AccessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("google revoke: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.provider.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("google revoke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("google revoke: http %d", resp.StatusCode)
	}
	return nil
}

func exchangeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("google token exchange: %w", ctx.Err())
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return &auth.ProviderError{Status: re.ErrorCode, Message: re.ErrorDescription}
	}
	return &auth.ProviderError{Status: "NetworkError", Message: err.Error()}
}
