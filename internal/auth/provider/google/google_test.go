package google

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"signin-service/internal/auth"
	"signin-service/internal/auth/provider"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testClientID = "web-client.apps.googleusercontent.com"

type fakeGoogle struct {
	srv     *httptest.Server
	key     *rsa.PrivateKey
	revoked atomic.Int32
	// revokedToken is the last token posted to /revoke.
	revokedToken atomic.Value
	claims       jwt.MapClaims
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeGoogle{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		f.revoked.Add(1)
		_ = r.ParseForm()
		f.revokedToken.Store(r.PostForm.Get("token"))
		w.WriteHeader(http.StatusOK)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	f.claims = jwt.MapClaims{
		"iss":            f.srv.URL,
		"aud":            testClientID,
		"sub":            "google-sub-1",
		"email":          "player@example.com",
		"email_verified": true,
		"name":           "Player One",
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}
	return f
}

func (f *fakeGoogle) token(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	if r.Form.Get("code") == "bad-code" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Bad Request",
		})
		return
	}

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, f.claims).SignedString(f.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "access-1",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (f *fakeGoogle) provider() *Provider {
	p := newProvider(
		f.srv.URL,
		oauth2.Endpoint{AuthURL: f.srv.URL + "/auth", TokenURL: f.srv.URL + "/token"},
		&oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&f.key.PublicKey}},
		f.srv.URL+"/revoke",
		"secret",
		"https://app.example.com/oauth/callback/google",
	)
	return p
}

func signInOptions() provider.Options {
	return provider.Options{
		ClientID:       testClientID,
		RequestEmail:   true,
		RequestIDToken: true,
	}
}

func TestSignIn_Success(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider()
	p.Configure(signInOptions())

	c := p.Client(provider.AuthResponse{Code: "good-code", CodeVerifier: "verifier"})
	id, err := c.SignIn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "google", id.Provider)
	assert.Equal(t, "google-sub-1", id.ProviderUserID)
	assert.Equal(t, "player@example.com", id.Email)
	assert.True(t, id.EmailVerified)
	assert.Equal(t, "Player One", id.DisplayName)
	assert.NotEmpty(t, id.IDToken)
}

func TestSignIn_UserCancelled(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider()
	p.Configure(signInOptions())

	_, err := p.Client(provider.AuthResponse{Error: "access_denied"}).SignIn(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, auth.ErrCancelled))
}

func TestSignIn_ProviderFaults(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider()
	p.Configure(signInOptions())

	tests := []struct {
		name   string
		resp   provider.AuthResponse
		status string
	}{
		{"redirect error", provider.AuthResponse{Error: "server_error", ErrorDescription: "try later"}, "server_error"},
		{"missing code", provider.AuthResponse{}, "InvalidRequest"},
		{"rejected code", provider.AuthResponse{Code: "bad-code"}, "invalid_grant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Client(tt.resp).SignIn(context.Background())

			var pe *auth.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.Status)
		})
	}
}

func TestSignIn_WrongAudience(t *testing.T) {
	f := newFakeGoogle(t)
	f.claims["aud"] = "someone-else"
	p := f.provider()
	p.Configure(signInOptions())

	_, err := p.Client(provider.AuthResponse{Code: "good-code"}).SignIn(context.Background())
	var pe *auth.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "InvalidAccount", pe.Status)
}

func TestSignIn_NotConfigured(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider()

	_, err := p.Client(provider.AuthResponse{Code: "good-code"}).SignIn(context.Background())
	assert.Equal(t, auth.FaultProvider, auth.Classify(err))
}

func TestConfigure_Scopes(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider()
	p.Configure(signInOptions())

	u, err := url.Parse(p.AuthCodeURL("state-1", "challenge-1"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "profile openid email", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "state-1", q.Get("state"))
}

func TestSignOut_RevokesOnce(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider()
	p.Configure(signInOptions())

	c := p.Client(provider.AuthResponse{Code: "good-code"})
	_, err := c.SignIn(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.SignOut(context.Background()))
	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, int32(1), f.revoked.Load())
}

func TestSignIn_KeepsAccessToken(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider()
	p.Configure(signInOptions())

	c := p.Client(provider.AuthResponse{Code: "good-code"})
	_, err := c.SignIn(context.Background())
	require.NoError(t, err)

	holder, ok := c.(provider.AccessTokenHolder)
	require.True(t, ok)
	assert.Equal(t, "access-1", holder.AccessToken())

	require.NoError(t, c.SignOut(context.Background()))
	assert.Empty(t, holder.AccessToken())
}

func TestSignOut_StoredAccessToken(t *testing.T) {
	f := newFakeGoogle(t)
	p := f.provider()
	p.Configure(signInOptions())

	c := p.Client(provider.AuthResponse{AccessToken: "stored-access"})

	require.NoError(t, c.SignOut(context.Background()))
	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, int32(1), f.revoked.Load())
	assert.Equal(t, "stored-access", f.revokedToken.Load())
}
