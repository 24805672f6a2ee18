package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"signin-service/internal/auth"
	"signin-service/internal/auth/provider"
	"signin-service/internal/backend"
	"signin-service/internal/dispatch"
	"signin-service/internal/firebase"
	"signin-service/internal/session"
	"signin-service/internal/signin"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	block chan struct{}

	mu       sync.Mutex
	signOuts []string // access tokens the clients signed out with
}

func (p *fakeProvider) signedOut() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.signOuts...)
}

func (p *fakeProvider) Name() string { return "google" }

func (p *fakeProvider) Configure(provider.Options) {}

func (p *fakeProvider) AuthCodeURL(state, challenge string) string {
	return "https://accounts.example/auth?" + url.Values{
		"state":          {state},
		"code_challenge": {challenge},
	}.Encode()
}

func (p *fakeProvider) Client(resp provider.AuthResponse) provider.IdentityClient {
	return &fakeClient{provider: p, resp: resp, token: resp.AccessToken}
}

type fakeClient struct {
	provider *fakeProvider
	resp     provider.AuthResponse

	mu    sync.Mutex
	token string
}

func (c *fakeClient) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *fakeClient) Configure(provider.Options) {}

func (c *fakeClient) SignIn(ctx context.Context) (*auth.Identity, error) {
	if c.provider.block != nil {
		<-c.provider.block
	}
	if c.resp.Error == "access_denied" {
		return nil, auth.ErrCancelled
	}
	c.mu.Lock()
	c.token = "access-" + c.resp.Code
	c.mu.Unlock()
	return &auth.Identity{
		Provider:       "google",
		ProviderUserID: "sub-1",
		Email:          "ada@example.com",
		IDToken:        "google-" + c.resp.Code,
	}, nil
}

func (c *fakeClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.token = ""
	c.mu.Unlock()

	if token != "" {
		c.provider.mu.Lock()
		c.provider.signOuts = append(c.provider.signOuts, token)
		c.provider.mu.Unlock()
	}
	return nil
}

type fakeCore struct {
	mu        sync.Mutex
	user      firebase.User
	listeners []func(string)

	eligible     bool
	eligibleWait bool
	linkErr      error
	endSessions  chan struct{}
}

func (c *fakeCore) User() (firebase.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.user.UID != ""
}

func (c *fakeCore) CurrentUserID() string {
	u, _ := c.User()
	return u.UID
}

func (c *fakeCore) RefreshIDToken(ctx context.Context, force bool) (string, error) {
	u, _ := c.User()
	return u.IDToken, nil
}

func (c *fakeCore) LinkCredential(ctx context.Context, cred backend.Credential) error {
	if c.linkErr != nil {
		return c.linkErr
	}
	c.mu.Lock()
	c.user.IDToken = "linked-token"
	c.mu.Unlock()
	return nil
}

func (c *fakeCore) ExchangeCredential(ctx context.Context, cred backend.Credential) error {
	c.mu.Lock()
	c.user = firebase.User{UID: "uid-new", IDToken: "fresh-token", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)}
	c.mu.Unlock()
	return nil
}

func (c *fakeCore) CheckLinkEligibility(ctx context.Context, email string) (bool, error) {
	if c.eligibleWait {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return c.eligible, nil
}

func (c *fakeCore) MintCustomToken(ctx context.Context, idToken string) (string, error) {
	return "custom", nil
}

func (c *fakeCore) LinkProvider(ctx context.Context, idToken string) error { return nil }

func (c *fakeCore) StartSession(ctx context.Context, customToken string) error {
	c.notify(c.CurrentUserID())
	return nil
}

func (c *fakeCore) EndSession(ctx context.Context) error {
	c.mu.Lock()
	c.user = firebase.User{}
	c.mu.Unlock()
	select {
	case c.endSessions <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeCore) OnStateChanged(fn func(string)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *fakeCore) notify(uid string) {
	c.mu.Lock()
	fns := append([]func(string){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(uid)
	}
}

type harness struct {
	router   *gin.Engine
	handler  *Handler
	store    *session.MemoryStore
	provider *fakeProvider
	core     *fakeCore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	queue := dispatch.NewQueue()
	go queue.Run(context.Background())
	t.Cleanup(queue.Stop)

	h := &harness{
		store:    session.NewMemoryStore(),
		provider: &fakeProvider{},
		core:     &fakeCore{eligible: true, endSessions: make(chan struct{}, 1)},
	}

	cores := func(s *session.Session) SessionCore {
		if s != nil {
			h.core.user = firebase.User{UID: s.UserID, IDToken: s.IDToken, RefreshToken: s.RefreshToken}
		}
		return h.core
	}

	h.handler = NewHandler(
		provider.NewRegistry(h.provider),
		h.store,
		cores,
		queue,
		signin.Config{Platform: signin.PlatformWeb, ClientIDs: map[signin.Platform]string{signin.PlatformWeb: "web-client"}},
	)
	h.handler.OutcomeTimeout = 2 * time.Second

	h.router = gin.New()
	h.handler.RegisterRoutes(h.router)
	return h
}

func (h *harness) signedIn(t *testing.T) *http.Cookie {
	t.Helper()
	require.NoError(t, h.store.Create(context.Background(), session.Session{
		SessionID: "sid-1",
		UserID:    "uid-1",
		IDToken:   "old-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	return &http.Cookie{Name: session.CookieName, Value: "sid-1"}
}

func (h *harness) callback(t *testing.T, query string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, callbackResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback/google?state=st&"+query, nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "st"})
	req.AddCookie(&http.Cookie{Name: pkceCookieName, Value: "verifier"})
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var body callbackResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

var linkCookie = &http.Cookie{Name: linkCookieName, Value: "1"}

func TestLogin_Redirects(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/login/google", nil))

	require.Equal(t, http.StatusFound, rec.Code)

	state := cookieNamed(rec, stateCookieName)
	require.NotNil(t, state)
	require.NotNil(t, cookieNamed(rec, pkceCookieName))

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
	assert.NotEmpty(t, loc.Query().Get("code_challenge"))
}

func TestLogin_UnknownProvider(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/login/github", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_LinkRequiresSession(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/oauth/login/google?link=true", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/oauth/login/google?link=true", nil)
	req.AddCookie(h.signedIn(t))
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	link := cookieNamed(rec, linkCookieName)
	require.NotNil(t, link)
	assert.Equal(t, "1", link.Value)
}

func TestCallback_InvalidState(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/callback/google?state=forged&code=c", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "st"})
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback_FreshSessionStarts(t *testing.T) {
	h := newHarness(t)

	rec, body := h.callback(t, "code=abc")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", body.State)
	assert.Equal(t, "ok", body.Error)
	assert.Equal(t, "uid-new", body.UserID)

	cookie := cookieNamed(rec, session.CookieName)
	require.NotNil(t, cookie)

	stored, err := h.store.Get(context.Background(), cookie.Value)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "uid-new", stored.UserID)
	assert.Equal(t, "fresh-token", stored.IDToken)
	assert.Equal(t, "google", stored.Provider)
	assert.Equal(t, "access-abc", stored.ProviderToken)
}

func TestCallback_Cancelled(t *testing.T) {
	h := newHarness(t)

	rec, body := h.callback(t, "error=access_denied")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", body.State)
	assert.Equal(t, "unknown", body.Error)
	assert.Nil(t, cookieNamed(rec, session.CookieName))
}

func TestCallback_LinkSuccess(t *testing.T) {
	h := newHarness(t)
	sess := h.signedIn(t)

	rec, body := h.callback(t, "code=abc", sess, linkCookie)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body.State)
	assert.Equal(t, "uid-1", body.UserID)

	stored, err := h.store.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "linked-token", stored.IDToken)
	assert.Equal(t, "access-abc", stored.ProviderToken)
}

func TestCallback_LinkConflict(t *testing.T) {
	h := newHarness(t)
	h.core.linkErr = &backend.AuthError{Code: backend.CodeCredentialAlreadyInUse}
	sess := h.signedIn(t)

	rec, body := h.callback(t, "code=abc", sess, linkCookie)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "error", body.State)
	assert.Equal(t, "account_already_linked", body.Error)
}

func TestCallback_LinkWithoutSession(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.callback(t, "code=abc", linkCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback_Timeout(t *testing.T) {
	h := newHarness(t)
	h.provider.block = make(chan struct{})
	t.Cleanup(func() { close(h.provider.block) })
	h.handler.OutcomeTimeout = 50 * time.Millisecond

	rec, body := h.callback(t, "code=abc")

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "pending", body.State)
}

func TestCallback_LinkTimeoutKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.core.eligibleWait = true
	h.handler.OutcomeTimeout = 50 * time.Millisecond
	sess := h.signedIn(t)

	rec, body := h.callback(t, "code=abc", sess, linkCookie)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "pending", body.State)

	select {
	case <-h.core.endSessions:
		t.Fatal("timed out link ended the backend session")
	case <-time.After(200 * time.Millisecond):
	}

	stored, err := h.store.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	sess := h.signedIn(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(sess)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	select {
	case <-h.core.endSessions:
	case <-time.After(2 * time.Second):
		t.Fatal("backend session not ended")
	}

	stored, err := h.store.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	cleared := cookieNamed(rec, session.CookieName)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestLogout_RevokesStoredProviderToken(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.store.Create(context.Background(), session.Session{
		SessionID:     "sid-2",
		UserID:        "uid-1",
		IDToken:       "old-token",
		Provider:      "google",
		ProviderToken: "stored-access",
		ExpiresAt:     time.Now().Add(time.Hour),
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sid-2"})
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	select {
	case <-h.core.endSessions:
	case <-time.After(2 * time.Second):
		t.Fatal("backend session not ended")
	}
	assert.Equal(t, []string{"stored-access"}, h.provider.signedOut())
}

func TestLogout_Anonymous(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
