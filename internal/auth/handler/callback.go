package handler

import (
	"context"
	"net/http"
	"time"

	"signin-service/internal/auth"
	"signin-service/internal/auth/provider"
	"signin-service/internal/logger"
	"signin-service/internal/middleware"
	"signin-service/internal/session"
	"signin-service/internal/signin"

	"github.com/gin-gonic/gin"
)

type callbackResponse struct {
	State  string `json:"state"`
	Error  string `json:"error"`
	UserID string `json:"user_id,omitempty"`
}

// attemptResult is what the callback observed of one attempt.
type attemptResult struct {
	outcome  auth.Outcome
	started  string // account whose session started, if any
	finished bool

	provider      string
	providerToken string // "" when the attempt signed the provider out
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	resp := provider.AuthResponse{
		Code:             c.Query("code"),
		CodeVerifier:     getPKCEVerifier(c),
		Error:            c.Query("error"),
		ErrorDescription: c.Query("error_description"),
	}
	if resp.Code != "" && resp.CodeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}

	link := linkIntent(c)
	clearFlowCookie(c, stateCookieName)
	clearFlowCookie(c, pkceCookieName)
	clearFlowCookie(c, linkCookieName)

	current, _ := middleware.SessionFromContext(c.Request.Context())
	if link && current == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "linking requires a signed-in session",
		})
		return
	}

	core := h.cores(current)
	client := p.Client(resp)
	res := h.run(c.Request.Context(), client, core, link)
	res.provider = providerName
	if holder, ok := client.(provider.AccessTokenHolder); ok && res.finished {
		res.providerToken = holder.AccessToken()
	}

	if !res.finished {
		logger.Warn("google sign-in timed out", map[string]any{
			"provider": providerName,
			"timeout":  h.OutcomeTimeout.String(),
		})
		c.JSON(http.StatusGatewayTimeout, callbackResponse{
			State: auth.StatePending.String(),
			Error: auth.ErrorOk.String(),
		})
		return
	}

	userID, err := h.syncSession(c, current, core, res)
	if err != nil {
		logger.Error("session persist failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to persist session",
		})
		return
	}

	c.JSON(statusFor(res), callbackResponse{
		State:  res.outcome.State.String(),
		Error:  res.outcome.Error.String(),
		UserID: userID,
	})
}

// run drives one attempt and waits for it to finish or time out.
func (h *Handler) run(
	ctx context.Context,
	client provider.IdentityClient,
	core SessionCore,
	link bool,
) attemptResult {

	outcomes := make(chan auth.Outcome, 1)
	sink := signin.SinkFunc(func(o auth.Outcome) {
		select {
		case outcomes <- o:
		default:
		}
	})

	started := make(chan string, 1)
	core.OnStateChanged(func(uid string) {
		if uid == "" {
			return
		}
		select {
		case started <- uid:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(ctx, h.OutcomeTimeout)
	defer cancel()

	attempt := h.orchestrator(client, core, sink).AttemptSignIn(ctx, link)

	res := attemptResult{outcome: auth.OutcomePending}
	select {
	case <-attempt.Done():
		res.finished = true
	case <-ctx.Done():
	}

	select {
	case o := <-outcomes:
		res.outcome = o
	default:
	}
	select {
	case uid := <-started:
		res.started = uid
	default:
	}
	return res
}

// syncSession makes the stored session match the core after an attempt and
// returns the signed-in account, if any.
func (h *Handler) syncSession(
	c *gin.Context,
	current *session.Session,
	core SessionCore,
	res attemptResult,
) (string, error) {

	ctx := c.Request.Context()
	user, signedIn := core.User()

	switch {
	case res.started != "":
		if current != nil {
			_ = h.sessionStore.Delete(ctx, current.SessionID)
		}

		sessionID, err := session.GenerateID()
		if err != nil {
			return "", err
		}

		now := time.Now()
		sess := session.Session{
			SessionID:         sessionID,
			UserID:            res.started,
			CreatedAt:         now,
			AbsoluteExpiresAt: now.Add(sessionTTL),
			ExpiresAt:         now.Add(sessionTTL),
		}
		if signedIn && user.UID == res.started {
			sess.IDToken = user.IDToken
			sess.RefreshToken = user.RefreshToken
			sess.TokenExpiresAt = user.ExpiresAt
		}
		if res.providerToken != "" {
			sess.Provider = res.provider
			sess.ProviderToken = res.providerToken
		}

		if err := h.sessionStore.Create(ctx, sess); err != nil {
			return "", err
		}
		session.SetCookie(c.Writer, sess, h.Cookie)

		logger.Info("session started", map[string]any{
			"user_id": sess.UserID,
			"ip":      c.ClientIP(),
		})
		return sess.UserID, nil

	case current == nil:
		return "", nil

	case !signedIn:
		_ = h.sessionStore.Delete(ctx, current.SessionID)
		session.ClearCookie(c.Writer, h.Cookie)
		logger.Info("session ended by sign-in attempt", map[string]any{"user_id": current.UserID})
		return "", nil

	case user.UID == current.UserID:
		updated := *current
		updated.IDToken = user.IDToken
		updated.RefreshToken = user.RefreshToken
		updated.TokenExpiresAt = user.ExpiresAt
		if res.providerToken != "" {
			updated.Provider = res.provider
			updated.ProviderToken = res.providerToken
		}
		if err := h.sessionStore.Update(ctx, updated); err != nil {
			return "", err
		}
		return current.UserID, nil
	}

	return current.UserID, nil
}

func statusFor(res attemptResult) int {
	switch res.outcome.State {
	case auth.StateSuccess:
		return http.StatusOK
	case auth.StateError:
		switch res.outcome.Error {
		case auth.ErrorAccountAlreadyLinked:
			return http.StatusConflict
		case auth.ErrorAccountNeedsRecentLogin:
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	}

	if res.started != "" {
		return http.StatusOK
	}
	return http.StatusUnauthorized
}
