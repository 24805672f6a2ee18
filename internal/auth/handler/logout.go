package handler

import (
	"context"
	"net/http"

	"signin-service/internal/auth"
	"signin-service/internal/auth/provider"
	"signin-service/internal/logger"
	"signin-service/internal/middleware"
	"signin-service/internal/session"
	"signin-service/internal/signin"

	"github.com/gin-gonic/gin"
)

// Logout signs out of the provider and the backend, drops the stored
// session and clears the cookie. It is idempotent.
func (h *Handler) Logout(c *gin.Context) {
	sess, ok := middleware.SessionFromContext(c.Request.Context())

	if ok {
		h.signOut(c.Request.Context(), sess)

		if err := h.sessionStore.Delete(c.Request.Context(), sess.SessionID); err != nil {
			logger.Warn("session delete failed", map[string]any{"error": err.Error()})
		}

		logger.Info("signed out", map[string]any{
			"user_id": sess.UserID,
			"ip":      c.ClientIP(),
		})
	}

	session.ClearCookie(c.Writer, h.Cookie)
	c.Status(http.StatusNoContent)
}

// signOut ends the backend session behind sess. The provider grant is
// revoked first when the session recorded one.
func (h *Handler) signOut(ctx context.Context, sess *session.Session) {
	core := h.cores(sess)

	p, err := h.providers.Get(sess.Provider)
	if sess.ProviderToken == "" || err != nil {
		if err := core.EndSession(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("backend sign-out incomplete", map[string]any{"error": err.Error()})
		}
		return
	}

	client := p.Client(provider.AuthResponse{AccessToken: sess.ProviderToken})
	h.orchestrator(client, core, signin.SinkFunc(func(auth.Outcome) {})).SignOut(ctx)
}
