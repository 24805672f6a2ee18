package handler

import (
	"net/http"

	"signin-service/internal/logger"
	"signin-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

// login starts the authorization code flow. With ?link=true the callback
// attaches the provider to the signed-in account instead of signing in.
func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	link := c.Query("link") == "true"
	if link {
		if _, ok := middleware.SessionFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "linking requires a signed-in session",
			})
			return
		}
	}

	state, err := generateState(c)
	if err != nil {
		logger.Error("oauth state generation failed", map[string]any{"error": err.Error()})
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	_, codeChallenge, err := generatePKCE(c)
	if err != nil {
		logger.Error("pkce generation failed", map[string]any{"error": err.Error()})
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	setLinkIntent(c, link)

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}
