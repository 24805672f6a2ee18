package handler

import (
	"net/http"
	"time"

	"signin-service/internal/utils"

	"github.com/gin-gonic/gin"
)

const (
	stateCookieName = "__oauth_state"
	linkCookieName  = "__oauth_link"
	stateTTL        = 5 * time.Minute
)

func setFlowCookie(c *gin.Context, name, value string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

func clearFlowCookie(c *gin.Context, name string) {
	setFlowCookie(c, name, "", -time.Second)
}

func generateState(c *gin.Context) (string, error) {
	state, err := utils.RandomString(32)
	if err != nil {
		return "", err
	}
	setFlowCookie(c, stateCookieName, state, stateTTL)
	return state, nil
}

func validateState(c *gin.Context) bool {
	stateQuery := c.Query("state")
	if stateQuery == "" {
		return false
	}

	cookie, err := c.Request.Cookie(stateCookieName)
	if err != nil {
		return false
	}

	return cookie.Value == stateQuery
}

// setLinkIntent remembers across the redirect whether the flow links.
func setLinkIntent(c *gin.Context, link bool) {
	if !link {
		clearFlowCookie(c, linkCookieName)
		return
	}
	setFlowCookie(c, linkCookieName, "1", stateTTL)
}

func linkIntent(c *gin.Context) bool {
	cookie, err := c.Request.Cookie(linkCookieName)
	return err == nil && cookie.Value == "1"
}
