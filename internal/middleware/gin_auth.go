package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinRequireAuth adapts AuthMiddleware.RequireAuth to Gin. The account id is
// also exposed as the "userID" context key.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return bridge(auth.RequireAuth)
}

// GinLoadSession adapts AuthMiddleware.Load to Gin.
func GinLoadSession(auth *AuthMiddleware) gin.HandlerFunc {
	return bridge(auth.Load)
}

func bridge(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			c.Request = r
			if id, ok := UserIDFromContext(r.Context()); ok {
				c.Set("userID", id)
			}
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		if !called {
			c.Abort()
		}
	}
}
