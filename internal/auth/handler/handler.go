package handler

import (
	"time"

	"signin-service/internal/auth/provider"
	"signin-service/internal/backend"
	"signin-service/internal/dispatch"
	"signin-service/internal/firebase"
	"signin-service/internal/logger"
	"signin-service/internal/middleware"
	"signin-service/internal/session"
	"signin-service/internal/signin"

	"github.com/gin-gonic/gin"
)

// sessionTTL bounds a browser session regardless of activity.
const sessionTTL = 24 * time.Hour

// SessionCore is the backend state of one request, rebuilt from the stored
// session.
type SessionCore interface {
	backend.Core

	// User returns the signed-in account and its current tokens.
	User() (firebase.User, bool)
}

// CoreFactory binds a core to the stored session, or to a signed-out state
// when s is nil.
type CoreFactory func(s *session.Session) SessionCore

// FirebaseCores builds request cores on b.
func FirebaseCores(b *firebase.Backend) CoreFactory {
	return func(s *session.Session) SessionCore {
		if s == nil {
			return b.Session(firebase.User{})
		}
		return b.Session(firebase.User{
			UID:          s.UserID,
			IDToken:      s.IDToken,
			RefreshToken: s.RefreshToken,
			ExpiresAt:    s.TokenExpiresAt,
		})
	}
}

type Handler struct {
	providers    *provider.Registry
	sessionStore session.Store
	cores        CoreFactory
	queue        *dispatch.Queue
	signin       signin.Config
	auth         *middleware.AuthMiddleware

	// OutcomeTimeout bounds how long a callback waits for the attempt.
	OutcomeTimeout time.Duration
	Cookie         session.CookieOptions
}

func NewHandler(
	registry *provider.Registry,
	sessionStore session.Store,
	cores CoreFactory,
	queue *dispatch.Queue,
	cfg signin.Config,
) *Handler {
	return &Handler{
		providers:      registry,
		sessionStore:   sessionStore,
		cores:          cores,
		queue:          queue,
		signin:         cfg,
		auth:           middleware.NewAuthMiddleware(sessionStore),
		OutcomeTimeout: 30 * time.Second,
		Cookie:         session.DefaultCookieOptions,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	load := middleware.GinLoadSession(h.auth)

	r.GET("/oauth/login/:provider", load, h.login)
	r.GET("/oauth/callback/:provider", load, h.callback)
	r.POST("/auth/logout", load, h.Logout)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

// orchestrator builds the per-request orchestrator for client and core.
func (h *Handler) orchestrator(
	client provider.IdentityClient,
	core SessionCore,
	sink signin.OutcomeSink,
) *signin.Orchestrator {
	o := signin.New(client, core, sink, h.queue)
	o.Initialize(h.signin)
	return o
}
