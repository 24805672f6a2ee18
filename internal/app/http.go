package app

import (
	"context"
	"net/http"

	"signin-service/internal/auth/handler"
	"signin-service/internal/auth/provider"
	"signin-service/internal/auth/provider/google"
	"signin-service/internal/config"
	"signin-service/internal/dispatch"
	"signin-service/internal/logger"
	"signin-service/internal/metrics"
	"signin-service/internal/middleware"
	"signin-service/internal/signin"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupHTTP(
	ctx context.Context,
	cfg config.Config,
	queue *dispatch.Queue,
) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		infra.close()
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	signinCfg := signin.Config{
		Platform: signin.ParsePlatform(cfg.SignInPlatform),
		ClientIDs: map[signin.Platform]string{
			signin.PlatformWeb:     cfg.GoogleWebClientID,
			signin.PlatformAndroid: cfg.GoogleAndroidClientID,
			signin.PlatformIOS:     cfg.GoogleIOSClientID,
		},
	}

	googleProvider, err := google.New(
		ctx,
		cfg.GoogleClientSecret,
		cfg.GoogleRedirectURL,
	)
	if err != nil {
		infra.close()
		return nil, nil, err
	}
	googleProvider.Configure(signinCfg.ProviderOptions())

	registry := provider.NewRegistry(googleProvider)
	logger.Info("oauth providers registered", map[string]any{"providers": registry.Names()})

	authHandler := handler.NewHandler(
		registry,
		infra.Sessions,
		handler.FirebaseCores(infra.Backend),
		queue,
		signinCfg,
	)
	authHandler.OutcomeTimeout = cfg.OutcomeTimeout
	if cfg.AppEnv == "dev" {
		// Plain-http local development cannot carry Secure cookies.
		authHandler.Cookie.Secure = false
	}

	authMiddleware := middleware.NewAuthMiddleware(infra.Sessions)

	// ----------------------------
	// Router
	// ----------------------------

	if cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	authHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))

	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString("userID"),
		})
	})

	return router, infra.close, nil
}
