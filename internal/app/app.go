package app

import (
	"context"
	"errors"
	"net/http"

	"signin-service/internal/config"
	"signin-service/internal/dispatch"
)

type App struct {
	httpServer *http.Server
	queue      *dispatch.Queue
	cleanup    func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	queue := dispatch.NewQueue()

	router, cleanup, err := setupHTTP(ctx, cfg, queue)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: router,
	}

	return &App{
		httpServer: server,
		queue:      queue,
		cleanup:    cleanup,
	}, nil
}

// Run starts the sign-in queue and serves HTTP until Shutdown.
func (a *App) Run() error {
	go a.queue.Run(context.Background())

	if err := a.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	a.queue.Stop()
	select {
	case <-a.queue.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if a.cleanup != nil {
		return a.cleanup()
	}
	return nil
}
