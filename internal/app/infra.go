package app

import (
	"context"

	"signin-service/internal/auth/resolver"
	"signin-service/internal/config"
	"signin-service/internal/db"
	"signin-service/internal/firebase"
	"signin-service/internal/logger"
	"signin-service/internal/redis"
	"signin-service/internal/session"
)

type Infra struct {
	DB       *db.DB // nil without DATABASE_DSN
	Redis    *redis.Client
	Sessions session.Store
	Backend  *firebase.Backend
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	var links firebase.LinkRecorder
	if cfg.DatabaseDSN != "" {
		conn, err := db.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		infra.DB = conn
		links = resolver.NewDBResolver(conn)
		logger.Info("database ready", nil)
	} else {
		logger.Warn("DATABASE_DSN not set, identity links are not recorded", nil)
	}

	if cfg.RedisAddr != "" {
		client, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			infra.close()
			return nil, err
		}
		infra.Redis = client
		infra.Sessions = session.NewRedisStore(client.Client, "")
		logger.Info("redis ready", nil)
	} else {
		infra.Sessions = session.NewMemoryStore()
		logger.Warn("REDIS_ADDR not set, sessions are kept in memory", nil)
	}

	admin, err := firebase.NewAdmin(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	if err != nil {
		infra.close()
		return nil, err
	}

	toolkit, err := firebase.NewToolkit(ctx, cfg.FirebaseAPIKey)
	if err != nil {
		infra.close()
		return nil, err
	}
	master, err := firebase.NewToolkit(ctx, cfg.MasterAPIKey())
	if err != nil {
		infra.close()
		return nil, err
	}

	infra.Backend = firebase.NewBackend(toolkit, master, admin, links)
	logger.Info("firebase ready", map[string]any{"project": cfg.FirebaseProjectID})

	return infra, nil
}

func (i *Infra) close() error {
	var firstErr error
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
