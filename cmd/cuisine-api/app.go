package main

import (
	"context"
	"fmt"
	"io"

	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/cache"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/config"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/database"
	"github.com/MarcoPoloResearchLab/cuisine/backend/internal/postgrest"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// application holds the wired catalog service and the resources it owns.
type application struct {
	Service *catalog.Service
	closers []io.Closer
}

func (a *application) Close() {
	for index := len(a.closers) - 1; index >= 0; index-- {
		_ = a.closers[index].Close()
	}
}

// buildApplication selects the store and cache backends and composes the catalog service.
func buildApplication(ctx context.Context, cfg config.AppConfig, notifier catalog.ChangeNotifier, logger *zap.Logger) (*application, error) {
	app := &application{}

	repository, err := buildRepository(cfg, app, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	store, err := buildCacheStore(ctx, cfg, app)
	if err != nil {
		app.Close()
		return nil, err
	}
	memo, err := cache.NewMemo(cache.MemoConfig{Store: store, TTL: cfg.CacheTTL, Logger: logger})
	if err != nil {
		app.Close()
		return nil, err
	}
	cached, err := catalog.NewCachedRepository(repository, memo, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	service, err := catalog.NewService(catalog.ServiceConfig{
		Repository: cached,
		Notifier:   notifier,
		InviteCode: cfg.EditorInviteCode,
		Logger:     logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Service = service
	return app, nil
}

func buildRepository(cfg config.AppConfig, app *application, logger *zap.Logger) (catalog.Repository, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgREST:
		return postgrest.NewClient(postgrest.Config{
			BaseURL: cfg.PostgRESTURL,
			AnonKey: cfg.PostgRESTAnonKey,
			Timeout: cfg.PostgRESTTimeout,
			Logger:  logger,
		})
	case config.StoreBackendDatabase:
		db, err := database.Open(database.Config{Driver: cfg.DatabaseDriver, DSN: cfg.DatabaseDSN, Logger: logger})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, sqlDB)
		return database.NewStore(database.StoreConfig{DB: db, IDProvider: database.NewUUIDProvider()})
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func buildCacheStore(ctx context.Context, cfg config.AppConfig, app *application) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendMemory:
		return cache.NewMemoryStore(), nil
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		app.closers = append(app.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return cache.NewRedisStore(cache.RedisStoreConfig{Client: client})
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.CacheBackend)
	}
}
