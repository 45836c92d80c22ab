// Package app assembles the studio from configuration for the web and bot
// commands.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"asset-synth-studio/internal/asset"
	"asset-synth-studio/internal/config"
	"asset-synth-studio/internal/descriptor"
	"asset-synth-studio/internal/gemini"
	"asset-synth-studio/internal/genaisdk"
	"asset-synth-studio/internal/httpclient"
	"asset-synth-studio/internal/studio"
)

type App struct {
	Studio     *studio.Studio
	HTTPClient *http.Client

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}

	a.HTTPClient = httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	catalog := descriptor.Default()

	service, err := NewService(ctx, cfg, a.HTTPClient, catalog, logger)
	if err != nil {
		return nil, err
	}

	store, err := a.newStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	st, err := studio.New(studio.Options{
		Store:          store,
		Service:        service,
		Catalog:        catalog,
		Normalizer:     asset.NewNormalizer(cfg.AssetMaxDimension, cfg.AssetJPEGQuality),
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Studio = st
	return a, nil
}

// NewService picks the generative backend named by GEMINI_BACKEND.
func NewService(ctx context.Context, cfg config.Config, httpClient *http.Client, catalog *descriptor.Catalog, logger *slog.Logger) (studio.Service, error) {
	switch cfg.GeminiBackend {
	case config.BackendGenAI:
		c, err := genaisdk.New(ctx, genaisdk.Options{
			APIKey:      cfg.GeminiAPIKey,
			TextModel:   cfg.TextModel,
			ImagenModel: cfg.ImagenModel,
			ImageCount:  cfg.ImageCount,
			HTTPClient:  httpClient,
			Logger:      logger,
			Catalog:     catalog,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("generative backend", "backend", config.BackendGenAI)
		return c, nil
	default:
		logger.Info("generative backend", "backend", config.BackendREST, "base_url", cfg.GeminiBaseURL)
		return gemini.New(gemini.Options{
			APIKey:     cfg.GeminiAPIKey,
			BaseURL:    cfg.GeminiBaseURL,
			APIVersion: cfg.GeminiAPIVersion,
			TextModel:  cfg.TextModel,
			ImageModel: cfg.ImageModel,
			ImageCount: cfg.ImageCount,
			HTTPClient: httpClient,
			Logger:     logger,
			Catalog:    catalog,
		}), nil
	}
}

func (a *App) newStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (studio.Store, error) {
	if cfg.RedisAddr == "" {
		logger.Info("session store", "kind", "memory", "ttl", cfg.SessionTTL.String(), "max_sessions", cfg.MaxSessions)
		return studio.NewMemoryStore(studio.MemoryOptions{
			TTL:         cfg.SessionTTL,
			MaxSessions: cfg.MaxSessions,
		}), nil
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	a.closers = append(a.closers, rdb.Close)

	logger.Info("session store", "kind", "redis", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL.String())
	return studio.NewRedisStore(rdb, cfg.RedisPrefix, cfg.SessionTTL), nil
}

func (a *App) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
