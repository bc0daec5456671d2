package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/bookstore/internal/auth"
	"github.com/vyrodovalexey/bookstore/internal/cache"
	"github.com/vyrodovalexey/bookstore/internal/catalog"
	"github.com/vyrodovalexey/bookstore/internal/config"
	"github.com/vyrodovalexey/bookstore/internal/handler"
	"github.com/vyrodovalexey/bookstore/internal/server"
	"github.com/vyrodovalexey/bookstore/internal/store"
)

const redisConnectTimeout = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the catalog HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			cfg, err := config.Load(
				config.WithConfigFile(root.configFile),
				config.WithFlag(config.EnvServerPort, flags.Lookup("port")),
				config.WithFlag(config.EnvDataFile, flags.Lookup("data-file")),
				config.WithFlag(config.EnvLogLevel, flags.Lookup("log-level")),
				config.WithFlag(config.EnvStoreBackend, flags.Lookup("store")),
				config.WithFlag(config.EnvCacheBackend, flags.Lookup("cache")),
			)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.Int("port", config.DefaultServerPort, "HTTP port")
	flags.String("data-file", config.DefaultDataFile, "XML catalog document")
	flags.String("log-level", config.DefaultLogLevel, "debug, info, warn or error")
	flags.String("store", config.DefaultStoreBackend, "store backend: xml or memory")
	flags.String("cache", config.DefaultCacheBackend, "cache backend: memory or redis")

	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.ServerPort),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("metrics_enabled", cfg.MetricsEnabled),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("data_file", cfg.DataFile),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("auth_mode", cfg.AuthMode),
	)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	c, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()

	authenticator, err := auth.New(cfg.AuthSettings())
	if err != nil {
		return fmt.Errorf("creating authenticator: %w", err)
	}

	hub := handler.NewEventHub(logger, cfg.AllowedOrigins)
	svc := catalog.NewService(st, c, logger,
		catalog.WithTTLs(cfg.CacheListTTL, cfg.CacheAggregateTTL),
		catalog.WithPublisher(hub),
	)

	srv := server.New(cfg, logger, svc,
		server.WithAuthenticator(authenticator),
		server.WithEventHub(hub),
		server.WithReadiness(func(ctx context.Context) error {
			_, err := st.List(ctx)
			return err
		}),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		logger.Error("server error", zap.Error(err))
		return err
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
			return err
		}
	}

	logger.Info("server stopped")
	return nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("using in-memory store, changes are lost on restart")
		return store.NewMemoryStore(), nil
	default:
		st, err := store.NewXMLStore(cfg.DataFile, store.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("opening data file: %w", err)
		}
		return st, nil
	}
}

// openCache returns the configured cache and a func releasing it.
func openCache(ctx context.Context, cfg *config.Config) (cache.Cache, func(), error) {
	if cfg.CacheBackend != config.CacheRedis {
		return cache.NewMemoryCache(nil), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()

	rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening redis cache: %w", err)
	}

	return rc, func() { _ = rc.Close() }, nil
}
