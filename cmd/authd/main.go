// Command authd serves the token and session endpoints for the school web
// app. It fronts the session engine with HTTP, exposes health and metrics
// endpoints, and sweeps expired refresh token rows in the background.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/campusgate/authcore"
	"github.com/campusgate/authcore/httpapi"
	"github.com/campusgate/authcore/store/postgres"
)

func main() {
	configPath := flag.String("config", "authd.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		zap.NewExample().Fatal("configuration error", zap.Error(err))
	}

	logger := buildLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("authd exited", zap.Error(err))
	}
}

func buildLogger(env string) *zap.Logger {
	if env == "development" {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger
}

func run(cfg *fileConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return err
	}

	tokenStore := postgres.New(pool)
	if err := tokenStore.EnsureSchema(ctx); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	builder := authcore.New().
		WithConfig(cfg.engineConfig()).
		WithStore(tokenStore).
		WithUserProvider(newPGUsers(pool)).
		WithLogger(logger).
		WithMetrics(registry)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		builder = builder.WithRedis(rdb)
	} else {
		logger.Warn("no redis configured, rate limiting disabled")
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}

	engineCfg := cfg.engineConfig()
	gateway := httpapi.NewServer(engine, httpapi.CookieConfig{
		Domain:     cfg.Cookies.Domain,
		Secure:     !cfg.Cookies.Insecure,
		AccessTTL:  engineCfg.JWT.AccessTTL,
		RefreshTTL: engineCfg.JWT.RefreshTTL,
	}, logger)

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	gateway.Register(router)
	router.GET("/healthz", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	go pruneLoop(ctx, engine, time.Duration(cfg.Prune.Interval), logger)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd listening", zap.String("addr", cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// pruneLoop periodically removes refresh token rows past the retention
// horizon.
func pruneLoop(ctx context.Context, engine *authcore.Engine, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := engine.PruneExpired(ctx)
			if err != nil {
				logger.Warn("prune sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("pruned expired refresh tokens", zap.Int64("removed", n))
			}
		}
	}
}
