package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"orderflow/pkg/api"
	"orderflow/pkg/config"
	"orderflow/pkg/logger"
	"orderflow/pkg/metrics"
	"orderflow/pkg/order"
	"orderflow/pkg/order/instrumented"
	"orderflow/pkg/order/memory"
	pg "orderflow/pkg/order/postgres"
	"orderflow/pkg/otel"
	"orderflow/pkg/session"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "orderflow:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.New(os.Stdout, level, "orderflow", otel.GetTraceID)
	defer log.Sync() //nolint:errcheck // stdout sync errors are not actionable

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := otel.InitTracing(log, otel.Config{
		ServiceName: "orderflow",
		Host:        cfg.OTELHost,
		Probability: cfg.OTELProbability,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn(context.Background(), "tracing shutdown", "error", err)
		}
	}()

	repo, counter, closeRepo, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	m := metrics.New(prometheus.DefaultRegisterer)
	routerCfg := api.Config{
		Repo:     instrumented.New(repo, m, log),
		Log:      log,
		Resolver: session.Static(cfg.DevOwner),
		Tracer:   tp.Tracer("orderflow"),
		Metrics:  m,
		Counter:  counter,
		Version:  version,
		Timeout:  cfg.RequestTimeout,
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		store := session.NewRedisStore(client, cfg.SessionTTL)
		routerCfg.Sessions = store
		routerCfg.Resolver = store
		log.Info(ctx, "sessions enabled", "redis", cfg.RedisAddr)
	} else {
		log.Warn(ctx, "authentication disabled, all requests use a fixed owner", "owner", cfg.DevOwner)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serve(ctx, srv, cfg, log)
}

// openRepository selects the storage backend. The counter is nil when the
// backend cannot report its size cheaply.
func openRepository(ctx context.Context, cfg config.Config, log *logger.Logger) (order.Repository, func() int, func(), error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("db connect: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("db ping: %w", err)
		}
		if err := pg.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		log.Info(ctx, "storage ready", "backend", config.StoragePostgres)
		return pg.New(db), nil, func() { db.Close() }, nil
	default:
		repo := memory.New()
		log.Info(ctx, "storage ready", "backend", config.StorageMemory)
		return repo, repo.Len, func() {}, nil
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, cfg config.Config, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", cfg.Addr, "tls", cfg.TLS())
		var err error
		if cfg.TLS() {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info(shutdownCtx, "shutting down", "timeout", cfg.ShutdownTimeout.String())
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			log.Error(ctx, "server closed", "error", err)
		}
		return err
	}
}
