package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/junctree/internal/api"
	"github.com/Harshitk-cp/junctree/internal/buildconfig"
	"github.com/Harshitk-cp/junctree/internal/config"
	"github.com/Harshitk-cp/junctree/internal/domain"
	"github.com/Harshitk-cp/junctree/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(config.LogLevel()); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// openStore connects to Postgres, applying migrations, or opens the SQLite
// file named by a sqlite: DATABASE_URL.
func openStore(ctx context.Context, logger *zap.Logger) (domain.NetworkStore, func(), error) {
	if path, ok := config.SQLitePath(); ok {
		s, err := store.NewSQLiteNetworkStore(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", zap.String("path", path))
		return s, func() { _ = s.Close() }, nil
	}

	pool, err := pgxpool.New(ctx, config.DatabaseURL())
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("connected to database")
	if err := store.Migrate(ctx, pool, config.MigrationsPath(), logger); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store.NewNetworkStore(pool), pool.Close, nil
}

func main() {
	_ = config.Load()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()
	logger.Info("junctree server", zap.String("version", buildconfig.String()))

	cfg, err := api.ConfigFromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx := context.Background()
	networkStore, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app := api.NewApp(networkStore, reg, cfg, logger)
	app.Evictor.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	app.Evictor.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
