// Package main runs the statlayer daemon: the freshness-aware routing core
// plus an operational HTTP surface for metrics and health checks.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/hoopsight/statlayer/internal/app"
	"github.com/hoopsight/statlayer/internal/app/metrics"
	"github.com/hoopsight/statlayer/internal/app/registry"
	"github.com/hoopsight/statlayer/internal/app/source"
	"github.com/hoopsight/statlayer/internal/app/storage"
	"github.com/hoopsight/statlayer/internal/app/storage/bolt"
	"github.com/hoopsight/statlayer/internal/app/storage/file"
	"github.com/hoopsight/statlayer/internal/config"
	"github.com/hoopsight/statlayer/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "statlayer:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Name:   "statlayer",
	})

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("configure storage: %w", err)
	}
	defer closeStore()

	reg := registry.LoadOrDefault()
	if cfg.Registry.Path != "" {
		reg, err = registry.LoadFromPath(cfg.Registry.Path)
		if err != nil {
			return fmt.Errorf("load endpoint registry: %w", err)
		}
	}

	client := source.NewHTTPClient(source.HTTPClientConfig{
		BaseURL:           cfg.Source.BaseURL,
		Timeout:           cfg.Source.Timeout,
		RequestsPerSecond: cfg.Source.RequestsPerSecond,
	}, log)

	application, err := app.New(app.Options{
		Store:             store,
		Client:            client,
		Registry:          reg,
		TaskWorkers:       cfg.Tasks.Workers,
		TaskQueueDepth:    cfg.Tasks.QueueDepth,
		RetentionSchedule: cfg.Retention.Schedule,
		RetentionKeep:     cfg.Retention.KeepWindow,
	}, log)
	if err != nil {
		return fmt.Errorf("assemble application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("ops server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.WithError(err).Error("ops server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("ops server shutdown failed")
	}
	return application.Stop(shutdownCtx)
}

func buildStore(cfg *config.Config) (storage.ArtifactStore, func(), error) {
	switch cfg.Storage.Backend {
	case "bolt":
		st, err := bolt.Open(cfg.Storage.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		st, err := file.New(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}
}
