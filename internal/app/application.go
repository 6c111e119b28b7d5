// Package app assembles the statlayer components into a runnable
// application: storage, freshness gate, delta sync, routers, background task
// pool and maintenance.
package app

import (
	"context"
	"fmt"

	"github.com/hoopsight/statlayer/internal/app/delta"
	"github.com/hoopsight/statlayer/internal/app/freshness"
	"github.com/hoopsight/statlayer/internal/app/heal"
	"github.com/hoopsight/statlayer/internal/app/health"
	"github.com/hoopsight/statlayer/internal/app/maintenance"
	"github.com/hoopsight/statlayer/internal/app/registry"
	"github.com/hoopsight/statlayer/internal/app/routing"
	"github.com/hoopsight/statlayer/internal/app/source"
	"github.com/hoopsight/statlayer/internal/app/storage"
	"github.com/hoopsight/statlayer/internal/app/storage/memory"
	"github.com/hoopsight/statlayer/internal/app/system"
	"github.com/hoopsight/statlayer/internal/app/tasks"
	"github.com/hoopsight/statlayer/pkg/logger"
)

// Options configures application assembly. Nil dependencies default to the
// in-memory store, the system health monitor and the built-in endpoint set.
type Options struct {
	Store    storage.ArtifactStore
	Client   source.Client
	Monitor  health.Monitor
	Registry *registry.Registry

	TaskWorkers       int
	TaskQueueDepth    int
	RetentionSchedule string
	RetentionKeep     int
}

// Application ties the routing core together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Store     storage.ArtifactStore
	Gate      *freshness.Gate
	Sync      *delta.Manager
	Pool      *tasks.Pool
	Sovereign *routing.SovereignRouter
	Adaptive  *routing.AdaptiveRouter
	Monitor   health.Monitor
}

// New builds a fully initialised application.
func New(opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if opts.Store == nil {
		opts.Store = memory.New()
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("a data source client is required")
	}
	if opts.Monitor == nil {
		opts.Monitor = health.NewSystemMonitor(log)
	}
	if opts.Registry == nil {
		reg, err := registry.New(registry.DefaultEndpoints())
		if err != nil {
			return nil, fmt.Errorf("default endpoint registry: %w", err)
		}
		opts.Registry = reg
	}

	gate := freshness.NewGate(opts.Store, log)
	syncManager := delta.NewManager(opts.Store, opts.Client, gate, log)
	pool := tasks.NewPool(opts.TaskWorkers, opts.TaskQueueDepth, log)
	healer := heal.NewReSyncHealer(opts.Store, opts.Client, gate, log)
	sovereign := routing.NewSovereignRouter(gate, syncManager, opts.Store, pool, healer, log)

	racer := routing.NewRacer(nil, log)
	adaptive := routing.NewAdaptiveRouter(opts.Registry, opts.Monitor, racer, routing.DefaultAdaptiveConfig(), log)

	manager := system.NewManager()
	if err := manager.Register(pool); err != nil {
		return nil, fmt.Errorf("register task pool: %w", err)
	}
	truncator := maintenance.NewTruncator(opts.Store, syncManager, opts.RetentionSchedule, opts.RetentionKeep, log)
	if err := manager.Register(truncator); err != nil {
		return nil, fmt.Errorf("register truncator: %w", err)
	}

	return &Application{
		manager:   manager,
		log:       log,
		Store:     opts.Store,
		Gate:      gate,
		Sync:      syncManager,
		Pool:      pool,
		Sovereign: sovereign,
		Adaptive:  adaptive,
		Monitor:   opts.Monitor,
	}, nil
}

// Start launches background services.
func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.StartAll(ctx); err != nil {
		return err
	}
	a.log.Info("statlayer application started")
	return nil
}

// Stop drains background services in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.StopAll(ctx)
	if err == nil {
		a.log.Info("statlayer application stopped")
	}
	return err
}
