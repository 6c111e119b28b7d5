// Package tasks provides an explicit worker pool for fire-and-forget
// background work (deferred syncs, heals). Making the pool explicit keeps
// task lifetime, panics and shutdown draining observable instead of hiding
// them in ad-hoc goroutines.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hoopsight/statlayer/internal/app/metrics"
	"github.com/hoopsight/statlayer/internal/app/system"
	"github.com/hoopsight/statlayer/pkg/logger"
)

// ErrPoolStopped is returned by Submit after Stop has begun.
var ErrPoolStopped = errors.New("task pool stopped")

// ErrQueueFull is returned when the submission queue is at capacity.
var ErrQueueFull = errors.New("task queue full")

// Task is one unit of background work. Run receives a context detached from
// any caller: a cancelled request must not abort work that benefits future
// requests.
type Task struct {
	ID    string
	Label string
	Run   func(ctx context.Context) error
}

// Pool executes submitted tasks on a fixed set of workers. It implements
// system.Service; Stop drains every queued task before returning.
type Pool struct {
	log     *logger.Logger
	workers int
	queue   chan Task

	mu      sync.Mutex
	running bool
	stopped bool
	wg      sync.WaitGroup
}

var _ system.Service = (*Pool)(nil)

// NewPool creates a pool with the given worker count and queue depth.
func NewPool(workers, depth int, log *logger.Logger) *Pool {
	if log == nil {
		log = logger.NewDefault("tasks")
	}
	if workers <= 0 {
		workers = 4
	}
	if depth <= 0 {
		depth = 64
	}
	return &Pool{
		log:     log,
		workers: workers,
		queue:   make(chan Task, depth),
	}
}

func (p *Pool) Name() string { return "task-pool" }

// Start launches the workers. The provided context governs startup only;
// queued tasks run to completion during Stop regardless of it.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.log.WithField("workers", p.workers).Info("task pool started")
	return nil
}

// Stop closes the intake and waits for queued tasks to drain. The context
// bounds how long the drain may take.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.stopped = true
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stopped = true
	p.mu.Unlock()

	close(p.queue)

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
		p.log.Info("task pool drained")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task pool drain interrupted: %w", ctx.Err())
	}
}

// Submit enqueues a task for background execution and returns its id.
func (p *Pool) Submit(label string, run func(ctx context.Context) error) (string, error) {
	p.mu.Lock()
	if p.stopped || !p.running {
		p.mu.Unlock()
		return "", ErrPoolStopped
	}
	p.mu.Unlock()

	task := Task{ID: uuid.NewString(), Label: label, Run: run}
	select {
	case p.queue <- task:
		return task.ID, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrQueueFull, label)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.execute(task)
	}
}

func (p *Pool) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordBackgroundTask("panic")
			p.log.WithField("task_id", task.ID).
				WithField("label", task.Label).
				Errorf("task panicked: %v", r)
		}
	}()

	if task.Run == nil {
		return
	}
	if err := task.Run(context.Background()); err != nil {
		metrics.RecordBackgroundTask("error")
		p.log.WithError(err).
			WithField("task_id", task.ID).
			WithField("label", task.Label).
			Warn("background task failed")
		return
	}
	metrics.RecordBackgroundTask("ok")
}
