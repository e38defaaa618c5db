package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/sarathsp06/framehook/internal/jobs"
	"github.com/sarathsp06/framehook/internal/logger"
	"github.com/sarathsp06/framehook/internal/observability"
	"github.com/sarathsp06/framehook/internal/workers"
)

var (
	ErrQueueFull      = errors.New("job queue is full")
	ErrManagerStopped = errors.New("queue manager is stopped")
	ErrUnknownKind    = errors.New("no worker registered for job kind")
)

// Config sizes the worker pool
type Config struct {
	Workers   int
	QueueSize int
}

// InsertResult describes an accepted job
type InsertResult struct {
	ID         string
	Kind       string
	EnqueuedAt time.Time
}

type envelope struct {
	id          string
	args        jobs.JobArgs
	enqueuedAt  time.Time
	spanContext trace.SpanContext
}

type workFunc func(ctx context.Context, e envelope) error

// Manager runs jobs on a fixed pool of goroutines fed by a bounded buffer.
// Jobs are held in memory only and are never retried.
type Manager struct {
	cfg     Config
	base    *slog.Logger
	log     *slog.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	workers map[string]workFunc
	queue   chan envelope
	started bool
	stopped bool
	runCtx  context.Context

	wg sync.WaitGroup
}

// New creates a manager with no workers registered. A nil log uses the process-wide logger.
func New(cfg Config, log *slog.Logger, metrics *observability.Metrics) *Manager {
	if log == nil {
		log = logger.Logger
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &Manager{
		cfg:     cfg,
		base:    log,
		log:     log.With("component", "queue-manager"),
		metrics: metrics,
		workers: make(map[string]workFunc),
		queue:   make(chan envelope, cfg.QueueSize),
	}
}

// NewManager creates a manager with the video processing worker registered
func NewManager(cfg Config, log *slog.Logger, metrics *observability.Metrics) *Manager {
	m := New(cfg, log, metrics)
	AddWorker(m, workers.NewVideoProcessingWorker(m.base.With("component", "video-worker"), metrics))
	return m
}

// AddWorker registers w for jobs whose Kind matches T's
func AddWorker[T jobs.JobArgs](m *Manager, w jobs.Worker[T]) {
	var zero T
	kind := zero.Kind()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[kind] = func(ctx context.Context, e envelope) error {
		args, ok := e.args.(T)
		if !ok {
			return fmt.Errorf("job %s: args of type %T do not match kind %q", e.id, e.args, kind)
		}
		return w.Work(ctx, &jobs.Job[T]{
			ID:          e.id,
			Args:        args,
			EnqueuedAt:  e.enqueuedAt,
			SpanContext: e.spanContext,
		})
	}
}

// Start launches the worker goroutines. Jobs run to completion even if ctx is cancelled;
// use Stop to shut the pool down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrManagerStopped
	}
	if m.started {
		return errors.New("queue manager already started")
	}
	m.started = true
	m.runCtx = context.WithoutCancel(ctx)

	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.run()
	}

	m.log.Info("Queue manager started", "workers", m.cfg.Workers, "queue_size", m.cfg.QueueSize)
	return nil
}

// Stop refuses new jobs, lets the pool drain what is already queued and waits for it
// until ctx expires.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.queue)
	started := m.started
	m.mu.Unlock()

	if !started {
		if n := len(m.queue); n > 0 {
			m.log.Warn("Queue manager stopped before start, dropping queued jobs", "dropped", n)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("Queue manager stopped")
		return nil
	case <-ctx.Done():
		m.log.Error("Queue manager stop interrupted", "pending", len(m.queue), "error", ctx.Err())
		return fmt.Errorf("failed to drain job queue: %w", ctx.Err())
	}
}

// Insert enqueues args without blocking. It fails with ErrQueueFull when every buffer
// slot is taken.
func (m *Manager) Insert(ctx context.Context, args jobs.JobArgs) (*InsertResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.stopped {
		return nil, ErrManagerStopped
	}
	kind := args.Kind()
	if _, ok := m.workers[kind]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	e := envelope{
		id:          uuid.NewString(),
		args:        args,
		enqueuedAt:  time.Now(),
		spanContext: trace.SpanContextFromContext(ctx),
	}

	select {
	case m.queue <- e:
	default:
		return nil, ErrQueueFull
	}

	m.metrics.RecordEnqueued(ctx, kind)
	return &InsertResult{ID: e.id, Kind: kind, EnqueuedAt: e.enqueuedAt}, nil
}

// Pending returns the number of jobs waiting for a worker
func (m *Manager) Pending() int {
	return len(m.queue)
}

func (m *Manager) run() {
	defer m.wg.Done()
	for e := range m.queue {
		m.execute(e)
	}
}

func (m *Manager) execute(e envelope) {
	kind := e.args.Kind()
	ctx := m.runCtx
	m.metrics.RecordDequeued(ctx, kind)

	m.mu.RLock()
	work := m.workers[kind]
	m.mu.RUnlock()

	start := time.Now()
	outcome := "success"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			m.log.Error("Job panicked",
				"job_id", e.id,
				"kind", kind,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
		m.metrics.RecordCompleted(ctx, kind, outcome, time.Since(start))
	}()

	if err := work(ctx, e); err != nil {
		outcome = "error"
		m.log.Error("Job failed", "job_id", e.id, "kind", kind, "error", err)
	}
}
