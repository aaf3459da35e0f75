// Package queue runs background tasks on an in-process worker pool and
// tracks their state by id, so callers get a task handle back the moment
// work is submitted.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/FACorreiaa/statement-parser/pkg/observability"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending  Status = "pending"
	StatusStarted  Status = "started"
	StatusRetrying Status = "retrying"
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
)

// Task is one unit of queued work.
type Task struct {
	ID         uuid.UUID
	Name       string
	Payload    any
	EnqueuedAt time.Time
}

// Info is the observable state of a task.
type Info struct {
	ID         uuid.UUID
	Name       string
	Status     Status
	Attempts   int
	Error      string
	Result     any
	EnqueuedAt time.Time
	FinishedAt time.Time
}

// Handler executes a task and returns its result value.
type Handler func(ctx context.Context, task Task) (any, error)

// Config configures the pool.
type Config struct {
	Workers     int
	MaxRetries  int
	TaskTimeout time.Duration
	Backlog     int
	// RetryBase is the first backoff delay; each retry doubles it and
	// adds jitter.
	RetryBase time.Duration
	// Retryable decides whether a failed execution is worth retrying.
	Retryable func(error) bool
}

// Queue is an in-process task queue.
type Queue struct {
	cfg    Config
	logger *slog.Logger

	handlers map[string]Handler

	jobs      chan Task
	closeOnce sync.Once
	wg        sync.WaitGroup
	cancel    context.CancelFunc

	mu       sync.RWMutex
	tasks    map[uuid.UUID]*Info
	finished []uuid.UUID
}

// maxTaskHistory bounds the in-memory result backend; oldest finished
// tasks are evicted past this.
const maxTaskHistory = 10000

// New builds a queue; call Register for each task kind, then Start.
func New(cfg Config, logger *slog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = 64
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}

	return &Queue{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]Handler),
		jobs:     make(chan Task, cfg.Backlog),
		tasks:    make(map[uuid.UUID]*Info),
	}
}

// Register binds a handler to a task name. Must be called before Start.
func (q *Queue) Register(name string, h Handler) {
	q.handlers[name] = h
}

// Start launches the worker pool. Workers are detached from ctx's
// cancellation so a process signal does not kill in-flight tasks;
// Shutdown drains them and cancels only once its deadline expires.
func (q *Queue) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = cancel
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(workerCtx)
	}
	q.logger.Info("task queue started", "workers", q.cfg.Workers)
}

// Enqueue submits a task and returns its handle. It blocks while the
// backlog is full.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any) (uuid.UUID, error) {
	if _, ok := q.handlers[name]; !ok {
		return uuid.Nil, fmt.Errorf("no handler registered for task %q", name)
	}

	task := Task{
		ID:         uuid.New(),
		Name:       name,
		Payload:    payload,
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	q.tasks[task.ID] = &Info{
		ID:         task.ID,
		Name:       name,
		Status:     StatusPending,
		EnqueuedAt: task.EnqueuedAt,
	}
	q.mu.Unlock()

	select {
	case q.jobs <- task:
		return task.ID, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.tasks, task.ID)
		q.mu.Unlock()
		return uuid.Nil, ctx.Err()
	}
}

// Info returns a snapshot of a task's state.
func (q *Queue) Info(id uuid.UUID) (Info, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	info, ok := q.tasks[id]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Shutdown stops accepting work and drains in-flight tasks until ctx
// expires, then cancels whatever is still running.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.closeOnce.Do(func() { close(q.jobs) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if q.cancel != nil {
			q.cancel()
		}
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, task)
		}
	}
}

func (q *Queue) run(ctx context.Context, task Task) {
	handler := q.handlers[task.Name]
	logger := q.logger.With(slog.String("task_id", task.ID.String()), slog.String("task", task.Name))

	q.update(task.ID, func(info *Info) { info.Status = StatusStarted })
	logger.Info("task started")

	backoff := retry.WithMaxRetries(uint64(q.cfg.MaxRetries),
		retry.WithJitter(q.cfg.RetryBase/2, retry.NewExponential(q.cfg.RetryBase)))

	attempts := 0
	var result any
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			observability.TaskRetries.Inc()
			q.update(task.ID, func(info *Info) {
				info.Status = StatusRetrying
				info.Attempts = attempts
			})
			logger.Warn("retrying task", "attempt", attempts)
		}

		runCtx, cancel := context.WithTimeout(ctx, q.cfg.TaskTimeout)
		defer cancel()

		value, err := handler(runCtx, task)
		if err != nil {
			if q.cfg.Retryable != nil && q.cfg.Retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = value
		return nil
	})

	now := time.Now()
	if err != nil {
		q.update(task.ID, func(info *Info) {
			info.Status = StatusFailure
			info.Attempts = attempts
			info.Error = err.Error()
			info.FinishedAt = now
		})
		logger.Error("task failed", "error", err, "attempts", attempts)
	} else {
		q.update(task.ID, func(info *Info) {
			info.Status = StatusSuccess
			info.Attempts = attempts
			info.Result = result
			info.FinishedAt = now
		})
		logger.Info("task succeeded", "attempts", attempts)
	}
	q.recordFinished(task.ID)
}

func (q *Queue) update(id uuid.UUID, apply func(*Info)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if info, ok := q.tasks[id]; ok {
		apply(info)
	}
}

func (q *Queue) recordFinished(id uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finished = append(q.finished, id)
	for len(q.finished) > maxTaskHistory {
		delete(q.tasks, q.finished[0])
		q.finished = q.finished[1:]
	}
}
