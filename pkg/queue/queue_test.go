package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
)

var errTransient = errors.New("transient")

func newTestQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	if cfg.RetryBase == 0 {
		cfg.RetryBase = time.Millisecond
	}
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, logger)
}

func waitForStatus(t *testing.T, q *Queue, id uuid.UUID, want Status) Info {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info, ok := q.Info(id); ok && info.Status == want {
			return info
		}
		time.Sleep(5 * time.Millisecond)
	}
	info, _ := q.Info(id)
	t.Fatalf("task %s never reached %s, last state: %+v", id, want, info)
	return Info{}
}

func TestEnqueueAndRun(t *testing.T) {
	q := newTestQueue(t, Config{})
	q.Register("double", func(_ context.Context, task Task) (any, error) {
		return task.Payload.(int) * 2, nil
	})
	q.Start(context.Background())
	defer shutdown(t, q)

	id, err := q.Enqueue(context.Background(), "double", 21)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	info := waitForStatus(t, q, id, StatusSuccess)
	if got := info.Result.(int); got != 42 {
		t.Errorf("unexpected result: got %d, want 42", got)
	}
	if info.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", info.Attempts)
	}
}

func TestEnqueueUnknownTask(t *testing.T) {
	q := newTestQueue(t, Config{})
	if _, err := q.Enqueue(context.Background(), "nope", nil); err == nil {
		t.Fatal("expected error for unregistered task")
	}
}

func TestNonRetryableFailure(t *testing.T) {
	q := newTestQueue(t, Config{
		MaxRetries: 3,
		Retryable:  func(err error) bool { return errors.Is(err, errTransient) },
	})
	q.Register("boom", func(context.Context, Task) (any, error) {
		return nil, errors.New("bad input")
	})
	q.Start(context.Background())
	defer shutdown(t, q)

	id, err := q.Enqueue(context.Background(), "boom", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	info := waitForStatus(t, q, id, StatusFailure)
	if info.Attempts != 1 {
		t.Errorf("non-retryable error should not retry, got %d attempts", info.Attempts)
	}
	if info.Error == "" {
		t.Error("expected failure reason to be recorded")
	}
}

func TestTransientFailureRetries(t *testing.T) {
	calls := 0
	q := newTestQueue(t, Config{
		Workers:    1,
		MaxRetries: 3,
		Retryable:  func(err error) bool { return errors.Is(err, errTransient) },
	})
	q.Register("flaky", func(context.Context, Task) (any, error) {
		calls++
		if calls < 3 {
			return nil, fmt.Errorf("storage hiccup: %w", errTransient)
		}
		return "ok", nil
	})
	q.Start(context.Background())
	defer shutdown(t, q)

	id, err := q.Enqueue(context.Background(), "flaky", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	info := waitForStatus(t, q, id, StatusSuccess)
	if info.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", info.Attempts)
	}
}

func TestRetriesAreBounded(t *testing.T) {
	calls := 0
	q := newTestQueue(t, Config{
		Workers:    1,
		MaxRetries: 3,
		Retryable:  func(err error) bool { return errors.Is(err, errTransient) },
	})
	q.Register("always-flaky", func(context.Context, Task) (any, error) {
		calls++
		return nil, fmt.Errorf("still down: %w", errTransient)
	})
	q.Start(context.Background())
	defer shutdown(t, q)

	id, err := q.Enqueue(context.Background(), "always-flaky", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	waitForStatus(t, q, id, StatusFailure)
	if calls != 4 { // initial execution plus three retries
		t.Errorf("expected 4 executions, got %d", calls)
	}
}

func TestShutdownDrainsQueue(t *testing.T) {
	q := newTestQueue(t, Config{Workers: 1})
	done := make(chan struct{}, 4)
	q.Register("slow", func(context.Context, Task) (any, error) {
		time.Sleep(10 * time.Millisecond)
		done <- struct{}{}
		return nil, nil
	})
	q.Start(context.Background())

	for i := 0; i < 4; i++ {
		if _, err := q.Enqueue(context.Background(), "slow", i); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if len(done) != 4 {
		t.Errorf("expected all 4 tasks to finish before shutdown, got %d", len(done))
	}
}

func TestShutdownDrainsAfterStartContextCancelled(t *testing.T) {
	q := newTestQueue(t, Config{Workers: 1})
	done := make(chan struct{}, 4)
	q.Register("slow", func(ctx context.Context, _ Task) (any, error) {
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		done <- struct{}{}
		return nil, nil
	})

	startCtx, stop := context.WithCancel(context.Background())
	q.Start(startCtx)

	ids := make([]uuid.UUID, 0, 4)
	for i := 0; i < 4; i++ {
		id, err := q.Enqueue(context.Background(), "slow", i)
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, id)
	}

	// A signal cancels the start context; workers must keep going so
	// the shutdown drain can finish the backlog.
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if len(done) != 4 {
		t.Errorf("expected all 4 tasks to finish the drain, got %d", len(done))
	}
	for _, id := range ids {
		info, ok := q.Info(id)
		if !ok || info.Status != StatusSuccess {
			t.Errorf("task %s should have drained to success, got %+v", id, info)
		}
	}
}

func shutdown(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
