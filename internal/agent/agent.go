// Package agent provides the start/stop scaffolding for long-running
// workers and the monitor and booking agents built on it.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Worker is an agent body. Run should return promptly once ctx is
// cancelled; Teardown runs on every exit path, including panics in Run.
type Worker interface {
	Name() string
	SessionID() string
	Setup(ctx context.Context) error
	Run(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Base wraps a Worker with an idempotent Start and a cooperative Stop that
// waits for the worker to drain. Failures inside the worker are logged and
// never crash the process.
type Base struct {
	worker Worker
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	ready   chan struct{}
}

// NewBase wraps a worker.
func NewBase(w Worker, logger *slog.Logger) *Base {
	return &Base{
		worker: w,
		logger: logger.With("agent", w.Name(), "session_id", w.SessionID()),
		ready:  make(chan struct{}),
	}
}

// Start launches the worker goroutine. Calling Start on a running agent is
// a no-op.
func (b *Base) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.run(ctx)
}

func (b *Base) run(ctx context.Context) {
	defer close(b.done)
	defer b.markReady()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("worker panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	err := b.worker.Setup(ctx)
	b.markReady()
	if err != nil {
		b.logger.Error("worker setup failed", "error", err)
		b.teardown()
		return
	}

	b.logger.Info("worker started")
	if err := runBody(ctx, b.worker); err != nil && ctx.Err() == nil {
		b.logger.Error("worker exited with error", "error", err)
	}
	b.teardown()
	b.logger.Info("worker stopped")
}

// runBody isolates a panic in Run so Teardown still executes.
func runBody(ctx context.Context, w Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v\n%s", r, debug.Stack())
		}
	}()
	return w.Run(ctx)
}

func (b *Base) teardown() {
	tctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := b.worker.Teardown(tctx); err != nil {
		b.logger.Warn("worker teardown failed", "error", err)
	}
}

// Stop cancels the worker and waits for it to finish or for ctx to expire.
// Stopping an agent that never started is a no-op.
func (b *Base) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return nil
	}
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop %s for session %s: %w", b.worker.Name(), b.worker.SessionID(), ctx.Err())
	}
}

// markReady is only called from the worker goroutine, so the check cannot
// race the close.
func (b *Base) markReady() {
	select {
	case <-b.ready:
	default:
		close(b.ready)
	}
}

// Ready is closed once Setup finished, whatever its outcome. Callers that
// must not race the worker's subscriptions wait on it after Start.
func (b *Base) Ready() <-chan struct{} {
	return b.ready
}

// Running reports whether the worker goroutine is alive.
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}
