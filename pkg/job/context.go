package job

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ShutdownHookTimeout bounds how long Shutdown waits for hooks.
const ShutdownHookTimeout = 5 * time.Second

// JobContext manages the lifecycle and cleanup of a job. Shutdown is
// idempotent and runs every registered hook exactly once.
type JobContext struct {
	// Ctx is cancelled when the job ends.
	Ctx context.Context

	cancel        context.CancelFunc
	mu            sync.Mutex
	shutdownHooks []func(reason string)
	shutdown      bool
}

// NewJobContext creates a JobContext whose Ctx is cancelled by Shutdown.
func NewJobContext(parent context.Context) *JobContext {
	ctx, cancel := context.WithCancel(parent)
	return &JobContext{
		Ctx:    ctx,
		cancel: cancel,
	}
}

// Shutdown runs all registered hooks concurrently, waits for them up to
// ShutdownHookTimeout, then cancels the context. Safe to call more than
// once.
func (jc *JobContext) Shutdown(reason string) {
	jc.mu.Lock()
	if jc.shutdown {
		jc.mu.Unlock()
		return
	}
	jc.shutdown = true
	hooks := jc.shutdownHooks
	jc.mu.Unlock()

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(h func(string)) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("shutdown hook panicked", slog.Any("panic", r))
				}
			}()
			h(reason)
		}(hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownHookTimeout):
		slog.Warn("shutdown hooks timed out",
			slog.Duration("timeout", ShutdownHookTimeout))
	}

	jc.cancel()
}

// OnShutdown registers a callback to run when Shutdown is called. If
// the job is already shut down, the callback runs immediately.
func (jc *JobContext) OnShutdown(callback func(reason string)) {
	jc.mu.Lock()
	defer jc.mu.Unlock()

	if jc.shutdown {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("shutdown callback panicked", slog.Any("panic", r))
				}
			}()
			callback("job already shut down")
		}()
		return
	}
	jc.shutdownHooks = append(jc.shutdownHooks, callback)
}

// IsShutdown reports whether the job has been shut down.
func (jc *JobContext) IsShutdown() bool {
	select {
	case <-jc.Ctx.Done():
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the job context is cancelled.
func (jc *JobContext) Done() <-chan struct{} {
	return jc.Ctx.Done()
}

// Err returns the context cancellation error.
func (jc *JobContext) Err() error {
	return jc.Ctx.Err()
}
