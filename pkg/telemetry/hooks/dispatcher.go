package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"mercator-hq/passthrough/pkg/security/auth"
)

// DefaultHookTimeout bounds a single asynchronous hook invocation.
const DefaultHookTimeout = 30 * time.Second

// Dispatcher runs Success and Failure hooks in their own goroutines.
// Panics and errors are logged. Wait blocks until in-flight hooks finish,
// which lets shutdown flush telemetry.
type Dispatcher struct {
	hooks   Hooks
	timeout time.Duration
	logger  *slog.Logger
	onError func(kind string, err error)
	wg      sync.WaitGroup
}

// NewDispatcher wraps h. A nil h behaves like Nop.
func NewDispatcher(h Hooks, timeout time.Duration) *Dispatcher {
	if h == nil {
		h = Nop{}
	}
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	return &Dispatcher{
		hooks:   h,
		timeout: timeout,
		logger:  slog.Default().With("component", "hooks"),
	}
}

// OnError registers fn to observe hook errors and panics. It must be set
// before the dispatcher is used.
func (d *Dispatcher) OnError(fn func(kind string, err error)) {
	d.onError = fn
}

func (d *Dispatcher) reportError(kind string, err error) {
	if d.onError != nil {
		d.onError(kind, err)
	}
}

// PreCall runs the pre-call hooks synchronously.
func (d *Dispatcher) PreCall(ctx context.Context, id *auth.Identity, data map[string]any, callType string) (map[string]any, error) {
	return d.hooks.PreCall(ctx, id, data, callType)
}

// Success schedules the success hooks and returns immediately.
func (d *Dispatcher) Success(ctx context.Context, ev *SuccessEvent) {
	d.goHook(ctx, "success", ev.CallID, func(ctx context.Context) error {
		return d.hooks.Success(ctx, ev)
	})
}

// Failure schedules the failure hooks and returns immediately.
func (d *Dispatcher) Failure(ctx context.Context, ev *FailureEvent) {
	d.goHook(ctx, "failure", ev.CallID, func(ctx context.Context) error {
		return d.hooks.Failure(ctx, ev)
	})
}

// Wait blocks until all scheduled hooks return or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for telemetry hooks: %w", ctx.Err())
	}
}

func (d *Dispatcher) goHook(parent context.Context, kind, callID string, fn func(context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("telemetry hook panicked",
					"hook", kind,
					"call_id", callID,
					"panic", p,
					"stack", string(debug.Stack()),
				)
				d.reportError(kind, fmt.Errorf("panic: %v", p))
			}
		}()

		// The request context is usually cancelled by the time hooks run.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), d.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			d.logger.Warn("telemetry hook failed", "hook", kind, "call_id", callID, "error", err)
			d.reportError(kind, err)
		}
	}()
}
