package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/calebreyn/pulsegate/internal/codec"
)

// Stats contains dispatcher counters.
type Stats struct {
	Dispatched      int64 // Events that matched at least one handler
	Invocations     int64 // Individual handler runs
	HandlerFailures int64 // Runs that returned an error or panicked
}

// Dispatcher fans decoded events out to the registry's handlers.
// Shared by all connections; each connection calls Dispatch from its
// own read loop.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		registry: registry,
		logger:   logger,
	}
}

// Dispatch runs every handler matched by the event and returns when
// all of them have finished. Handlers run concurrently with each
// other. Failures are counted and logged with a per-invocation id;
// they never propagate to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, sc *SessionContext, ev codec.Event) {
	handlers := d.registry.handlersFor(ev.Name, ev.Unknown)
	if len(handlers) == 0 {
		return
	}

	d.mu.Lock()
	d.stats.Dispatched++
	d.stats.Invocations += int64(len(handlers))
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			d.run(ctx, h, sc, ev)
		}(h)
	}
	wg.Wait()
}

// run executes one handler invocation with panic containment.
func (d *Dispatcher) run(ctx context.Context, h Handler, sc *SessionContext, ev codec.Event) {
	invocation := uuid.NewString()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		err = h.invoke(ctx, sc, ev)
	}()

	if err != nil {
		d.mu.Lock()
		d.stats.HandlerFailures++
		d.mu.Unlock()

		d.logger.Error("handler failed",
			"event", ev.Name,
			"seq", ev.Seq,
			"invocation", invocation,
			"error", err,
		)
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
