package shard

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Budget is the process-wide identify admission budget: at most one
// identify per spacing interval across all shards, with an optional
// cap on concurrently-identifying shards. Resume attempts never touch
// the budget.
//
// The budget is an explicit object injected into every connection;
// its lifetime is tied to the orchestrator that created it.
type Budget struct {
	limiter *rate.Limiter
	sem     chan struct{} // nil when concurrency is uncapped
}

// NewBudget creates a budget allowing one identify per spacing
// interval. maxConcurrent <= 0 means no concurrency cap.
func NewBudget(spacing time.Duration, maxConcurrent int) *Budget {
	b := &Budget{
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
	}
	if maxConcurrent > 0 {
		b.sem = make(chan struct{}, maxConcurrent)
	}
	return b
}

// Acquire blocks until the caller may send an Identify. Cancelling
// the context aborts the wait. A granted slot must be returned with
// Release once the handshake settles.
func (b *Budget) Acquire(ctx context.Context) error {
	if b.sem != nil {
		select {
		case b.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := b.limiter.Wait(ctx); err != nil {
		if b.sem != nil {
			<-b.sem
		}
		return err
	}

	return nil
}

// Release returns a concurrency slot taken by Acquire. The spacing
// interval is not refunded; it is what keeps identifies apart.
func (b *Budget) Release() {
	if b.sem != nil {
		<-b.sem
	}
}
