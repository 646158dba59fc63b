package shard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudget_SpacesAcquires(t *testing.T) {
	spacing := 50 * time.Millisecond
	b := NewBudget(spacing, 0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, b.Acquire(ctx))
		b.Release()
	}
	elapsed := time.Since(start)

	// First acquire is immediate, the next two each wait a full
	// spacing interval.
	assert.GreaterOrEqual(t, elapsed, 2*spacing-5*time.Millisecond,
		"three identifies must span at least two spacing intervals")
}

func TestBudget_AcquireHonorsCancel(t *testing.T) {
	b := NewBudget(time.Hour, 0)
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Acquire(ctx)
	require.Error(t, err, "acquire must give up when the context expires")
}

func TestBudget_ConcurrencyCap(t *testing.T) {
	b := NewBudget(time.Millisecond, 1)
	require.NoError(t, b.Acquire(context.Background()))

	second := make(chan error, 1)
	go func() {
		second <- b.Acquire(context.Background())
	}()

	select {
	case <-second:
		t.Fatal("second acquire should block while the slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	b.Release()

	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second acquire never admitted after release")
	}
	b.Release()
}
