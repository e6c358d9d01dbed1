package batch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapBoundsInFlightAndKeepsOrder(t *testing.T) {
	items := make([]int, 10)
	for i := range items {
		items[i] = i
	}

	var inFlight, peak atomic.Int32
	results := Map(context.Background(), items, 3, func(_ context.Context, _ int, n int) (int, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		// Later items finish first to prove ordering does not depend on completion.
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		inFlight.Add(-1)
		return n * n, nil
	})

	require.Len(t, results, 10)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, i*i, r.Value)
	}
}

func TestMapCollectsErrorsPerItem(t *testing.T) {
	boom := errors.New("boom")
	results := Map(context.Background(), []string{"a", "b", "c"}, 2, func(_ context.Context, i int, s string) (string, error) {
		if i == 1 {
			return "", boom
		}
		return s + "!", nil
	})

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, boom)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, []string{"a!", "c!"}, Values(results))
}

func TestMapEmptyInput(t *testing.T) {
	results := Map(context.Background(), []int(nil), 3, func(context.Context, int, int) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	assert.Empty(t, results)
}

func TestMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results := Map(ctx, []int{1, 2, 3}, 1, func(context.Context, int, int) (int, error) {
		calls.Add(1)
		return 0, nil
	})
	assert.Zero(t, calls.Load())
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}
