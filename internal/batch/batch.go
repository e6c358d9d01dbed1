// Package batch runs a function over a slice with a cap on calls in flight.
package batch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result is the outcome of one call. Result i always belongs to input i.
type Result[R any] struct {
	Value R
	Err   error
}

// Map calls fn for every item with at most limit calls running at once.
// A finished call frees its slot for the next item immediately. Errors are
// collected per item and never cancel the other calls; a cancelled ctx
// marks items that have not started yet with ctx.Err().
func Map[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, i int, item T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}
	if limit <= 0 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			v, err := fn(ctx, i, item)
			results[i] = Result[R]{Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Values returns the successful values in input order.
func Values[R any](results []Result[R]) []R {
	out := make([]R, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}
