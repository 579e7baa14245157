// Package asyncx runs independent checks concurrently. The health endpoint
// checks Postgres and Redis through it so one slow dependency does not hide
// the state of the other.
package asyncx

import (
	"context"
	"sync"
	"time"
)

// Result holds the outcome of one settled call.
type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) OK() bool { return r.Err == nil }

// AllSettled runs every fn concurrently and waits for all of them. It never
// short-circuits: the results keep the order of fns.
func AllSettled[T any](ctx context.Context, fns ...func(context.Context) (T, error)) []Result[T] {
	results := make([]Result[T], len(fns))
	var wg sync.WaitGroup
	wg.Add(len(fns))

	for i, fn := range fns {
		go func() {
			defer wg.Done()
			v, err := fn(ctx)
			results[i] = Result[T]{Value: v, Err: err}
		}()
	}
	wg.Wait()
	return results
}

// WithTimeout runs fn with a deadline of d and returns ctx.Err() when fn
// does not finish in time. fn keeps running in the background until it
// notices the cancelled context.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	ch := make(chan Result[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- Result[T]{Value: v, Err: err}
	}()

	select {
	case r := <-ch:
		return r.Value, r.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Timed wraps fn so each call gets its own deadline, for use with AllSettled.
func Timed[T any](d time.Duration, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return WithTimeout(ctx, d, fn)
	}
}
