package taskqueue

import (
	"context"
	"fmt"
)

// Run executes fn on q's goroutine and waits for it to finish. When ctx
// already belongs to q, fn runs inline so nested calls cannot deadlock.
// If ctx is cancelled while waiting, Run returns ctx.Err() and fn still
// runs to completion on the owner.
func Run(ctx context.Context, q *Queue, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, q, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call is Run for functions that return a value.
func Call[T any](ctx context.Context, q *Queue, fn func(ctx context.Context) (T, error)) (T, error) {
	if q.IsCurrent(ctx) {
		return fn(ctx)
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	err := q.Dispatch(func(qctx context.Context) {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("taskqueue %s: panic: %v", q.name, p)
			}
			done <- r
		}()
		r.v, r.err = fn(qctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
