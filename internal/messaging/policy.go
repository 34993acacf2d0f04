package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/detox/internal/domain"
)

// Policy bounds calls to the external backend. Every attempt runs under
// Timeout; reads are retried up to Retries times with exponential backoff.
// Writes are never retried here.
type Policy struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// DefaultPolicy is 10s per attempt, two read retries, 200ms doubling backoff.
func DefaultPolicy() Policy {
	return Policy{Timeout: 10 * time.Second, Retries: 2, Backoff: 200 * time.Millisecond}
}

// Read runs a read under p, retrying transient failures.
func Read[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	backoff := p.Backoff
	for attempt := 0; ; attempt++ {
		v, err := once(ctx, p, fn)
		if err == nil {
			return v, nil
		}
		if attempt >= p.Retries || !retryable(err) || ctx.Err() != nil {
			return zero, err
		}
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		}
		backoff *= 2
	}
}

// Write runs a single attempt of a write under p's timeout.
func Write[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	return once(ctx, p, fn)
}

func once[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, p.Timeout)
	}
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		err = fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return v, err
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAuthUnavailable),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
