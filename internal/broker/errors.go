package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout          = errors.New("gateway call timed out")
	ErrNotConnected     = errors.New("gateway not connected")
	ErrConnectExhausted = errors.New("gateway connect attempts exhausted")
	ErrNotCancellable   = errors.New("trade is not cancellable")
)

// TimeoutError names the gateway operation that exceeded its time box.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// withTimeout runs fn under a per-call deadline. A deadline hit is reported as
// *TimeoutError; cancellation of the parent context is passed through.
func withTimeout[T any](ctx context.Context, op string, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	out, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, &TimeoutError{Op: op, Timeout: d}
	}
	return out, err
}
