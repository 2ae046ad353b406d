// Package retry runs a single-attempt function under a bounded attempt
// budget with a caller supplied delay schedule and an injectable clock.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned when every attempt ran without a decisive result.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Result is the outcome of one attempt.
// Done stops the loop with Value. Abort stops the loop with Err.
// Anything else is retried; Err is kept as the last observed failure.
type Result[T any] struct {
	Value T
	Done  bool
	Abort bool
	Err   error
}

// Succeed ends the loop with v.
func Succeed[T any](v T) Result[T] {
	return Result[T]{Value: v, Done: true}
}

// Again asks for another attempt. err may be nil for a non-decisive answer.
func Again[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Stop ends the loop with a permanent failure.
func Stop[T any](err error) Result[T] {
	return Result[T]{Abort: true, Err: err}
}

// DelayFunc returns the wait between attempt i and i+1 (i is zero-based).
type DelayFunc func(attempt int) time.Duration

// Linear returns delay(i) = min(base + i*step, max). A non-positive max disables the cap.
func Linear(base, step, max time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		d := base + time.Duration(attempt)*step
		if max > 0 && d > max {
			d = max
		}
		if d < 0 {
			d = 0
		}
		return d
	}
}

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Delay       DelayFunc
	Clock       Clock
}

func (p Policy) clock() Clock {
	if p.Clock == nil {
		return SystemClock{}
	}
	return p.Clock
}

// Run calls fn up to MaxAttempts times, sleeping Delay(i) between attempts.
// Context cancellation is checked before every attempt and every sleep and is
// returned as-is. attempts reports how many times fn ran.
func Run[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) Result[T]) (value T, attempts int, err error) {
	var zero T
	if p.MaxAttempts <= 0 {
		return zero, 0, fmt.Errorf("retry: max attempts must be positive, got %d", p.MaxAttempts)
	}
	clock := p.clock()

	var last error
	for i := 0; i < p.MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, attempts, err
		}
		res := fn(ctx, i)
		attempts++
		if res.Done {
			return res.Value, attempts, nil
		}
		if res.Abort {
			return zero, attempts, res.Err
		}
		if res.Err != nil {
			last = res.Err
		}
		if i == p.MaxAttempts-1 {
			break
		}
		var d time.Duration
		if p.Delay != nil {
			d = p.Delay(i)
		}
		if err := clock.Sleep(ctx, d); err != nil {
			return zero, attempts, err
		}
	}
	if last != nil {
		return zero, attempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
	}
	return zero, attempts, fmt.Errorf("%w after %d attempts", ErrExhausted, attempts)
}
