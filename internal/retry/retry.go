package retry

import (
	"context"
	"time"
)

// Decision tells the loop what to do after one attempt.
type Decision int

const (
	// Done stops the loop and returns the attempt's error (nil on
	// success).
	Done Decision = iota
	// Again sleeps the backoff delay and retries, unless attempts are
	// exhausted.
	Again
)

// Policy is a bounded retry loop with linear-multiplier backoff.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// Do runs fn until it returns Done, the attempts run out, or the
// context is canceled. fn receives the 1-based attempt number. When
// attempts run out the last error is returned.
func (p Policy) Do(ctx context.Context, fn func(attempt int) (Decision, error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}

	var lastErr error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		decision, err := fn(attempt)
		lastErr = err
		if decision == Done {
			return err
		}
		if attempt == attempts {
			break
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * mult)
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
	return lastErr
}
