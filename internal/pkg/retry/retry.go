// Package retry implements a small bounded-retry helper with exponential
// backoff, used by every profile-store call. Classification of what is worth
// retrying belongs to the caller via the transient predicate.
package retry

import (
	"context"
	"time"
)

const (
	DefaultAttempts       = 3
	DefaultInitialBackoff = time.Second
)

// Policy bounds the retry loop. Attempts counts every try including the
// first; backoff doubles after each failed attempt (1s, 2s, ...).
type Policy struct {
	Attempts       int
	InitialBackoff time.Duration

	// Transient decides whether an error is worth another attempt. A nil
	// predicate retries nothing.
	Transient func(error) bool

	// Sleep is injectable for tests. Defaults to a context-aware wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	return p
}

// Do runs fn up to p.Attempts times. Terminal errors return immediately;
// transient ones wait the backoff delay and try again. The last error is
// returned when the budget is spent.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	delay := p.InitialBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Transient == nil || !p.Transient(err) {
			return err
		}
		if attempt >= p.Attempts {
			return err
		}
		if sleepErr := p.Sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
		delay *= 2
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
