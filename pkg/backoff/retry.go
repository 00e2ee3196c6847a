package backoff

import (
	"context"
	"sync"
	"time"
)

// Policy bounds reconnect attempts: at most MaxRetries failures inside
// Window, after which the caller sleeps for Cooldown before retrying again.
type Policy struct {
	Backoff    Backoff       `mapstructure:"backoff"`
	MaxRetries int           `mapstructure:"max_retries"`
	Window     time.Duration `mapstructure:"window"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
}

// DefaultPolicy allows 5 failures per minute, then waits 5 minutes.
func DefaultPolicy() Policy {
	return Policy{
		Backoff:    Default(),
		MaxRetries: 5,
		Window:     time.Minute,
		Cooldown:   5 * time.Minute,
	}
}

// Retrier tracks failures for one connection.
type Retrier struct {
	mu       sync.Mutex
	policy   Policy
	failures []time.Time
	attempt  int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier. Zero policy fields fall back to DefaultPolicy.
func NewRetrier(p Policy) *Retrier {
	def := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.Window <= 0 {
		p.Window = def.Window
	}
	if p.Cooldown <= 0 {
		p.Cooldown = def.Cooldown
	}
	if p.Backoff == (Backoff{}) {
		p.Backoff = def.Backoff
	}
	return &Retrier{
		policy: p,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait records a failure and blocks for the next delay. It reports whether
// the failure exhausted the window and triggered the cooldown.
func (r *Retrier) Wait(ctx context.Context) (cooldown bool, err error) {
	wait, cooldown := r.next()
	return cooldown, r.sleep(ctx, wait)
}

// Reset clears the failure history after a successful connection.
func (r *Retrier) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = r.failures[:0]
	r.attempt = 0
}

func (r *Retrier) next() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.policy.Window)
	kept := r.failures[:0]
	for _, ts := range r.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	r.failures = append(kept, now)
	r.attempt++

	if len(r.failures) > r.policy.MaxRetries {
		r.failures = r.failures[:0]
		r.attempt = 0
		return r.policy.Cooldown, true
	}
	return r.policy.Backoff.Next(r.attempt), false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
