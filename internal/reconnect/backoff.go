package reconnect

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// jitterFactor spreads each delay by ±25%.
const jitterFactor = 0.25

// BackoffConfig controls the delay between consecutive retries.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultBackoffConfig returns the daemon defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 2 * time.Second,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Backoff is the retry delay sequence of one client. There is no attempt
// cap: retries go on for as long as the connection keeps closing for
// non-terminal reasons.
type Backoff struct {
	mu      sync.Mutex
	exp     *backoff.ExponentialBackOff
	max     time.Duration
	retried bool
}

// NewBackoff fills zero fields from the defaults.
func NewBackoff(config BackoffConfig) *Backoff {
	def := DefaultBackoffConfig()
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay < config.InitialDelay {
		config.MaxDelay = max(def.MaxDelay, config.InitialDelay)
	}
	if config.Multiplier < 1 {
		config.Multiplier = def.Multiplier
	}

	exp := &backoff.ExponentialBackOff{
		InitialInterval: config.InitialDelay,
		MaxInterval:     config.MaxDelay,
		Multiplier:      config.Multiplier,
		MaxElapsedTime:  0,
		Stop:            backoff.Stop,
		Clock:           backoff.SystemClock,
	}
	if config.Jitter {
		exp.RandomizationFactor = jitterFactor
	}
	exp.Reset()
	return &Backoff{exp: exp, max: config.MaxDelay}
}

// Next returns the wait before the next retry. The first retry after a
// healthy connection is not delayed.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.retried {
		b.retried = true
		return 0
	}
	d := b.exp.NextBackOff()
	if d == backoff.Stop || d > b.max {
		d = b.max
	}
	return d
}

// Reset restarts the sequence, as after a successful open.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retried = false
	b.exp.Reset()
}
