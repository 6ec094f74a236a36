package sequencer

import (
	"context"
	"math"
	"time"

	"github.com/ternarybob/disperse/internal/common"
)

// Launch retry defaults. Launch failures against the runner are usually
// transient platform hiccups; a short bounded retry clears them without
// holding the sequence hostage.
const (
	DefaultMaxAttempts       = 3
	DefaultInitialBackoff    = 2 * time.Second
	DefaultMaxBackoff        = 60 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// BackoffPolicy defines the bounded exponential backoff applied between
// launch attempts. Attempts are always bounded; a source whose launch keeps
// failing is marked failed rather than retried forever.
type BackoffPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

// NewDefaultBackoffPolicy returns the stock launch retry policy
func NewDefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Initial:     DefaultInitialBackoff,
		Max:         DefaultMaxBackoff,
		Multiplier:  DefaultBackoffMultiplier,
	}
}

// PolicyFromConfig builds a BackoffPolicy from the sequencer configuration
// section, falling back to defaults for anything unset or unparsable.
func PolicyFromConfig(cfg common.SequencerConfig) BackoffPolicy {
	policy := NewDefaultBackoffPolicy()
	if cfg.MaxLaunchAttempts > 0 {
		policy.MaxAttempts = cfg.MaxLaunchAttempts
	}
	if cfg.BackoffMultiplier > 0 {
		policy.Multiplier = cfg.BackoffMultiplier
	}
	policy.Initial = common.ParseDuration(cfg.InitialBackoff, policy.Initial)
	policy.Max = common.ParseDuration(cfg.MaxBackoff, policy.Max)
	return policy
}

// Delay computes the wait before the given attempt (1-based). The first
// attempt has no delay.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := time.Duration(float64(p.Initial) * math.Pow(p.Multiplier, float64(attempt-2)))
	if delay > p.Max {
		delay = p.Max
	}
	return delay
}

// Wait sleeps for the attempt's delay, cancellable via context
func (p BackoffPolicy) Wait(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt)
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
