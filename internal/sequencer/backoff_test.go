package sequencer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/disperse/internal/common"
)

func TestBackoffDelay(t *testing.T) {
	policy := BackoffPolicy{
		MaxAttempts: 5,
		Initial:     2 * time.Second,
		Max:         10 * time.Second,
		Multiplier:  2.0,
	}

	cases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 0}, // first attempt never waits
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // capped at Max
		{6, 10 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, policy.Delay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestBackoffWaitCancellable(t *testing.T) {
	policy := BackoffPolicy{MaxAttempts: 3, Initial: time.Minute, Max: time.Minute, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := policy.Wait(ctx, 2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffWaitNoDelayIgnoresContext(t *testing.T) {
	policy := NewDefaultBackoffPolicy()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Attempt 1 has no delay and must not consult the context
	require.NoError(t, policy.Wait(ctx, 1))
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(common.SequencerConfig{
		MaxLaunchAttempts: 7,
		InitialBackoff:    "500ms",
		BackoffMultiplier: 1.5,
		MaxBackoff:        "5s",
	})

	assert.Equal(t, 7, policy.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, policy.Initial)
	assert.Equal(t, 1.5, policy.Multiplier)
	assert.Equal(t, 5*time.Second, policy.Max)
}

func TestPolicyFromConfigDefaults(t *testing.T) {
	policy := PolicyFromConfig(common.SequencerConfig{InitialBackoff: "not a duration"})

	assert.Equal(t, DefaultMaxAttempts, policy.MaxAttempts)
	assert.Equal(t, DefaultInitialBackoff, policy.Initial)
	assert.Equal(t, DefaultBackoffMultiplier, policy.Multiplier)
	assert.Equal(t, DefaultMaxBackoff, policy.Max)
}
