package store

import (
	"context"
	"testing"
	"time"
)

func TestRetryDelayWithRand(t *testing.T) {
	tests := []struct {
		name        string
		policy      RetryPolicy
		attempt     int
		randomValue float64
		expected    time.Duration
	}{
		{
			name:        "first attempt with no jitter",
			policy:      RetryPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0},
			attempt:     1,
			randomValue: 0.5,
			expected:    100 * time.Millisecond,
		},
		{
			name:        "third attempt quadruples",
			policy:      RetryPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0},
			attempt:     3,
			randomValue: 0.5,
			expected:    400 * time.Millisecond,
		},
		{
			name:        "clamped to max",
			policy:      RetryPolicy{InitialMs: 100, MaxMs: 500, Factor: 2, Jitter: 0},
			attempt:     10,
			randomValue: 0.5,
			expected:    500 * time.Millisecond,
		},
		{
			name:        "jitter at max random",
			policy:      RetryPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0.1},
			attempt:     1,
			randomValue: 1.0,
			expected:    110 * time.Millisecond,
		},
		{
			name:        "attempt below 1 treated as 1",
			policy:      RetryPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0},
			attempt:     -5,
			randomValue: 0.5,
			expected:    100 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retryDelayWithRand(tt.policy, tt.attempt, tt.randomValue)
			if got != tt.expected {
				t.Errorf("retryDelayWithRand() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRetryPolicyPresetsOrderAscending(t *testing.T) {
	aggressive := retryDelayWithRand(AggressiveRetryPolicy(), 1, 0)
	def := retryDelayWithRand(DefaultRetryPolicy(), 1, 0)
	conservative := retryDelayWithRand(ConservativeRetryPolicy(), 1, 0)

	if aggressive >= def {
		t.Errorf("aggressive delay %v should be < default delay %v", aggressive, def)
	}
	if def >= conservative {
		t.Errorf("default delay %v should be < conservative delay %v", def, conservative)
	}
}

func TestWaitForRetryRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{InitialMs: 500, MaxMs: 1000, Factor: 2, Jitter: 0}

	start := time.Now()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := waitForRetry(ctx, policy, 1)
	elapsed := time.Since(start)

	if err != context.Canceled {
		t.Errorf("waitForRetry() error = %v, want context.Canceled", err)
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("waitForRetry() did not cancel quickly: %v", elapsed)
	}
}

func TestWaitForRetryCompletes(t *testing.T) {
	policy := RetryPolicy{InitialMs: 10, MaxMs: 1000, Factor: 2, Jitter: 0}

	start := time.Now()
	if err := waitForRetry(context.Background(), policy, 1); err != nil {
		t.Errorf("waitForRetry() error = %v, want nil", err)
	}
	if elapsed := time.Since(start); elapsed < 8*time.Millisecond {
		t.Errorf("waitForRetry() completed too quickly: %v", elapsed)
	}
}
