package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/chain"
)

func fastRetry(attempts int) chain.RetryConfig {
	return chain.RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestRetry_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()
	attempts := 0
	result, err := chain.RetryWithConfig(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		attempts++
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 1, attempts)
}

func TestRetry_SuccessAfterRetry(t *testing.T) {
	t.Parallel()
	attempts := 0
	result, err := chain.RetryWithConfig(context.Background(), fastRetry(4), func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", chain.ErrRetryable
		}
		return "success", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 3, attempts)
}

var errNonRetryable = errors.New("non-retryable error")

func TestRetry_NonRetryableError(t *testing.T) {
	t.Parallel()
	attempts := 0

	_, err := chain.RetryWithConfig(context.Background(), fastRetry(4), func(context.Context) (string, error) {
		attempts++
		return "", errNonRetryable
	})

	require.ErrorIs(t, err, errNonRetryable)
	assert.Equal(t, 1, attempts)
}

func TestRetry_MaxAttempts(t *testing.T) {
	t.Parallel()
	attempts := 0

	_, err := chain.RetryWithConfig(context.Background(), fastRetry(4), func(context.Context) (string, error) {
		attempts++
		return "", chain.ErrRetryable
	})

	require.Error(t, err)
	require.ErrorIs(t, err, chain.ErrRetryable)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Equal(t, 4, attempts)
}

func TestRetry_ContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	cfg := chain.RetryConfig{MaxAttempts: 10, BaseDelay: 40 * time.Millisecond, MaxDelay: 40 * time.Millisecond}
	_, err := chain.RetryWithConfig(ctx, cfg, func(context.Context) (string, error) {
		attempts++
		return "", chain.ErrRetryable
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, attempts, 10)
}

func TestRetry_CustomClassifierAndHook(t *testing.T) {
	t.Parallel()
	errFlaky := errors.New("flaky")
	var hooks []int

	cfg := fastRetry(3)
	cfg.Retryable = func(err error) bool { return errors.Is(err, errFlaky) }
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { hooks = append(hooks, attempt) }

	attempts := 0
	err := chain.Do(context.Background(), cfg, func(context.Context) error {
		attempts++
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, hooks)
}

func TestRetry_SingleAttemptReturnsRawError(t *testing.T) {
	t.Parallel()
	err := chain.Do(context.Background(), chain.RetryConfig{}, func(context.Context) error {
		return chain.ErrTimeout
	})

	require.ErrorIs(t, err, chain.ErrTimeout)
	assert.NotContains(t, err.Error(), "attempts")
}

func TestDefaultRetryConfig(t *testing.T) {
	t.Parallel()
	cfg := chain.DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BaseDelay)
}

func TestSleep(t *testing.T) {
	t.Parallel()
	require.NoError(t, chain.Sleep(context.Background(), time.Millisecond))
	require.NoError(t, chain.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, chain.Sleep(ctx, time.Hour), context.Canceled)
}

var errSomeError = errors.New("some error")

func TestIsRetryable(t *testing.T) {
	t.Parallel()
	assert.True(t, chain.IsRetryable(chain.ErrRetryable))
	assert.True(t, chain.IsRetryable(chain.ErrTimeout))
	assert.True(t, chain.IsRetryable(chain.ErrRateLimited))
	assert.True(t, chain.IsRetryable(context.DeadlineExceeded))
	assert.True(t, chain.IsRetryable(chain.WrapRetryable(errSomeError)))

	assert.False(t, chain.IsRetryable(errSomeError))
	assert.False(t, chain.IsRetryable(nil))
	assert.NoError(t, chain.WrapRetryable(nil))
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		header   string
		expected time.Duration
	}{
		{"5", 5 * time.Second},
		{"120", 120 * time.Second},
		{"0", 0},
		{"-3", 0},
		{"", 0},
		{"invalid", 0},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, chain.ParseRetryAfter(tt.header))
		})
	}
}
