package chain_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/finora/internal/chain"
)

const baseRPC = "https://mainnet.base.org"

func TestRateLimiter_Allow(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(10, 10)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(baseRPC), "request %d in burst", i)
	}
	assert.False(t, rl.Allow(baseRPC), "burst exhausted")
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(100, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, rl.Wait(ctx, baseRPC))

	start := time.Now()
	require.NoError(t, rl.Wait(ctx, baseRPC))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestRateLimiter_SeparateEndpoints(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(10, 2)

	assert.True(t, rl.Allow(baseRPC))
	assert.True(t, rl.Allow(baseRPC))
	assert.False(t, rl.Allow(baseRPC))

	assert.True(t, rl.Allow("https://ethereum-rpc.publicnode.com"))
	assert.Equal(t, 2, rl.Endpoints())
}

func TestRateLimiter_CancellationIsRateLimited(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(1, 1)
	require.NoError(t, rl.Wait(context.Background(), baseRPC))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rl.Wait(ctx, baseRPC)
	require.Error(t, err)
	require.ErrorIs(t, err, chain.ErrRateLimited)
	assert.True(t, chain.IsRetryable(err))
}

func TestRateLimiter_NonPositiveRateIsUnlimited(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(0, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, rl.Allow(baseRPC))
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(100, 100)

	var wg sync.WaitGroup
	var allowed atomic.Int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(baseRPC) {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, allowed.Load(), int32(90))
	assert.LessOrEqual(t, allowed.Load(), int32(110))
	assert.Equal(t, 1, rl.Endpoints())
}

func TestDefaultRateLimiter(t *testing.T) {
	t.Parallel()
	rl := chain.DefaultRateLimiter()
	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(baseRPC))
	}
	assert.False(t, rl.Allow(baseRPC))
}
