package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammer-fleet/fleetcache/config"
	"github.com/hammer-fleet/fleetcache/store"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

func setupRegistry(t *testing.T, cfg config.Config) (*Registry, *store.Adapter) {
	t.Helper()

	mr := miniredis.RunT(t)
	adapter, err := store.New(config.Connection{}, config.Credentials{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	return NewRegistry(cfg, adapter, nil, nil), adapter
}

func TestCheckSequence(t *testing.T) {
	// auth: 5 requests per 900s window. Six checks in quick succession:
	// the first five are allowed with remaining 4,3,2,1,0; the sixth is denied.
	cfg := config.Default()
	registry, _ := setupRegistry(t, cfg)
	ctx := context.Background()

	for i, wantRemaining := range []int{4, 3, 2, 1, 0} {
		decision, err := registry.Check(ctx, ClassAuth, "ip1")
		require.NoError(t, err, "check %d", i+1)
		assert.True(t, decision.Allowed, "check %d", i+1)
		assert.Equal(t, 5, decision.Limit)
		assert.Equal(t, wantRemaining, decision.Remaining, "check %d", i+1)
	}

	decision, err := registry.Check(ctx, ClassAuth, "ip1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Zero(t, decision.Remaining)
}

func TestRemainingMonotonic(t *testing.T) {
	cfg := config.Default()
	registry, _ := setupRegistry(t, cfg)
	ctx := context.Background()

	last := int(^uint(0) >> 1)
	for i := 0; i < 10; i++ {
		decision, err := registry.Check(ctx, ClassAuth, "ip2")
		require.NoError(t, err)
		assert.LessOrEqual(t, decision.Remaining, last)
		last = decision.Remaining
	}
}

func TestIdentifiersIsolated(t *testing.T) {
	cfg := config.Default()
	registry, _ := setupRegistry(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := registry.Check(ctx, ClassAuth, "ip-a")
		require.NoError(t, err)
	}

	decision, err := registry.Check(ctx, ClassAuth, "ip-b")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
}

func TestClassesDoNotCollide(t *testing.T) {
	cfg := config.Default()
	registry, _ := setupRegistry(t, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := registry.Check(ctx, ClassAuth, "shared-id")
		require.NoError(t, err)
	}

	// Same identifier under a different class has its own budget.
	decision, err := registry.Check(ctx, ClassAPI, "shared-id")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 100, decision.Limit)
	assert.Equal(t, 99, decision.Remaining)
}

func TestUnknownClass(t *testing.T) {
	cfg := config.Default()
	registry, _ := setupRegistry(t, cfg)

	_, err := registry.Check(context.Background(), Class("bulk"), "ip1")
	require.Error(t, err)
	assert.ErrorIs(t, err, storeerr.ErrUnknownLimitClass)
	assert.ErrorIs(t, err, &storeerr.Error{Kind: storeerr.KindConfiguration})
}

func TestLimiterCachedPerClass(t *testing.T) {
	cfg := config.Default()
	registry, _ := setupRegistry(t, cfg)

	first, err := registry.limiter(ClassAPI)
	require.NoError(t, err)
	second, err := registry.limiter(ClassAPI)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestSlidingWindowDecay(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimits["burst"] = config.Limit{Requests: 2, Window: 10}
	registry, _ := setupRegistry(t, cfg)
	ctx := context.Background()

	limiter, err := registry.limiter(Class("burst"))
	require.NoError(t, err)

	base := time.Unix(1_000_000, 0).Truncate(10 * time.Second)
	limiter.now = func() time.Time { return base }

	// Exhaust the first window.
	for i := 0; i < 2; i++ {
		decision, err := limiter.Check(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}
	decision, err := limiter.Check(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// Halfway into the next window the previous count weighs in at 50%:
	// 3*0.5 + 1 = 2.5 > 2, still denied.
	limiter.now = func() time.Time { return base.Add(15 * time.Second) }
	decision, err = limiter.Check(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// Two full windows later the old counters no longer overlap.
	limiter.now = func() time.Time { return base.Add(30 * time.Second) }
	decision, err = limiter.Check(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestIncrementSurvivesDeny(t *testing.T) {
	// A denied check still counts: the increment is never rolled back.
	cfg := config.Default()
	cfg.RateLimits["tiny"] = config.Limit{Requests: 1, Window: 60}
	registry, adapter := setupRegistry(t, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := registry.Check(ctx, Class("tiny"), "id")
		require.NoError(t, err)
	}

	keys, err := adapter.Keys(ctx, "ratelimit:tiny:id:*")
	require.NoError(t, err)
	require.Len(t, keys, 1)

	count, err := adapter.Writer().Get(ctx, keys[0]).Int64()
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestCheckStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	adapter, err := store.New(config.Connection{MaxRetries: 1, BackoffMin: "1ms", BackoffMax: "5ms"},
		config.Credentials{URL: fmt.Sprintf("redis://%s", mr.Addr())})
	require.NoError(t, err)
	registry := NewRegistry(config.Default(), adapter, nil, nil)

	mr.Close()

	_, err = registry.Check(context.Background(), ClassAuth, "ip1")
	require.Error(t, err)
	assert.ErrorIs(t, err, &storeerr.Error{Kind: storeerr.KindNetwork})
}
