package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hammer-fleet/fleetcache/config"
	"github.com/hammer-fleet/fleetcache/storeerr"
)

// setupAdapter creates a miniredis instance and returns a connected Adapter.
func setupAdapter(t *testing.T, opts ...Option) (*Adapter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")

	adapter, err := New(config.Connection{}, config.Credentials{
		URL:   fmt.Sprintf("redis://%s", mr.Addr()),
		Token: "secret",
	}, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = adapter.Close()
	})

	return adapter, mr
}

func TestNew(t *testing.T) {
	t.Run("primary only", func(t *testing.T) {
		adapter, _ := setupAdapter(t)

		assert.False(t, adapter.HasReplica())
		assert.Same(t, adapter.Writer(), adapter.Reader())
	})

	t.Run("with read replica", func(t *testing.T) {
		mr := miniredis.RunT(t)
		mr.RequireAuth("secret")

		adapter, err := New(config.Connection{}, config.Credentials{
			URL:           fmt.Sprintf("redis://%s", mr.Addr()),
			Token:         "secret",
			ReadOnlyToken: "secret",
		})
		require.NoError(t, err)
		defer adapter.Close()

		assert.True(t, adapter.HasReplica())
		assert.NotSame(t, adapter.Writer(), adapter.Reader())

		// Reads through the replica client see primary writes.
		ctx := context.Background()
		require.NoError(t, adapter.Writer().Set(ctx, "k", "v", 0).Err())
		got, err := adapter.Reader().Get(ctx, "k").Result()
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := New(config.Connection{}, config.Credentials{URL: "not-a-url"})
		require.Error(t, err)
		assert.ErrorIs(t, err, &storeerr.Error{Kind: storeerr.KindConfiguration})
	})
}

func TestPing(t *testing.T) {
	t.Run("healthy store", func(t *testing.T) {
		adapter, _ := setupAdapter(t)
		assert.True(t, adapter.Ping(context.Background()))
	})

	t.Run("unreachable store returns false, not error", func(t *testing.T) {
		mr := miniredis.RunT(t)
		adapter, err := New(config.Connection{MaxRetries: 1, BackoffMin: "1ms", BackoffMax: "5ms"},
			config.Credentials{URL: fmt.Sprintf("redis://%s", mr.Addr())})
		require.NoError(t, err)
		defer adapter.Close()

		mr.Close()
		assert.False(t, adapter.Ping(context.Background()))
	})
}

func TestKeys(t *testing.T) {
	adapter, _ := setupAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.Writer().Set(ctx, "session:a", "1", 0).Err())
	require.NoError(t, adapter.Writer().Set(ctx, "session:b", "1", 0).Err())
	require.NoError(t, adapter.Writer().Set(ctx, "token:c", "1", 0).Err())

	keys, err := adapter.Keys(ctx, "session:*")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"session:a", "session:b"}, keys)

	keys, err = adapter.Keys(ctx, "cache:*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	adapter, _ := setupAdapter(t, WithTracerProvider(tp))
	ctx := context.Background()

	adapter.Ping(ctx)
	_, err := adapter.Keys(ctx, "session:*")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "store.Ping", spans[0].Name())
	assert.Equal(t, "store.Keys", spans[1].Name())
}
