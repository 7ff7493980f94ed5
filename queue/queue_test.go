package queue

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
)

func setupAdapter(t *testing.T) (*store.Adapter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	adapter, err := store.New(config.Connection{}, config.Credentials{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	return adapter, mr
}

func TestNotificationsPushRecent(t *testing.T) {
	adapter, _ := setupAdapter(t)
	notifications := NewNotifications(config.Structure{TTL: 3600, MaxLength: 50}, adapter, nil)
	ctx := context.Background()

	notifications.now = func() time.Time { return time.UnixMilli(1_000) }
	require.NoError(t, notifications.Push(ctx, "u1", map[string]any{"kind": "low-battery", "robot": "r1"}))
	notifications.now = func() time.Time { return time.UnixMilli(2_000) }
	require.NoError(t, notifications.Push(ctx, "u1", map[string]any{"kind": "mission-done", "robot": "r2"}))

	got, err := notifications.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Most recent first, timestamps stamped at enqueue.
	assert.Equal(t, "mission-done", got[0]["kind"])
	assert.EqualValues(t, 2_000, got[0]["timestamp"])
	assert.Equal(t, "low-battery", got[1]["kind"])
}

func TestNotificationsCapped(t *testing.T) {
	adapter, _ := setupAdapter(t)
	notifications := NewNotifications(config.Structure{TTL: 3600, MaxLength: 5}, adapter, nil)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		require.NoError(t, notifications.Push(ctx, "u1", map[string]any{"n": i}))
	}

	got, err := notifications.Recent(ctx, "u1", 20)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.EqualValues(t, 8, got[0]["n"])
	assert.EqualValues(t, 4, got[4]["n"])
}

func TestNotificationsClear(t *testing.T) {
	adapter, mr := setupAdapter(t)
	notifications := NewNotifications(config.Structure{TTL: 3600, MaxLength: 50}, adapter, nil)
	ctx := context.Background()

	require.NoError(t, notifications.Push(ctx, "u1", map[string]any{"kind": "x"}))
	require.NoError(t, notifications.Clear(ctx, "u1"))

	got, err := notifications.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, mr.Exists("notification:u1"))
}

func TestNotificationsTTLRefreshedOnPush(t *testing.T) {
	adapter, mr := setupAdapter(t)
	notifications := NewNotifications(config.Structure{TTL: 60, MaxLength: 50}, adapter, nil)
	ctx := context.Background()

	require.NoError(t, notifications.Push(ctx, "u1", map[string]any{"n": 1}))
	mr.FastForward(40 * time.Second)
	require.NoError(t, notifications.Push(ctx, "u1", map[string]any{"n": 2}))
	mr.FastForward(40 * time.Second)

	// 80s after the first push the list survives because the second push
	// refreshed the 60s TTL.
	got, err := notifications.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestTasksPriorityOrder(t *testing.T) {
	adapter, _ := setupAdapter(t)
	tasks := NewTasks(adapter, nil)
	ctx := context.Background()

	require.NoError(t, tasks.Enqueue(ctx, "t1", 5))
	require.NoError(t, tasks.Enqueue(ctx, "t2", 10))
	require.NoError(t, tasks.Enqueue(ctx, "t3", 1))

	first, err := tasks.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t2", first)

	second, err := tasks.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", second)

	third, err := tasks.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t3", third)
}

func TestTasksDequeueEmpty(t *testing.T) {
	adapter, _ := setupAdapter(t)
	tasks := NewTasks(adapter, nil)

	taskID, err := tasks.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Empty(t, taskID)
}

func TestTasksReEnqueueUpdatesPriority(t *testing.T) {
	adapter, _ := setupAdapter(t)
	tasks := NewTasks(adapter, nil)
	ctx := context.Background()

	require.NoError(t, tasks.Enqueue(ctx, "t1", 1))
	require.NoError(t, tasks.Enqueue(ctx, "t2", 5))
	require.NoError(t, tasks.Enqueue(ctx, "t1", 9))

	length, err := tasks.Length(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, length)

	first, err := tasks.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t1", first)
}

func TestTasksLength(t *testing.T) {
	adapter, _ := setupAdapter(t)
	tasks := NewTasks(adapter, nil)
	ctx := context.Background()

	length, err := tasks.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, length)

	require.NoError(t, tasks.Enqueue(ctx, "t1", 1))
	require.NoError(t, tasks.Enqueue(ctx, "t2", 2))

	length, err = tasks.Length(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, length)
}
