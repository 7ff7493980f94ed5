package session

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

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	adapter, err := store.New(config.Connection{}, config.Credentials{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	return NewStore(config.Structure{TTL: 3600}, adapter, nil), mr
}

func sampleRecord(userID string) Record {
	now := time.Now().UnixMilli()
	return Record{
		UserID:       userID,
		Email:        "a@b.com",
		CreatedAt:    now,
		LastActivity: now,
		IPAddress:    "10.0.0.7",
		UserAgent:    "fleet-dashboard/2.4",
		Permissions:  map[string]bool{"robots:read": true, "robots:write": false},
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	sessions, _ := setupStore(t)
	ctx := context.Background()

	want := sampleRecord("u1")
	require.NoError(t, sessions.Set(ctx, "s1", want))

	got, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestGetMissing(t *testing.T) {
	sessions, _ := setupStore(t)

	got, err := sessions.Get(context.Background(), "never-set")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetResetsTTL(t *testing.T) {
	sessions, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, sessions.Set(ctx, "s1", sampleRecord("u1")))
	mr.FastForward(30 * time.Minute)

	// A rewrite resets the TTL to the full window.
	require.NoError(t, sessions.Set(ctx, "s1", sampleRecord("u1")))
	mr.FastForward(45 * time.Minute)

	got, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	mr.FastForward(time.Hour)
	got, err = sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTouch(t *testing.T) {
	t.Run("advances last activity only", func(t *testing.T) {
		sessions, _ := setupStore(t)
		ctx := context.Background()

		record := sampleRecord("u1")
		record.LastActivity = 1000
		require.NoError(t, sessions.Set(ctx, "s1", record))

		sessions.now = func() time.Time { return time.UnixMilli(5000) }
		require.NoError(t, sessions.Touch(ctx, "s1"))

		got, err := sessions.Get(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.EqualValues(t, 5000, got.LastActivity)
		assert.GreaterOrEqual(t, got.LastActivity, record.LastActivity)

		// All other fields are unchanged.
		record.LastActivity = got.LastActivity
		assert.Equal(t, record, *got)
	})

	t.Run("missing session is a no-op", func(t *testing.T) {
		sessions, _ := setupStore(t)
		require.NoError(t, sessions.Touch(context.Background(), "absent"))
	})
}

func TestDelete(t *testing.T) {
	sessions, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, sessions.Set(ctx, "s1", sampleRecord("u1")))
	require.NoError(t, sessions.Delete(ctx, "s1"))

	got, err := sessions.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The index entry is pruned as well.
	assert.False(t, mr.Exists("session:user:u1"))
}

func TestDeleteUserSessions(t *testing.T) {
	sessions, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, sessions.Set(ctx, "s1", sampleRecord("u1")))
	require.NoError(t, sessions.Set(ctx, "s2", sampleRecord("u1")))
	require.NoError(t, sessions.Set(ctx, "s3", sampleRecord("u2")))

	deleted, err := sessions.DeleteUserSessions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	for _, id := range []string{"s1", "s2"} {
		got, err := sessions.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got, "session %s should be gone", id)
	}

	// Another user's sessions are untouched.
	got, err := sessions.Get(ctx, "s3")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDeleteUserSessionsNoSessions(t *testing.T) {
	sessions, _ := setupStore(t)

	deleted, err := sessions.DeleteUserSessions(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
