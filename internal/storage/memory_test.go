package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsumeHandle_FirstWins(t *testing.T) {
	store := NewMemoryStore()
	expiry := time.Now().Add(time.Minute)

	require.NoError(t, store.ConsumeHandle(context.Background(), "handle-1", expiry))
	assert.ErrorIs(t, store.ConsumeHandle(context.Background(), "handle-1", expiry), ErrHandleUsed)

	// Distinct handles are independent
	require.NoError(t, store.ConsumeHandle(context.Background(), "handle-2", expiry))
}

func TestConsumeHandle_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	expiry := time.Now().Add(time.Minute)

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.ConsumeHandle(context.Background(), "contested", expiry)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrHandleUsed)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent consumer wins")
}

func TestPurgeExpiredHandles(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.ConsumeHandle(context.Background(), "old", now.Add(-time.Minute)))
	require.NoError(t, store.ConsumeHandle(context.Background(), "fresh", now.Add(time.Minute)))

	purged, err := store.PurgeExpiredHandles(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	// The fresh tombstone still blocks reuse
	assert.ErrorIs(t, store.ConsumeHandle(context.Background(), "fresh", now.Add(time.Minute)), ErrHandleUsed)

	// The purged one is consumable again
	assert.NoError(t, store.ConsumeHandle(context.Background(), "old", now.Add(time.Minute)))
}

func TestTrackSession_Upsert(t *testing.T) {
	store := NewMemoryStore()
	created := time.Now().Add(-time.Hour)

	require.NoError(t, store.TrackSession(context.Background(), TrackedSession{
		SessionID:  "sess_1",
		UserID:     "user_1",
		Source:     "password",
		CreatedAt:  created,
		LastSeenAt: created,
	}))

	seen := time.Now()
	require.NoError(t, store.TrackSession(context.Background(), TrackedSession{
		SessionID:  "sess_1",
		UserID:     "user_1",
		Source:     "password",
		CreatedAt:  seen,
		LastSeenAt: seen,
	}))

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].CreatedAt.Equal(created), "creation time survives re-tracking")
	assert.True(t, sessions[0].LastSeenAt.Equal(seen), "last-seen advances")
}

func TestListSessions_NewestFirst(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now()

	for i, id := range []string{"sess_a", "sess_b", "sess_c"} {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.TrackSession(context.Background(), TrackedSession{
			SessionID:  id,
			CreatedAt:  at,
			LastSeenAt: at,
		}))
	}

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "sess_c", sessions[0].SessionID)
	assert.Equal(t, "sess_a", sessions[2].SessionID)
}

func TestPurgeStaleSessions(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	require.NoError(t, store.TrackSession(context.Background(), TrackedSession{
		SessionID:  "sess_stale",
		CreatedAt:  now.Add(-48 * time.Hour),
		LastSeenAt: now.Add(-48 * time.Hour),
	}))
	require.NoError(t, store.TrackSession(context.Background(), TrackedSession{
		SessionID:  "sess_fresh",
		CreatedAt:  now,
		LastSeenAt: now,
	}))

	purged, err := store.PurgeStaleSessions(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess_fresh", sessions[0].SessionID)
}

func TestPurgeStaleSessions_ReSeenSessionSurvives(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	// Tracked long ago but seen again recently: LastSeenAt advances on
	// the upsert, so the entry must survive the purge
	require.NoError(t, store.TrackSession(context.Background(), TrackedSession{
		SessionID:  "sess_1",
		CreatedAt:  old,
		LastSeenAt: old,
	}))
	require.NoError(t, store.TrackSession(context.Background(), TrackedSession{
		SessionID:  "sess_1",
		CreatedAt:  now,
		LastSeenAt: now,
	}))

	purged, err := store.PurgeStaleSessions(context.Background(), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, purged)
}

func TestRemoveSession(t *testing.T) {
	store := NewMemoryStore()

	require.NoError(t, store.TrackSession(context.Background(), TrackedSession{SessionID: "sess_1"}))
	require.NoError(t, store.RemoveSession(context.Background(), "sess_1"))

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.ErrorIs(t, store.RemoveSession(context.Background(), "sess_1"), ErrSessionNotFound)
}
