package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupManager_PurgesExpiredHandles(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.ConsumeHandle(context.Background(), "stale", time.Now().Add(-time.Minute)))

	cm := NewCleanupManager(store, 10*time.Millisecond)
	cm.Start(context.Background())
	defer cm.Stop()

	// The immediate first run should clear the stale tombstone
	assert.Eventually(t, func() bool {
		err := store.ConsumeHandle(context.Background(), "stale", time.Now().Add(time.Minute))
		return err == nil
	}, time.Second, 10*time.Millisecond, "stale tombstone was never purged")
}

func TestCleanupManager_PurgesStaleSessions(t *testing.T) {
	store := NewMemoryStore()
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.TrackSession(context.Background(), TrackedSession{
		SessionID:  "sess_stale",
		CreatedAt:  stale,
		LastSeenAt: stale,
	}))
	require.NoError(t, store.TrackSession(context.Background(), TrackedSession{
		SessionID:  "sess_fresh",
		CreatedAt:  time.Now(),
		LastSeenAt: time.Now(),
	}))

	cm := NewCleanupManager(store, 10*time.Millisecond)
	cm.Start(context.Background())
	defer cm.Stop()

	assert.Eventually(t, func() bool {
		sessions, err := store.ListSessions(context.Background())
		return err == nil && len(sessions) == 1 && sessions[0].SessionID == "sess_fresh"
	}, time.Second, 10*time.Millisecond, "stale tracked session was never purged")
}

func TestCleanupManager_StopTerminates(t *testing.T) {
	cm := NewCleanupManager(NewMemoryStore(), time.Hour)
	cm.Start(context.Background())

	done := make(chan struct{})
	go func() {
		cm.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
