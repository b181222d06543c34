package storage

import (
	"context"
	"time"

	"github.com/dgellow/authgate/internal/log"
)

// sessionRetention bounds the tracked-session registry: entries not seen
// for this long are dropped. Logins create a fresh session per exchange, so
// without an expiry the registry grows for the life of the process.
const sessionRetention = 24 * time.Hour

// CleanupManager periodically purges expired handle tombstones and stale
// tracked sessions
type CleanupManager struct {
	store    Store
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a cleanup manager
func NewCleanupManager(store Store, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		store:    store,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting storage cleanup manager", map[string]any{
		"interval": cm.interval.String(),
	})
	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.LogInfoWithFields("cleanup", "Storage cleanup manager stopped", nil)
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	now := time.Now()

	purged, err := cm.store.PurgeExpiredHandles(ctx, now)
	if err != nil {
		log.LogWarnWithFields("cleanup", "Handle purge failed", map[string]any{
			"error": err.Error(),
		})
	} else if purged > 0 {
		log.LogDebugWithFields("cleanup", "Purged expired handles", map[string]any{
			"count": purged,
		})
	}

	stale, err := cm.store.PurgeStaleSessions(ctx, now.Add(-sessionRetention))
	if err != nil {
		log.LogWarnWithFields("cleanup", "Session purge failed", map[string]any{
			"error": err.Error(),
		})
	} else if stale > 0 {
		log.LogDebugWithFields("cleanup", "Purged stale tracked sessions", map[string]any{
			"count": stale,
		})
	}
}
