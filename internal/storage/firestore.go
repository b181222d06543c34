package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/authgate/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore persists handles and session tracking in Google Cloud
// Firestore so several broker replicas agree on handle single-use.
type FirestoreStore struct {
	client   *firestore.Client
	handles  *firestore.CollectionRef
	sessions *firestore.CollectionRef
}

// Ensure FirestoreStore implements the Store interface
var _ Store = (*FirestoreStore)(nil)

// handleDoc is the tombstone for a consumed single-use handle
type handleDoc struct {
	UsedAt    time.Time `firestore:"used_at"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

// sessionDoc mirrors TrackedSession in Firestore
type sessionDoc struct {
	SessionID  string    `firestore:"session_id"`
	UserID     string    `firestore:"user_id"`
	Source     string    `firestore:"source"`
	CreatedAt  time.Time `firestore:"created_at"`
	LastSeenAt time.Time `firestore:"last_seen_at"`
}

// NewFirestoreStore creates a Firestore-backed store. collection is the
// prefix for the handle and session collections.
func NewFirestoreStore(ctx context.Context, projectID, database, collection string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		collection = "authgate"
	}

	var client *firestore.Client
	var err error
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("creating Firestore client: %w", err)
	}

	return &FirestoreStore{
		client:   client,
		handles:  client.Collection(collection + "_handles"),
		sessions: client.Collection(collection + "_sessions"),
	}, nil
}

// ConsumeHandle creates the tombstone document; a second consume hits the
// already-exists precondition and fails
func (s *FirestoreStore) ConsumeHandle(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := s.handles.Doc(id).Create(ctx, handleDoc{
		UsedAt:    time.Now(),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return ErrHandleUsed
		}
		return fmt.Errorf("consuming handle: %w", err)
	}
	return nil
}

// PurgeExpiredHandles drops tombstones past their expiry
func (s *FirestoreStore) PurgeExpiredHandles(ctx context.Context, now time.Time) (int, error) {
	iter := s.handles.Where("expires_at", "<", now).Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return purged, fmt.Errorf("listing expired handles: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			log.LogWarnWithFields("storage", "Failed to delete expired handle", map[string]any{
				"handle": doc.Ref.ID,
				"error":  err.Error(),
			})
			continue
		}
		purged++
	}
	return purged, nil
}

// TrackSession upserts the tracked session document. A re-seen session
// keeps its original creation time; only last_seen_at advances.
func (s *FirestoreStore) TrackSession(ctx context.Context, sess TrackedSession) error {
	ref := s.sessions.Doc(sess.SessionID)
	_, err := ref.Create(ctx, sessionDoc{
		SessionID:  sess.SessionID,
		UserID:     sess.UserID,
		Source:     sess.Source,
		CreatedAt:  sess.CreatedAt,
		LastSeenAt: sess.LastSeenAt,
	})
	if status.Code(err) == codes.AlreadyExists {
		_, err = ref.Update(ctx, []firestore.Update{
			{Path: "last_seen_at", Value: sess.LastSeenAt},
		})
	}
	if err != nil {
		return fmt.Errorf("tracking session: %w", err)
	}
	return nil
}

// ListSessions returns tracked sessions, newest first
func (s *FirestoreStore) ListSessions(ctx context.Context) ([]TrackedSession, error) {
	iter := s.sessions.OrderBy("created_at", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var sessions []TrackedSession
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing sessions: %w", err)
		}

		var entity sessionDoc
		if err := doc.DataTo(&entity); err != nil {
			log.LogWarnWithFields("storage", "Skipping malformed session document", map[string]any{
				"doc":   doc.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		sessions = append(sessions, TrackedSession{
			SessionID:  entity.SessionID,
			UserID:     entity.UserID,
			Source:     entity.Source,
			CreatedAt:  entity.CreatedAt,
			LastSeenAt: entity.LastSeenAt,
		})
	}
	return sessions, nil
}

// PurgeStaleSessions drops session documents last seen before olderThan
func (s *FirestoreStore) PurgeStaleSessions(ctx context.Context, olderThan time.Time) (int, error) {
	iter := s.sessions.Where("last_seen_at", "<", olderThan).Documents(ctx)
	defer iter.Stop()

	purged := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return purged, fmt.Errorf("listing stale sessions: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil {
			log.LogWarnWithFields("storage", "Failed to delete stale session", map[string]any{
				"session": doc.Ref.ID,
				"error":   err.Error(),
			})
			continue
		}
		purged++
	}
	return purged, nil
}

// RemoveSession forgets a tracked session
func (s *FirestoreStore) RemoveSession(ctx context.Context, sessionID string) error {
	ref := s.sessions.Doc(sessionID)
	if _, err := ref.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrSessionNotFound
		}
		return fmt.Errorf("looking up session: %w", err)
	}
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// Close releases the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
