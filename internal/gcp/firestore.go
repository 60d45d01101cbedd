package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreTracker records per-fingerprint processing status in a collection.
// Records are informational; ingestion decisions never read them.
type FirestoreTracker struct {
	client     *firestore.Client
	collection string
	batchID    string
}

// NewFirestoreTracker binds a tracker to collection.
func NewFirestoreTracker(client *firestore.Client, collection string) *FirestoreTracker {
	return &FirestoreTracker{client: client, collection: collection}
}

// WithBatch returns a copy that stamps every record with batchID.
func (t *FirestoreTracker) WithBatch(batchID string) *FirestoreTracker {
	c := *t
	c.batchID = batchID
	return &c
}

// Record upserts the status document for the update's fingerprint.
func (t *FirestoreTracker) Record(ctx context.Context, update models.StatusUpdate) error {
	doc := models.Document{
		FileHash:         update.Fingerprint,
		OriginalFilename: update.Filename,
		Status:           update.Status,
		ErrorDetails:     update.Detail,
		PageCount:        update.PageCount,
		BatchID:          t.batchID,
		UpdatedAt:        time.Now().UTC(),
	}
	if _, err := t.client.Collection(t.collection).Doc(update.Fingerprint).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to record status for %s: %w", update.Fingerprint, err)
	}
	return nil
}

// Close releases the Firestore client.
func (t *FirestoreTracker) Close() error {
	return t.client.Close()
}
