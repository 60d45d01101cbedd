package models

import "time"

// Processing statuses recorded by a status tracker. They are informational only;
// the object store remains the source of truth for what has been ingested.
const (
	StatusExtracting       = "EXTRACTING"
	StatusCommitted        = "COMMITTED"
	StatusDuplicate        = "DUPLICATE"
	StatusExtractionFailed = "EXTRACTION_FAILED"
	StatusFailed           = "FAILED"
)

// StatusUpdate is one processing status transition for a fingerprint.
type StatusUpdate struct {
	Fingerprint string
	Filename    string
	Status      string
	Detail      string
	PageCount   int
}

// Document represents the status record for one fingerprint in Firestore.
// It tracks the latest processing state and metadata of the file.
type Document struct {
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	BatchID          string    `firestore:"batchId,omitempty"` // For traceability
	UpdatedAt        time.Time `firestore:"updatedAt,omitempty"`
}
