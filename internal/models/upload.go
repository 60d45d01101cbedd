package models

// UploadRecord is one submitted file in a batch. It only lives for the duration of a request.
type UploadRecord struct {
	Content     []byte
	Fingerprint string // always recomputed from Content by the pipeline
	DisplayName string
}

// ProcessedArtifact is the persisted extraction output for one unique document.
type ProcessedArtifact struct {
	Summary           string   `json:"summary"`
	FormData          FormData `json:"formData"`
	SourceFingerprint string   `json:"fingerprint"`
}

// Outcome statuses reported per file.
const (
	OutcomeIngested           = "ingested"
	OutcomeAlreadyProcessed   = "already_processed"
	OutcomeExtractionFailed   = "extraction_failed"
	OutcomeStorageUnavailable = "storage_unavailable"
	OutcomeSchemaConflict     = "schema_conflict"
	OutcomeCancelled          = "cancelled"
)

// Outcome is the per-file result of an ingestion batch.
type Outcome struct {
	Fingerprint string `json:"fingerprint"`
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
	// Recovered is set when the row was committed from an artifact left behind by an
	// earlier interrupted run instead of a fresh extraction.
	Recovered bool `json:"recovered,omitempty"`
}

// Succeeded reports whether the file is present in the dataset after the batch.
func (o Outcome) Succeeded() bool {
	return o.Status == OutcomeIngested || o.Status == OutcomeAlreadyProcessed
}
