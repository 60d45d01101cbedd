package models

// These structs define the JSON payloads exchanged with the HTTP API and the
// Cloud Functions entry points.

// IngestRequest is the input for the ingest-http function. Files carry base64 content.
type IngestRequest struct {
	BatchID string       `json:"batchId,omitempty"`
	Files   []IngestFile `json:"files"`
}

// IngestFile is one file inside an IngestRequest.
type IngestFile struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// IngestResponse is the per-file outcome list of a batch.
type IngestResponse struct {
	BatchID  string    `json:"batchId"`
	Outcomes []Outcome `json:"outcomes"`
}

// ChatRequest is the input for the chat endpoint.
type ChatRequest struct {
	Question string `json:"question"`
	Mode     string `json:"mode,omitempty"`
}

// ChatResponse is the synthesized answer plus what it was grounded on.
type ChatResponse struct {
	Answer  string   `json:"answer"`
	Mode    string   `json:"mode"`
	SQL     string   `json:"sql,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

// ArtifactResponse is the data-viewer detail for one fingerprint.
type ArtifactResponse struct {
	Fingerprint string   `json:"fingerprint"`
	Summary     string   `json:"summary"`
	FormData    FormData `json:"formData"`
}
