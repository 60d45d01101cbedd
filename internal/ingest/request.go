package ingest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
)

// ErrEmptyBatch is returned for requests without files.
var ErrEmptyBatch = errors.New("no files in request")

// RecordsFromRequest decodes the base64 file payloads of req.
func RecordsFromRequest(req *models.IngestRequest) ([]models.UploadRecord, error) {
	if req == nil || len(req.Files) == 0 {
		return nil, ErrEmptyBatch
	}
	records := make([]models.UploadRecord, 0, len(req.Files))
	for i, f := range req.Files {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, fmt.Errorf("file %d: name is required", i)
		}
		content, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, fmt.Errorf("file %q: invalid base64 data: %w", name, err)
		}
		if len(content) == 0 {
			return nil, fmt.Errorf("file %q: empty content", name)
		}
		records = append(records, NewUploadRecord(name, content))
	}
	return records, nil
}
