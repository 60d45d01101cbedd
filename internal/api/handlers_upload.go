// handlers_upload.go - Protocol upload handler
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/ingest"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// uploadField is the multipart field carrying the PDFs.
const uploadField = "files"

// HandleUpload ingests a batch of PDFs sent either as multipart "files" or as a
// JSON IngestRequest with base64 content. Every file gets its own outcome; the
// response is 207 when any file did not end up in the dataset.
func (h *Handler) HandleUpload(c echo.Context) error {
	var (
		batchID string
		records []models.UploadRecord
		err     error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var req models.IngestRequest
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid JSON body", err)
		}
		batchID = req.BatchID
		records, err = ingest.RecordsFromRequest(&req)
	} else {
		records, err = multipartRecords(c)
	}
	if errors.Is(err, ingest.ErrEmptyBatch) {
		return NewValidationError(uploadField)
	}
	if err != nil {
		return NewBadRequestError("invalid upload", err)
	}
	if batchID == "" {
		batchID = uuid.NewString()
	}

	outcomes := h.ingester.IngestBatch(c.Request().Context(), batchID, records)

	status := http.StatusOK
	for _, o := range outcomes {
		if !o.Succeeded() {
			status = http.StatusMultiStatus
			break
		}
	}
	return c.JSON(status, models.IngestResponse{BatchID: batchID, Outcomes: outcomes})
}

func multipartRecords(c echo.Context) ([]models.UploadRecord, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}
	files := form.File[uploadField]
	if len(files) == 0 {
		return nil, ingest.ErrEmptyBatch
	}
	records := make([]models.UploadRecord, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %q: %w", fh.Filename, err)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", fh.Filename, err)
		}
		if len(content) == 0 {
			return nil, fmt.Errorf("file %q is empty", fh.Filename)
		}
		records = append(records, ingest.NewUploadRecord(fh.Filename, content))
	}
	return records, nil
}
