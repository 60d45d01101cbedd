// handlers_dataset.go - Data viewer handlers
package api

import (
	"bytes"
	"net/http"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/ingest"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/prs"
	"github.com/labstack/echo/v4"
)

// HandleDataset returns the reconciled table as JSON.
func (h *Handler) HandleDataset(c echo.Context) error {
	table, err := h.reader.Table(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to read dataset", err)
	}
	return c.JSON(http.StatusOK, table)
}

// HandleDatasetCSV returns the reconciled table as a CSV download.
func (h *Handler) HandleDatasetCSV(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.reader.CSV(c.Request().Context(), &buf); err != nil {
		return NewInternalError("failed to export dataset", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="trials.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// HandleDatasetMsgpack returns the reconciled table msgpack-encoded for the data grid.
func (h *Handler) HandleDatasetMsgpack(c echo.Context) error {
	table, err := h.reader.Table(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to read dataset", err)
	}
	data, err := table.Msgpack()
	if err != nil {
		return NewInternalError("failed to encode dataset", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleListArtifacts returns the fingerprints of all committed artifacts.
func (h *Handler) HandleListArtifacts(c echo.Context) error {
	fps, err := h.reader.Artifacts(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to list artifacts", err)
	}
	if fps == nil {
		fps = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{"fingerprints": fps})
}

// HandleGetArtifact returns the summary and form data committed for a fingerprint.
func (h *Handler) HandleGetArtifact(c echo.Context) error {
	fp := c.Param("fingerprint")
	if !ingest.IsFingerprint(fp) {
		return NewValidationError("fingerprint")
	}
	art, err := h.reader.Artifact(c.Request().Context(), fp)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, models.ArtifactResponse{
		Fingerprint: art.SourceFingerprint,
		Summary:     art.Summary,
		FormData:    art.FormData,
	})
}

// HandleGetArtifactXML returns the artifact's form data as a PRS upload document.
func (h *Handler) HandleGetArtifactXML(c echo.Context) error {
	fp := c.Param("fingerprint")
	if !ingest.IsFingerprint(fp) {
		return NewValidationError("fingerprint")
	}
	art, err := h.reader.Artifact(c.Request().Context(), fp)
	if err != nil {
		return err
	}
	data, err := prs.Render(art.FormData)
	if err != nil {
		return NewInternalError("failed to render PRS document", err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+fp+`.xml"`)
	return c.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, data)
}
