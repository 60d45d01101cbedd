package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/blob"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/chat"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/ingest"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/llm"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type fakeIngester struct {
	mu      sync.Mutex
	batches map[string][]models.UploadRecord
	status  map[string]string
}

func (f *fakeIngester) IngestBatch(_ context.Context, batchID string, records []models.UploadRecord) []models.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batches == nil {
		f.batches = make(map[string][]models.UploadRecord)
	}
	f.batches[batchID] = records
	out := make([]models.Outcome, len(records))
	for i, r := range records {
		status := models.OutcomeIngested
		if s, ok := f.status[r.DisplayName]; ok {
			status = s
		}
		out[i] = models.Outcome{Fingerprint: r.Fingerprint, Filename: r.DisplayName, Status: status}
	}
	return out
}

type fakeAsker struct {
	err error
}

func (f *fakeAsker) Ask(_ context.Context, question, mode string) (*models.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(question) == "" {
		return nil, chat.ErrEmptyQuestion
	}
	return &models.ChatResponse{Answer: "echo: " + question, Mode: mode}, nil
}

const testFingerprint = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func seededReader(t *testing.T) *dataset.Reader {
	t.Helper()
	ctx := context.Background()
	store := blob.NewMemory()
	d := dataset.New()
	require.NoError(t, d.Append("a.pdf", testFingerprint, models.FormData{
		{Name: "brief_title", Value: "Alpha, the first"},
		{Name: "enrollment", Value: 42.0},
	}))
	data, err := d.Encode()
	require.NoError(t, err)
	_, err = store.Put(ctx, dataset.TableKey, data, blob.IfAbsent())
	require.NoError(t, err)
	_, err = store.Put(ctx, dataset.FormDataKey(testFingerprint), []byte(`{"brief_title":"Alpha, the first","enrollment":42}`), blob.IfAbsent())
	require.NoError(t, err)
	_, err = store.Put(ctx, dataset.SummaryKey(testFingerprint), []byte("A first study."), blob.IfAbsent())
	require.NoError(t, err)
	return dataset.NewReader(store)
}

func newTestServer(t *testing.T, ing *fakeIngester, asker *fakeAsker, password string) *echo.Echo {
	t.Helper()
	if ing == nil {
		ing = &fakeIngester{}
	}
	if asker == nil {
		asker = &fakeAsker{}
	}
	h := NewHandler(ing, seededReader(t), asker, "test")
	return NewServer(h, ServerOptions{Password: password})
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile(uploadField, name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandleUpload_Multipart(t *testing.T) {
	ing := &fakeIngester{}
	e := newTestServer(t, ing, nil, "")

	body, contentType := multipartBody(t, map[string]string{"protocol.pdf": "%PDF-1.4 content"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := serve(e, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.BatchID)
	require.Len(t, resp.Outcomes, 1)
	assert.Equal(t, "protocol.pdf", resp.Outcomes[0].Filename)
	assert.Equal(t, ingest.Fingerprint([]byte("%PDF-1.4 content")), resp.Outcomes[0].Fingerprint)
	assert.Len(t, ing.batches[resp.BatchID], 1)
}

func TestHandleUpload_JSONPartialFailure(t *testing.T) {
	ing := &fakeIngester{status: map[string]string{"bad.pdf": models.OutcomeExtractionFailed}}
	e := newTestServer(t, ing, nil, "")

	payload, err := json.Marshal(models.IngestRequest{
		BatchID: "batch-1",
		Files: []models.IngestFile{
			{Name: "good.pdf", Data: base64.StdEncoding.EncodeToString([]byte("good"))},
			{Name: "bad.pdf", Data: base64.StdEncoding.EncodeToString([]byte("bad"))},
		},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := serve(e, req)

	require.Equal(t, http.StatusMultiStatus, rec.Code)
	var resp models.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "batch-1", resp.BatchID)
	require.Len(t, resp.Outcomes, 2)
	assert.Equal(t, models.OutcomeIngested, resp.Outcomes[0].Status)
	assert.Equal(t, models.OutcomeExtractionFailed, resp.Outcomes[1].Status)
}

func TestHandleUpload_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantCode    string
	}{
		{"no files", `{"files":[]}`, echo.MIMEApplicationJSON, "VALIDATION_ERROR"},
		{"bad base64", `{"files":[{"name":"a.pdf","data":"!!"}]}`, echo.MIMEApplicationJSON, "BAD_REQUEST"},
		{"malformed json", `{"files":`, echo.MIMEApplicationJSON, "BAD_REQUEST"},
		{"not multipart", "hello", "text/plain", "BAD_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(t, nil, nil, "")
			req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, tt.contentType)
			rec := serve(e, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestHandleDataset_Formats(t *testing.T) {
	e := newTestServer(t, nil, nil, "")

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/dataset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var table dataset.Table
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, []string{"filename", "fingerprint", "brief_title", "enrollment"}, table.ColumnNames())
	require.Len(t, table.Rows, 1)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/dataset/csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
	assert.Equal(t,
		"filename,fingerprint,brief_title,enrollment\na.pdf,"+testFingerprint+",\"Alpha, the first\",42\n",
		rec.Body.String())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/dataset/msgpack", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
	var decoded dataset.Table
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, table.ColumnNames(), decoded.ColumnNames())
}

func TestHandleArtifacts(t *testing.T) {
	e := newTestServer(t, nil, nil, "")

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/artifacts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"fingerprints":["`+testFingerprint+`"]}`, rec.Body.String())

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/artifacts/"+testFingerprint, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var art models.ArtifactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &art))
	assert.Equal(t, "A first study.", art.Summary)
	assert.Equal(t, []string{"brief_title", "enrollment"}, art.FormData.Keys())

	missing := strings.Repeat("0", 64)
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/artifacts/"+missing, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/artifacts/not-a-fingerprint", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleArtifactXML(t *testing.T) {
	e := newTestServer(t, nil, nil, "")

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/artifacts/"+testFingerprint+"/xml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, echo.MIMEApplicationXMLCharsetUTF8, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), testFingerprint+".xml")
	body := rec.Body.String()
	assert.Contains(t, body, `<study_collection xmlns="http://clinicaltrials.gov/prs">`)
	assert.Contains(t, body, "<brief_title>Alpha, the first</brief_title>")
	assert.Contains(t, body, "<enrollment>42</enrollment>")
	assert.Contains(t, body, "<org_study_id>UNKNOWN_ID</org_study_id>")

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/artifacts/"+strings.Repeat("0", 64)+"/xml", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/api/artifacts/nope/xml", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat(t *testing.T) {
	tests := []struct {
		name       string
		asker      *fakeAsker
		body       string
		wantStatus int
		wantCode   string
	}{
		{"answered", &fakeAsker{}, `{"question":"how many?","mode":"sql"}`, http.StatusOK, ""},
		{"empty question", &fakeAsker{}, `{"question":"  "}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown mode", &fakeAsker{err: chat.ErrUnknownMode}, `{"question":"q","mode":"x"}`, http.StatusBadRequest, "BAD_REQUEST"},
		{"llm down", &fakeAsker{err: llm.APIError("openai", errors.New("503"))}, `{"question":"q"}`, http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"timeout", &fakeAsker{err: context.DeadlineExceeded}, `{"question":"q"}`, http.StatusGatewayTimeout, "TIMEOUT"},
		{"unexpected", &fakeAsker{err: errors.New("boom")}, `{"question":"q"}`, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestServer(t, nil, tt.asker, "")
			req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := serve(e, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode == "" {
				var resp models.ChatResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, "echo: how many?", resp.Answer)
				return
			}
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestBasicAuth(t *testing.T) {
	e := newTestServer(t, nil, nil, "s3cret")

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/api/dataset", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/dataset", nil)
	req.SetBasicAuth("anyone", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(e, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/dataset", nil)
	req.SetBasicAuth("anyone", "s3cret")
	assert.Equal(t, http.StatusOK, serve(e, req).Code)

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}
