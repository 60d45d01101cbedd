package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/blob"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
)

// ErrArtifactNotFound is returned for fingerprints without a committed artifact.
var ErrArtifactNotFound = errors.New("artifact not found")

// Load reads the dataset and the version it was read at. A missing dataset is
// returned as an empty one with version 0.
func Load(ctx context.Context, store blob.Store) (*Dataset, blob.Version, error) {
	obj, err := store.Get(ctx, TableKey)
	if errors.Is(err, blob.ErrNotFound) {
		return New(), 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read dataset: %w", err)
	}
	d, err := Decode(obj.Data)
	if err != nil {
		return nil, 0, err
	}
	return d, obj.Version, nil
}

// Reader serves read-only views of what the pipeline has committed.
type Reader struct {
	store blob.Store
}

// NewReader creates a reader over store.
func NewReader(store blob.Store) *Reader {
	return &Reader{store: store}
}

// Dataset returns the raw dataset with its version.
func (r *Reader) Dataset(ctx context.Context) (*Dataset, blob.Version, error) {
	return Load(ctx, r.store)
}

// Table returns the reconciled table.
func (r *Reader) Table(ctx context.Context) (*Table, error) {
	d, _, err := Load(ctx, r.store)
	if err != nil {
		return nil, err
	}
	return d.Table(), nil
}

// CSV writes the reconciled table as CSV to w.
func (r *Reader) CSV(ctx context.Context, w io.Writer) error {
	t, err := r.Table(ctx)
	if err != nil {
		return err
	}
	return t.WriteCSV(w)
}

// Artifact returns the committed artifact for fingerprint. An artifact whose
// summary has not been written yet is reported as not found.
func (r *Reader) Artifact(ctx context.Context, fingerprint string) (*models.ProcessedArtifact, error) {
	return ReadArtifact(ctx, r.store, fingerprint)
}

// Artifacts lists the fingerprints of all committed artifacts.
func (r *Reader) Artifacts(ctx context.Context) ([]string, error) {
	keys, err := r.store.List(ctx, ProcessedPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	var fps []string
	for _, k := range keys {
		if fp, ok := FingerprintFromSummaryKey(k); ok {
			fps = append(fps, fp)
		}
	}
	return fps, nil
}

// Summaries returns fingerprint -> summary for every committed artifact.
func (r *Reader) Summaries(ctx context.Context) (map[string]string, error) {
	fps, err := r.Artifacts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fps))
	for _, fp := range fps {
		obj, err := r.store.Get(ctx, SummaryKey(fp))
		if err != nil {
			return nil, fmt.Errorf("failed to read summary for %s: %w", fp, err)
		}
		out[fp] = string(obj.Data)
	}
	return out, nil
}

// ReadArtifact loads the artifact for fingerprint when its commit marker exists.
func ReadArtifact(ctx context.Context, store blob.Store, fingerprint string) (*models.ProcessedArtifact, error) {
	summary, err := store.Get(ctx, SummaryKey(fingerprint))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}
	fd, err := ReadFormData(ctx, store, fingerprint)
	if err != nil {
		return nil, err
	}
	return &models.ProcessedArtifact{
		Summary:           string(summary.Data),
		FormData:          fd,
		SourceFingerprint: fingerprint,
	}, nil
}

// ReadFormData loads the persisted form data for fingerprint.
func ReadFormData(ctx context.Context, store blob.Store, fingerprint string) (models.FormData, error) {
	obj, err := store.Get(ctx, FormDataKey(fingerprint))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read form data: %w", err)
	}
	fd, err := models.ParseFormData(obj.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse form data for %s: %w", fingerprint, err)
	}
	return fd, nil
}
