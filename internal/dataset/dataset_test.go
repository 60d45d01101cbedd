package dataset

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/blob"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func fd(fields ...models.Field) models.FormData { return models.FormData(fields) }

func TestDataset_AppendUnionsColumns(t *testing.T) {
	d := New()
	require.NoError(t, d.Append("a.pdf", "fpA", fd(
		models.Field{Name: "title", Value: "Alpha"},
		models.Field{Name: "enrollment", Value: 120.0},
	)))
	require.NoError(t, d.Append("b.pdf", "fpB", fd(
		models.Field{Name: "title", Value: "Beta"},
		models.Field{Name: "phase", Value: "Phase 2"},
	)))

	tbl := d.Table()
	assert.Equal(t, []string{"filename", "fingerprint", "title", "enrollment", "phase"}, tbl.ColumnNames())
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []any{"a.pdf", "fpA", "Alpha", 120.0, nil}, tbl.Rows[0])
	assert.Equal(t, []any{"b.pdf", "fpB", "Beta", nil, "Phase 2"}, tbl.Rows[1])
}

func TestDataset_TypeFixedByFirstNonNull(t *testing.T) {
	d := New()
	require.NoError(t, d.Append("a.pdf", "fpA", fd(models.Field{Name: "enrollment", Value: nil})))
	col, ok := d.Column("enrollment")
	require.True(t, ok)
	assert.Equal(t, TypeUnknown, col.Type)

	require.NoError(t, d.Append("b.pdf", "fpB", fd(models.Field{Name: "enrollment", Value: 40.0})))
	col, _ = d.Column("enrollment")
	assert.Equal(t, TypeNumber, col.Type)

	err := d.Append("c.pdf", "fpC", fd(models.Field{Name: "enrollment", Value: "forty"}))
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.Equal(t, 2, d.Len(), "rejected row must not be appended")
	_, ok = d.Column("enrollment")
	assert.True(t, ok)
}

func TestDataset_RejectsDuplicatesAndReservedNames(t *testing.T) {
	d := New()
	require.NoError(t, d.Append("a.pdf", "fpA", nil))
	assert.ErrorIs(t, d.Append("renamed.pdf", "fpA", nil), ErrDuplicateRow)
	assert.ErrorIs(t, d.Append("x.pdf", "fpX", fd(models.Field{Name: "filename", Value: "y"})), ErrTypeMismatch)
}

func TestDataset_EncodeDecodeKeepsIndexes(t *testing.T) {
	d := New()
	require.NoError(t, d.Append("a.pdf", "fpA", fd(models.Field{Name: "healthy", Value: true})))
	data, err := d.Encode()
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)
	assert.True(t, back.Contains("fpA"))
	assert.False(t, back.Contains("fpB"))
	col, ok := back.Column("healthy")
	require.True(t, ok)
	assert.Equal(t, TypeBool, col.Type)
	assert.ErrorIs(t, back.Append("b.pdf", "fpB", fd(models.Field{Name: "healthy", Value: "no"})), ErrTypeMismatch)
}

func TestTable_CSV(t *testing.T) {
	d := New()
	require.NoError(t, d.Append("a,b.pdf", "fpA", fd(
		models.Field{Name: "n", Value: 3.5},
		models.Field{Name: "ok", Value: false},
	)))
	require.NoError(t, d.Append("c.pdf", "fpC", nil))

	out, err := d.Table().CSV()
	require.NoError(t, err)
	assert.Equal(t, "filename,fingerprint,n,ok\n\"a,b.pdf\",fpA,3.5,false\nc.pdf,fpC,,\n", string(out))
}

func TestTable_Msgpack(t *testing.T) {
	d := New()
	require.NoError(t, d.Append("a.pdf", "fpA", fd(models.Field{Name: "title", Value: "Alpha"})))

	data, err := d.Table().Msgpack()
	require.NoError(t, err)

	var back Table
	require.NoError(t, msgpack.Unmarshal(data, &back))
	assert.Equal(t, []string{"filename", "fingerprint", "title"}, back.ColumnNames())
	require.Len(t, back.Rows, 1)
	assert.Equal(t, "Alpha", back.Rows[0][2])
}

func TestReader_ArtifactRequiresCommitMarker(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	r := NewReader(store)

	_, err := store.Put(ctx, FormDataKey("fp1"), []byte(`{"title":"T"}`), blob.IfAbsent())
	require.NoError(t, err)

	_, err = r.Artifact(ctx, "fp1")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	fps, err := r.Artifacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, fps)

	_, err = store.Put(ctx, SummaryKey("fp1"), []byte("a summary"), blob.IfAbsent())
	require.NoError(t, err)

	art, err := r.Artifact(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, "a summary", art.Summary)
	v, ok := art.FormData.Get("title")
	require.True(t, ok)
	assert.Equal(t, "T", v)

	fps, err = r.Artifacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fp1"}, fps)

	sums, err := r.Summaries(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"fp1": "a summary"}, sums)
}

func TestReader_TableAndCSVOnEmptyStore(t *testing.T) {
	ctx := context.Background()
	r := NewReader(blob.NewMemory())

	tbl, err := r.Table(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"filename", "fingerprint"}, tbl.ColumnNames())
	assert.Empty(t, tbl.Rows)

	var buf bytes.Buffer
	require.NoError(t, r.CSV(ctx, &buf))
	assert.Equal(t, "filename,fingerprint", strings.TrimSpace(buf.String()))
}

func TestLayout(t *testing.T) {
	assert.Equal(t, "raw/abc/trial.pdf", RawKey("abc", "../../etc/trial.pdf"))
	assert.Equal(t, "raw/abc/trial.pdf", RawKey("abc", `C:\Users\me\trial.pdf`))
	assert.Equal(t, "raw/abc/upload.pdf", RawKey("abc", ""))
	assert.Equal(t, "processed/abc/summary.txt", SummaryKey("abc"))

	fp, ok := FingerprintFromSummaryKey("processed/abc/summary.txt")
	assert.True(t, ok)
	assert.Equal(t, "abc", fp)
	_, ok = FingerprintFromSummaryKey("processed/abc/form_data.json")
	assert.False(t, ok)
}
