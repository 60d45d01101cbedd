package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/blob"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GCSStore implements blob.Store on a single Cloud Storage bucket.
// Object generations are used as versions, so IfMatch maps onto GenerationMatch
// and IfAbsent onto DoesNotExist.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// NewGCSStore creates a storage client and binds it to bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a GCS store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return NewGCSStoreFromClient(client, bucket), nil
}

// NewGCSStoreFromClient wraps an existing client.
func NewGCSStoreFromClient(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: client.Bucket(bucket), name: bucket}
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat gs://%s/%s: %w", s.name, key, err)
	}
	return true, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) (*blob.Object, error) {
	reader, err := s.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, blob.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", s.name, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.name, key, err)
	}
	return &blob.Object{Key: key, Data: data, Version: blob.Version(reader.Attrs.Generation)}, nil
}

// Put writes content under key honouring the precondition. A 412 from GCS is
// reported as blob.ErrPreconditionFailed so callers can treat it as a commit conflict
// or, for create-if-absent writes, as "already there".
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, cond blob.Precondition) (blob.Version, error) {
	obj := s.bucket.Object(key)
	switch {
	case cond.IfAbsent:
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	case cond.IfMatch != 0:
		obj = obj.If(storage.Conditions{GenerationMatch: int64(cond.IfMatch)})
	}

	writer := obj.NewWriter(ctx)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return 0, blob.ErrPreconditionFailed
		}
		return 0, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Debug("GCS precondition failed.", "gcsObject", key)
			return 0, blob.ErrPreconditionFailed
		}
		return 0, fmt.Errorf("failed to finalize GCS write for %s: %w", key, err)
	}
	return blob.Version(writer.Attrs().Generation), nil
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", s.name, prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// ReadObject downloads an arbitrary object, used for event payloads that may name
// a bucket other than the store's.
func (s *GCSStore) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

var _ blob.Store = (*GCSStore)(nil)
