//go:build gcp

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSStore implements Store using Google Cloud Storage. Object generation
// numbers serve as the version; conditional writes use generation-match
// preconditions so the bucket itself arbitrates concurrent writers.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore creates a new GCS-backed object store.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Get implements Store.
func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, Version, error) {
	obj := s.client.Bucket(s.bucket).Object(s.prefix + key)

	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, VersionNone, ErrNotFound
		}
		return nil, VersionNone, fmt.Errorf("gcs get %s: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, VersionNone, fmt.Errorf("gcs read %s: %w", key, err)
	}
	return data, Version(strconv.FormatInt(reader.Attrs.Generation, 10)), nil
}

// Put implements Store.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, expected Version) (Version, error) {
	obj := s.client.Bucket(s.bucket).Object(s.prefix + key)

	switch expected {
	case VersionAny:
		// Unconditional write.
	case VersionNone:
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	default:
		gen, err := strconv.ParseInt(string(expected), 10, 64)
		if err != nil {
			return VersionNone, fmt.Errorf("gcs put %s: bad version %q", key, expected)
		}
		obj = obj.If(storage.Conditions{GenerationMatch: gen})
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return VersionNone, s.mapWriteError(key, err)
	}
	if err := w.Close(); err != nil {
		return VersionNone, s.mapWriteError(key, err)
	}

	return Version(strconv.FormatInt(w.Attrs().Generation, 10)), nil
}

// mapWriteError translates a GCS precondition failure into ErrConditionFailed.
func (s *GCSStore) mapWriteError(key string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 412 {
		return ErrConditionFailed
	}
	return fmt.Errorf("gcs put %s: %w", key, err)
}

// List implements Store.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix + prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name[len(s.prefix):])
	}
	return keys, nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
