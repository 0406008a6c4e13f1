// Package objectstore defines the versioned key-blob contract shared by the
// case store and the slot registry, plus an in-memory reference
// implementation and GCS, S3, Redis, and Postgres backends.
package objectstore

import (
	"context"
	"errors"
)

// Version is the opaque generation tag the backing store assigns to each
// write (a GCS generation, an S3 ETag, a counter). It is storage metadata,
// never part of the stored document itself.
type Version string

const (
	// VersionAny makes a Put unconditional.
	VersionAny Version = "*"
	// VersionNone requires that the key does not exist yet.
	VersionNone Version = ""
)

var (
	// ErrNotFound indicates no document exists for the key.
	ErrNotFound = errors.New("objectstore: key not found")
	// ErrConditionFailed indicates the conditional write lost to a
	// concurrent writer.
	ErrConditionFailed = errors.New("objectstore: version condition failed")
	// ErrUnavailable indicates the backing store cannot be reached at all.
	ErrUnavailable = errors.New("objectstore: store unavailable")
)

// Store is the object-store contract. Put with expected == VersionNone is a
// create; with a concrete version it is an optimistic-concurrency write; with
// VersionAny it is unconditional.
type Store interface {
	// Get returns the blob and its current version.
	Get(ctx context.Context, key string) ([]byte, Version, error)

	// Put writes the blob if the current version matches expected, and
	// returns the new version.
	Put(ctx context.Context, key string, data []byte, expected Version) (Version, error)

	// List returns every key under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
