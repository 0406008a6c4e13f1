// Package casestore persists case records against a versioned object store
// with best-effort optimistic concurrency.
package casestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/objectstore"
)

// DefaultSaveRetries is how many raw-write retries a conflicted save gets
// before the store gives up.
const DefaultSaveRetries = 3

// KeyPrefix namespaces case documents in the shared object store.
const KeyPrefix = "cases/"

// SaveStatus is the terminal state of a best-effort save.
type SaveStatus string

const (
	// SavePersisted means the write landed.
	SavePersisted SaveStatus = "PERSISTED"
	// SaveFailedAfterRetries means every attempt lost to a concurrent
	// writer (or the store went away mid-save) and the mutation was
	// abandoned. The caller proceeds regardless: replies to the subject
	// are never blocked on persistence.
	SaveFailedAfterRetries SaveStatus = "PERSIST_FAILED_AFTER_RETRIES"
)

// SaveOutcome is the typed result of Save. The give-up path is intentional
// and must stay observable, so it is a value, not a swallowed error.
type SaveOutcome struct {
	Status   SaveStatus
	Version  objectstore.Version
	Attempts int
	Err      error
}

// Persisted reports whether the save landed.
func (o SaveOutcome) Persisted() bool { return o.Status == SavePersisted }

// Store loads and saves case records.
type Store struct {
	objects objectstore.Store
	retries int
	logger  *slog.Logger
}

// New creates a case store over the given object store.
func New(objects objectstore.Store) *Store {
	return &Store{
		objects: objects,
		retries: DefaultSaveRetries,
		logger:  slog.Default().With("component", "casestore"),
	}
}

// WithRetries overrides the conflict retry budget.
func (s *Store) WithRetries(n int) *Store {
	s.retries = n
	return s
}

func key(caseID string) string { return KeyPrefix + caseID }

// Load returns the record and its stored version.
func (s *Store) Load(ctx context.Context, caseID string) (*caserecord.Record, objectstore.Version, error) {
	data, version, err := s.objects.Get(ctx, key(caseID))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, objectstore.VersionNone, err
		}
		return nil, objectstore.VersionNone, fmt.Errorf("%w: load case %s: %v", objectstore.ErrUnavailable, caseID, err)
	}

	var rec caserecord.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, objectstore.VersionNone, fmt.Errorf("corrupt record for case %s: %w", caseID, err)
	}
	return &rec, version, nil
}

// Create initializes a fresh record and performs the first write. If another
// writer created the record concurrently, the stored record wins and is
// returned instead.
func (s *Store) Create(ctx context.Context, caseID string) (*caserecord.Record, objectstore.Version, error) {
	rec := caserecord.New(caseID)
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, objectstore.VersionNone, fmt.Errorf("marshal case %s: %w", caseID, err)
	}

	version, err := s.objects.Put(ctx, key(caseID), data, objectstore.VersionNone)
	if err != nil {
		if errors.Is(err, objectstore.ErrConditionFailed) {
			return s.Load(ctx, caseID)
		}
		return nil, objectstore.VersionNone, fmt.Errorf("%w: create case %s: %v", objectstore.ErrUnavailable, caseID, err)
	}
	return rec, version, nil
}

// Save writes the record with optimistic concurrency. On a version conflict
// the raw write is retried against the store's current version a bounded
// number of times without re-running any handler logic; if every attempt
// loses, the mutation is abandoned. Deliberate trade-off: a reply to the
// subject is worth more than a perfectly consistent record.
func (s *Store) Save(ctx context.Context, caseID string, rec *caserecord.Record, expected objectstore.Version) SaveOutcome {
	data, err := json.Marshal(rec)
	if err != nil {
		return SaveOutcome{Status: SaveFailedAfterRetries, Err: fmt.Errorf("marshal case %s: %w", caseID, err)}
	}

	version := expected
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= s.retries; attempt++ {
		attempts = attempt
		newVersion, err := s.objects.Put(ctx, key(caseID), data, version)
		if err == nil {
			return SaveOutcome{Status: SavePersisted, Version: newVersion, Attempts: attempt}
		}
		lastErr = err
		if !errors.Is(err, objectstore.ErrConditionFailed) {
			break
		}

		// Someone else wrote since we loaded; pick up their version and
		// retry the raw write.
		_, current, getErr := s.objects.Get(ctx, key(caseID))
		if getErr != nil {
			lastErr = getErr
			break
		}
		version = current
	}

	s.logger.Warn("abandoning case save",
		"case_id", caseID, "attempts", attempts, "error", lastErr)
	return SaveOutcome{Status: SaveFailedAfterRetries, Attempts: attempts, Err: lastErr}
}

// List returns every known case id.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.objects.List(ctx, KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list cases: %v", objectstore.ErrUnavailable, err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(KeyPrefix):])
	}
	return ids, nil
}

// Reset overwrites the case with a fresh initial record, unconditionally.
// Administrative use only.
func (s *Store) Reset(ctx context.Context, caseID string) (*caserecord.Record, error) {
	rec := caserecord.New(caseID)
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal case %s: %w", caseID, err)
	}
	if _, err := s.objects.Put(ctx, key(caseID), data, objectstore.VersionAny); err != nil {
		return nil, fmt.Errorf("%w: reset case %s: %v", objectstore.ErrUnavailable, caseID, err)
	}
	return rec, nil
}
