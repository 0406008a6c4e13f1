package store

import (
	"context"
	"sync"
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/event"
)

// DeadLetterStatus is the lifecycle state of a dead letter.
type DeadLetterStatus string

const (
	DeadLetterPending  DeadLetterStatus = "PENDING"
	DeadLetterReplayed DeadLetterStatus = "REPLAYED"
)

// DeadLetter retains an event that could not be processed, for operator
// replay. The envelope is stored whole so a replay is byte-faithful.
type DeadLetter struct {
	LetterID   string           `json:"letter_id"`
	Envelope   *event.Envelope  `json:"envelope"`
	Reason     string           `json:"reason"`
	Status     DeadLetterStatus `json:"status"`
	FailedAt   time.Time        `json:"failed_at"`
	ReplayedAt time.Time        `json:"replayed_at,omitzero"`
}

// DeadLetterStore is the durable dead-letter list.
type DeadLetterStore interface {
	// Add stores a new pending dead letter.
	Add(ctx context.Context, letter *DeadLetter) error

	// Get returns a letter by id.
	Get(ctx context.Context, letterID string) (*DeadLetter, error)

	// ListPending returns pending letters, oldest first.
	ListPending(ctx context.Context) ([]*DeadLetter, error)

	// MarkReplayed transitions a letter to REPLAYED.
	MarkReplayed(ctx context.Context, letterID string) error
}

// ErrLetterNotFound is returned when no dead letter matches the id.
var ErrLetterNotFound = errString("dead letter not found")

type errString string

func (e errString) Error() string { return string(e) }

// InMemoryDeadLetterStore is the reference implementation.
type InMemoryDeadLetterStore struct {
	mu      sync.RWMutex
	letters []*DeadLetter
	byID    map[string]*DeadLetter
}

// NewInMemoryDeadLetterStore creates an empty store.
func NewInMemoryDeadLetterStore() *InMemoryDeadLetterStore {
	return &InMemoryDeadLetterStore{byID: make(map[string]*DeadLetter)}
}

// Add implements DeadLetterStore.
func (s *InMemoryDeadLetterStore) Add(ctx context.Context, letter *DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, letter)
	s.byID[letter.LetterID] = letter
	return nil
}

// Get implements DeadLetterStore.
func (s *InMemoryDeadLetterStore) Get(ctx context.Context, letterID string) (*DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	letter, ok := s.byID[letterID]
	if !ok {
		return nil, ErrLetterNotFound
	}
	return letter, nil
}

// ListPending implements DeadLetterStore.
func (s *InMemoryDeadLetterStore) ListPending(ctx context.Context) ([]*DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*DeadLetter
	for _, l := range s.letters {
		if l.Status == DeadLetterPending {
			out = append(out, l)
		}
	}
	return out, nil
}

// MarkReplayed implements DeadLetterStore.
func (s *InMemoryDeadLetterStore) MarkReplayed(ctx context.Context, letterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	letter, ok := s.byID[letterID]
	if !ok {
		return ErrLetterNotFound
	}
	letter.Status = DeadLetterReplayed
	letter.ReplayedAt = time.Now().UTC()
	return nil
}
