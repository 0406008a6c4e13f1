// Package store provides the durable operator surfaces of the orchestrator:
// the append-only processing log and the replayable dead-letter list.
package store

import (
	"context"
	"sync"
	"time"
)

// ProcessingStatus is the terminal status of one processed event.
type ProcessingStatus string

const (
	StatusOK             ProcessingStatus = "OK"
	StatusError          ProcessingStatus = "ERROR"
	StatusCircuitBreaker ProcessingStatus = "CIRCUIT_BREAKER"
)

// LogEntry records the processing of one event, including its position in
// the handoff chain and how the subsequent record save went.
type LogEntry struct {
	EntryID       string           `json:"entry_id"`
	EventID       string           `json:"event_id"`
	EventType     string           `json:"event_type"`
	CaseID        string           `json:"case_id"`
	CorrelationID string           `json:"correlation_id"`
	Status        ProcessingStatus `json:"status"`
	Detail        string           `json:"detail,omitempty"`
	PayloadHash   string           `json:"payload_hash,omitempty"`
	ChainDepth    int              `json:"chain_depth"`
	SaveStatus    string           `json:"save_status,omitempty"`
	ProcessedAt   time.Time        `json:"processed_at"`
}

// ProcessingLog is the append-only trace of everything the orchestrator did.
type ProcessingLog interface {
	// Append adds an entry to the log.
	Append(ctx context.Context, entry *LogEntry) error

	// List returns the most recent entries, newest first.
	List(ctx context.Context, limit int) ([]*LogEntry, error)

	// ListByCase returns the most recent entries for one case, newest first.
	ListByCase(ctx context.Context, caseID string, limit int) ([]*LogEntry, error)
}

// InMemoryProcessingLog is the reference implementation for tests and the
// dev profile.
type InMemoryProcessingLog struct {
	mu      sync.RWMutex
	entries []*LogEntry
}

// NewInMemoryProcessingLog creates an empty log.
func NewInMemoryProcessingLog() *InMemoryProcessingLog {
	return &InMemoryProcessingLog{}
}

// Append implements ProcessingLog.
func (l *InMemoryProcessingLog) Append(ctx context.Context, entry *LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// List implements ProcessingLog.
func (l *InMemoryProcessingLog) List(ctx context.Context, limit int) ([]*LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filter(func(*LogEntry) bool { return true }, limit), nil
}

// ListByCase implements ProcessingLog.
func (l *InMemoryProcessingLog) ListByCase(ctx context.Context, caseID string, limit int) ([]*LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filter(func(e *LogEntry) bool { return e.CaseID == caseID }, limit), nil
}

func (l *InMemoryProcessingLog) filter(keep func(*LogEntry) bool, limit int) []*LogEntry {
	var out []*LogEntry
	for i := len(l.entries) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if keep(l.entries[i]) {
			out = append(out, l.entries[i])
		}
	}
	return out
}
