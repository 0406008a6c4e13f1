package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/event"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the caseflow operator database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

// SQLiteProcessingLog persists the processing log in SQLite.
type SQLiteProcessingLog struct {
	db *sql.DB
}

// NewSQLiteProcessingLog creates the log and runs its migration.
func NewSQLiteProcessingLog(db *sql.DB) (*SQLiteProcessingLog, error) {
	l := &SQLiteProcessingLog{db: db}
	if err := l.migrate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *SQLiteProcessingLog) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS processing_log (
        entry_id TEXT PRIMARY KEY,
        event_id TEXT NOT NULL,
        event_type TEXT NOT NULL,
        case_id TEXT NOT NULL,
        correlation_id TEXT,
        status TEXT NOT NULL,
        detail TEXT,
        payload_hash TEXT,
        chain_depth INTEGER NOT NULL DEFAULT 0,
        save_status TEXT,
        processed_at DATETIME NOT NULL
    );`
	if _, err := l.db.ExecContext(context.Background(), query); err != nil {
		return err
	}
	_, err := l.db.ExecContext(context.Background(),
		`CREATE INDEX IF NOT EXISTS idx_processing_log_case ON processing_log (case_id, processed_at);`)
	return err
}

// Append implements ProcessingLog.
func (l *SQLiteProcessingLog) Append(ctx context.Context, entry *LogEntry) error {
	query := `INSERT INTO processing_log (
        entry_id, event_id, event_type, case_id, correlation_id, status, detail, payload_hash, chain_depth, save_status, processed_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := l.db.ExecContext(ctx, query,
		entry.EntryID, entry.EventID, entry.EventType, entry.CaseID, entry.CorrelationID,
		string(entry.Status), entry.Detail, entry.PayloadHash, entry.ChainDepth, entry.SaveStatus,
		entry.ProcessedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

// List implements ProcessingLog.
func (l *SQLiteProcessingLog) List(ctx context.Context, limit int) ([]*LogEntry, error) {
	query := `
        SELECT entry_id, event_id, event_type, case_id, correlation_id, status, detail, payload_hash, chain_depth, save_status, processed_at
        FROM processing_log
        ORDER BY processed_at DESC
        LIMIT ?`
	return l.query(ctx, query, limit)
}

// ListByCase implements ProcessingLog.
func (l *SQLiteProcessingLog) ListByCase(ctx context.Context, caseID string, limit int) ([]*LogEntry, error) {
	query := `
        SELECT entry_id, event_id, event_type, case_id, correlation_id, status, detail, payload_hash, chain_depth, save_status, processed_at
        FROM processing_log
        WHERE case_id = ?
        ORDER BY processed_at DESC
        LIMIT ?`
	return l.query(ctx, query, caseID, limit)
}

func (l *SQLiteProcessingLog) query(ctx context.Context, query string, args ...any) ([]*LogEntry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*LogEntry
	for rows.Next() {
		var e LogEntry
		var status, processedAt string
		var detail, payloadHash, saveStatus, correlationID sql.NullString
		if err := rows.Scan(&e.EntryID, &e.EventID, &e.EventType, &e.CaseID, &correlationID,
			&status, &detail, &payloadHash, &e.ChainDepth, &saveStatus, &processedAt); err != nil {
			return nil, err
		}
		e.CorrelationID = correlationID.String
		e.Status = ProcessingStatus(status)
		e.Detail = detail.String
		e.PayloadHash = payloadHash.String
		e.SaveStatus = saveStatus.String
		e.ProcessedAt = parseTime(processedAt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// SQLiteDeadLetterStore persists dead letters in SQLite.
type SQLiteDeadLetterStore struct {
	db *sql.DB
}

// NewSQLiteDeadLetterStore creates the store and runs its migration.
func NewSQLiteDeadLetterStore(db *sql.DB) (*SQLiteDeadLetterStore, error) {
	s := &SQLiteDeadLetterStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDeadLetterStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS dead_letters (
        letter_id TEXT PRIMARY KEY,
        envelope JSON NOT NULL,
        reason TEXT,
        status TEXT NOT NULL DEFAULT 'PENDING',
        failed_at DATETIME NOT NULL,
        replayed_at DATETIME
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Add implements DeadLetterStore.
func (s *SQLiteDeadLetterStore) Add(ctx context.Context, letter *DeadLetter) error {
	envelopeJSON, err := json.Marshal(letter.Envelope)
	if err != nil {
		return fmt.Errorf("marshal dead letter envelope: %w", err)
	}
	query := `INSERT INTO dead_letters (letter_id, envelope, reason, status, failed_at) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		letter.LetterID, string(envelopeJSON), letter.Reason, string(letter.Status),
		letter.FailedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}
	return nil
}

// Get implements DeadLetterStore.
func (s *SQLiteDeadLetterStore) Get(ctx context.Context, letterID string) (*DeadLetter, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT letter_id, envelope, reason, status, failed_at, replayed_at
        FROM dead_letters WHERE letter_id = ?`, letterID)
	letter, err := scanDeadLetter(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLetterNotFound
		}
		return nil, err
	}
	return letter, nil
}

// ListPending implements DeadLetterStore.
func (s *SQLiteDeadLetterStore) ListPending(ctx context.Context) ([]*DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT letter_id, envelope, reason, status, failed_at, replayed_at
        FROM dead_letters WHERE status = 'PENDING'
        ORDER BY failed_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var letters []*DeadLetter
	for rows.Next() {
		letter, err := scanDeadLetter(rows.Scan)
		if err != nil {
			return nil, err
		}
		letters = append(letters, letter)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return letters, nil
}

// MarkReplayed implements DeadLetterStore.
func (s *SQLiteDeadLetterStore) MarkReplayed(ctx context.Context, letterID string) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE dead_letters SET status = 'REPLAYED', replayed_at = ? WHERE letter_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), letterID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLetterNotFound
	}
	return nil
}

func scanDeadLetter(scan func(...any) error) (*DeadLetter, error) {
	var letter DeadLetter
	var envelopeJSON, status, failedAt string
	var reason, replayedAt sql.NullString
	if err := scan(&letter.LetterID, &envelopeJSON, &reason, &status, &failedAt, &replayedAt); err != nil {
		return nil, err
	}

	var env event.Envelope
	if err := json.Unmarshal([]byte(envelopeJSON), &env); err != nil {
		return nil, fmt.Errorf("corrupt envelope in dead letter %s: %w", letter.LetterID, err)
	}
	letter.Envelope = &env
	letter.Reason = reason.String
	letter.Status = DeadLetterStatus(status)
	letter.FailedAt = parseTime(failedAt)
	if replayedAt.Valid {
		letter.ReplayedAt = parseTime(replayedAt.String)
	}
	return &letter, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
