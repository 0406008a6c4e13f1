package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendEntries(t *testing.T, log ProcessingLog, caseID string, n int) {
	t.Helper()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := log.Append(context.Background(), &LogEntry{
			EntryID:     fmt.Sprintf("%s-entry-%d", caseID, i),
			EventID:     fmt.Sprintf("%s-event-%d", caseID, i),
			EventType:   "inbound.subject_message",
			CaseID:      caseID,
			Status:      StatusOK,
			ChainDepth:  i,
			ProcessedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
}

func TestInMemoryProcessingLog_ListNewestFirst(t *testing.T) {
	log := NewInMemoryProcessingLog()
	appendEntries(t, log, "case-1", 5)

	entries, err := log.List(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "case-1-entry-4", entries[0].EntryID)
	assert.Equal(t, "case-1-entry-2", entries[2].EntryID)
}

func TestInMemoryProcessingLog_ListByCase(t *testing.T) {
	log := NewInMemoryProcessingLog()
	appendEntries(t, log, "case-1", 3)
	appendEntries(t, log, "case-2", 2)

	entries, err := log.ListByCase(context.Background(), "case-2", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "case-2", e.CaseID)
	}
	assert.Equal(t, "case-2-entry-1", entries[0].EntryID)
}

func TestInMemoryProcessingLog_NoLimit(t *testing.T) {
	log := NewInMemoryProcessingLog()
	appendEntries(t, log, "case-1", 4)

	entries, err := log.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}
