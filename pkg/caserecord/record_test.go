package caserecord

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/caseflow/pkg/event"
)

func TestNew(t *testing.T) {
	rec := New("case-1")
	assert.Equal(t, "case-1", rec.CaseID)
	assert.Equal(t, PhaseInitial, rec.Phase)
	assert.False(t, rec.PhaseEnteredAt.IsZero())
	assert.NotNil(t, rec.Intake.Fields)
}

func TestAppendAudit_CapsLog(t *testing.T) {
	rec := New("case-1")
	for i := 0; i < AuditLogCap+10; i++ {
		rec.AppendAudit(AuditEntry{Actor: "subject", Kind: "message", Text: fmt.Sprintf("msg %d", i)})
	}
	require.Len(t, rec.AuditLog, AuditLogCap)
	// Oldest entries dropped, newest retained.
	assert.Equal(t, "msg 10", rec.AuditLog[0].Text)
	assert.Equal(t, fmt.Sprintf("msg %d", AuditLogCap+9), rec.AuditLog[AuditLogCap-1].Text)
}

func TestHasAuditMarker(t *testing.T) {
	rec := New("case-1")
	assert.False(t, rec.HasAuditMarker("m"))
	rec.AppendAudit(AuditEntry{Actor: "orchestrator", Kind: "stale_nudge", Marker: "m"})
	assert.True(t, rec.HasAuditMarker("m"))
}

func TestStaleMarker_ChangesPerEpisode(t *testing.T) {
	rec := New("case-1")
	first := rec.StaleMarker()

	require.NoError(t, rec.ApplyTransition(event.TypeIntakeComplete, time.Now().Add(time.Second)))
	second := rec.StaleMarker()
	assert.NotEqual(t, first, second)

	// Looping back re-enters a phase at a new time: a fresh episode.
	require.NoError(t, rec.ApplyTransition(event.TypeIntakeRevisit, time.Now().Add(2*time.Second)))
	assert.NotEqual(t, first, rec.StaleMarker())
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from    Phase
		trigger event.Type
		want    Phase
	}{
		{PhaseInitial, event.TypeIntakeComplete, PhaseAssessment},
		{PhaseAssessment, event.TypeAssessmentComplete, PhaseReservation},
		{PhaseReservation, event.TypeReservationComplete, PhaseFollowUp},
		{PhaseAssessment, event.TypeIntakeRevisit, PhaseInitial},
		{PhaseFollowUp, event.TypeRetriage, PhaseReservation},
	}
	for _, tc := range tests {
		next, ok := NextPhase(tc.from, tc.trigger)
		require.True(t, ok, "%s + %s", tc.from, tc.trigger)
		assert.Equal(t, tc.want, next)

		target, ok := HandoffTarget(tc.trigger)
		require.True(t, ok)
		assert.Equal(t, tc.want, target)
	}
}

func TestApplyTransition_Illegal(t *testing.T) {
	rec := New("case-1")
	err := rec.ApplyTransition(event.TypeRetriage, time.Now())
	require.Error(t, err)

	var illegal *ErrIllegalTransition
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, PhaseInitial, illegal.From)
	assert.Equal(t, PhaseInitial, rec.Phase)
}

func TestApplyTransition_StampsPhaseEnteredAt(t *testing.T) {
	rec := New("case-1")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, rec.ApplyTransition(event.TypeIntakeComplete, at))
	assert.Equal(t, PhaseAssessment, rec.Phase)
	assert.Equal(t, at, rec.PhaseEnteredAt)
}

func TestClose(t *testing.T) {
	rec := New("case-1")
	rec.Close(time.Now())
	assert.Equal(t, PhaseClosed, rec.Phase)
}

func TestDwellTime(t *testing.T) {
	rec := New("case-1")
	rec.PhaseEnteredAt = time.Now().UTC().Add(-2 * time.Hour)
	assert.InDelta(t, 2*time.Hour, rec.DwellTime(time.Now().UTC()), float64(time.Minute))
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityElevated.Rank())
	assert.Greater(t, PriorityElevated.Rank(), PriorityRoutine.Rank())
	assert.Equal(t, 0, PriorityUnset.Rank())
}
