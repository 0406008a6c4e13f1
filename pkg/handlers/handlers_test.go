package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/casestore"
	"github.com/Mindburn-Labs/caseflow/pkg/event"
	"github.com/Mindburn-Labs/caseflow/pkg/objectstore"
	"github.com/Mindburn-Labs/caseflow/pkg/orchestrator"
	"github.com/Mindburn-Labs/caseflow/pkg/slotregistry"
	"github.com/Mindburn-Labs/caseflow/pkg/store"
)

var testNow = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type chatSink struct {
	sent []*orchestrator.Response
}

func (d *chatSink) Send(ctx context.Context, resp *orchestrator.Response) (*orchestrator.DeliveryResult, error) {
	d.sent = append(d.sent, resp)
	return &orchestrator.DeliveryResult{Success: true, Channel: resp.Channel, Recipient: resp.Recipient}, nil
}

type env struct {
	core     *orchestrator.Core
	cases    *casestore.Store
	registry *slotregistry.Registry
	chat     *chatSink
}

// newEnv wires the four reference handlers into a real core, the way the
// server does at startup.
func newEnv(t *testing.T) *env {
	t.Helper()
	objects := objectstore.NewInMemoryStore()
	e := &env{
		cases:    casestore.New(objects),
		registry: slotregistry.New(objects).WithClock(fixedClock),
		chat:     &chatSink{},
	}
	e.core = orchestrator.New(e.cases, store.NewInMemoryProcessingLog(), store.NewInMemoryDeadLetterStore())
	e.core.RegisterDispatcher(ChannelChat, e.chat)
	e.core.RegisterHandler(caserecord.PhaseInitial, NewIntakeHandler().WithClock(fixedClock))
	e.core.RegisterHandler(caserecord.PhaseAssessment, NewAssessmentHandler().WithClock(fixedClock))
	e.core.RegisterHandler(caserecord.PhaseReservation, NewReservationHandler(e.registry).WithClock(fixedClock))
	e.core.RegisterHandler(caserecord.PhaseFollowUp, NewFollowUpHandler(e.registry).WithClock(fixedClock))
	return e
}

func (e *env) send(t *testing.T, caseID string, payload event.Payload) []*orchestrator.Response {
	t.Helper()
	evt := event.NewInbound(event.TypeSubjectMessage, caseID, payload, "subject-1", event.RoleSubject, "chat")
	responses, err := e.core.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)
	return responses
}

func (e *env) record(t *testing.T, caseID string) *caserecord.Record {
	t.Helper()
	rec, _, err := e.cases.Load(context.Background(), caseID)
	require.NoError(t, err)
	return rec
}

func TestIntake_PromptsForMissingFields(t *testing.T) {
	e := newEnv(t)

	responses := e.send(t, "case-1", event.Payload{"message": "hello", "full_name": "Ada Lovelace"})
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Body, "contact")
	assert.Contains(t, responses[0].Body, "reason")
	assert.NotContains(t, responses[0].Body, "full_name")

	rec := e.record(t, "case-1")
	assert.Equal(t, caserecord.PhaseInitial, rec.Phase)
	assert.Equal(t, "Ada Lovelace", rec.Intake.Fields["full_name"])
	assert.ElementsMatch(t, []string{"contact", "reason"}, rec.Intake.MissingFields)
}

func TestIntake_FieldsAccreteAcrossMessages(t *testing.T) {
	e := newEnv(t)

	e.send(t, "case-1", event.Payload{"full_name": "Ada Lovelace"})
	e.send(t, "case-1", event.Payload{"contact": "ada@example.com"})
	responses := e.send(t, "case-1", event.Payload{"reason": "persistent headaches"})

	// The last message completes intake and cascades into assessment and
	// reservation in one pass.
	rec := e.record(t, "case-1")
	assert.True(t, rec.Intake.Complete)
	assert.True(t, rec.Assessment.Complete)
	assert.Equal(t, caserecord.PhaseReservation, rec.Phase)
	assert.NotEmpty(t, rec.Reservation.HoldIDs)

	// Intake ack, assessment ack, then the slot offer.
	require.Len(t, responses, 3)
	assert.Contains(t, responses[2].Body, "available slots")
}

func completeIntake(t *testing.T, e *env, caseID string) {
	t.Helper()
	e.send(t, caseID, event.Payload{
		"full_name": "Ada Lovelace",
		"contact":   "ada@example.com",
		"reason":    "persistent headaches",
		"severity":  6,
	})
}

func TestAssessment_SeverityDefaultsWhenAbsent(t *testing.T) {
	e := newEnv(t)
	e.send(t, "case-1", event.Payload{
		"full_name": "Ada Lovelace",
		"contact":   "ada@example.com",
		"reason":    "routine question",
	})

	rec := e.record(t, "case-1")
	// The handoff carries no severity; the default scores as routine.
	assert.Equal(t, caserecord.PriorityRoutine, rec.Priority)
	assert.Equal(t, 2, rec.Assessment.Score)
}

func TestFullFlow_ConfirmBookingSnapshotsBaseline(t *testing.T) {
	e := newEnv(t)
	completeIntake(t, e, "case-1")

	rec := e.record(t, "case-1")
	require.Equal(t, caserecord.PhaseReservation, rec.Phase)
	require.NotEmpty(t, rec.Reservation.HoldIDs)
	holdID := rec.Reservation.HoldIDs[0]

	responses := e.send(t, "case-1", event.Payload{"hold_id": holdID})

	rec = e.record(t, "case-1")
	assert.Equal(t, caserecord.PhaseFollowUp, rec.Phase)
	assert.Equal(t, holdID, rec.Reservation.ConfirmedHoldID)
	assert.Equal(t, "bk-"+holdID, rec.Reservation.BookingRef)

	// Baseline snapshot taken at confirmation time.
	assert.Equal(t, rec.Priority, rec.FollowUp.BaselineLevel)
	assert.Equal(t, testNow, rec.FollowUp.BaselineAt)
	assert.True(t, rec.FollowUp.CheckInsEnabled)
	assert.Equal(t, DefaultCheckInCadence, rec.FollowUp.CheckInEvery)
	assert.Equal(t, testNow.Add(DefaultCheckInCadence), rec.FollowUp.NextWakeAt)

	// Booking confirmation plus the follow-up welcome.
	require.Len(t, responses, 2)
	assert.Contains(t, responses[0].Body, "bk-"+holdID)
	assert.Contains(t, responses[1].Body, "check in")
}

func TestReservation_ExpiredHoldReoffers(t *testing.T) {
	e := newEnv(t)
	completeIntake(t, e, "case-1")

	// Confirming against a hold the registry no longer recognizes falls
	// back to a fresh offer instead of a booking.
	responses := e.send(t, "case-1", event.Payload{"hold_id": "not-a-hold"})
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Body, "available slots")

	rec := e.record(t, "case-1")
	assert.Equal(t, caserecord.PhaseReservation, rec.Phase)
	assert.Empty(t, rec.Reservation.ConfirmedHoldID)
}

func TestFollowUp_CheckInDue(t *testing.T) {
	e := newEnv(t)
	completeIntake(t, e, "case-1")
	rec := e.record(t, "case-1")
	e.send(t, "case-1", event.Payload{"hold_id": rec.Reservation.HoldIDs[0]})

	evt := event.NewSystem(event.TypeCheckInDue, "case-1", nil, "heartbeat")
	responses, err := e.core.ProcessEvent(context.Background(), evt)
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Body, "severity")

	rec = e.record(t, "case-1")
	assert.Equal(t, testNow, rec.FollowUp.LastCheckInAt)
	assert.Equal(t, testNow.Add(DefaultCheckInCadence), rec.FollowUp.NextWakeAt)
}

func TestFollowUp_StableSeverityReport(t *testing.T) {
	e := newEnv(t)
	completeIntake(t, e, "case-1")
	rec := e.record(t, "case-1")
	e.send(t, "case-1", event.Payload{"hold_id": rec.Reservation.HoldIDs[0]})

	responses := e.send(t, "case-1", event.Payload{"severity": 3})
	require.Len(t, responses, 1)
	assert.Contains(t, responses[0].Body, "stable")

	rec = e.record(t, "case-1")
	assert.Equal(t, caserecord.PhaseFollowUp, rec.Phase)
	assert.Equal(t, []int{3}, rec.FollowUp.SeverityReports)
	assert.NotEmpty(t, rec.Reservation.BookingRef)
}

func TestFollowUp_DeteriorationRetriagesAndFreesSlot(t *testing.T) {
	e := newEnv(t)
	completeIntake(t, e, "case-1")
	rec := e.record(t, "case-1")
	confirmedHold := rec.Reservation.HoldIDs[0]
	e.send(t, "case-1", event.Payload{"hold_id": confirmedHold})

	confirmed, err := e.registry.HoldsForCase(context.Background(), "case-1")
	require.NoError(t, err)
	var confirmedSlot slotregistry.Slot
	for _, h := range confirmed {
		if h.Status == slotregistry.HoldConfirmed {
			confirmedSlot = h.Slot
		}
	}
	require.NotEmpty(t, confirmedSlot.Date)

	// A severity past the threshold cancels the booking, re-triages, and
	// the reservation stage immediately offers fresh slots.
	responses := e.send(t, "case-1", event.Payload{"severity": 7})

	rec = e.record(t, "case-1")
	assert.Equal(t, caserecord.PhaseReservation, rec.Phase)
	assert.Empty(t, rec.Reservation.ConfirmedHoldID)
	assert.Empty(t, rec.Reservation.BookingRef)
	assert.Equal(t, 1, rec.Reservation.RetriageCount)
	assert.Equal(t, caserecord.PriorityHigh, rec.Priority)

	// The freed slot is reacquirable: the fresh offer holds it again.
	holds, err := e.registry.HoldsForCase(context.Background(), "case-1")
	require.NoError(t, err)
	reacquired := false
	for _, h := range holds {
		if h.Status == slotregistry.HoldHeld && h.Slot.Key() == confirmedSlot.Key() {
			reacquired = true
		}
	}
	assert.True(t, reacquired, "cancelled slot should be held again after re-triage")

	// Re-triage note plus the fresh offer.
	require.Len(t, responses, 2)
	assert.Contains(t, responses[1].Body, "available slots")
}

func TestAssessment_LoopsBackForMissingFields(t *testing.T) {
	ctx := context.Background()
	h := NewAssessmentHandler().WithClock(fixedClock)

	rec := caserecord.New("case-1")
	rec.Intake.Fields["full_name"] = "Ada Lovelace"
	require.NoError(t, rec.ApplyTransition(event.TypeIntakeComplete, testNow))

	evt := event.NewInbound(event.TypeSubjectMessage, "case-1", event.Payload{"message": "any news?"}, "subject-1", event.RoleSubject, "chat")
	res, err := h.Process(ctx, evt, rec)
	require.NoError(t, err)

	assert.Equal(t, caserecord.PhaseInitial, res.Record.Phase)
	assert.Equal(t, 1, res.Record.Intake.RevisitCount)
	assert.False(t, res.Record.Intake.Complete)
	require.Len(t, res.Emitted, 1)
	assert.Equal(t, event.TypeIntakeRevisit, res.Emitted[0].Type)
}

func TestAssessment_RevisitCutoffProceedsOnPartialData(t *testing.T) {
	ctx := context.Background()
	h := NewAssessmentHandler().WithClock(fixedClock)

	rec := caserecord.New("case-1")
	rec.Intake.RevisitCount = IntakeRevisitCutoff
	require.NoError(t, rec.ApplyTransition(event.TypeIntakeComplete, testNow))

	evt := event.NewInbound(event.TypeSubjectMessage, "case-1", event.Payload{"severity": 5}, "subject-1", event.RoleSubject, "chat")
	res, err := h.Process(ctx, evt, rec)
	require.NoError(t, err)

	assert.Equal(t, caserecord.PhaseReservation, res.Record.Phase)
	assert.True(t, res.Record.Assessment.PartialData)
	assert.True(t, res.Record.Assessment.Complete)
	assert.Equal(t, caserecord.PriorityElevated, res.Record.Priority)
	require.Len(t, res.Emitted, 1)
	assert.Equal(t, event.TypeAssessmentComplete, res.Emitted[0].Type)
}

func TestIntake_StaleNudgeListsMissingFields(t *testing.T) {
	ctx := context.Background()
	h := NewIntakeHandler().WithClock(fixedClock)

	rec := caserecord.New("case-1")
	rec.Intake.Fields["full_name"] = "Ada Lovelace"

	evt := event.NewSystem(event.TypeStaleCase, "case-1", nil, "heartbeat")
	res, err := h.Process(ctx, evt, rec)
	require.NoError(t, err)
	require.Len(t, res.Responses, 1)
	assert.Contains(t, res.Responses[0].Body, "contact")
	assert.Empty(t, res.Emitted)
}

func TestSeverityToLevel(t *testing.T) {
	tests := []struct {
		severity int
		want     caserecord.PriorityLevel
	}{
		{0, caserecord.PriorityRoutine},
		{2, caserecord.PriorityRoutine},
		{3, caserecord.PriorityElevated},
		{5, caserecord.PriorityElevated},
		{6, caserecord.PriorityHigh},
		{7, caserecord.PriorityHigh},
		{8, caserecord.PriorityUrgent},
		{10, caserecord.PriorityUrgent},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, severityToLevel(tc.severity), "severity %d", tc.severity)
	}
}
