package caserecord

import (
	"fmt"
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/event"
)

// transitionKey pairs the phase a case is in with the handoff that moves it.
type transitionKey struct {
	From    Phase
	Trigger event.Type
}

// transitions is the explicit state-transition table. Stage graphs are fixed
// at compile time; there is no data-driven routing.
var transitions = map[transitionKey]Phase{
	{PhaseInitial, event.TypeIntakeComplete}:         PhaseAssessment,
	{PhaseAssessment, event.TypeAssessmentComplete}:  PhaseReservation,
	{PhaseReservation, event.TypeReservationComplete}: PhaseFollowUp,

	// Backward loops.
	{PhaseAssessment, event.TypeIntakeRevisit}: PhaseInitial,
	{PhaseFollowUp, event.TypeRetriage}:        PhaseReservation,
}

// handoffTargets maps each handoff type to the phase that must own the record
// when the handoff is dispatched. The orchestrator uses this to assert the
// record was transitioned before the handoff was emitted.
var handoffTargets = map[event.Type]Phase{
	event.TypeIntakeComplete:      PhaseAssessment,
	event.TypeAssessmentComplete:  PhaseReservation,
	event.TypeReservationComplete: PhaseFollowUp,
	event.TypeIntakeRevisit:       PhaseInitial,
	event.TypeRetriage:            PhaseReservation,
}

// HandoffTarget returns the phase a handoff of type t must land in.
func HandoffTarget(t event.Type) (Phase, bool) {
	p, ok := handoffTargets[t]
	return p, ok
}

// NextPhase resolves the transition table for (from, trigger).
func NextPhase(from Phase, trigger event.Type) (Phase, bool) {
	next, ok := transitions[transitionKey{From: from, Trigger: trigger}]
	return next, ok
}

// ErrIllegalTransition is returned when no table entry matches.
type ErrIllegalTransition struct {
	From    Phase
	Trigger event.Type
}

func (e *ErrIllegalTransition) Error() string {
	return fmt.Sprintf("no transition from phase %s on %s", e.From, e.Trigger)
}

// ApplyTransition moves the record to the next phase for trigger, stamping
// PhaseEnteredAt. Handlers MUST call this before emitting the corresponding
// handoff event; the orchestrator routes handoffs by the record's phase at
// dispatch time.
func (r *Record) ApplyTransition(trigger event.Type, now time.Time) error {
	next, ok := NextPhase(r.Phase, trigger)
	if !ok {
		return &ErrIllegalTransition{From: r.Phase, Trigger: trigger}
	}
	r.Phase = next
	r.PhaseEnteredAt = now.UTC()
	r.UpdatedAt = now.UTC()
	return nil
}

// Close moves the record to the terminal phase. There is no handoff for
// closure; it is an administrative action.
func (r *Record) Close(now time.Time) {
	r.Phase = PhaseClosed
	r.PhaseEnteredAt = now.UTC()
	r.UpdatedAt = now.UTC()
}
