// Package event defines the envelope and the closed event-type taxonomy that
// flows between the orchestrator and its phase handlers.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies an event within the closed taxonomy.
type Type string

// Inbound event types. These enter the system from outside the orchestrator.
const (
	TypeSubjectMessage   Type = "inbound.subject_message"
	TypeDocumentUploaded Type = "inbound.document_uploaded"
	TypeCheckInDue       Type = "inbound.checkin_due"
	TypeStaleCase        Type = "inbound.stale_case"
)

// Handoff event types. One per phase completion plus one per backward loop.
// Handoffs are emitted by handlers after the record's phase has already been
// transitioned; the orchestrator routes them by the record's phase at dispatch
// time.
const (
	TypeIntakeComplete      Type = "handoff.intake_complete"
	TypeAssessmentComplete  Type = "handoff.assessment_complete"
	TypeReservationComplete Type = "handoff.reservation_complete"
	TypeIntakeRevisit       Type = "handoff.intake_revisit"
	TypeRetriage            Type = "handoff.retriage"
)

// Role identifies who produced an event.
type Role string

const (
	RoleSubject       Role = "SUBJECT"
	RoleProxy         Role = "PROXY"
	RoleExternalParty Role = "EXTERNAL_PARTY"
	RoleSystem        Role = "SYSTEM"
)

// handoffTypes is the set of types a handler may emit to transfer control.
var handoffTypes = map[Type]bool{
	TypeIntakeComplete:      true,
	TypeAssessmentComplete:  true,
	TypeReservationComplete: true,
	TypeIntakeRevisit:       true,
	TypeRetriage:            true,
}

// IsHandoff reports whether t is a handoff type.
func (t Type) IsHandoff() bool { return handoffTypes[t] }

// Valid reports whether t belongs to the taxonomy.
func (t Type) Valid() bool {
	switch t {
	case TypeSubjectMessage, TypeDocumentUploaded, TypeCheckInDue, TypeStaleCase:
		return true
	}
	return handoffTypes[t]
}

// Envelope is the immutable message exchanged between handlers and the
// orchestrator. Envelopes are constructed once and never mutated.
type Envelope struct {
	EventID       string    `json:"event_id"`
	Type          Type      `json:"event_type"`
	CaseID        string    `json:"case_id"`
	Payload       Payload   `json:"payload,omitempty"`
	SenderID      string    `json:"sender_id,omitempty"`
	SenderRole    Role      `json:"sender_role"`
	Source        string    `json:"source,omitempty"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewInbound builds an event originating outside the orchestrator. A fresh
// correlation id is minted; every handoff triggered by this event inherits it.
func NewInbound(t Type, caseID string, payload Payload, senderID string, role Role, source string) *Envelope {
	return &Envelope{
		EventID:       uuid.NewString(),
		Type:          t,
		CaseID:        caseID,
		Payload:       payload,
		SenderID:      senderID,
		SenderRole:    role,
		Source:        source,
		CorrelationID: uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
	}
}

// NewSystem builds a system-originated inbound event (heartbeat wake-ups and
// staleness nudges).
func NewSystem(t Type, caseID string, payload Payload, source string) *Envelope {
	e := NewInbound(t, caseID, payload, "system", RoleSystem, source)
	return e
}

// NewHandoff builds a handoff event from its trigger. The correlation id is
// carried over so an entire cascade traces as one logical operation.
func NewHandoff(t Type, trigger *Envelope, payload Payload) *Envelope {
	correlation := trigger.CorrelationID
	if correlation == "" {
		correlation = trigger.EventID
	}
	return &Envelope{
		EventID:       uuid.NewString(),
		Type:          t,
		CaseID:        trigger.CaseID,
		Payload:       payload,
		SenderID:      "orchestrator",
		SenderRole:    RoleSystem,
		Source:        string(trigger.Type),
		CorrelationID: correlation,
		CreatedAt:     time.Now().UTC(),
	}
}
