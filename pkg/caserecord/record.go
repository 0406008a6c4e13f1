// Package caserecord defines the versioned state aggregate for one case: its
// phase, priority, capped audit log, and one accreting sub-section per stage.
package caserecord

import (
	"fmt"
	"time"
)

// Phase is the case's current stage. Exactly one phase is active at a time.
type Phase string

const (
	PhaseInitial     Phase = "INITIAL"
	PhaseAssessment  Phase = "ASSESSMENT"
	PhaseReservation Phase = "RESERVATION"
	PhaseFollowUp    Phase = "FOLLOW_UP"
	PhaseClosed      Phase = "CLOSED"
)

// PriorityLevel is orthogonal to phase; set by the assessment stage and read
// by everything downstream.
type PriorityLevel string

const (
	PriorityUnset    PriorityLevel = ""
	PriorityRoutine  PriorityLevel = "ROUTINE"
	PriorityElevated PriorityLevel = "ELEVATED"
	PriorityHigh     PriorityLevel = "HIGH"
	PriorityUrgent   PriorityLevel = "URGENT"
)

// Rank orders priority levels for severity comparisons.
func (p PriorityLevel) Rank() int {
	switch p {
	case PriorityRoutine:
		return 1
	case PriorityElevated:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

// AuditLogCap bounds the audit log; the oldest entries are dropped beyond it.
const AuditLogCap = 100

// AuditEntry is one conversation or system interaction in the case history.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Actor  string    `json:"actor"`
	Kind   string    `json:"kind"`
	Text   string    `json:"text,omitempty"`
	Marker string    `json:"marker,omitempty"`
}

// IntakeData is owned by the initial-stage handler. Fields accrete; nothing
// written here is ever erased, only added or corrected.
type IntakeData struct {
	Complete      bool              `json:"complete"`
	Fields        map[string]string `json:"fields,omitempty"`
	MissingFields []string          `json:"missing_fields,omitempty"`
	RevisitCount  int               `json:"revisit_count"`
}

// AssessmentData is owned by the assessment handler.
type AssessmentData struct {
	Complete    bool          `json:"complete"`
	Score       int           `json:"score"`
	Level       PriorityLevel `json:"level,omitempty"`
	Notes       []string      `json:"notes,omitempty"`
	PartialData bool          `json:"partial_data"`
}

// ReservationData is owned by the reservation handler.
type ReservationData struct {
	HoldIDs         []string  `json:"hold_ids,omitempty"`
	ConfirmedHoldID string    `json:"confirmed_hold_id,omitempty"`
	BookingRef      string    `json:"booking_ref,omitempty"`
	OfferedAt       time.Time `json:"offered_at,omitzero"`
	RetriageCount   int       `json:"retriage_count"`
}

// FollowUpData is owned by the follow-up handler. NextWakeAt is the schedule
// bookkeeping the heartbeat scheduler compares against.
type FollowUpData struct {
	BaselineLevel   PriorityLevel `json:"baseline_level,omitempty"`
	BaselineAt      time.Time     `json:"baseline_at,omitzero"`
	CheckInsEnabled bool          `json:"checkins_enabled"`
	CheckInEvery    time.Duration `json:"checkin_every,omitempty"`
	LastCheckInAt   time.Time     `json:"last_checkin_at,omitzero"`
	NextWakeAt      time.Time     `json:"next_wake_at,omitzero"`
	SeverityReports []int         `json:"severity_reports,omitempty"`
}

// Record is the sole mutable aggregate per case. It is exclusively owned by
// the single worker currently processing the case; serialization is enforced
// by the queue manager, not by in-record locking.
type Record struct {
	CaseID         string        `json:"case_id"`
	Phase          Phase         `json:"current_phase"`
	Priority       PriorityLevel `json:"priority_level,omitempty"`
	PhaseEnteredAt time.Time     `json:"phase_entered_at"`
	AuditLog       []AuditEntry  `json:"audit_log,omitempty"`

	Intake      IntakeData      `json:"intake"`
	Assessment  AssessmentData  `json:"assessment"`
	Reservation ReservationData `json:"reservation"`
	FollowUp    FollowUpData    `json:"follow_up"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a fresh record in the initial phase.
func New(caseID string) *Record {
	now := time.Now().UTC()
	return &Record{
		CaseID:         caseID,
		Phase:          PhaseInitial,
		PhaseEnteredAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
		Intake:         IntakeData{Fields: map[string]string{}},
	}
}

// AppendAudit records one interaction, dropping the oldest entry past the cap.
func (r *Record) AppendAudit(e AuditEntry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	r.AuditLog = append(r.AuditLog, e)
	if len(r.AuditLog) > AuditLogCap {
		r.AuditLog = r.AuditLog[len(r.AuditLog)-AuditLogCap:]
	}
	r.UpdatedAt = e.At
}

// HasAuditMarker reports whether any audit entry carries the given marker.
// Used to deduplicate staleness nudges within one episode.
func (r *Record) HasAuditMarker(marker string) bool {
	for i := len(r.AuditLog) - 1; i >= 0; i-- {
		if r.AuditLog[i].Marker == marker {
			return true
		}
	}
	return false
}

// StaleMarker is the audit marker for the current staleness episode. A new
// episode begins whenever the phase is re-entered.
func (r *Record) StaleMarker() string {
	return fmt.Sprintf("stale:%s:%d", r.Phase, r.PhaseEnteredAt.Unix())
}

// DwellTime returns how long the case has been in its current phase.
func (r *Record) DwellTime(now time.Time) time.Duration {
	return now.Sub(r.PhaseEnteredAt)
}
