package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/event"
	"github.com/Mindburn-Labs/caseflow/pkg/orchestrator"
	"github.com/Mindburn-Labs/caseflow/pkg/slotregistry"
)

// FollowUpHandler owns the long-lived follow-up phase: scheduled check-ins,
// severity tracking against the baseline, and the re-triage backward loop
// when a report crosses the deterioration threshold.
type FollowUpHandler struct {
	registry *slotregistry.Registry
	cadence  time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewFollowUpHandler constructs the handler over the slot registry.
func NewFollowUpHandler(registry *slotregistry.Registry) *FollowUpHandler {
	return &FollowUpHandler{
		registry: registry,
		cadence:  DefaultCheckInCadence,
		now:      utcNow,
		logger:   slog.Default().With("component", "followup_handler"),
	}
}

// WithCadence overrides the check-in cadence used when the record carries
// none.
func (h *FollowUpHandler) WithCadence(d time.Duration) *FollowUpHandler {
	h.cadence = d
	return h
}

// WithClock overrides the time source for tests.
func (h *FollowUpHandler) WithClock(now func() time.Time) *FollowUpHandler {
	h.now = now
	return h
}

// Process implements orchestrator.Handler.
func (h *FollowUpHandler) Process(ctx context.Context, evt *event.Envelope, rec *caserecord.Record) (*orchestrator.Result, error) {
	switch evt.Type {
	case event.TypeReservationComplete:
		return h.welcome(evt, rec), nil
	case event.TypeCheckInDue:
		return h.checkIn(evt, rec), nil
	}

	if severity, ok := evt.Payload.Int("severity"); ok {
		return h.severityReport(ctx, evt, rec, severity)
	}
	return &orchestrator.Result{
		Record: rec,
		Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
			"Thanks for the update. We'll check in with you on schedule.")},
	}, nil
}

// welcome acknowledges entry into follow-up, filling in baseline data if the
// reservation stage did not.
func (h *FollowUpHandler) welcome(evt *event.Envelope, rec *caserecord.Record) *orchestrator.Result {
	now := h.now()
	if rec.FollowUp.BaselineAt.IsZero() {
		rec.FollowUp.BaselineLevel = rec.Priority
		rec.FollowUp.BaselineAt = now
	}
	if !rec.FollowUp.CheckInsEnabled {
		rec.FollowUp.CheckInsEnabled = true
	}
	if rec.FollowUp.CheckInEvery == 0 {
		rec.FollowUp.CheckInEvery = h.cadence
	}
	if rec.FollowUp.NextWakeAt.IsZero() {
		rec.FollowUp.NextWakeAt = now.Add(rec.FollowUp.CheckInEvery)
	}
	return &orchestrator.Result{
		Record: rec,
		Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
			"Your booking is set. We'll check in with you regularly from here on.")},
	}
}

// checkIn handles a heartbeat wake-up: ask how things are and schedule the
// next wake-up.
func (h *FollowUpHandler) checkIn(evt *event.Envelope, rec *caserecord.Record) *orchestrator.Result {
	now := h.now()
	rec.FollowUp.LastCheckInAt = now
	rec.FollowUp.NextWakeAt = now.Add(h.cadenceFor(rec))
	return &orchestrator.Result{
		Record: rec,
		Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
			"Checking in: how are things going? Reply with a severity from 0 to 10.")},
	}
}

func (h *FollowUpHandler) cadenceFor(rec *caserecord.Record) time.Duration {
	if rec.FollowUp.CheckInEvery > 0 {
		return rec.FollowUp.CheckInEvery
	}
	return h.cadence
}

// severityReport records the report and, past the deterioration threshold,
// cancels the confirmed booking and loops the case back for re-triage.
func (h *FollowUpHandler) severityReport(ctx context.Context, evt *event.Envelope, rec *caserecord.Record, severity int) (*orchestrator.Result, error) {
	now := h.now()
	rec.FollowUp.SeverityReports = append(rec.FollowUp.SeverityReports, severity)
	rec.FollowUp.LastCheckInAt = now
	rec.FollowUp.NextWakeAt = now.Add(h.cadenceFor(rec))

	level := severityToLevel(severity)
	if level.Rank() < caserecord.PriorityHigh.Rank() {
		return &orchestrator.Result{
			Record: rec,
			Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
				"Thanks for checking in. Glad things are stable; talk soon.")},
		}, nil
	}

	// Deterioration: free the confirmed slot and re-triage. A registry
	// failure leaves a slot dangling until its hold is cancelled by an
	// operator; the loop back still proceeds.
	if _, err := h.registry.CancelBooking(ctx, evt.CaseID); err != nil {
		h.logger.Error("failed to cancel booking during re-triage",
			"case_id", evt.CaseID, "error", err)
	}
	rec.Reservation.ConfirmedHoldID = ""
	rec.Reservation.BookingRef = ""
	rec.Reservation.RetriageCount++
	rec.Priority = level

	if err := rec.ApplyTransition(event.TypeRetriage, now); err != nil {
		return nil, fmt.Errorf("re-triage handoff: %w", err)
	}
	handoff := event.NewHandoff(event.TypeRetriage, evt, event.Payload{
		"severity": severity,
		"level":    string(level),
	})
	return &orchestrator.Result{
		Record:  rec,
		Emitted: []*event.Envelope{handoff},
		Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
			"Thanks for telling us. Given how you're feeling we'd like to get you seen again; new slots are coming right up.")},
	}, nil
}
