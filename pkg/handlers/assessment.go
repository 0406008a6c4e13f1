package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/event"
	"github.com/Mindburn-Labs/caseflow/pkg/orchestrator"
)

// AssessmentHandler owns the assessment phase: it scores the case, sets its
// priority level, and hands off to reservation. When required intake data is
// missing it loops the case back to the initial phase, bounded by
// IntakeRevisitCutoff.
type AssessmentHandler struct {
	now func() time.Time
}

// NewAssessmentHandler constructs the handler.
func NewAssessmentHandler() *AssessmentHandler {
	return &AssessmentHandler{now: utcNow}
}

// WithClock overrides the time source for tests.
func (h *AssessmentHandler) WithClock(now func() time.Time) *AssessmentHandler {
	h.now = now
	return h
}

// Process implements orchestrator.Handler.
func (h *AssessmentHandler) Process(ctx context.Context, evt *event.Envelope, rec *caserecord.Record) (*orchestrator.Result, error) {
	if evt.Type == event.TypeStaleCase {
		return &orchestrator.Result{
			Record: rec,
			Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
				"We're still reviewing your case and will be in touch shortly.")},
		}, nil
	}

	if missing := missingIntakeFields(rec); len(missing) > 0 {
		if rec.Intake.RevisitCount < IntakeRevisitCutoff {
			return h.loopBack(evt, rec, missing)
		}
		// Loop budget exhausted: proceed on what we have.
		rec.Assessment.PartialData = true
		rec.Assessment.Notes = append(rec.Assessment.Notes,
			"assessed with partial intake data: missing "+strings.Join(missing, ", "))
	}

	severity, ok := evt.Payload.Int("severity")
	if !ok {
		severity = 2
	}
	level := severityToLevel(severity)

	rec.Assessment.Complete = true
	rec.Assessment.Score = severity
	rec.Assessment.Level = level
	rec.Priority = level

	if err := rec.ApplyTransition(event.TypeAssessmentComplete, h.now()); err != nil {
		return nil, fmt.Errorf("assessment handoff: %w", err)
	}
	handoff := event.NewHandoff(event.TypeAssessmentComplete, evt, event.Payload{
		"level": string(level),
	})
	return &orchestrator.Result{
		Record:  rec,
		Emitted: []*event.Envelope{handoff},
		Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
			fmt.Sprintf("Your review is complete (priority: %s). Let's find you a time slot.", level))},
	}, nil
}

// loopBack sends the case back to the initial phase for the missing fields.
func (h *AssessmentHandler) loopBack(evt *event.Envelope, rec *caserecord.Record, missing []string) (*orchestrator.Result, error) {
	rec.Intake.RevisitCount++
	rec.Intake.Complete = false
	rec.Intake.MissingFields = missing
	rec.Assessment.Notes = append(rec.Assessment.Notes,
		fmt.Sprintf("revisit %d: missing %s", rec.Intake.RevisitCount, strings.Join(missing, ", ")))

	if err := rec.ApplyTransition(event.TypeIntakeRevisit, h.now()); err != nil {
		return nil, fmt.Errorf("intake revisit: %w", err)
	}
	handoff := event.NewHandoff(event.TypeIntakeRevisit, evt, event.Payload{
		"missing_fields": missing,
	})
	return &orchestrator.Result{
		Record:  rec,
		Emitted: []*event.Envelope{handoff},
	}, nil
}
