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

// IntakeHandler owns the initial phase: it collects the required intake
// fields from inbound payloads and hands off once they are all present.
type IntakeHandler struct {
	now func() time.Time
}

// NewIntakeHandler constructs the handler.
func NewIntakeHandler() *IntakeHandler {
	return &IntakeHandler{now: utcNow}
}

// WithClock overrides the time source for tests.
func (h *IntakeHandler) WithClock(now func() time.Time) *IntakeHandler {
	h.now = now
	return h
}

// Process implements orchestrator.Handler.
func (h *IntakeHandler) Process(ctx context.Context, evt *event.Envelope, rec *caserecord.Record) (*orchestrator.Result, error) {
	switch evt.Type {
	case event.TypeStaleCase:
		return h.nudge(evt, rec), nil
	case event.TypeIntakeRevisit:
		// Back from assessment: prompt for whatever is still missing.
		rec.Intake.Complete = false
		rec.Intake.MissingFields = missingIntakeFields(rec)
		return &orchestrator.Result{
			Record: rec,
			Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
				"We need a bit more information before we can continue: "+
					strings.Join(rec.Intake.MissingFields, ", "))},
		}, nil
	}

	h.absorbFields(evt, rec)

	missing := missingIntakeFields(rec)
	rec.Intake.MissingFields = missing
	if len(missing) > 0 {
		return &orchestrator.Result{
			Record: rec,
			Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
				"Thanks. To get started we still need: "+strings.Join(missing, ", "))},
		}, nil
	}

	rec.Intake.Complete = true
	if err := rec.ApplyTransition(event.TypeIntakeComplete, h.now()); err != nil {
		return nil, fmt.Errorf("intake handoff: %w", err)
	}
	handoff := event.NewHandoff(event.TypeIntakeComplete, evt, nil)
	return &orchestrator.Result{
		Record:  rec,
		Emitted: []*event.Envelope{handoff},
		Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
			"Thanks, that's everything we need. We're reviewing your details now.")},
	}, nil
}

// absorbFields copies every known intake field present in the payload into
// the intake sub-section. Fields accrete; later values correct earlier ones.
func (h *IntakeHandler) absorbFields(evt *event.Envelope, rec *caserecord.Record) {
	if rec.Intake.Fields == nil {
		rec.Intake.Fields = map[string]string{}
	}
	for _, field := range RequiredIntakeFields {
		if v, ok := evt.Payload.String(field); ok && v != "" {
			rec.Intake.Fields[field] = v
		}
	}
}

func (h *IntakeHandler) nudge(evt *event.Envelope, rec *caserecord.Record) *orchestrator.Result {
	missing := missingIntakeFields(rec)
	body := "Just checking in. We're still here whenever you're ready to continue."
	if len(missing) > 0 {
		body = "Just checking in. We still need: " + strings.Join(missing, ", ")
	}
	return &orchestrator.Result{
		Record:    rec,
		Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID, body)},
	}
}

func missingIntakeFields(rec *caserecord.Record) []string {
	var missing []string
	for _, field := range RequiredIntakeFields {
		if rec.Intake.Fields[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
