package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/event"
	"github.com/Mindburn-Labs/caseflow/pkg/orchestrator"
	"github.com/Mindburn-Labs/caseflow/pkg/slotregistry"
)

// DefaultMaxOffers is how many slots the reservation handler offers at once.
const DefaultMaxOffers = 3

// ReservationHandler owns the reservation phase: it offers slot holds, takes
// a confirmation, snapshots the follow-up baseline, and hands off. Registry
// failures degrade to an apology reply; they never escape.
type ReservationHandler struct {
	registry  *slotregistry.Registry
	maxOffers int
	cadence   time.Duration
	now       func() time.Time
}

// NewReservationHandler constructs the handler over the slot registry.
func NewReservationHandler(registry *slotregistry.Registry) *ReservationHandler {
	return &ReservationHandler{
		registry:  registry,
		maxOffers: DefaultMaxOffers,
		cadence:   DefaultCheckInCadence,
		now:       utcNow,
	}
}

// WithCadence overrides the follow-up check-in cadence stamped into the
// baseline snapshot.
func (h *ReservationHandler) WithCadence(d time.Duration) *ReservationHandler {
	h.cadence = d
	return h
}

// WithClock overrides the time source for tests.
func (h *ReservationHandler) WithClock(now func() time.Time) *ReservationHandler {
	h.now = now
	return h
}

// Process implements orchestrator.Handler.
func (h *ReservationHandler) Process(ctx context.Context, evt *event.Envelope, rec *caserecord.Record) (*orchestrator.Result, error) {
	switch evt.Type {
	case event.TypeAssessmentComplete, event.TypeRetriage:
		return h.offer(ctx, evt, rec), nil
	case event.TypeStaleCase:
		return &orchestrator.Result{
			Record: rec,
			Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
				"Your offered time slots are waiting. Reply with the one you'd like to confirm.")},
		}, nil
	}

	if holdID, ok := evt.Payload.String("hold_id"); ok && holdID != "" {
		return h.confirm(ctx, evt, rec, holdID)
	}
	// Anything else while waiting on a choice: re-offer.
	return h.offer(ctx, evt, rec), nil
}

// offer holds up to maxOffers candidate slots and presents them.
func (h *ReservationHandler) offer(ctx context.Context, evt *event.Envelope, rec *caserecord.Record) *orchestrator.Result {
	holds, err := h.registry.HoldSlots(ctx, evt.CaseID, h.candidateSlots(), h.maxOffers)
	if err != nil {
		return &orchestrator.Result{
			Record: rec,
			Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
				"We couldn't fetch available time slots just now. We'll offer them again shortly.")},
		}
	}
	if len(holds) == 0 {
		return &orchestrator.Result{
			Record: rec,
			Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
				"All nearby slots are taken at the moment. We'll keep looking and follow up.")},
		}
	}

	rec.Reservation.OfferedAt = h.now()
	var lines []string
	for _, hold := range holds {
		rec.Reservation.HoldIDs = append(rec.Reservation.HoldIDs, hold.HoldID)
		lines = append(lines, fmt.Sprintf("%s at %s with %s (ref %s)",
			hold.Slot.Date, hold.Slot.Time, hold.Slot.Provider, hold.HoldID))
	}
	return &orchestrator.Result{
		Record: rec,
		Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
			"Here are your available slots:\n"+strings.Join(lines, "\n")+
				"\nReply with the ref of the slot you'd like.")},
	}
}

// confirm promotes the chosen hold and hands the case off to follow-up.
func (h *ReservationHandler) confirm(ctx context.Context, evt *event.Envelope, rec *caserecord.Record, holdID string) (*orchestrator.Result, error) {
	bookingRef := "bk-" + holdID
	hold, err := h.registry.ConfirmSlot(ctx, evt.CaseID, holdID, bookingRef)
	if err != nil {
		return &orchestrator.Result{
			Record: rec,
			Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
				"We couldn't confirm that slot just now. Please try again in a moment.")},
		}, nil
	}
	if hold == nil {
		// Expired or unknown: offer a fresh set.
		return h.offer(ctx, evt, rec), nil
	}

	now := h.now()
	rec.Reservation.ConfirmedHoldID = hold.HoldID
	rec.Reservation.BookingRef = hold.BookingRef

	// Snapshot the follow-up baseline before handing off.
	rec.FollowUp.BaselineLevel = rec.Priority
	rec.FollowUp.BaselineAt = now
	rec.FollowUp.CheckInsEnabled = true
	if rec.FollowUp.CheckInEvery == 0 {
		rec.FollowUp.CheckInEvery = h.cadence
	}
	rec.FollowUp.NextWakeAt = now.Add(rec.FollowUp.CheckInEvery)

	if err := rec.ApplyTransition(event.TypeReservationComplete, now); err != nil {
		return nil, fmt.Errorf("reservation handoff: %w", err)
	}
	handoff := event.NewHandoff(event.TypeReservationComplete, evt, event.Payload{
		"booking_ref": hold.BookingRef,
	})
	return &orchestrator.Result{
		Record:  rec,
		Emitted: []*event.Envelope{handoff},
		Responses: []*orchestrator.Response{reply(evt.CaseID, evt.SenderID,
			fmt.Sprintf("You're booked: %s at %s with %s (booking %s).",
				hold.Slot.Date, hold.Slot.Time, hold.Slot.Provider, hold.BookingRef))},
	}, nil
}

// candidateSlots proposes morning and afternoon slots over the next three
// days with a single provider. A production handler would query a calendar.
func (h *ReservationHandler) candidateSlots() []slotregistry.Slot {
	var slots []slotregistry.Slot
	base := h.now()
	for day := 1; day <= 3; day++ {
		date := base.AddDate(0, 0, day).Format("2006-01-02")
		for _, t := range []string{"09:00", "14:00"} {
			slots = append(slots, slotregistry.Slot{Date: date, Time: t, Provider: "provider-1"})
		}
	}
	return slots
}
