// Package slotregistry reserves exclusive time-slot resources with expiring
// holds. The whole registry is one document in the object store, mutated in
// memory and written back with a version-matched put; every operation is an
// idempotent set operation, so on a conflict the registry reloads and redoes
// the mutation from scratch.
package slotregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/caseflow/pkg/objectstore"
)

// DefaultHoldTTL is how long a hold stays active before lazy expiry.
const DefaultHoldTTL = 30 * time.Minute

// DefaultWriteRetries bounds the reload-and-redo loop on version conflicts.
const DefaultWriteRetries = 3

// RegistryKey is the single document holding every slot hold.
const RegistryKey = "slots/registry"

// HoldStatus is the lifecycle state of a hold. Holds are never deleted, only
// status-transitioned; the registry doubles as an audit log.
type HoldStatus string

const (
	HoldHeld      HoldStatus = "HELD"
	HoldConfirmed HoldStatus = "CONFIRMED"
	HoldCancelled HoldStatus = "CANCELLED"
)

// Slot identifies one exclusive resource-slot.
type Slot struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Provider string `json:"provider"`
}

// Key returns the slot's identity tuple.
func (s Slot) Key() string { return s.Date + "|" + s.Time + "|" + s.Provider }

// Hold is a reservation of one slot for one case.
type Hold struct {
	HoldID      string     `json:"hold_id"`
	CaseID      string     `json:"case_id"`
	Slot        Slot       `json:"slot"`
	Status      HoldStatus `json:"status"`
	HeldAt      time.Time  `json:"held_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	ConfirmedAt time.Time  `json:"confirmed_at,omitzero"`
	CancelledAt time.Time  `json:"cancelled_at,omitzero"`
	BookingRef  string     `json:"booking_ref,omitempty"`
}

// active reports whether the hold blocks the slot for other cases.
// Expired HELD holds are swept before queries, so status alone suffices.
func (h *Hold) active() bool {
	return h.Status == HoldHeld || h.Status == HoldConfirmed
}

// document is the registry's stored shape.
type document struct {
	Holds []*Hold `json:"holds"`
}

// Registry manages slot holds over the object store.
type Registry struct {
	objects objectstore.Store
	ttl     time.Duration
	retries int
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a registry with default TTL and retry budget.
func New(objects objectstore.Store) *Registry {
	return &Registry{
		objects: objects,
		ttl:     DefaultHoldTTL,
		retries: DefaultWriteRetries,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  slog.Default().With("component", "slotregistry"),
	}
}

// WithTTL overrides the hold TTL.
func (r *Registry) WithTTL(ttl time.Duration) *Registry {
	r.ttl = ttl
	return r
}

// WithRetries overrides the conflict retry budget.
func (r *Registry) WithRetries(n int) *Registry {
	r.retries = n
	return r
}

// WithClock overrides the clock; tests use this to force expiry.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// mutate runs the load / sweep / apply / conditional-write cycle. On a
// version conflict the document is reloaded and fn re-applied from scratch.
func (r *Registry) mutate(ctx context.Context, fn func(doc *document)) error {
	var lastErr error
	for attempt := 0; attempt < r.retries; attempt++ {
		doc, version, err := r.load(ctx)
		if err != nil {
			return err
		}
		r.sweepExpired(doc)
		fn(doc)

		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal slot registry: %w", err)
		}
		if _, err := r.objects.Put(ctx, RegistryKey, data, version); err != nil {
			if errors.Is(err, objectstore.ErrConditionFailed) {
				lastErr = err
				continue
			}
			return fmt.Errorf("%w: write slot registry: %v", objectstore.ErrUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("slot registry write lost %d races: %w", r.retries, lastErr)
}

// load fetches the registry document, initializing an empty one on first use.
func (r *Registry) load(ctx context.Context) (*document, objectstore.Version, error) {
	data, version, err := r.objects.Get(ctx, RegistryKey)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return &document{}, objectstore.VersionNone, nil
		}
		return nil, objectstore.VersionNone, fmt.Errorf("%w: load slot registry: %v", objectstore.ErrUnavailable, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, objectstore.VersionNone, fmt.Errorf("corrupt slot registry: %w", err)
	}
	return &doc, version, nil
}

// sweepExpired cancels every HELD hold past its expiry. Runs before any
// query logic so expired holds never block a slot.
func (r *Registry) sweepExpired(doc *document) {
	now := r.now()
	for _, h := range doc.Holds {
		if h.Status == HoldHeld && now.After(h.ExpiresAt) {
			h.Status = HoldCancelled
			h.CancelledAt = now
		}
	}
}

// slotTaken reports whether an active hold for slot exists belonging to a
// case other than caseID.
func slotTaken(doc *document, slot Slot, caseID string) bool {
	key := slot.Key()
	for _, h := range doc.Holds {
		if h.active() && h.Slot.Key() == key && h.CaseID != caseID {
			return true
		}
	}
	return false
}

// HoldSlots walks candidates in order, skipping slots actively held by other
// cases, and creates up to maxHolds HELD holds for caseID. It returns only
// the holds actually created, which may be fewer than requested when
// candidates are taken.
func (r *Registry) HoldSlots(ctx context.Context, caseID string, candidates []Slot, maxHolds int) ([]*Hold, error) {
	var created []*Hold
	err := r.mutate(ctx, func(doc *document) {
		created = created[:0]
		now := r.now()
		for _, slot := range candidates {
			if len(created) >= maxHolds {
				break
			}
			if slotTaken(doc, slot, caseID) {
				continue
			}
			h := &Hold{
				HoldID:    uuid.NewString(),
				CaseID:    caseID,
				Slot:      slot,
				Status:    HoldHeld,
				HeldAt:    now,
				ExpiresAt: now.Add(r.ttl),
			}
			doc.Holds = append(doc.Holds, h)
			created = append(created, h)
		}
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ConfirmSlot promotes the named HELD hold to CONFIRMED, stamping the booking
// reference, and cancels the case's other HELD holds: a case confirms at
// most one slot at a time. If the hold already expired it is cancelled and
// nil is returned: the caller must re-offer slots.
func (r *Registry) ConfirmSlot(ctx context.Context, caseID, holdID, bookingRef string) (*Hold, error) {
	var confirmed *Hold
	err := r.mutate(ctx, func(doc *document) {
		confirmed = nil
		now := r.now()
		var target *Hold
		for _, h := range doc.Holds {
			if h.HoldID == holdID && h.CaseID == caseID {
				target = h
				break
			}
		}
		if target == nil || target.Status != HoldHeld {
			// Already swept to CANCELLED on expiry, or never held.
			return
		}

		target.Status = HoldConfirmed
		target.ConfirmedAt = now
		target.BookingRef = bookingRef
		confirmed = target

		for _, h := range doc.Holds {
			if h.CaseID == caseID && h.Status == HoldHeld && h.HoldID != holdID {
				h.Status = HoldCancelled
				h.CancelledAt = now
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

// CancelBooking cancels the case's CONFIRMED hold, freeing the slot for
// others. Used when a case loops back for re-triage or reschedules. Returns
// nil when no confirmed hold exists.
func (r *Registry) CancelBooking(ctx context.Context, caseID string) (*Hold, error) {
	var cancelled *Hold
	err := r.mutate(ctx, func(doc *document) {
		cancelled = nil
		now := r.now()
		for _, h := range doc.Holds {
			if h.CaseID == caseID && h.Status == HoldConfirmed {
				h.Status = HoldCancelled
				h.CancelledAt = now
				cancelled = h
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ReleaseHolds cancels all of the case's HELD (non-confirmed) holds and
// returns how many were released.
func (r *Registry) ReleaseHolds(ctx context.Context, caseID string) (int, error) {
	released := 0
	err := r.mutate(ctx, func(doc *document) {
		released = 0
		now := r.now()
		for _, h := range doc.Holds {
			if h.CaseID == caseID && h.Status == HoldHeld {
				h.Status = HoldCancelled
				h.CancelledAt = now
				released++
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// HoldsForCase returns the case's holds, most recent first, after an expiry
// sweep. Read-only; the sweep is not persisted.
func (r *Registry) HoldsForCase(ctx context.Context, caseID string) ([]*Hold, error) {
	doc, _, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.sweepExpired(doc)

	var holds []*Hold
	for i := len(doc.Holds) - 1; i >= 0; i-- {
		if doc.Holds[i].CaseID == caseID {
			holds = append(holds, doc.Holds[i])
		}
	}
	return holds, nil
}
