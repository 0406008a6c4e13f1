// Package heartbeat periodically sweeps all cases and injects time-driven
// events: check-in wake-ups for follow-up cases and staleness nudges for
// cases dwelling too long in an earlier phase.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/casestore"
	"github.com/Mindburn-Labs/caseflow/pkg/event"
)

// DefaultTick is the sweep interval.
const DefaultTick = 5 * time.Minute

// DefaultDwellThresholds caps how long a case may sit in each phase before a
// staleness nudge is injected. Phases absent from the map never go stale.
var DefaultDwellThresholds = map[caserecord.Phase]time.Duration{
	caserecord.PhaseInitial:     24 * time.Hour,
	caserecord.PhaseAssessment:  24 * time.Hour,
	caserecord.PhaseReservation: 72 * time.Hour,
}

// EnqueueFunc hands a generated event to the queue manager.
type EnqueueFunc func(evt *event.Envelope) error

// Scheduler is the heartbeat loop. It only reads records; all mutation
// happens downstream when the injected events are processed.
//
// The record-side acknowledgements (NextWakeAt advancing, the staleness
// audit marker) only land once the queue processes the injected event, so
// consecutive sweeps would re-fire for the same occurrence. The lastCheckIn
// and lastNudge maps dedupe in the meantime; the record remains the
// authority across restarts.
type Scheduler struct {
	cases   *casestore.Store
	enqueue EnqueueFunc
	tick    time.Duration
	dwell   map[caserecord.Phase]time.Duration
	now     func() time.Time
	logger  *slog.Logger
	stop    chan struct{}
	done    chan struct{}

	lastCheckIn map[string]time.Time
	lastNudge   map[string]string
}

// SchedulerOption configures the Scheduler.
type SchedulerOption func(*Scheduler)

// WithTick overrides the sweep interval.
func WithTick(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tick = d }
}

// WithDwellThresholds replaces the per-phase staleness thresholds.
func WithDwellThresholds(m map[caserecord.Phase]time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.dwell = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler constructs a Scheduler. Start must be called to begin sweeps.
func NewScheduler(cases *casestore.Store, enqueue EnqueueFunc, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		cases:       cases,
		enqueue:     enqueue,
		tick:        DefaultTick,
		dwell:       DefaultDwellThresholds,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      slog.Default().With("component", "heartbeat"),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		lastCheckIn: make(map[string]time.Time),
		lastNudge:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep examines every case once. Exported so operators (and tests) can
// force a pass outside the ticker.
func (s *Scheduler) Sweep(ctx context.Context) {
	ids, err := s.cases.List(ctx)
	if err != nil {
		s.logger.Error("heartbeat sweep aborted", "error", err)
		return
	}

	now := s.now()
	for _, id := range ids {
		rec, _, err := s.cases.Load(ctx, id)
		if err != nil {
			s.logger.Warn("heartbeat skipping unreadable case", "case_id", id, "error", err)
			continue
		}
		s.check(rec, now)
	}
}

// check evaluates one record and enqueues at most one event for it.
func (s *Scheduler) check(rec *caserecord.Record, now time.Time) {
	switch rec.Phase {
	case caserecord.PhaseClosed:
		delete(s.lastCheckIn, rec.CaseID)
		delete(s.lastNudge, rec.CaseID)
		return

	case caserecord.PhaseFollowUp:
		fu := rec.FollowUp
		if !fu.CheckInsEnabled || fu.NextWakeAt.IsZero() || now.Before(fu.NextWakeAt) {
			return
		}
		// Already fired for this wake-up; NextWakeAt advances once the
		// check-in is processed.
		if last, ok := s.lastCheckIn[rec.CaseID]; ok && last.Equal(fu.NextWakeAt) {
			return
		}
		evt := event.NewSystem(event.TypeCheckInDue, rec.CaseID, event.Payload{
			"due_at": fu.NextWakeAt.Format(time.RFC3339),
		}, "heartbeat")
		if err := s.enqueue(evt); err != nil {
			s.logger.Error("failed to enqueue check-in", "case_id", rec.CaseID, "error", err)
			return
		}
		s.lastCheckIn[rec.CaseID] = fu.NextWakeAt
		s.logger.Info("check-in due", "case_id", rec.CaseID, "due_at", fu.NextWakeAt)

	default:
		threshold, ok := s.dwell[rec.Phase]
		if !ok || rec.DwellTime(now) < threshold {
			return
		}
		// One nudge per episode: the marker is written when the nudge is
		// processed, and a phase re-entry starts a new episode.
		marker := rec.StaleMarker()
		if rec.HasAuditMarker(marker) || s.lastNudge[rec.CaseID] == marker {
			return
		}
		evt := event.NewSystem(event.TypeStaleCase, rec.CaseID, event.Payload{
			"phase": string(rec.Phase),
			"dwell": rec.DwellTime(now).String(),
		}, "heartbeat")
		if err := s.enqueue(evt); err != nil {
			s.logger.Error("failed to enqueue staleness nudge", "case_id", rec.CaseID, "error", err)
			return
		}
		s.lastNudge[rec.CaseID] = marker
		s.logger.Info("staleness nudge", "case_id", rec.CaseID, "phase", rec.Phase)
	}
}
