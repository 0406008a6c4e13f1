// Package orchestrator owns event processing for a case: routing to the
// phase handler, cascading emitted handoffs under a chain-depth circuit
// breaker, best-effort persistence, and response dispatch.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Mindburn-Labs/caseflow/pkg/canonicalize"
	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/casestore"
	"github.com/Mindburn-Labs/caseflow/pkg/event"
	"github.com/Mindburn-Labs/caseflow/pkg/objectstore"
	"github.com/Mindburn-Labs/caseflow/pkg/store"
)

// DefaultMaxChainDepth caps how many cascading handoffs one inbound event
// may trigger before the circuit breaker truncates processing.
const DefaultMaxChainDepth = 5

// DefaultHandlerAttempts is how many times a failing handler is invoked
// before the event is dead-lettered.
const DefaultHandlerAttempts = 2

// ErrStoreUnavailable wraps the one failure mode allowed to propagate out of
// ProcessEvent: the record could be neither loaded nor created.
var ErrStoreUnavailable = objectstore.ErrUnavailable

// Core is the orchestrator. It is safe for concurrent use across cases; the
// queue manager guarantees no two events for the same case run concurrently.
type Core struct {
	cases       *casestore.Store
	handlers    map[caserecord.Phase]Handler
	dispatchers map[string]Dispatcher
	procLog     store.ProcessingLog
	deadLetters store.DeadLetterStore

	maxDepth        int
	handlerAttempts int

	obs    *observability
	logger *slog.Logger
}

// Option configures the Core.
type Option func(*Core)

// WithMaxChainDepth overrides the circuit breaker threshold.
func WithMaxChainDepth(depth int) Option {
	return func(c *Core) { c.maxDepth = depth }
}

// WithHandlerAttempts overrides the per-event handler retry budget.
func WithHandlerAttempts(n int) Option {
	return func(c *Core) { c.handlerAttempts = n }
}

// New constructs the Core. Handlers and dispatchers are registered after
// construction, before the first event is processed.
func New(cases *casestore.Store, procLog store.ProcessingLog, deadLetters store.DeadLetterStore, opts ...Option) *Core {
	c := &Core{
		cases:           cases,
		handlers:        make(map[caserecord.Phase]Handler),
		dispatchers:     make(map[string]Dispatcher),
		procLog:         procLog,
		deadLetters:     deadLetters,
		maxDepth:        DefaultMaxChainDepth,
		handlerAttempts: DefaultHandlerAttempts,
		logger:          slog.Default().With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterHandler binds a phase to its handler.
func (c *Core) RegisterHandler(phase caserecord.Phase, h Handler) {
	c.handlers[phase] = h
}

// RegisterDispatcher binds a delivery channel name to its dispatcher.
func (c *Core) RegisterDispatcher(channel string, d Dispatcher) {
	c.dispatchers[channel] = d
}

// chainState accumulates everything produced while one inbound event and its
// cascade are processed.
type chainState struct {
	responses []*Response
	entries   []*store.LogEntry
	tripped   bool
}

// ProcessEvent processes one event to completion: load or create the record,
// run the handler cascade, persist best-effort, dispatch responses. The only
// error ever returned wraps ErrStoreUnavailable; every other failure is
// absorbed, logged, and reflected in the processing log.
func (c *Core) ProcessEvent(ctx context.Context, evt *event.Envelope) ([]*Response, error) {
	ctx, done := c.track(ctx, evt)

	rec, version, err := c.loadOrCreate(ctx, evt.CaseID)
	if err != nil {
		done(err)
		return nil, err
	}

	st := &chainState{}
	rec = c.processChain(ctx, evt, rec, 0, st)

	outcome := c.cases.Save(ctx, evt.CaseID, rec, version)
	if !outcome.Persisted() {
		c.logger.Warn("record save abandoned, replies proceed anyway",
			"case_id", evt.CaseID, "attempts", outcome.Attempts, "error", outcome.Err)
		c.recordSaveAbandoned(ctx, evt)
	}

	for _, entry := range st.entries {
		entry.SaveStatus = string(outcome.Status)
		if err := c.procLog.Append(ctx, entry); err != nil {
			c.logger.Error("processing log append failed", "case_id", evt.CaseID, "error", err)
		}
	}

	c.dispatch(ctx, st.responses)

	done(nil)
	return st.responses, nil
}

// loadOrCreate fetches the case record, creating it on first contact.
func (c *Core) loadOrCreate(ctx context.Context, caseID string) (*caserecord.Record, objectstore.Version, error) {
	rec, version, err := c.cases.Load(ctx, caseID)
	if err == nil {
		return rec, version, nil
	}
	if !errors.Is(err, objectstore.ErrNotFound) {
		return nil, objectstore.VersionNone, fmt.Errorf("%w: load case %s: %v", ErrStoreUnavailable, caseID, err)
	}

	rec, version, err = c.cases.Create(ctx, caseID)
	if err != nil {
		return nil, objectstore.VersionNone, fmt.Errorf("%w: create case %s: %v", ErrStoreUnavailable, caseID, err)
	}
	c.logger.Info("created case record", "case_id", caseID)
	return rec, version, nil
}

// processChain runs one event through its handler and recurses into every
// emitted event, sharing a single depth counter across the whole cascade.
// The returned record is the current aggregate after all mutations.
func (c *Core) processChain(ctx context.Context, evt *event.Envelope, rec *caserecord.Record, depth int, st *chainState) *caserecord.Record {
	if depth >= c.maxDepth {
		if !st.tripped {
			st.tripped = true
			c.logger.Warn("circuit breaker tripped, truncating handoff cascade",
				"case_id", evt.CaseID, "depth", depth, "event_type", evt.Type)
			c.recordBreakerTrip(ctx, evt)
			st.entries = append(st.entries, c.newLogEntry(evt, depth, store.StatusCircuitBreaker,
				fmt.Sprintf("chain depth %d exceeded maximum %d", depth, c.maxDepth)))
		}
		return rec
	}

	c.assertHandoffTarget(evt, rec)
	c.auditEvent(evt, rec)

	handler, ok := c.handlers[rec.Phase]
	if !ok {
		c.fail(ctx, evt, depth, st, fmt.Sprintf("no handler registered for phase %s", rec.Phase))
		return rec
	}

	res, err := c.invoke(ctx, handler, evt, rec)
	if err != nil {
		c.fail(ctx, evt, depth, st, err.Error())
		return rec
	}
	if res.Record != nil {
		rec = res.Record
	}

	st.responses = append(st.responses, res.Responses...)
	st.entries = append(st.entries, c.newLogEntry(evt, depth, store.StatusOK, ""))

	for _, emitted := range res.Emitted {
		rec = c.processChain(ctx, emitted, rec, depth+1, st)
	}
	return rec
}

// invoke calls the handler with a bounded retry budget.
func (c *Core) invoke(ctx context.Context, handler Handler, evt *event.Envelope, rec *caserecord.Record) (*Result, error) {
	var lastErr error
	for attempt := 1; attempt <= c.handlerAttempts; attempt++ {
		res, err := handler.Process(ctx, evt, rec)
		if err == nil {
			return res, nil
		}
		lastErr = err
		c.logger.Warn("handler failed", "case_id", evt.CaseID, "phase", rec.Phase,
			"event_type", evt.Type, "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("handler for phase %s failed after %d attempts: %w", rec.Phase, c.handlerAttempts, lastErr)
}

// fail records an ERROR log entry and dead-letters the event for operator
// replay. Processing of the rest of the chain's siblings continues.
func (c *Core) fail(ctx context.Context, evt *event.Envelope, depth int, st *chainState, reason string) {
	st.entries = append(st.entries, c.newLogEntry(evt, depth, store.StatusError, reason))

	letter := &store.DeadLetter{
		LetterID: uuid.NewString(),
		Envelope: evt,
		Reason:   reason,
		Status:   store.DeadLetterPending,
		FailedAt: time.Now().UTC(),
	}
	if err := c.deadLetters.Add(ctx, letter); err != nil {
		c.logger.Error("dead letter store failed", "case_id", evt.CaseID, "error", err)
	}
}

// assertHandoffTarget checks the ordering contract: by the time a handoff is
// dispatched, the emitting handler must already have moved the record into
// the handoff's target phase.
func (c *Core) assertHandoffTarget(evt *event.Envelope, rec *caserecord.Record) {
	if !evt.Type.IsHandoff() {
		return
	}
	if target, ok := caserecord.HandoffTarget(evt.Type); ok && target != rec.Phase {
		c.logger.Warn("handoff dispatched outside its target phase",
			"case_id", evt.CaseID, "event_type", evt.Type,
			"target_phase", target, "record_phase", rec.Phase)
	}
}

// auditEvent appends the Core-owned audit trail entries: one per inbound
// interaction, plus the staleness marker that deduplicates recovery nudges
// within an episode.
func (c *Core) auditEvent(evt *event.Envelope, rec *caserecord.Record) {
	if evt.Type == event.TypeStaleCase {
		rec.AppendAudit(caserecord.AuditEntry{
			Actor:  "orchestrator",
			Kind:   "stale_nudge",
			Marker: rec.StaleMarker(),
		})
		return
	}
	if !evt.Type.IsHandoff() {
		text, _ := evt.Payload.String("message")
		rec.AppendAudit(caserecord.AuditEntry{
			Actor: evt.SenderID,
			Kind:  string(evt.Type),
			Text:  text,
		})
	}
}

// dispatch routes every accumulated response to its channel's dispatcher.
// Failures are recorded and do not affect other responses or the persisted
// record.
func (c *Core) dispatch(ctx context.Context, responses []*Response) {
	for _, resp := range responses {
		d, ok := c.dispatchers[resp.Channel]
		if !ok {
			c.logger.Error("no dispatcher for channel", "channel", resp.Channel, "case_id", resp.CaseID)
			continue
		}
		result, err := d.Send(ctx, resp)
		if err != nil || (result != nil && !result.Success) {
			c.logger.Error("response dispatch failed",
				"channel", resp.Channel, "case_id", resp.CaseID, "error", err)
		}
	}
}

func (c *Core) newLogEntry(evt *event.Envelope, depth int, status store.ProcessingStatus, detail string) *store.LogEntry {
	hash, err := canonicalize.CanonicalHash(evt.Payload)
	if err != nil {
		hash = ""
	}
	return &store.LogEntry{
		EntryID:       uuid.NewString(),
		EventID:       evt.EventID,
		EventType:     string(evt.Type),
		CaseID:        evt.CaseID,
		CorrelationID: evt.CorrelationID,
		Status:        status,
		Detail:        detail,
		PayloadHash:   hash,
		ChainDepth:    depth,
		ProcessedAt:   time.Now().UTC(),
	}
}

// attrsFor labels telemetry for one event.
func attrsFor(evt *event.Envelope) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("caseflow.case_id", evt.CaseID),
		attribute.String("caseflow.event_type", string(evt.Type)),
	}
}
