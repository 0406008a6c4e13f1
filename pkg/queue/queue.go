// Package queue serializes event processing per case. Events for one case
// run strictly in arrival order on a dedicated worker; distinct cases
// proceed in parallel.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Mindburn-Labs/caseflow/pkg/event"
	obspkg "github.com/Mindburn-Labs/caseflow/pkg/observability"
)

// ErrStopped is returned by Enqueue after Stop has begun.
var ErrStopped = errors.New("queue manager stopped")

// ProcessFunc consumes one event. The queue ignores its error beyond
// logging; the processor owns its own failure handling.
type ProcessFunc func(ctx context.Context, evt *event.Envelope) error

// Manager owns one FIFO queue and worker goroutine per active case.
// Workers are created lazily on first enqueue for a case and live until
// Stop drains them.
type Manager struct {
	mu      sync.Mutex
	queues  map[string]*caseQueue
	process ProcessFunc
	baseCtx context.Context
	obs     *obspkg.Provider
	logger  *slog.Logger
	wg      sync.WaitGroup
	stopped bool
}

type caseQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	events []*event.Envelope
	closed bool
}

func newCaseQueue() *caseQueue {
	q := &caseQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithObservability attaches the telemetry provider for queue gauges.
func WithObservability(p *obspkg.Provider) ManagerOption {
	return func(m *Manager) { m.obs = p }
}

// NewManager constructs a Manager around the given processor. baseCtx is
// the context workers process under; cancelling it aborts in-flight work.
func NewManager(baseCtx context.Context, process ProcessFunc, opts ...ManagerOption) *Manager {
	m := &Manager{
		queues:  make(map[string]*caseQueue),
		process: process,
		baseCtx: baseCtx,
		logger:  slog.Default().With("component", "queue"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue appends the event to its case's queue, creating the queue and
// its worker on first contact. Returns immediately; processing is async.
func (m *Manager) Enqueue(evt *event.Envelope) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	q, ok := m.queues[evt.CaseID]
	if !ok {
		q = newCaseQueue()
		m.queues[evt.CaseID] = q
		m.wg.Add(1)
		go m.worker(evt.CaseID, q)
	}
	m.mu.Unlock()

	q.mu.Lock()
	q.events = append(q.events, evt)
	q.cond.Signal()
	q.mu.Unlock()

	if m.obs != nil {
		m.obs.AddQueuedEvents(m.baseCtx, 1)
	}
	return nil
}

// worker drains one case's queue in FIFO order until the queue is closed
// and empty.
func (m *Manager) worker(caseID string, q *caseQueue) {
	defer m.wg.Done()
	for {
		q.mu.Lock()
		for len(q.events) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.events) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		evt := q.events[0]
		q.events = q.events[1:]
		q.mu.Unlock()

		if err := m.process(m.baseCtx, evt); err != nil {
			m.logger.Error("event processing failed",
				"case_id", caseID, "event_type", evt.Type, "error", err)
		}
		if m.obs != nil {
			m.obs.AddQueuedEvents(m.baseCtx, -1)
		}
	}
}

// ActiveCases reports how many cases currently have a queue.
func (m *Manager) ActiveCases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

// QueuedEvents reports the total number of events waiting across all
// queues. In-flight events are not counted.
func (m *Manager) QueuedEvents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, q := range m.queues {
		q.mu.Lock()
		total += len(q.events)
		q.mu.Unlock()
	}
	return total
}

// Stop rejects further enqueues, lets every worker drain its queue, and
// returns once all workers have exited.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.stopped = true
	queues := make([]*caseQueue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.Unlock()

	for _, q := range queues {
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}
	m.wg.Wait()
}
