package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/caseflow/pkg/event"
)

func msg(caseID, text string) *event.Envelope {
	return event.NewInbound(event.TypeSubjectMessage, caseID, event.Payload{"message": text}, "subject-1", event.RoleSubject, "chat")
}

func TestEnqueue_FIFOPerCase(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	m := NewManager(context.Background(), func(ctx context.Context, evt *event.Envelope) error {
		mu.Lock()
		text, _ := evt.Payload.String("message")
		seen = append(seen, text)
		mu.Unlock()
		return nil
	})

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, m.Enqueue(msg("case-1", fmt.Sprintf("m%03d", i))))
	}
	m.Stop()

	require.Len(t, seen, n)
	for i, text := range seen {
		assert.Equal(t, fmt.Sprintf("m%03d", i), text)
	}
}

func TestEnqueue_CasesRunInParallel(t *testing.T) {
	release := make(chan struct{})
	caseBRan := make(chan struct{})

	m := NewManager(context.Background(), func(ctx context.Context, evt *event.Envelope) error {
		switch evt.CaseID {
		case "case-a":
			<-release
		case "case-b":
			close(caseBRan)
		}
		return nil
	})

	require.NoError(t, m.Enqueue(msg("case-a", "blocks")))
	require.NoError(t, m.Enqueue(msg("case-b", "independent")))

	// case-b completes while case-a's worker is still blocked.
	select {
	case <-caseBRan:
	case <-time.After(5 * time.Second):
		t.Fatal("case-b did not run while case-a was in flight")
	}

	close(release)
	m.Stop()
}

func TestEnqueue_AfterStopReturnsErrStopped(t *testing.T) {
	m := NewManager(context.Background(), func(ctx context.Context, evt *event.Envelope) error { return nil })
	require.NoError(t, m.Enqueue(msg("case-1", "before")))
	m.Stop()

	assert.ErrorIs(t, m.Enqueue(msg("case-1", "after")), ErrStopped)
}

func TestStop_DrainsPendingEvents(t *testing.T) {
	var mu sync.Mutex
	processed := 0

	gate := make(chan struct{})
	m := NewManager(context.Background(), func(ctx context.Context, evt *event.Envelope) error {
		<-gate
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	})

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, m.Enqueue(msg("case-1", "x")))
	}
	close(gate)
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, n, processed)
}

func TestStop_Idempotent(t *testing.T) {
	m := NewManager(context.Background(), func(ctx context.Context, evt *event.Envelope) error { return nil })
	require.NoError(t, m.Enqueue(msg("case-1", "x")))
	m.Stop()
	m.Stop()
}

func TestCounters(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	m := NewManager(context.Background(), func(ctx context.Context, evt *event.Envelope) error {
		once.Do(func() { close(started) })
		<-gate
		return nil
	})

	assert.Zero(t, m.ActiveCases())

	require.NoError(t, m.Enqueue(msg("case-a", "1")))
	<-started
	require.NoError(t, m.Enqueue(msg("case-a", "2")))
	require.NoError(t, m.Enqueue(msg("case-b", "3")))

	assert.Equal(t, 2, m.ActiveCases())
	// case-a's first event is in flight; its second waits, and case-b's
	// event may or may not have been picked up yet.
	assert.GreaterOrEqual(t, m.QueuedEvents(), 1)

	close(gate)
	m.Stop()
	assert.Zero(t, m.QueuedEvents())
}

func TestProcessErrorDoesNotStallQueue(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	m := NewManager(context.Background(), func(ctx context.Context, evt *event.Envelope) error {
		text, _ := evt.Payload.String("message")
		mu.Lock()
		seen = append(seen, text)
		mu.Unlock()
		if text == "bad" {
			return fmt.Errorf("processing %q failed", text)
		}
		return nil
	})

	require.NoError(t, m.Enqueue(msg("case-1", "bad")))
	require.NoError(t, m.Enqueue(msg("case-1", "good")))
	m.Stop()

	assert.Equal(t, []string{"bad", "good"}, seen)
}
