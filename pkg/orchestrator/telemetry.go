package orchestrator

import (
	"context"

	"github.com/Mindburn-Labs/caseflow/pkg/event"
	obspkg "github.com/Mindburn-Labs/caseflow/pkg/observability"
)

// observability is the Core's optional telemetry hook. Every call site
// tolerates a nil value so telemetry stays strictly opt-in.
type observability struct {
	provider *obspkg.Provider
}

// WithObservability attaches an OpenTelemetry provider to the Core.
func WithObservability(p *obspkg.Provider) Option {
	return func(c *Core) {
		if p != nil {
			c.obs = &observability{provider: p}
		}
	}
}

// track opens a span and RED counters for one event. The returned func is
// invoked once processing settles.
func (c *Core) track(ctx context.Context, evt *event.Envelope) (context.Context, func(error)) {
	if c.obs == nil {
		return ctx, func(error) {}
	}
	return c.obs.provider.TrackEvent(ctx, "orchestrator.process_event", attrsFor(evt)...)
}

func (c *Core) recordBreakerTrip(ctx context.Context, evt *event.Envelope) {
	if c.obs != nil {
		c.obs.provider.RecordBreakerTrip(ctx, attrsFor(evt)...)
	}
}

func (c *Core) recordSaveAbandoned(ctx context.Context, evt *event.Envelope) {
	if c.obs != nil {
		c.obs.provider.RecordSaveAbandoned(ctx, attrsFor(evt)...)
	}
}
