package orchestrator

import (
	"context"

	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/event"
)

// Response is an outbound message produced by a handler, routed to a
// delivery channel by name after the cascade terminates.
type Response struct {
	CaseID    string            `json:"case_id"`
	Body      string            `json:"body"`
	Channel   string            `json:"channel"`
	Recipient string            `json:"recipient,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Result is what a handler returns: the updated record, zero or more
// emitted events, and zero or more outbound responses.
type Result struct {
	Record    *caserecord.Record
	Emitted   []*event.Envelope
	Responses []*Response
}

// Handler owns one phase of the case lifecycle.
//
// Contract: Process must be a function of its inputs plus whatever external
// services the handler calls; external failures must be caught and degraded
// to a deterministic fallback, never returned. When a handler completes its
// phase it MUST apply the phase transition to the record BEFORE emitting the
// handoff event; the orchestrator routes every event by the record's phase
// at dispatch time, so the emission order is the routing contract.
type Handler interface {
	Process(ctx context.Context, evt *event.Envelope, rec *caserecord.Record) (*Result, error)
}

// DeliveryResult reports the outcome of one dispatch attempt.
type DeliveryResult struct {
	Success   bool   `json:"success"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient,omitempty"`
}

// Dispatcher delivers responses for one channel name.
type Dispatcher interface {
	Send(ctx context.Context, resp *Response) (*DeliveryResult, error)
}
