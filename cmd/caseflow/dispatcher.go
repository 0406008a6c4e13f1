package main

import (
	"context"
	"log/slog"

	"github.com/Mindburn-Labs/caseflow/pkg/orchestrator"
)

// logDispatcher is the default chat dispatcher: it writes responses to the
// log. Deployments register a real channel dispatcher instead.
type logDispatcher struct{}

func (d *logDispatcher) Send(ctx context.Context, resp *orchestrator.Response) (*orchestrator.DeliveryResult, error) {
	slog.Info("outbound response",
		"channel", resp.Channel,
		"case_id", resp.CaseID,
		"recipient", resp.Recipient,
		"body", resp.Body,
	)
	return &orchestrator.DeliveryResult{
		Success:   true,
		Channel:   resp.Channel,
		Recipient: resp.Recipient,
	}, nil
}
