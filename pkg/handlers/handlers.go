// Package handlers ships reference implementations of the four stage
// handlers. They carry no language understanding; they read and write their
// record sub-sections deterministically and drive the state machine,
// exercising every transition including both backward loops.
package handlers

import (
	"time"

	"github.com/Mindburn-Labs/caseflow/pkg/caserecord"
	"github.com/Mindburn-Labs/caseflow/pkg/orchestrator"
)

// ChannelChat is the delivery channel every reference handler replies on.
const ChannelChat = "chat"

// IntakeRevisitCutoff bounds the assessment-to-initial backward loop. Past
// it the assessment proceeds on partial data rather than looping forever.
const IntakeRevisitCutoff = 3

// DefaultCheckInCadence is the follow-up check-in interval.
const DefaultCheckInCadence = 7 * 24 * time.Hour

// RequiredIntakeFields must all be present before intake completes.
var RequiredIntakeFields = []string{"full_name", "contact", "reason"}

// severityToLevel maps a reported 0-10 severity to a priority level.
func severityToLevel(severity int) caserecord.PriorityLevel {
	switch {
	case severity >= 8:
		return caserecord.PriorityUrgent
	case severity >= 6:
		return caserecord.PriorityHigh
	case severity >= 3:
		return caserecord.PriorityElevated
	default:
		return caserecord.PriorityRoutine
	}
}

// reply builds a chat response addressed to the event's sender.
func reply(caseID, recipient, body string) *orchestrator.Response {
	return &orchestrator.Response{
		CaseID:    caseID,
		Body:      body,
		Channel:   ChannelChat,
		Recipient: recipient,
	}
}

func utcNow() time.Time { return time.Now().UTC() }
