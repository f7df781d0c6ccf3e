// Package audit provides the append-only audit trail for dispute handling.
//
// Every status transition and every resolution attempt produces at least
// one entry. Entries are never updated or deleted; the read path returns
// them in createdAt order so the trail replays chronologically.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Actions recorded against a dispute.
const (
	ActionDisputeOpened       = "DISPUTE_OPENED"
	ActionStatusChanged       = "DISPUTE_STATUS_CHANGED"
	ActionDisputeEscalated    = "DISPUTE_ESCALATED"
	ActionDisputeResolved     = "DISPUTE_RESOLVED"
	ActionMessageAdded        = "DISPUTE_MESSAGE_ADDED"
	ActionEvidenceAdded       = "DISPUTE_EVIDENCE_ADDED"
	ActionEscrowRelease       = "ESCROW_RELEASE"
	ActionEscrowRefund        = "ESCROW_REFUND"
	ActionEscrowPartialRefund = "ESCROW_PARTIAL_REFUND"
	ActionEscrowNone          = "ESCROW_NONE"
)

// Severity levels. Resolutions are WARNING so they stand out in the
// console's audit explorer; routine transitions are INFO.
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
)

// Entry is a single audit log record.
type Entry struct {
	ID          string         `json:"id"`
	DisputeID   string         `json:"disputeId"`
	Action      string         `json:"action"`
	Severity    string         `json:"severity"`
	ActorID     string         `json:"actorId"`
	ActorName   string         `json:"actorName,omitempty"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Writer persists audit entries. Append must never fail silently: callers
// treat an Append error as fatal to the surrounding operation.
type Writer interface {
	Append(ctx context.Context, e *Entry) (string, error)
	ListByDispute(ctx context.Context, disputeID string) ([]*Entry, error)
}

func metadataJSON(m map[string]any) []byte {
	if len(m) == 0 {
		return []byte("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}
	return b
}
