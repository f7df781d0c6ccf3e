// Package dispute implements the dispute resolution and escrow
// reconciliation workflow for the admin console.
//
// Lifecycle:
//  1. Buyer or seller opens a dispute against an order → status open
//  2. Operator starts review → under_review
//  3. Operator escalates if needed → escalated
//  4. Operator resolves with a financial outcome → resolved (terminal)
//
// Resolution triggers a compensating action against the external escrow
// system. The decision is authoritative: the dispute resolves even when
// the money movement fails or stays pending, and that state is surfaced
// to the caller instead of being swallowed.
package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crossmarket/admincore/internal/audit"
)

var (
	ErrDisputeNotFound   = errors.New("dispute not found")
	ErrInvalidTransition = errors.New("invalid dispute status transition")
	ErrInvalidState      = errors.New("dispute is closed to this operation")
	ErrConflict          = errors.New("dispute was modified concurrently")
)

// ValidationError reports a rejected request. Validation failures are
// fully inert: no state change and no audit entry is produced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Status represents the dispute lifecycle state.
type Status string

const (
	StatusOpen        Status = "open"
	StatusUnderReview Status = "under_review"
	StatusResolved    Status = "resolved"
	StatusEscalated   Status = "escalated"
)

// transitions holds the bare status moves an operator may request.
// Entering resolved is deliberately absent: that only happens through
// Resolve, never through a status write.
var transitions = map[Status]map[Status]bool{
	StatusOpen:        {StatusUnderReview: true},
	StatusUnderReview: {StatusEscalated: true},
}

// CanTransition reports whether from→to is a permitted bare transition.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// ValidStatus reports whether s is a known dispute status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusUnderReview, StatusResolved, StatusEscalated:
		return true
	}
	return false
}

// Priority orders the review queue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Party identifies which side of the order raised the dispute.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
)

// Role tags who wrote a thread message.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Outcome is the financial decision closing a dispute.
type Outcome string

const (
	OutcomeRefundBuyer   Outcome = "refund_buyer"
	OutcomeReleaseSeller Outcome = "release_seller"
	OutcomePartialRefund Outcome = "partial_refund"
	OutcomeNoAction      Outcome = "no_action"
)

// ValidOutcome reports whether o is a known resolution outcome.
func ValidOutcome(o Outcome) bool {
	switch o {
	case OutcomeRefundBuyer, OutcomeReleaseSeller, OutcomePartialRefund, OutcomeNoAction:
		return true
	}
	return false
}

// EvidenceType classifies an evidence attachment.
type EvidenceType string

const (
	EvidenceImage    EvidenceType = "image"
	EvidenceDocument EvidenceType = "document"
	EvidenceText     EvidenceType = "text"
)

// Dispute is a contested order under administrative review.
type Dispute struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"orderId"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	RaisedBy    Party     `json:"raisedBy"`
	RaisedByID  string    `json:"raisedById"`
	Reason      string    `json:"reason"`
	Description string    `json:"description,omitempty"`
	// Version increments on every mutation; stores reject writes against
	// a stale version so concurrent resolvers cannot overwrite each other.
	Version    int64       `json:"-"`
	Resolution *Resolution `json:"resolution,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// IsResolved reports whether the dispute reached its terminal state.
func (d *Dispute) IsResolved() bool {
	return d.Status == StatusResolved
}

// Resolution is the final decision closing a dispute. Written exactly
// once; immutable thereafter.
type Resolution struct {
	Outcome Outcome `json:"outcome"`
	// Amount is the buyer refund for partial_refund, the full order
	// amount for refund_buyer, and "0.00" otherwise.
	Amount              string    `json:"amount"`
	Notes               string    `json:"notes"`
	ResolvedBy          string    `json:"resolvedBy"`
	ResolvedByName      string    `json:"resolvedByName,omitempty"`
	ResolvedAt          time.Time `json:"resolvedAt"`
	EscrowTransactionID string    `json:"escrowTransactionId,omitempty"`
}

// Evidence is an immutable attachment supporting one side of a dispute.
// Whether it belongs to the buyer or seller is computed at read time by
// comparing UploadedBy with the order's party ids — never stored.
type Evidence struct {
	ID          string       `json:"id"`
	DisputeID   string       `json:"disputeId"`
	Type        EvidenceType `json:"type"`
	UploadedBy  string       `json:"uploadedBy"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	UploadedAt  time.Time    `json:"uploadedAt"`
	// Seq is assigned by the store from a counter shared with messages,
	// so same-timestamp activity keeps its insertion order.
	Seq int64 `json:"seq"`
}

// Message is one entry in a dispute's correspondence thread.
type Message struct {
	ID         string    `json:"id"`
	DisputeID  string    `json:"disputeId"`
	SenderRole Role      `json:"senderRole"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
	// Seq is assigned by the store from a counter shared with evidence,
	// so same-timestamp activity keeps its insertion order.
	Seq int64 `json:"seq"`
}

// Stats summarizes the dispute queue for the console dashboard.
type Stats struct {
	Open               int     `json:"open"`
	UnderReview        int     `json:"underReview"`
	Escalated          int     `json:"escalated"`
	Resolved           int     `json:"resolved"`
	AvgResolutionHours float64 `json:"avgResolutionHours"`
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status   Status
	Priority Priority
	RaisedBy Party
	Search   string // matches reason, description, or order id
	Cursor   string // opaque pagination cursor
	Limit    int
}

// Store persists disputes, their threads, and their evidence.
//
// Mutating operations take the audit entries that belong to the change
// and commit everything as one unit of work: if the audit write cannot
// be persisted, the state change must not be either.
type Store interface {
	Create(ctx context.Context, d *Dispute, firstMessage *Message, entry *audit.Entry) (string, error)
	Get(ctx context.Context, id string) (*Dispute, error)
	List(ctx context.Context, f Filter) ([]*Dispute, string, error)
	Stats(ctx context.Context) (*Stats, error)

	// UpdateStatus and ApplyResolution check d.Version against the stored
	// row and return ErrConflict on mismatch. On success the stored
	// version is d.Version+1.
	UpdateStatus(ctx context.Context, d *Dispute, entry *audit.Entry) (string, error)
	ApplyResolution(ctx context.Context, d *Dispute, entries []*audit.Entry) ([]string, error)

	AddMessage(ctx context.Context, m *Message, entry *audit.Entry) (string, error)
	ListMessages(ctx context.Context, disputeID string) ([]*Message, error)

	AddEvidence(ctx context.Context, e *Evidence, entry *audit.Entry) (string, error)
	ListEvidence(ctx context.Context, disputeID string) ([]*Evidence, error)
}
