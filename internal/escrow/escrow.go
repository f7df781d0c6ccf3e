// Package escrow wraps the external escrow/payment system that holds
// contested order funds.
//
// The gateway is an unreliable remote dependency: a call may succeed,
// fail outright, or stay unresolved. Execute never returns a Go error —
// whatever happens on the wire is folded into the returned Action so the
// dispute decision upstream is never blocked by money movement.
//
// Idempotency: every Execute carries an idempotency key derived from the
// dispute and outcome. Repeating a call with the same key must not move
// funds twice; the external service (and the Stripe backend natively)
// deduplicates on it.
package escrow

import "context"

// ActionType identifies the escrow instruction kind.
type ActionType string

const (
	ActionRelease       ActionType = "release"
	ActionRefund        ActionType = "refund"
	ActionPartialRefund ActionType = "partial_refund"
	ActionNone          ActionType = "none"
)

// ActionStatus is the terminal state of one escrow call.
//
// pending means retries were exhausted without a definitive answer:
// the action needs manual reconciliation, not resubmission.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "success"
	StatusFailed  ActionStatus = "failed"
	StatusPending ActionStatus = "pending"
)

// Instruction tells the gateway how to settle held funds.
type Instruction struct {
	Type     ActionType
	EscrowID string // external escrow/payment reference held on the order
	Currency string

	// Amount is the total moved for release/refund. For partial_refund,
	// RefundAmount goes to the buyer and ReleaseAmount to the seller;
	// the two always sum to the order amount.
	Amount        string
	RefundAmount  string
	ReleaseAmount string

	// SellerAccount is the seller's payout account reference, required
	// by backends that push release transfers directly (Stripe).
	SellerAccount string
}

// Action is the observed outcome of one escrow call.
type Action struct {
	Type          ActionType   `json:"type"`
	Amount        string       `json:"amount,omitempty"`
	RefundAmount  string       `json:"refundAmount,omitempty"`
	ReleaseAmount string       `json:"releaseAmount,omitempty"`
	Status        ActionStatus `json:"status"`
	TransactionID string       `json:"transactionId,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// Gateway executes escrow instructions against the external system.
type Gateway interface {
	Execute(ctx context.Context, instr Instruction, idempotencyKey string) Action
}

// NoneAction returns the audit-completeness record for resolutions with
// no financial effect. No gateway call is made for these.
func NoneAction() Action {
	return Action{Type: ActionNone, Status: StatusSuccess}
}

func failed(instr Instruction, msg string) Action {
	a := fromInstruction(instr)
	a.Status = StatusFailed
	a.Message = msg
	return a
}

func fromInstruction(instr Instruction) Action {
	return Action{
		Type:          instr.Type,
		Amount:        instr.Amount,
		RefundAmount:  instr.RefundAmount,
		ReleaseAmount: instr.ReleaseAmount,
	}
}
