package dispute

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crossmarket/admincore/internal/audit"
	"github.com/crossmarket/admincore/internal/escrow"
	"github.com/crossmarket/admincore/internal/idgen"
	"github.com/crossmarket/admincore/internal/metrics"
	"github.com/crossmarket/admincore/internal/money"
	"github.com/crossmarket/admincore/internal/order"
	"github.com/crossmarket/admincore/internal/traces"
)

// Actor is the authenticated console operator (or marketplace user)
// performing an operation. Identity is established upstream; the service
// only records it.
type Actor struct {
	ID   string
	Name string
}

// Service orchestrates dispute workflow: lifecycle transitions, the
// resolution contract, and the read façade. All writes go through the
// Store as single units of work with their audit entries.
type Service struct {
	store    Store
	orders   order.Source
	gateway  escrow.Gateway
	auditLog audit.Writer
	logger   *slog.Logger

	// locks serializes operations per dispute id. Resolve uses TryLock so
	// the second concurrent resolver is told about the race instead of
	// silently queueing behind a decision that makes its own stale.
	locks sync.Map
}

// NewService creates a dispute service.
func NewService(store Store, orders order.Source, gateway escrow.Gateway, auditLog audit.Writer) *Service {
	return &Service{
		store:    store,
		orders:   orders,
		gateway:  gateway,
		auditLog: auditLog,
		logger:   slog.Default(),
	}
}

// WithLogger sets a structured logger.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

func (s *Service) lock(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// OpenRequest creates a new dispute against an order.
type OpenRequest struct {
	OrderID     string   `json:"orderId"`
	RaisedBy    Party    `json:"raisedBy"`
	RaisedByID  string   `json:"raisedById"`
	Reason      string   `json:"reason"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
}

// Open files a dispute. The description, when present, also becomes the
// first message of the thread so the correspondence starts with the
// complaint itself.
func (s *Service) Open(ctx context.Context, req OpenRequest) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Open")
	defer span.End()

	req.Reason = strings.TrimSpace(req.Reason)
	req.Description = strings.TrimSpace(req.Description)

	if req.OrderID == "" {
		return nil, invalid("orderId", "is required")
	}
	if req.Reason == "" {
		return nil, invalid("reason", "is required")
	}
	if req.RaisedBy != PartyBuyer && req.RaisedBy != PartySeller {
		return nil, invalid("raisedBy", "must be buyer or seller")
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if req.Priority != PriorityLow && req.Priority != PriorityMedium && req.Priority != PriorityHigh {
		return nil, invalid("priority", "must be low, medium, or high")
	}

	ord, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if req.RaisedByID != "" && !ord.IsParty(req.RaisedByID) {
		return nil, invalid("raisedById", "is not a party to this order")
	}

	now := time.Now().UTC()
	d := &Dispute{
		ID:          idgen.WithPrefix("dsp_"),
		OrderID:     ord.ID,
		Status:      StatusOpen,
		Priority:    req.Priority,
		RaisedBy:    req.RaisedBy,
		RaisedByID:  req.RaisedByID,
		Reason:      req.Reason,
		Description: req.Description,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var first *Message
	if req.Description != "" {
		first = &Message{
			ID:         idgen.WithPrefix("msg_"),
			DisputeID:  d.ID,
			SenderRole: Role(req.RaisedBy),
			SenderID:   req.RaisedByID,
			Message:    req.Description,
			CreatedAt:  now,
		}
	}

	entry := &audit.Entry{
		DisputeID:   d.ID,
		Action:      audit.ActionDisputeOpened,
		Severity:    audit.SeverityInfo,
		ActorID:     req.RaisedByID,
		Description: "Dispute opened: " + req.Reason,
		Metadata: map[string]any{
			"orderId":  ord.ID,
			"raisedBy": string(req.RaisedBy),
			"priority": string(req.Priority),
			"amount":   ord.Amount,
		},
		CreatedAt: now,
	}

	if _, err := s.store.Create(ctx, d, first, entry); err != nil {
		return nil, err
	}

	metrics.DisputesOpenedTotal.WithLabelValues(string(req.RaisedBy)).Inc()
	s.logger.Info("dispute opened",
		"dispute_id", d.ID,
		"order_id", ord.ID,
		"raised_by", req.RaisedBy,
		"priority", req.Priority,
	)
	return d, nil
}

// UpdateStatus performs a bare lifecycle transition (open→under_review,
// under_review→escalated). Entering resolved this way is rejected: the
// only path to resolved is Resolve.
func (s *Service) UpdateStatus(ctx context.Context, id string, next Status, actor Actor) (*Dispute, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.UpdateStatus")
	defer span.End()

	if !ValidStatus(next) {
		return nil, invalid("status", "is not a known status")
	}

	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if next == StatusResolved {
		return nil, ErrInvalidTransition
	}
	if !CanTransition(d.Status, next) {
		return nil, ErrInvalidTransition
	}

	prev := d.Status
	now := time.Now().UTC()
	d.Status = next
	d.UpdatedAt = now

	action := audit.ActionStatusChanged
	if next == StatusEscalated {
		action = audit.ActionDisputeEscalated
	}
	entry := &audit.Entry{
		DisputeID:   d.ID,
		Action:      action,
		Severity:    audit.SeverityInfo,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Description: "Status changed from " + string(prev) + " to " + string(next),
		Metadata: map[string]any{
			"from": string(prev),
			"to":   string(next),
		},
		CreatedAt: now,
	}

	if _, err := s.store.UpdateStatus(ctx, d, entry); err != nil {
		return nil, err
	}

	s.logger.Info("dispute status changed",
		"dispute_id", d.ID,
		"from", prev,
		"to", next,
		"actor_id", actor.ID,
	)
	return d, nil
}

// ResolveRequest is the operator's final decision on a dispute.
type ResolveRequest struct {
	Outcome Outcome `json:"outcome"`
	// Amount is required for partial_refund (the buyer's share) and
	// ignored for every other outcome.
	Amount string `json:"amount,omitempty"`
	Notes  string `json:"notes"`
}

// Result is what a successful Resolve reports back. EscrowAction carries
// the observed money-movement state, including failed and pending — a
// resolved dispute with an unsettled escrow action is a valid outcome
// that the reconciliation queue picks up.
type Result struct {
	Dispute      *Dispute      `json:"dispute"`
	EscrowAction escrow.Action `json:"escrowAction"`
	AuditLogIDs  []string      `json:"auditLogIds"`
}

// Resolve closes a dispute with a financial outcome.
//
// Contract:
//   - Validation failures leave no trace: no status change, no escrow
//     call, no audit entry.
//   - Once validation passes, the resolution is recorded together with
//     the status change and audit entries in one unit of work, and the
//     escrow action result is folded into the response rather than
//     failing it.
//   - A concurrent Resolve on the same dispute loses with ErrConflict.
func (s *Service) Resolve(ctx context.Context, id string, req ResolveRequest, actor Actor) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "dispute.Resolve", traces.DisputeID(id), traces.Outcome(string(req.Outcome)))
	defer span.End()

	mu := s.lock(id)
	if !mu.TryLock() {
		return nil, ErrConflict
	}
	defer mu.Unlock()

	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ord, err := s.orders.Get(ctx, d.OrderID)
	if err != nil {
		return nil, err
	}

	instr, amount, err := s.validateResolution(d, ord, &req)
	if err != nil {
		return nil, err
	}

	// From here on the operation must run to completion even if the
	// caller disconnects: an escrow call followed by a lost commit is
	// exactly the inconsistency this service exists to prevent.
	opCtx := context.WithoutCancel(ctx)

	action := s.executeEscrow(opCtx, instr, idempotencyKey(d.ID, req.Outcome))

	now := time.Now().UTC()
	d.Status = StatusResolved
	d.UpdatedAt = now
	d.Resolution = &Resolution{
		Outcome:             req.Outcome,
		Amount:              amount,
		Notes:               req.Notes,
		ResolvedBy:          actor.ID,
		ResolvedByName:      actor.Name,
		ResolvedAt:          now,
		EscrowTransactionID: action.TransactionID,
	}

	entries := resolutionEntries(d, ord, action, actor, now)

	auditIDs, err := s.store.ApplyResolution(opCtx, d, entries)
	if err != nil && action.Status == escrow.StatusSuccess {
		// Funds moved but the decision did not land. Retry transient
		// failures once; a version conflict will not heal by retrying.
		if !errors.Is(err, ErrConflict) {
			auditIDs, err = s.store.ApplyResolution(opCtx, d, entries)
		}
		if err != nil {
			// Scream either way: the settled transaction has no committed
			// resolution and needs manual reconciliation.
			s.logger.Error("CRITICAL: escrow settled but resolution commit failed",
				"dispute_id", d.ID,
				"escrow_txn", action.TransactionID,
				"outcome", req.Outcome,
				"error", err,
			)
		}
	}
	if err != nil {
		return nil, err
	}

	metrics.DisputesResolvedTotal.WithLabelValues(string(req.Outcome)).Inc()
	metrics.EscrowActionsTotal.WithLabelValues(string(action.Type), string(action.Status)).Inc()
	metrics.ResolutionDuration.Observe(now.Sub(d.CreatedAt).Seconds())

	s.logger.Info("dispute resolved",
		"dispute_id", d.ID,
		"outcome", req.Outcome,
		"amount", amount,
		"escrow_status", action.Status,
		"escrow_txn", action.TransactionID,
		"actor_id", actor.ID,
	)
	return &Result{Dispute: d, EscrowAction: action, AuditLogIDs: auditIDs}, nil
}

// validateResolution checks the full request against the dispute and its
// order, and computes the settlement split. It touches nothing.
func (s *Service) validateResolution(d *Dispute, ord *order.Order, req *ResolveRequest) (escrow.Instruction, string, error) {
	var none escrow.Instruction

	if d.IsResolved() {
		return none, "", invalid("status", "dispute is already resolved")
	}
	if d.Status != StatusUnderReview && d.Status != StatusEscalated {
		return none, "", invalid("status", "dispute must be under review or escalated to resolve")
	}
	if !ValidOutcome(req.Outcome) {
		return none, "", invalid("outcome", "is not a known outcome")
	}
	req.Notes = strings.TrimSpace(req.Notes)
	if req.Notes == "" {
		return none, "", invalid("notes", "are required")
	}

	instr := escrow.Instruction{
		EscrowID:      ord.EscrowID,
		Currency:      ord.Currency,
		SellerAccount: ord.SellerID,
	}

	switch req.Outcome {
	case OutcomeRefundBuyer:
		instr.Type = escrow.ActionRefund
		instr.Amount = ord.Amount
		return instr, ord.Amount, nil

	case OutcomeReleaseSeller:
		instr.Type = escrow.ActionRelease
		instr.Amount = ord.Amount
		return instr, "0.00", nil

	case OutcomePartialRefund:
		refundAmt, err := money.Parse(req.Amount)
		if err != nil || refundAmt.Sign() <= 0 {
			return none, "", invalid("amount", "must be a positive decimal with at most 2 fraction digits")
		}
		refund := money.Format(refundAmt)
		if cmp, err := money.Cmp(refund, ord.Amount); err != nil || cmp >= 0 {
			return none, "", invalid("amount", "must be less than the order amount")
		}
		release, err := money.Sub(ord.Amount, refund)
		if err != nil {
			return none, "", invalid("amount", "must be a positive decimal with at most 2 fraction digits")
		}
		instr.Type = escrow.ActionPartialRefund
		instr.Amount = ord.Amount
		instr.RefundAmount = refund
		instr.ReleaseAmount = release
		return instr, refund, nil

	case OutcomeNoAction:
		instr.Type = escrow.ActionNone
		return instr, "0.00", nil
	}
	return none, "", invalid("outcome", "is not a known outcome")
}

func (s *Service) executeEscrow(ctx context.Context, instr escrow.Instruction, key string) escrow.Action {
	if instr.Type == escrow.ActionNone {
		return escrow.NoneAction()
	}
	return s.gateway.Execute(ctx, instr, key)
}

// idempotencyKey is stable per dispute and outcome, so a retried
// resolution cannot move funds twice.
func idempotencyKey(disputeID string, outcome Outcome) string {
	return "disp-" + disputeID + "-" + string(outcome)
}

// resolutionEntries builds the two audit records committed with every
// resolution: the decision itself, then the observed escrow action.
func resolutionEntries(d *Dispute, ord *order.Order, action escrow.Action, actor Actor, now time.Time) []*audit.Entry {
	res := d.Resolution

	decision := &audit.Entry{
		DisputeID:   d.ID,
		Action:      audit.ActionDisputeResolved,
		Severity:    audit.SeverityWarning,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Description: "Dispute resolved: " + string(res.Outcome),
		Metadata: map[string]any{
			"outcome":     string(res.Outcome),
			"amount":      res.Amount,
			"notes":       res.Notes,
			"orderId":     ord.ID,
			"orderAmount": ord.Amount,
		},
		CreatedAt: now,
	}

	escrowMeta := map[string]any{
		"type":   string(action.Type),
		"status": string(action.Status),
	}
	if action.Amount != "" {
		escrowMeta["amount"] = action.Amount
	}
	if action.RefundAmount != "" {
		escrowMeta["refundAmount"] = action.RefundAmount
		escrowMeta["releaseAmount"] = action.ReleaseAmount
	}
	if action.TransactionID != "" {
		escrowMeta["transactionId"] = action.TransactionID
	}
	if action.Message != "" {
		escrowMeta["message"] = action.Message
	}

	severity := audit.SeverityInfo
	if action.Status != escrow.StatusSuccess {
		severity = audit.SeverityWarning
	}
	settle := &audit.Entry{
		DisputeID:   d.ID,
		Action:      escrowAuditAction(action.Type),
		Severity:    severity,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		Description: "Escrow " + string(action.Type) + " " + string(action.Status),
		Metadata:    escrowMeta,
		CreatedAt:   now,
	}

	return []*audit.Entry{decision, settle}
}

func escrowAuditAction(t escrow.ActionType) string {
	switch t {
	case escrow.ActionRelease:
		return audit.ActionEscrowRelease
	case escrow.ActionRefund:
		return audit.ActionEscrowRefund
	case escrow.ActionPartialRefund:
		return audit.ActionEscrowPartialRefund
	default:
		return audit.ActionEscrowNone
	}
}
