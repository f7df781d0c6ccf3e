package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/refund"
	"github.com/stripe/stripe-go/v81/transfer"

	"github.com/crossmarket/admincore/internal/money"
)

// StripeGateway settles escrow instructions through Stripe.
//
// The order's escrow reference is the PaymentIntent holding the buyer's
// funds; releases are transfers to the seller's connected account.
// Stripe deduplicates on its native idempotency keys, so repeating an
// instruction with the same key never double-moves funds.
type StripeGateway struct {
	logger *slog.Logger
}

// NewStripeGateway creates a Stripe-backed escrow gateway. apiKey is the
// platform's secret key.
func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{logger: slog.Default()}
}

// WithLogger sets a structured logger.
func (g *StripeGateway) WithLogger(l *slog.Logger) *StripeGateway {
	g.logger = l
	return g
}

func (g *StripeGateway) Execute(ctx context.Context, instr Instruction, idempotencyKey string) Action {
	if instr.Type == ActionNone {
		return NoneAction()
	}
	if instr.EscrowID == "" {
		return failed(instr, "no escrow reference on order")
	}

	switch instr.Type {
	case ActionRefund:
		return g.refund(ctx, instr, instr.Amount, idempotencyKey)

	case ActionRelease:
		return g.release(ctx, instr, instr.Amount, idempotencyKey)

	case ActionPartialRefund:
		// Refund the buyer's share first; only push the seller's share
		// once the refund has definitively landed.
		a := g.refund(ctx, instr, instr.RefundAmount, idempotencyKey+"-refund")
		if a.Status != StatusSuccess {
			return a
		}
		rel := g.release(ctx, instr, instr.ReleaseAmount, idempotencyKey+"-release")
		if rel.Status != StatusSuccess {
			// Buyer is refunded but the seller payout is stuck. Keep the
			// refund transaction id and surface the payout state.
			rel.TransactionID = a.TransactionID
			rel.Message = "refund succeeded; seller payout " + string(rel.Status) + ": " + rel.Message
			return rel
		}
		a.TransactionID = a.TransactionID + "," + rel.TransactionID
		return a

	default:
		return failed(instr, fmt.Sprintf("unsupported instruction type %q", instr.Type))
	}
}

func (g *StripeGateway) refund(ctx context.Context, instr Instruction, amount, key string) Action {
	cents, err := toCents(amount)
	if err != nil {
		return failed(instr, "invalid refund amount: "+err.Error())
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(instr.EscrowID),
		Amount:        stripe.Int64(cents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(key)

	r, err := refund.New(params)
	if err != nil {
		return g.classify(instr, err, "refund")
	}

	a := fromInstruction(instr)
	a.Status = StatusSuccess
	a.TransactionID = r.ID
	return a
}

func (g *StripeGateway) release(ctx context.Context, instr Instruction, amount, key string) Action {
	if instr.SellerAccount == "" {
		return failed(instr, "no seller payout account on order")
	}
	cents, err := toCents(amount)
	if err != nil {
		return failed(instr, "invalid release amount: "+err.Error())
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(cents),
		Currency:      stripe.String(strings.ToLower(instr.Currency)),
		Destination:   stripe.String(instr.SellerAccount),
		TransferGroup: stripe.String(instr.EscrowID),
	}
	params.Context = ctx
	params.SetIdempotencyKey(key)

	t, err := transfer.New(params)
	if err != nil {
		return g.classify(instr, err, "release")
	}

	a := fromInstruction(instr)
	a.Status = StatusSuccess
	a.TransactionID = t.ID
	return a
}

// classify maps a Stripe error to an action status. Definitive API
// rejections are failed; connectivity and server-side trouble is pending
// because the charge state on Stripe's side is unknown.
func (g *StripeGateway) classify(instr Instruction, err error, op string) Action {
	a := fromInstruction(instr)

	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode < 500 {
		a.Status = StatusFailed
		a.Message = fmt.Sprintf("stripe %s rejected: %s", op, se.Msg)
		return a
	}

	a.Status = StatusPending
	a.Message = fmt.Sprintf("stripe %s unresolved: %v", op, err)
	g.logger.Warn("stripe escrow action pending",
		"escrow_id", instr.EscrowID,
		"op", op,
		"error", err,
	)
	return a
}

func toCents(amount string) (int64, error) {
	v, err := money.Parse(amount)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, money.ErrInvalidAmount
	}
	return v.Int64(), nil
}
