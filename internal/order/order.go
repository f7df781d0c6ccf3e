// Package order exposes the marketplace order read model.
//
// Orders are owned by the marketplace's order service; the admin core only
// reads them to constrain dispute settlements. Nothing here may create or
// mutate an order's amount or parties.
package order

import (
	"context"
	"errors"
	"time"
)

var ErrOrderNotFound = errors.New("order not found")

// Order is a contested purchase referenced by a dispute.
type Order struct {
	ID           string    `json:"id"`
	ListingTitle string    `json:"listingTitle,omitempty"`
	Amount       string    `json:"amount"` // fixed-point decimal, see internal/money
	Currency     string    `json:"currency"`
	BuyerID      string    `json:"buyerId"`
	SellerID     string    `json:"sellerId"`
	EscrowID     string    `json:"escrowId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsParty reports whether userID is the buyer or seller on this order.
func (o *Order) IsParty(userID string) bool {
	return userID == o.BuyerID || userID == o.SellerID
}

// Source provides read access to orders.
type Source interface {
	Get(ctx context.Context, id string) (*Order, error)
}

// Store is a Source that also accepts order snapshots pushed from the
// marketplace (used by the sync ingest and by tests/demo seeding).
type Store interface {
	Source
	Put(ctx context.Context, o *Order) error
}
