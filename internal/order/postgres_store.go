package order

import (
	"context"
	"database/sql"
)

// PostgresStore reads order snapshots from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed order store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(listing_title, ''), amount::TEXT, currency,
		       buyer_id, seller_id, COALESCE(escrow_id, ''), created_at
		FROM orders WHERE id = $1`, id)

	o := &Order{}
	err := row.Scan(&o.ID, &o.ListingTitle, &o.Amount, &o.Currency,
		&o.BuyerID, &o.SellerID, &o.EscrowID, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (p *PostgresStore) Put(ctx context.Context, o *Order) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (id, listing_title, amount, currency, buyer_id, seller_id, escrow_id, created_at)
		VALUES ($1, $2, $3::NUMERIC(20,2), $4, $5, $6, NULLIF($7, ''), $8)
		ON CONFLICT (id) DO UPDATE SET
			listing_title = EXCLUDED.listing_title,
			escrow_id = EXCLUDED.escrow_id`,
		o.ID, o.ListingTitle, o.Amount, o.Currency, o.BuyerID, o.SellerID, o.EscrowID, o.CreatedAt)
	return err
}
