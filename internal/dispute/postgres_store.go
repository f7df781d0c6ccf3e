package dispute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crossmarket/admincore/internal/audit"
	"github.com/crossmarket/admincore/internal/pagination"
)

// PostgresStore persists disputes in PostgreSQL.
//
// Mutations and their audit entries commit in a single transaction;
// concurrency control is a version column checked in the UPDATE's WHERE
// clause, so a stale writer affects zero rows and gets ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a dispute store backed by PostgreSQL.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const disputeColumns = `
	id, order_id, status, priority, raised_by, COALESCE(raised_by_id, ''),
	reason, COALESCE(description, ''), version,
	resolution_outcome, resolution_amount, resolution_notes,
	resolved_by, resolved_by_name, resolved_at, escrow_transaction_id,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, d *Dispute, firstMessage *Message, entry *audit.Entry) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO disputes (id, order_id, status, priority, raised_by, raised_by_id,
		                      reason, description, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.OrderID, d.Status, d.Priority, d.RaisedBy, nullable(d.RaisedByID),
		d.Reason, nullable(d.Description), d.Version, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return "", err
	}

	if firstMessage != nil {
		if err := insertMessage(ctx, tx, firstMessage); err != nil {
			return "", err
		}
	}

	auditID, err := audit.AppendTx(ctx, tx, entry)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return auditID, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Dispute, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id)
	return scanDispute(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (*Dispute, error) {
	d := &Dispute{}
	var outcome, amount, notes, resolvedBy, resolvedByName, escrowTxn sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.OrderID, &d.Status, &d.Priority, &d.RaisedBy, &d.RaisedByID,
		&d.Reason, &d.Description, &d.Version,
		&outcome, &amount, &notes,
		&resolvedBy, &resolvedByName, &resolvedAt, &escrowTxn,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	if err != nil {
		return nil, err
	}

	if outcome.Valid {
		d.Resolution = &Resolution{
			Outcome:             Outcome(outcome.String),
			Amount:              amount.String,
			Notes:               notes.String,
			ResolvedBy:          resolvedBy.String,
			ResolvedByName:      resolvedByName.String,
			ResolvedAt:          resolvedAt.Time,
			EscrowTransactionID: escrowTxn.String,
		}
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*Dispute, string, error) {
	cur, err := pagination.Decode(f.Cursor)
	if err != nil {
		return nil, "", invalid("cursor", "is not a valid cursor")
	}

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		conds = append(conds, "status = "+arg(string(f.Status)))
	}
	if f.Priority != "" {
		conds = append(conds, "priority = "+arg(string(f.Priority)))
	}
	if f.RaisedBy != "" {
		conds = append(conds, "raised_by = "+arg(string(f.RaisedBy)))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(reason ILIKE "+p+" OR description ILIKE "+p+" OR order_id ILIKE "+p+")")
	}
	if cur != nil {
		conds = append(conds, "(created_at, id) < ("+arg(cur.CreatedAt)+", "+arg(cur.ID)+")")
	}

	query := `SELECT ` + disputeColumns + ` FROM disputes`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + arg(f.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rows.Close() }()

	var disputes []*Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, "", err
		}
		disputes = append(disputes, d)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	page, next, _ := pagination.ComputePage(disputes, f.Limit, func(d *Dispute) (time.Time, string) {
		return d.CreatedAt, d.ID
	})
	return page, next, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM disputes GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case StatusOpen:
			st.Open = count
		case StatusUnderReview:
			st.UnderReview = count
		case StatusEscalated:
			st.Escalated = count
		case StatusResolved:
			st.Resolved = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600.0)
		FROM disputes
		WHERE status = 'resolved' AND resolved_at IS NOT NULL`).Scan(&avg)
	if err != nil {
		return nil, err
	}
	if avg.Valid {
		st.AvgResolutionHours = avg.Float64
	}
	return st, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, d *Dispute, entry *audit.Entry) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE disputes
		SET status = $1, updated_at = $2, version = version + 1
		WHERE id = $3 AND version = $4`,
		d.Status, d.UpdatedAt, d.ID, d.Version)
	if err != nil {
		return "", err
	}
	if err := checkConflict(ctx, tx, res, d.ID); err != nil {
		return "", err
	}

	auditID, err := audit.AppendTx(ctx, tx, entry)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	d.Version++
	return auditID, nil
}

func (s *PostgresStore) ApplyResolution(ctx context.Context, d *Dispute, entries []*audit.Entry) ([]string, error) {
	r := d.Resolution

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE disputes
		SET status = $1, updated_at = $2, version = version + 1,
		    resolution_outcome = $3, resolution_amount = $4, resolution_notes = $5,
		    resolved_by = $6, resolved_by_name = $7, resolved_at = $8,
		    escrow_transaction_id = $9
		WHERE id = $10 AND version = $11 AND status != 'resolved'`,
		StatusResolved, d.UpdatedAt,
		r.Outcome, r.Amount, r.Notes,
		r.ResolvedBy, nullable(r.ResolvedByName), r.ResolvedAt,
		nullable(r.EscrowTransactionID),
		d.ID, d.Version)
	if err != nil {
		return nil, err
	}
	if err := checkConflict(ctx, tx, res, d.ID); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		id, err := audit.AppendTx(ctx, tx, e)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	d.Version++
	return ids, nil
}

// checkConflict distinguishes "row gone" from "version raced" after a
// guarded UPDATE touched zero rows.
func checkConflict(ctx context.Context, tx *sql.Tx, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM disputes WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrDisputeNotFound
	}
	return ErrConflict
}

func (s *PostgresStore) AddMessage(ctx context.Context, m *Message, entry *audit.Entry) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertMessage(ctx, tx, m); err != nil {
		return "", err
	}
	auditID, err := audit.AppendTx(ctx, tx, entry)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return auditID, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, m *Message) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO dispute_messages (id, dispute_id, sender_role, sender_id, sender_name, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		m.ID, m.DisputeID, m.SenderRole, m.SenderID, nullable(m.SenderName), m.Message, m.CreatedAt).Scan(&m.Seq)
}

func (s *PostgresStore) ListMessages(ctx context.Context, disputeID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dispute_id, sender_role, sender_id, COALESCE(sender_name, ''), message, created_at, seq
		FROM dispute_messages
		WHERE dispute_id = $1
		ORDER BY created_at ASC, seq ASC`, disputeID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.DisputeID, &m.SenderRole, &m.SenderID,
			&m.SenderName, &m.Message, &m.CreatedAt, &m.Seq); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *PostgresStore) AddEvidence(ctx context.Context, e *Evidence, entry *audit.Entry) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO dispute_evidence (id, dispute_id, type, uploaded_by, url, description, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		e.ID, e.DisputeID, e.Type, e.UploadedBy, nullable(e.URL), nullable(e.Description), e.UploadedAt).Scan(&e.Seq)
	if err != nil {
		return "", err
	}
	auditID, err := audit.AppendTx(ctx, tx, entry)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return auditID, nil
}

func (s *PostgresStore) ListEvidence(ctx context.Context, disputeID string) ([]*Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dispute_id, type, uploaded_by, COALESCE(url, ''), COALESCE(description, ''), uploaded_at, seq
		FROM dispute_evidence
		WHERE dispute_id = $1
		ORDER BY uploaded_at ASC, seq ASC`, disputeID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var evidence []*Evidence
	for rows.Next() {
		e := &Evidence{}
		if err := rows.Scan(&e.ID, &e.DisputeID, &e.Type, &e.UploadedBy,
			&e.URL, &e.Description, &e.UploadedAt, &e.Seq); err != nil {
			return nil, err
		}
		evidence = append(evidence, e)
	}
	return evidence, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
