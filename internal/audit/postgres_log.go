package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/crossmarket/admincore/internal/idgen"
)

// PostgresLog writes audit entries to PostgreSQL.
type PostgresLog struct {
	db *sql.DB
}

// NewPostgresLog creates an audit log backed by PostgreSQL.
func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Append(ctx context.Context, e *Entry) (string, error) {
	return insert(ctx, l.db, e)
}

// AppendTx inserts an entry inside the caller's transaction. The dispute
// store uses this to commit a resolution and its audit entries as one
// unit of work.
func AppendTx(ctx context.Context, tx *sql.Tx, e *Entry) (string, error) {
	return insert(ctx, tx, e)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, db execer, e *Entry) (string, error) {
	if e.ID == "" {
		e.ID = idgen.WithPrefix("aud_")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log (id, dispute_id, action, severity, actor_id, actor_name, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::JSONB, $9)`,
		e.ID, e.DisputeID, e.Action, e.Severity, e.ActorID, e.ActorName,
		e.Description, metadataJSON(e.Metadata), e.CreatedAt)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

func (l *PostgresLog) ListByDispute(ctx context.Context, disputeID string) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, dispute_id, action, severity, actor_id, COALESCE(actor_name, ''),
		       description, metadata::TEXT, created_at
		FROM audit_log
		WHERE dispute_id = $1
		ORDER BY created_at ASC, id ASC`, disputeID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var meta string
		if err := rows.Scan(&e.ID, &e.DisputeID, &e.Action, &e.Severity,
			&e.ActorID, &e.ActorName, &e.Description, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" {
			_ = json.Unmarshal([]byte(meta), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
