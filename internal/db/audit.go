package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the part of a pgx pool the audit log uses
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// AuditRecord is the outcome of one request. It never carries extracted values,
// images or credentials.
type AuditRecord struct {
	RequestID     string
	ClientID      string
	Engine        string
	Outcome       string // admitted, rejected, engine_failure
	ErrorCode     string
	FieldsFound   int
	OCRDuration   time.Duration
	TotalDuration time.Duration
	CreatedAt     time.Time
}

const createAuditTable = `
CREATE TABLE IF NOT EXISTS nid_requests (
	request_id   UUID PRIMARY KEY,
	client_id    TEXT NOT NULL,
	engine       TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL,
	error_code   TEXT NOT NULL DEFAULT '',
	fields_found SMALLINT NOT NULL DEFAULT 0,
	ocr_ms       INTEGER NOT NULL DEFAULT 0,
	total_ms     INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const insertAudit = `
INSERT INTO nid_requests (
	request_id, client_id, engine, outcome, error_code,
	fields_found, ocr_ms, total_ms, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// AuditLog writes request outcomes to PostgreSQL
type AuditLog struct {
	db Execer
}

// NewAuditLog creates an audit log on db, usually Pool
func NewAuditLog(db Execer) *AuditLog {
	return &AuditLog{db: db}
}

// EnsureSchema creates the audit table if needed
func (a *AuditLog) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.Exec(ctx, createAuditTable); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// Record inserts one audit row
func (a *AuditLog) Record(ctx context.Context, rec AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := a.db.Exec(ctx, insertAudit,
		rec.RequestID, rec.ClientID, rec.Engine, rec.Outcome, rec.ErrorCode,
		rec.FieldsFound, rec.OCRDuration.Milliseconds(), rec.TotalDuration.Milliseconds(), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}
