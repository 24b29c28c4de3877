package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "lendaudit/pkg/platform/audit"
	"lendaudit/pkg/platform/sentinel"
	txcontext "lendaudit/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

// Store writes audit records to the audit_logs table. The database assigns
// the id and timestamp on Insert.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit_logs table and its indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const insertColumns = `
		user_id, user_email, action, resource, resource_id,
		buyer_id, vehicle_id, deal_id, method, url,
		ip_address, user_agent, status, duration_ms, error_message,
		error_code, level, pii, compliance, request_id,
		trace_id, metadata`

// Insert appends rec to audit_logs. A record that already carries a uuid (set
// by the fanout store) keeps it so copies in other sinks correlate.
func (s *Store) Insert(ctx context.Context, rec audit.Record) error {
	if id, err := uuid.Parse(rec.ID); err == nil {
		return s.InsertWithID(ctx, id, rec)
	}
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	query := `INSERT INTO audit_logs (` + insertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`
	if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// InsertWithID inserts rec under a caller-chosen id and timestamp. Replays of
// the same id are ignored, so consumers can retry safely.
func (s *Store) InsertWithID(ctx context.Context, id uuid.UUID, rec audit.Record) error {
	args, err := recordArgs(rec)
	if err != nil {
		return err
	}
	createdAt := rec.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `INSERT INTO audit_logs (id, created_at, ` + insertColumns + `)
		VALUES ($23, $24, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (id) DO NOTHING`
	args = append(args, id, createdAt)
	if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit log %s: %w", id, err)
	}
	return nil
}

// Get loads a single record by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (audit.Record, error) {
	query := `SELECT id, created_at, ` + insertColumns + ` FROM audit_logs WHERE id = $1`

	var (
		rec                              audit.Record
		resourceID, buyerID, vehicleID   sql.NullString
		dealID, ipAddress, userAgent     sql.NullString
		errorMessage, requestID, traceID sql.NullString
		errorCode                        sql.NullInt64
		action, status, level            string
		compliance                       pq.StringArray
		metadata                         []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Timestamp,
		&rec.UserID, &rec.UserEmail, &action, &rec.Resource, &resourceID,
		&buyerID, &vehicleID, &dealID, &rec.Method, &rec.URL,
		&ipAddress, &userAgent, &status, &rec.DurationMS, &errorMessage,
		&errorCode, &level, &rec.PII, &compliance, &requestID,
		&traceID, &metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.Record{}, fmt.Errorf("audit log %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return audit.Record{}, fmt.Errorf("get audit log %s: %w", id, err)
	}

	rec.Action = audit.Action(action)
	rec.Status = audit.Status(status)
	rec.Level = audit.Level(level)
	rec.ResourceID = resourceID.String
	rec.BuyerID = buyerID.String
	rec.VehicleID = vehicleID.String
	rec.DealID = dealID.String
	rec.IPAddress = ipAddress.String
	rec.UserAgent = userAgent.String
	rec.ErrorMessage = errorMessage.String
	rec.ErrorCode = int(errorCode.Int64)
	rec.RequestID = requestID.String
	rec.TraceID = traceID.String
	rec.Compliance = []string(compliance)
	if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
		return audit.Record{}, fmt.Errorf("decode audit metadata: %w", err)
	}
	return rec, nil
}

func recordArgs(rec audit.Record) ([]any, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal audit metadata: %w", err)
	}
	compliance := rec.Compliance
	if compliance == nil {
		compliance = []string{}
	}
	var errorCode sql.NullInt64
	if rec.Status == audit.StatusFailure {
		errorCode = sql.NullInt64{Int64: int64(rec.ErrorCode), Valid: true}
	}
	return []any{
		rec.UserID,
		rec.UserEmail,
		string(rec.Action),
		rec.Resource,
		nullString(rec.ResourceID),
		nullString(rec.BuyerID),
		nullString(rec.VehicleID),
		nullString(rec.DealID),
		rec.Method,
		rec.URL,
		nullString(rec.IPAddress),
		nullString(rec.UserAgent),
		string(rec.Status),
		rec.DurationMS,
		nullString(rec.ErrorMessage),
		errorCode,
		string(rec.Level),
		rec.PII,
		pq.Array(compliance),
		nullString(rec.RequestID),
		nullString(rec.TraceID),
		metadata,
	}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
