package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sonopix/pkg/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const auditColumns = `id, job_id, direction, outcome, error_code, input_bytes, output_bytes, duration_ms, timestamp, ip_address, user_agent`

// AuditRepository implements repository.AuditRepository for PostgreSQL
type AuditRepository struct {
	db sqlx.ExtContext
}

// NewAuditRepository creates a new PostgreSQL audit repository
func NewAuditRepository(db sqlx.ExtContext) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create creates a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, auditLog *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		auditLog.ID,
		auditLog.JobID,
		auditLog.Direction,
		auditLog.Outcome,
		nullString(auditLog.ErrorCode),
		auditLog.InputBytes,
		auditLog.OutputBytes,
		auditLog.DurationMS,
		auditLog.Timestamp,
		nullString(auditLog.IPAddress),
		nullString(auditLog.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrDatabaseInsert, err)
	}
	return nil
}

// GetByID retrieves an audit log entry by ID
func (r *AuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE id = $1`

	var row auditLogRow
	err := sqlx.GetContext(ctx, r.db, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAuditLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDatabaseQuery, err)
	}
	return row.toModel(), nil
}

// List retrieves audit logs with optional filtering
func (r *AuditRepository) List(ctx context.Context, req *models.ListAuditLogsRequest) ([]*models.AuditLog, error) {
	where, args := auditFilters(req)
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE 1=1` + where

	query += " ORDER BY timestamp DESC"

	if req.Limit > 0 {
		args = append(args, req.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if req.Offset > 0 {
		args = append(args, req.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []auditLogRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDatabaseQuery, err)
	}

	auditLogs := make([]*models.AuditLog, 0, len(rows))
	for i := range rows {
		auditLogs = append(auditLogs, rows[i].toModel())
	}
	return auditLogs, nil
}

// Count returns the total count of audit logs matching the criteria
func (r *AuditRepository) Count(ctx context.Context, req *models.ListAuditLogsRequest) (int, error) {
	where, args := auditFilters(req)
	query := "SELECT COUNT(*) FROM audit_logs WHERE 1=1" + where

	var count int
	if err := sqlx.GetContext(ctx, r.db, &count, query, args...); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrDatabaseQuery, err)
	}
	return count, nil
}

// auditFilters builds the WHERE conditions shared by List and Count
func auditFilters(req *models.ListAuditLogsRequest) (string, []interface{}) {
	var where string
	args := []interface{}{}

	add := func(condition string, value interface{}) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", condition, len(args))
	}

	if req.Direction != nil {
		add("direction =", *req.Direction)
	}
	if req.Outcome != nil {
		add("outcome =", *req.Outcome)
	}
	if req.JobID != nil {
		add("job_id =", *req.JobID)
	}
	if req.StartDate != nil {
		add("timestamp >=", *req.StartDate)
	}
	if req.EndDate != nil {
		add("timestamp <=", *req.EndDate)
	}
	return where, args
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// auditLogRow is a helper struct for scanning nullable columns
type auditLogRow struct {
	ID          uuid.UUID               `db:"id"`
	JobID       *uuid.UUID              `db:"job_id"`
	Direction   models.Direction        `db:"direction"`
	Outcome     models.OperationOutcome `db:"outcome"`
	ErrorCode   sql.NullString          `db:"error_code"`
	InputBytes  int64                   `db:"input_bytes"`
	OutputBytes int64                   `db:"output_bytes"`
	DurationMS  int64                   `db:"duration_ms"`
	Timestamp   sql.NullTime            `db:"timestamp"`
	IPAddress   sql.NullString          `db:"ip_address"`
	UserAgent   sql.NullString          `db:"user_agent"`
}

func (r *auditLogRow) toModel() *models.AuditLog {
	return &models.AuditLog{
		ID:          r.ID,
		JobID:       r.JobID,
		Direction:   r.Direction,
		Outcome:     r.Outcome,
		ErrorCode:   r.ErrorCode.String,
		InputBytes:  r.InputBytes,
		OutputBytes: r.OutputBytes,
		DurationMS:  r.DurationMS,
		Timestamp:   r.Timestamp.Time,
		IPAddress:   r.IPAddress.String,
		UserAgent:   r.UserAgent.String,
	}
}
