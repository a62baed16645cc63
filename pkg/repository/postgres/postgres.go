package postgres

import (
	"context"
	"fmt"
	"time"

	"sonopix/pkg/repository"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS audit_logs (
    id UUID PRIMARY KEY,
    job_id UUID,
    direction TEXT NOT NULL,
    outcome TEXT NOT NULL,
    error_code TEXT,
    input_bytes BIGINT NOT NULL DEFAULT 0,
    output_bytes BIGINT NOT NULL DEFAULT 0,
    duration_ms BIGINT NOT NULL DEFAULT 0,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    ip_address TEXT,
    user_agent TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_job_id ON audit_logs(job_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_outcome ON audit_logs(outcome);
`

// PoolConfig holds connection pool limits
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// PostgresDB implements the Database interface for PostgreSQL
type PostgresDB struct {
	db   *sqlx.DB
	pool PoolConfig
}

// NewPostgresDB creates a new PostgreSQL database instance
func NewPostgresDB(pool PoolConfig) *PostgresDB {
	return &PostgresDB{pool: pool}
}

// Connect establishes a connection to the PostgreSQL database
func (p *PostgresDB) Connect(ctx context.Context, connString string) error {
	db, err := sqlx.ConnectContext(ctx, "postgres", connString)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	p.db = db
	p.applyPool()
	return nil
}

func (p *PostgresDB) applyPool() {
	maxOpen := p.pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := p.pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 2
	}
	p.db.SetMaxOpenConns(maxOpen)
	p.db.SetMaxIdleConns(maxIdle)
	if p.pool.ConnMaxLifetime > 0 {
		p.db.SetConnMaxLifetime(p.pool.ConnMaxLifetime)
	}
	if p.pool.ConnMaxIdleTime > 0 {
		p.db.SetConnMaxIdleTime(p.pool.ConnMaxIdleTime)
	}
}

// Close closes the database connection
func (p *PostgresDB) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (p *PostgresDB) Ping(ctx context.Context) error {
	if p.db == nil {
		return fmt.Errorf("database not connected")
	}
	return p.db.PingContext(ctx)
}

// EnsureSchema creates the audit table and its indexes if missing
func (p *PostgresDB) EnsureSchema(ctx context.Context) error {
	if p.db == nil {
		return fmt.Errorf("database not connected")
	}
	if _, err := p.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// DB returns the underlying sqlx.DB instance
func (p *PostgresDB) DB() *sqlx.DB {
	return p.db
}

// NewRepository connects, creates the schema and returns a repository
// backed by PostgreSQL
func NewRepository(ctx context.Context, connString string, pool PoolConfig) (*repository.Repository, error) {
	db := NewPostgresDB(pool)

	if err := db.Connect(ctx, connString); err != nil {
		return nil, err
	}

	if err := db.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	repo := repository.NewRepository(db)
	repo.Audit = NewAuditRepository(db.DB())

	return repo, nil
}
