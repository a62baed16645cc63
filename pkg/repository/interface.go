package repository

import (
	"context"

	"sonopix/pkg/models"

	"github.com/google/uuid"
)

// Database is the interface that all database implementations must satisfy
type Database interface {
	// Connection management
	Connect(ctx context.Context, connString string) error
	Close() error
	Ping(ctx context.Context) error

	// EnsureSchema creates missing tables and indexes
	EnsureSchema(ctx context.Context) error
}

// AuditRepository defines operations for the operation audit log
type AuditRepository interface {
	// Create records one finished operation
	Create(ctx context.Context, auditLog *models.AuditLog) error

	// GetByID retrieves an audit log entry by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// List retrieves audit logs with optional filtering, newest first
	List(ctx context.Context, req *models.ListAuditLogsRequest) ([]*models.AuditLog, error)

	// Count returns the total count of audit logs matching the criteria
	Count(ctx context.Context, req *models.ListAuditLogsRequest) (int, error)
}

// Repository provides access to all repository interfaces
type Repository struct {
	Audit AuditRepository
	db    Database
}

// NewRepository creates a new repository with the given database implementation
func NewRepository(db Database) *Repository {
	return &Repository{
		db: db,
	}
}

// NewNoOpRepository returns a repository whose audit log discards entries.
// Used when no database is configured.
func NewNoOpRepository() *Repository {
	return &Repository{Audit: NoOpAuditRepository{}}
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.Ping(ctx)
}

// NoOpAuditRepository drops every entry
type NoOpAuditRepository struct{}

// Create does nothing
func (NoOpAuditRepository) Create(ctx context.Context, auditLog *models.AuditLog) error {
	return nil
}

// GetByID always reports the entry missing
func (NoOpAuditRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error) {
	return nil, models.ErrAuditLogNotFound
}

// List returns no entries
func (NoOpAuditRepository) List(ctx context.Context, req *models.ListAuditLogsRequest) ([]*models.AuditLog, error) {
	return []*models.AuditLog{}, nil
}

// Count returns zero
func (NoOpAuditRepository) Count(ctx context.Context, req *models.ListAuditLogsRequest) (int, error) {
	return 0, nil
}
