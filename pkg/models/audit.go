package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OperationOutcome is the terminal result of one pipeline run
type OperationOutcome string

const (
	OutcomeSucceeded OperationOutcome = "succeeded"
	OutcomeFailed    OperationOutcome = "failed"
	OutcomeCanceled  OperationOutcome = "canceled"
)

// OutcomeForError classifies a pipeline error.
func OutcomeForError(err error) OperationOutcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case IsCode(err, ErrCodeCanceled):
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}

// AuditLog represents an audit log entry. It never holds passphrase
// material or payload bytes.
type AuditLog struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	JobID       *uuid.UUID       `json:"job_id,omitempty" db:"job_id"`
	Direction   Direction        `json:"direction" db:"direction"`
	Outcome     OperationOutcome `json:"outcome" db:"outcome"`
	ErrorCode   string           `json:"error_code,omitempty" db:"error_code"`
	InputBytes  int64            `json:"input_bytes" db:"input_bytes"`
	OutputBytes int64            `json:"output_bytes" db:"output_bytes"`
	DurationMS  int64            `json:"duration_ms" db:"duration_ms"`
	Timestamp   time.Time        `json:"timestamp" db:"timestamp"`
	IPAddress   string           `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent   string           `json:"user_agent,omitempty" db:"user_agent"`
}

// CreateAuditLogRequest represents a request to create an audit log entry
type CreateAuditLogRequest struct {
	JobID       *uuid.UUID
	Direction   Direction
	Err         error
	InputBytes  int64
	OutputBytes int64
	Duration    time.Duration
	IPAddress   string
	UserAgent   string
}

// ListAuditLogsRequest represents query parameters for listing audit logs
type ListAuditLogsRequest struct {
	Direction *Direction        `form:"direction"`
	Outcome   *OperationOutcome `form:"outcome"`
	JobID     *uuid.UUID        `form:"job_id"`
	StartDate *time.Time        `form:"start_date"`
	EndDate   *time.Time        `form:"end_date"`
	Limit     int               `form:"limit"`
	Offset    int               `form:"offset"`
}

// ToAuditLog converts CreateAuditLogRequest to AuditLog. The entry is served
// by the audit API, so it records the public code only.
func (r *CreateAuditLogRequest) ToAuditLog() *AuditLog {
	return &AuditLog{
		ID:          uuid.New(),
		JobID:       r.JobID,
		Direction:   r.Direction,
		Outcome:     OutcomeForError(r.Err),
		ErrorCode:   PublicCode(r.Direction, CodeOf(r.Err)),
		InputBytes:  r.InputBytes,
		OutputBytes: r.OutputBytes,
		DurationMS:  r.Duration.Milliseconds(),
		Timestamp:   time.Now(),
		IPAddress:   r.IPAddress,
		UserAgent:   r.UserAgent,
	}
}

// MarshalJSON customizes JSON serialization
func (a *AuditLog) MarshalJSON() ([]byte, error) {
	type Alias AuditLog
	return json.Marshal(&struct {
		*Alias
		ID    string  `json:"id"`
		JobID *string `json:"job_id,omitempty"`
	}{
		Alias: (*Alias)(a),
		ID:    a.ID.String(),
		JobID: uuidPtrToStringPtr(a.JobID),
	})
}

func uuidPtrToStringPtr(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
