package models

import (
	"time"

	"github.com/google/uuid"
)

// Direction is the way an operation runs through the pipeline.
type Direction string

const (
	DirectionEncrypt Direction = "encrypt"
	DirectionDecrypt Direction = "decrypt"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionEncrypt || d == DirectionDecrypt
}

// JobStatus represents the lifecycle state of an asynchronous job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// Job is the persisted view of an asynchronous encrypt or decrypt.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	Direction    Direction  `json:"direction"`
	Status       JobStatus  `json:"status"`
	Progress     int        `json:"progress"`
	Format       string     `json:"format,omitempty"`
	InputBytes   int64      `json:"input_bytes"`
	OutputBytes  int64      `json:"output_bytes,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// Outcome maps the job state onto an audit outcome.
func (j *Job) Outcome() OperationOutcome {
	switch j.Status {
	case JobStatusSucceeded:
		return OutcomeSucceeded
	case JobStatusCanceled:
		return OutcomeCanceled
	default:
		return OutcomeFailed
	}
}
