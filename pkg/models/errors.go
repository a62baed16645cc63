package models

import "errors"

var (
	// Job errors
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotFinished    = errors.New("job has not finished")
	ErrJobResultConsumed = errors.New("job result already retrieved")
	ErrJobFailed         = errors.New("job did not succeed")

	// Repository errors
	ErrAuditLogNotFound   = errors.New("audit log not found")
	ErrDatabaseConnection = errors.New("database connection failed")
	ErrDatabaseQuery      = errors.New("database query failed")
	ErrDatabaseInsert     = errors.New("database insert failed")

	// General errors
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternalServer = errors.New("internal server error")
)
