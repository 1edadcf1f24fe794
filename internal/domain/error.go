package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid batch status transition")
	ErrRetryExhausted    = errors.New("retry budget exhausted")
	ErrPollExhausted     = errors.New("poll budget exhausted")
	ErrJobFailed         = errors.New("generation job reported failure")
	ErrContentRejected   = errors.New("generated content rejected by validation")
	ErrLockHeld          = errors.New("lock is held by another process")

	// Storage-layer errors surfaced through repositories
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
)
