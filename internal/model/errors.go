package model

import "errors"

var (
	// Protocol errors surfaced to the caller as-is.
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrAlreadyStarted    = errors.New("job already started")
	ErrResultNotReady    = errors.New("job result not ready")
	ErrJobFailed         = errors.New("job failed")

	// Provider errors. Per-genre provider failures are recorded in the
	// creation report and never returned from the batch itself.
	ErrProviderFailure       = errors.New("provider request failed")
	ErrMissingProviderToken  = errors.New("missing provider token")
	ErrProviderNotConfigured = errors.New("provider not configured")

	ErrInvalidJobID = errors.New("invalid job id")
)
