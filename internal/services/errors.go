package services

import "errors"

// Service-level sentinel errors. Handlers translate these into API errors;
// inside the service layer they are matched with errors.Is.
var (
	// Report run errors
	ErrRunInProgress = errors.New("report run already in progress")
	ErrNoRuns        = errors.New("no completed report runs")
	ErrNoPriorRun    = errors.New("no prior run to compare against")

	// Lookup errors
	ErrGroupNotFound  = errors.New("group not found")
	ErrEntityNotFound = errors.New("entity not found")

	// General errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
