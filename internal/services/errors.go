// Package services defines the business logic of the dose timer.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer (HTTP) or in the command layer (CLI).
package services

import "errors"

// Dose-related errors.
var (
	// ErrDoseNotFound indicates that no dose matches the given identity.
	ErrDoseNotFound = errors.New("dose not found")

	// ErrInvalidAmount is returned when an amount is negative, NaN or infinite.
	ErrInvalidAmount = errors.New("amount must be a finite number >= 0")

	// ErrNothingToExport is returned when an export is requested for an empty
	// log. It is informational rather than a failure.
	ErrNothingToExport = errors.New("nothing to export")

	// ErrAmbiguousID is returned when an id prefix matches more than one dose.
	ErrAmbiguousID = errors.New("id prefix matches more than one dose")

	// ErrNoSelector is returned when a bulk delete names neither a timestamp
	// nor an explicit request to clear everything.
	ErrNoSelector = errors.New("no delete selector given")
)
