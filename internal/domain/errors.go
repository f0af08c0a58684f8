package domain

import "errors"

// Sentinel errors shared across services.
// Check with errors.Is() instead of string matching.
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates validation failure on input parameters
	ErrInvalidInput = errors.New("invalid input parameters")

	// ErrUnauthorized indicates authentication/authorization failure
	ErrUnauthorized = errors.New("unauthorized action")

	// ErrUnavailable indicates a downstream collaborator could not be reached
	ErrUnavailable = errors.New("collaborator unavailable")
)
