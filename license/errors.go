package license

import "errors"

// Client-facing failures. The messages are returned verbatim in the
// "error" field of API responses.
var (
	ErrMissingKey       = errors.New("License key required")
	ErrNotFound         = errors.New("License not found")
	ErrMissingFields    = errors.New("Key and email required")
	ErrInvalidKey       = errors.New("Invalid license key")
	ErrAlreadyActivated = errors.New("License already activated")
	ErrUnauthorized     = errors.New("Unauthorized")
)
