package domain

import "errors"

var (
	// ErrNotFound means the upstream source has nothing for the record.
	ErrNotFound = errors.New("not_found")
	// ErrNotConfigured means the adapter lacks credentials or endpoints.
	ErrNotConfigured = errors.New("not_configured")
	// ErrMalformed marks an upstream payload that failed validation.
	ErrMalformed = errors.New("malformed_upstream_data")
	// ErrNoIdentity marks a fetched record without an external id.
	ErrNoIdentity = errors.New("no_identity")
)
