package composite

import "errors"

var (
	// ErrInvalidConfiguration is returned for malformed or missing parameters:
	// negative window sizes, missing matching properties, mismatched grids.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmptyInput is returned when a collection has no records.
	ErrEmptyInput = errors.New("empty input collection")

	// ErrBackendFailure marks errors surfaced by a collection service.
	ErrBackendFailure = errors.New("collection service failure")
)
