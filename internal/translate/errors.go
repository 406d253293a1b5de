package translate

import "errors"

var (
	// ErrInvalidGeometry is returned when geometry conversion fails.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidDateTime is returned when datetime parsing fails.
	ErrInvalidDateTime = errors.New("invalid datetime format")

	// ErrUnsupportedFilter is returned when a filter expression cannot be evaluated.
	ErrUnsupportedFilter = errors.New("unsupported filter expression")
)
