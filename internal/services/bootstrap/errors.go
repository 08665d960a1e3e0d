package bootstrap

import "errors"

var (
	// ErrInvalidArgument marks an input-contract violation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientData is returned when a series is too short to resample.
	ErrInsufficientData = errors.New("insufficient data")
)
