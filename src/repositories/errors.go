package repositories

import "errors"

var (
	// ErrNotFound is returned when a looked-up row does not exist
	ErrNotFound = errors.New("not found")

	// ErrUniqueViolation is returned when an insert hits a unique index
	ErrUniqueViolation = errors.New("unique constraint violation")
)
