package model

import (
	"errors"
)

var (
	// ErrCancelled is returned when a cancellation request wins the race
	// with an in-progress or about-to-start acquisition. It is a distinct
	// outcome, never paired with partial results.
	ErrCancelled = errors.New("acquisition cancelled")

	// ErrNotRunning is returned by operations requiring a live task.
	ErrNotRunning = errors.New("acquisition not running")
)
