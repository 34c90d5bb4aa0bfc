package scheduler

import (
	"errors"
)

var (
	// ErrSchedulerUnavailable is returned when submitting work to a scheduler whose timekeeper has stopped.
	ErrSchedulerUnavailable = errors.New("scheduler is unavailable")

	// ErrNilWork is returned when submitting a nil work function.
	ErrNilWork = errors.New("work must not be nil")
)
