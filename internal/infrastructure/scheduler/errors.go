package scheduler

import "errors"

var (
	// ErrSchedulerClosed is returned when registering on a scheduler that was shut down
	ErrSchedulerClosed = errors.New("scheduler is shut down")

	// ErrTaskExists is returned when a task name is registered twice
	ErrTaskExists = errors.New("task already registered")

	// ErrTaskNotFound is returned for unknown task names
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidInterval is returned for non-positive intervals
	ErrInvalidInterval = errors.New("task interval must be positive")

	// ErrTaskPanicked wraps a panic recovered from a task body
	ErrTaskPanicked = errors.New("task panicked")
)
