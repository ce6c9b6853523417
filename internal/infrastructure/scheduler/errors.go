package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned for a non-positive poll interval
	ErrInvalidConfig = errors.New("scheduler: poll interval must be positive")
	// ErrMissingDependency is returned when the channel provider or poll scheduler is nil
	ErrMissingDependency = errors.New("scheduler: channel provider and poll scheduler are required")
)
