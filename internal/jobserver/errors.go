package jobserver

import "errors"

var (
	// ErrQueueClosed is returned when attempting to use a closed queue
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned when the queue is at its high-water mark
	ErrQueueFull = errors.New("queue is full")

	// ErrJobNotFound is returned when a job is not found
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a job cannot move to the requested state
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrInvalidHandle is returned for usernames outside the handle grammar
	ErrInvalidHandle = errors.New("invalid username")
)
