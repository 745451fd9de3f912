package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrUnknownTaskType is returned when a task type has no registered pipeline.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrInvalidTaskStatus is returned when a task status is not one of the known values.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTransition is returned when a status change is not allowed
	// by the task state machine. Writes against terminal tasks never return
	// this error; they are silently skipped.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrInvalidQuestion is returned when a question fails structural validation.
	ErrInvalidQuestion = errors.New("invalid question")
)
