package scheduler

import "errors"

// ValidationError means the request is invalid independent of concurrent
// state: correcting the input may make it succeed, retrying as-is never will.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErr(code, message string) error {
	return &ValidationError{Code: code, Message: message}
}

// ConflictError means the slot was free when the caller checked but is no
// longer free at commit time. Expected under load; the caller should re-fetch
// availability rather than retry the same slot.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func conflictErr(message string) error {
	return &ConflictError{Message: message}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
