package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable error classification. Calling UIs
// key user-facing messages off these codes, so values never change.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "validation"
	CodeNotFound     ErrorCode = "not_found"
	CodeConflict     ErrorCode = "conflict"
	CodeInvalidState ErrorCode = "invalid_state"
	// CodeInternal classifies errors that carry no domain code of their own,
	// such as storage faults surfacing through a service operation.
	CodeInternal ErrorCode = "internal"
)

// ValidationError reports malformed or logically invalid input. It is always
// raised before any write happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Code returns the stable classification for validation failures.
func (e ValidationError) Code() ErrorCode { return CodeValidation }

// NotFoundError reports that a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Code returns the stable classification for missing records.
func (e NotFoundError) Code() ErrorCode { return CodeNotFound }

// ConflictError reports a uniqueness or exclusivity violation, such as a
// duplicate tag number or a second active cycle for one mother.
type ConflictError struct {
	Entity  EntityType
	ID      string
	Message string
}

func (e ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s conflicts with an existing record", e.Entity, e.ID)
}

// Code returns the stable classification for conflicts.
func (e ConflictError) Code() ErrorCode { return CodeConflict }

// InvalidStateError reports an operation attempted against a record whose
// lifecycle state forbids it, such as completing a completed cycle.
type InvalidStateError struct {
	Entity  EntityType
	ID      string
	State   string
	Message string
}

func (e InvalidStateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s is %s", e.Entity, e.ID, e.State)
}

// Code returns the stable classification for state violations.
func (e InvalidStateError) Code() ErrorCode { return CodeInvalidState }

// CodeOf extracts the stable code from any error. Rule violations surfaced
// at commit report as conflicts, since that is the only class the rules
// engine blocks on; errors with no domain code report as internal so callers
// never key off an empty string. A nil error has no code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	var rule RuleViolationError
	if errors.As(err, &rule) {
		return CodeConflict
	}
	return CodeInternal
}
