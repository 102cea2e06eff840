package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when the delivery's task handle no longer owns the job
	ErrJobAlreadyClaimed = errors.New("job already claimed by another task")

	// ErrJobLeased is returned when the job's own task is still leased to a live worker
	ErrJobLeased = errors.New("job is leased to another worker")

	// ErrJobTerminal is returned when the job already reached SUCCESS, FAILED or CANCELLED
	ErrJobTerminal = errors.New("job is in a terminal state")

	// ErrLeaseLost is returned by fenced updates when the worker no longer owns the job
	ErrLeaseLost = errors.New("job lease lost")

	// ErrTemplateNotFound is returned for unknown or inactive templates
	ErrTemplateNotFound = errors.New("template not found")

	// ErrValidation marks bad input rejected before a job is created
	ErrValidation = errors.New("validation error")

	// ErrQuotaExceeded marks an admission denied by the quota guard
	ErrQuotaExceeded = errors.New("quota exceeded")
)

// ErrorClass classifies a stage failure.
type ErrorClass string

const (
	ClassExtraction      ErrorClass = "extraction"
	ClassRender          ErrorClass = "render"
	ClassCompilerTimeout ErrorClass = "compiler_timeout"
	ClassCompilerFailure ErrorClass = "compiler_failure"
	ClassWorkerBudget    ErrorClass = "worker_budget"
	ClassCancelled       ErrorClass = "cancelled"
	ClassInternal        ErrorClass = "internal"
)

// StageError is the tagged result every pipeline stage returns on failure.
type StageError struct {
	Class ErrorClass
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed (%s): %v", e.Stage, e.Class, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether failures of this class may be attempted again.
// Only a compiler timeout is transient; every other class fails the same way twice.
func (c ErrorClass) Retryable() bool {
	return c == ClassCompilerTimeout
}

// OperatorFacing reports whether failures of this class need an operator's attention.
func (c ErrorClass) OperatorFacing() bool {
	return c == ClassRender || c == ClassInternal
}

// NewStageError creates a new stage error
func NewStageError(class ErrorClass, stage string, err error) error {
	return &StageError{Class: class, Stage: stage, Err: err}
}

// ClassOf returns the class of err, or ClassInternal when err is not a StageError.
func ClassOf(err error) ErrorClass {
	var se *StageError
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassInternal
}

// PublicMessage is the human-readable summary shown to pollers for a failure class.
func PublicMessage(class ErrorClass) string {
	switch class {
	case ClassExtraction:
		return "We could not extract résumé data from the provided text."
	case ClassRender:
		return "The résumé data does not fit the selected template."
	case ClassCompilerTimeout:
		return "Compilation timed out (exceeded 2 minutes)."
	case ClassCompilerFailure:
		return "The document compiler could not produce a PDF."
	case ClassWorkerBudget:
		return "Processing exceeded the time budget."
	case ClassCancelled:
		return "The job was cancelled."
	default:
		return "An unexpected error occurred while generating the résumé."
	}
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
