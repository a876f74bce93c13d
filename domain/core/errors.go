package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrStrategyNotFound = fmt.Errorf("%w: strategy", ErrNotFound)

	// Fatal per-candidate errors
	ErrConfiguration      = errors.New("configuration error")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrStateTransition    = errors.New("invalid state transition")

	// Pipeline outcomes that route a candidate to a terminal bucket
	ErrDataUnavailable = errors.New("data requirement unsatisfiable")
	ErrCodeGenFailure  = errors.New("code generation failed")
	ErrParseFailure    = errors.New("backtest output unparseable")

	// LLM availability
	ErrLLMOffline = errors.New("llm client offline")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewStateTransitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrStateTransition, from, to)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInvariantViolation) ||
		errors.Is(err, ErrStateTransition)
}
