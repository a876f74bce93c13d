package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// StrategyID is a catalog identifier with a type-prefixed layout
	// (e.g. "STRAT-037").
	StrategyID ID
	// RunID identifies one pipeline run over a candidate.
	RunID ID
)

func (id StrategyID) String() string { return ID(id).String() }
func (id RunID) String() string      { return ID(id).String() }

var strategyIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]*(-[A-Za-z0-9]+)+$`)

// ParseStrategyID parses a string into a StrategyID, enforcing the
// type-prefixed layout used by the catalog.
func ParseStrategyID(s string) (StrategyID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("strategy ID cannot be empty")
	}
	if !strategyIDPattern.MatchString(s) {
		return "", fmt.Errorf("strategy ID %q does not match PREFIX-NNN layout", s)
	}
	return StrategyID(s), nil
}

// NewRunID creates a time-ordered run identifier.
func NewRunID() RunID {
	return RunID(NewID())
}
