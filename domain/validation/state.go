package validation

import (
	"stratval/domain/core"
)

// State is a stage of the validation state machine.
type State string

const (
	StateInitialized      State = "initialized"
	StateHypothesisLocked State = "hypothesis_locked"
	StateDataAudit        State = "data_audit"
	StateISTesting        State = "is_testing"
	StateStatistical      State = "statistical"
	StateRegime           State = "regime"
	StateOOSTesting       State = "oos_testing"
	StateDetermination    State = "determination"
	StateCompleted        State = "completed"
	StateBlocked          State = "blocked"
	StateFailed           State = "failed"
)

// validTransitions is the closed transition table. Any edge not listed
// here is rejected.
var validTransitions = map[State][]State{
	StateInitialized:      {StateHypothesisLocked, StateFailed},
	StateHypothesisLocked: {StateDataAudit, StateBlocked, StateFailed},
	StateDataAudit:        {StateISTesting, StateBlocked, StateFailed},
	StateISTesting:        {StateStatistical, StateBlocked, StateFailed},
	StateStatistical:      {StateRegime, StateFailed},
	StateRegime:           {StateOOSTesting, StateFailed},
	StateOOSTesting:       {StateDetermination, StateBlocked, StateFailed},
	StateDetermination:    {StateCompleted, StateFailed},
	StateCompleted:        {},
	StateBlocked:          {},
	StateFailed:           {},
}

// CanTransition reports whether the edge from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// StateTransition is one recorded edge with its timestamp and note.
type StateTransition struct {
	From State          `json:"from"`
	To   State          `json:"to"`
	At   core.Timestamp `json:"at"`
	Note string         `json:"note,omitempty"`
}

// StateRecord is the persisted state of one validation run. It is
// written atomically after every mutation.
type StateRecord struct {
	StrategyID  core.StrategyID   `json:"strategy_id"`
	RunID       core.RunID        `json:"run_id"`
	State       State             `json:"state"`
	History     []StateTransition `json:"history"`
	OOSUsed     bool              `json:"oos_used"`
	LockedAt    *core.Timestamp   `json:"locked_at,omitempty"`
	LockedHash  string            `json:"locked_hash,omitempty"`
	Dossier     map[string]any    `json:"dossier,omitempty"`
	Outcome     Determination     `json:"outcome,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	CreatedAt   core.Timestamp    `json:"created_at"`
	UpdatedAt   core.Timestamp    `json:"updated_at"`
}
