package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"stratval/domain/core"
	"stratval/domain/validation"
	"stratval/internal/logging"
	"stratval/ports"
)

// Orchestrator drives a candidate's validation run through the state
// machine and persists every transition before acting on it.
type Orchestrator struct {
	store ports.ArtifactStore
	log   zerolog.Logger
}

func New(store ports.ArtifactStore) *Orchestrator {
	return &Orchestrator{
		store: store,
		log:   logging.For("orchestrator"),
	}
}

// Start creates a fresh run record in the initialized state. An
// existing non-terminal record for the strategy is resumed instead.
func (o *Orchestrator) Start(ctx context.Context, id core.StrategyID) (*validation.StateRecord, error) {
	if existing, err := o.store.LoadState(ctx, id); err == nil && existing != nil {
		if !existing.State.Terminal() {
			o.log.Info().Str("strategy", string(id)).Str("state", string(existing.State)).
				Msg("resuming existing run")
			return existing, nil
		}
	} else if err != nil && !core.IsNotFoundError(err) {
		return nil, err
	}

	now := core.Now()
	rec := &validation.StateRecord{
		StrategyID: id,
		RunID:      core.NewRunID(),
		State:      validation.StateInitialized,
		Outcome:    validation.DeterminationPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.SaveState(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Restart discards any existing record and begins a fresh run. Used
// by forced re-validation.
func (o *Orchestrator) Restart(ctx context.Context, id core.StrategyID) (*validation.StateRecord, error) {
	now := core.Now()
	rec := &validation.StateRecord{
		StrategyID: id,
		RunID:      core.NewRunID(),
		State:      validation.StateInitialized,
		Outcome:    validation.DeterminationPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := o.store.SaveState(ctx, rec); err != nil {
		return nil, err
	}
	o.log.Info().Str("strategy", string(id)).Msg("run restarted")
	return rec, nil
}

// Transition moves the run along one edge of the state machine. The
// record is persisted before the method returns; an illegal edge
// changes nothing.
func (o *Orchestrator) Transition(ctx context.Context, rec *validation.StateRecord, to validation.State, note string) error {
	if !validation.CanTransition(rec.State, to) {
		return core.NewStateTransitionError(string(rec.State), string(to))
	}

	now := core.Now()
	rec.History = append(rec.History, validation.StateTransition{
		From: rec.State,
		To:   to,
		At:   now,
		Note: note,
	})
	rec.State = to
	rec.UpdatedAt = now

	if err := o.store.SaveState(ctx, rec); err != nil {
		return err
	}
	o.log.Info().Str("strategy", string(rec.StrategyID)).
		Str("to", string(to)).Msg("state transition")
	return nil
}

// LockHypothesis freezes the run's inputs: the candidate definition,
// the window schedule, and the thresholds. The dossier hash makes any
// later tampering visible.
func (o *Orchestrator) LockHypothesis(ctx context.Context, rec *validation.StateRecord, dossier map[string]any) error {
	hash, err := dossierHash(dossier)
	if err != nil {
		return err
	}
	now := core.Now()
	rec.Dossier = dossier
	rec.LockedHash = hash
	rec.LockedAt = &now
	return o.Transition(ctx, rec, validation.StateHypothesisLocked, "hypothesis locked "+hash[:12])
}

// SubmitOOS records the out-of-sample result. The out-of-sample window
// may be consumed exactly once per run: a second submission is an
// invariant violation, not a retry.
func (o *Orchestrator) SubmitOOS(ctx context.Context, rec *validation.StateRecord, outcome *validation.WindowOutcome) error {
	if rec.OOSUsed {
		return fmt.Errorf("%w: out-of-sample window already consumed for %s",
			core.ErrInvariantViolation, rec.StrategyID)
	}
	if rec.State != validation.StateOOSTesting {
		return core.NewStateTransitionError(string(rec.State), string(validation.StateDetermination))
	}

	rec.OOSUsed = true
	note := fmt.Sprintf("oos window %d success=%t", outcome.Window.ID, outcome.Success)
	return o.Transition(ctx, rec, validation.StateDetermination, note)
}

// Complete records the determination and closes the run.
func (o *Orchestrator) Complete(ctx context.Context, rec *validation.StateRecord, outcome validation.Determination, reason string) error {
	rec.Outcome = outcome
	rec.Reason = reason

	switch outcome {
	case validation.DeterminationBlocked:
		if validation.CanTransition(rec.State, validation.StateBlocked) {
			return o.Transition(ctx, rec, validation.StateBlocked, reason)
		}
		return o.Transition(ctx, rec, validation.StateFailed, reason)
	case validation.DeterminationFailed:
		return o.Transition(ctx, rec, validation.StateFailed, reason)
	case validation.DeterminationRetryLater:
		// Not terminal: keep the current state, just persist the note.
		rec.UpdatedAt = core.Now()
		return o.store.SaveState(ctx, rec)
	default:
		return o.Transition(ctx, rec, validation.StateCompleted, reason)
	}
}

// DeterminationInput is everything the final decision looks at.
type DeterminationInput struct {
	Gates        *validation.GateReport
	Flags        []validation.SanityFlag
	Significance *validation.Significance
	Regime       *validation.RegimeReport
}

// Determine applies the decision rule. Gate failure, a critical sanity
// flag, and failed significance each invalidate. Regime inconsistency
// and lesser flags downgrade to conditional. Everything clean
// validates.
func Determine(in DeterminationInput) (validation.Determination, string) {
	if in.Gates == nil || !in.Gates.AllPassed {
		return validation.DeterminationInvalidated, "performance gates not met"
	}
	for _, f := range in.Flags {
		if f.Severity == validation.SeverityCritical {
			return validation.DeterminationInvalidated, "critical sanity flag: " + f.Message
		}
	}
	if in.Significance != nil && !in.Significance.Significant {
		return validation.DeterminationInvalidated,
			fmt.Sprintf("not statistically significant (p=%.4f, alpha=%.4f)",
				in.Significance.PValue, in.Significance.AdjustedAlpha)
	}

	if in.Regime != nil && !in.Regime.Consistent {
		return validation.DeterminationConditional, "regime inconsistency: " + in.Regime.Notes
	}
	if len(in.Flags) > 0 {
		return validation.DeterminationConditional, "sanity flags raised: " + in.Flags[0].Message
	}

	return validation.DeterminationValidated, "all gates, significance, and regime checks passed"
}

// dossierHash canonicalizes the dossier as JSON and hashes it.
func dossierHash(dossier map[string]any) (string, error) {
	data, err := json.Marshal(dossier)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
