package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"stratval/domain/core"
	"stratval/domain/strategy"
	"stratval/domain/validation"
	"stratval/internal/config"
	"stratval/internal/gates"
	"stratval/internal/logging"
	"stratval/internal/orchestrator"
	"stratval/internal/regime"
	"stratval/internal/sanity"
	"stratval/internal/statistics"
	"stratval/internal/verify"
	"stratval/internal/walkforward"
	"stratval/ports"
)

// Options toggle per-run behavior from the CLI.
type Options struct {
	DryRun     bool // stop after code generation
	Force      bool // re-run candidates that already have an outcome
	SkipVerify bool // skip the structural verifier
}

// Result is everything one validation run produced.
type Result struct {
	StrategyID    core.StrategyID            `json:"strategy_id"`
	Determination validation.Determination   `json:"determination"`
	Reason        string                     `json:"reason,omitempty"`
	Verify        *validation.VerifyReport   `json:"verify,omitempty"`
	DataAudit     *validation.DataAudit      `json:"data_audit,omitempty"`
	WalkForward   *validation.WalkForward    `json:"walk_forward,omitempty"`
	Gates         *validation.GateReport     `json:"gates,omitempty"`
	Flags         []validation.SanityFlag    `json:"sanity_flags,omitempty"`
	Significance  *validation.Significance   `json:"significance,omitempty"`
	Regime        *validation.RegimeReport   `json:"regime,omitempty"`
}

// Indexer mirrors run outcomes into the optional catalog index.
type Indexer interface {
	Upsert(ctx context.Context, cand *strategy.Candidate, outcome validation.Determination, reason string) error
}

// Pipeline is the end-to-end validation run for one candidate.
type Pipeline struct {
	cfg       *config.Config
	catalog   ports.Catalog
	store     ports.ArtifactStore
	resolver  ports.DataResolver
	verifier  *verify.Verifier
	generator ports.ProgramGenerator
	executor  *walkforward.Executor
	gates     *gates.Evaluator
	stats     *statistics.Analyzer
	sanity    *sanity.Checker
	orch      *orchestrator.Orchestrator
	index     Indexer
	opts      Options
	log       zerolog.Logger
}

// NewPipeline wires a pipeline. index may be nil.
func NewPipeline(
	cfg *config.Config,
	catalog ports.Catalog,
	store ports.ArtifactStore,
	resolver ports.DataResolver,
	generator ports.ProgramGenerator,
	runner ports.BacktestRunner,
	index Indexer,
	opts Options,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		catalog:   catalog,
		store:     store,
		resolver:  resolver,
		verifier:  verify.New(),
		generator: generator,
		executor:  walkforward.NewExecutor(runner, generator, cfg.WalkFwd.MaxCorrections),
		gates:     gates.New(cfg.Gates),
		stats:     statistics.New(cfg.Statistics),
		sanity:    sanity.New(cfg.Sanity, cfg.Backtest.BenchmarkCAGR),
		orch:      orchestrator.New(store),
		index:     index,
		opts:      opts,
		log:       logging.For("pipeline"),
	}
}

// Run validates one candidate end to end.
func (p *Pipeline) Run(ctx context.Context, id core.StrategyID) (*Result, error) {
	cand, err := p.catalog.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if cand.Status != strategy.StatusPending {
		if !p.opts.Force {
			return nil, fmt.Errorf("strategy %s is %s, re-run with force to validate again", id, cand.Status)
		}
		if err := p.catalog.ResetStatus(ctx, id); err != nil {
			return nil, err
		}
		cand.Status = strategy.StatusPending
	}

	var rec *validation.StateRecord
	if p.opts.Force {
		rec, err = p.orch.Restart(ctx, id)
	} else {
		rec, err = p.orch.Start(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if rec.State != validation.StateInitialized {
		// A resumed partial run re-executes from the start; artifacts
		// overwrite idempotently.
		if rec, err = p.orch.Restart(ctx, id); err != nil {
			return nil, err
		}
	}

	result := &Result{StrategyID: id, Determination: validation.DeterminationPending}

	if !p.opts.SkipVerify {
		result.Verify = p.verifier.Verify(cand)
		p.saveJSON(ctx, id, "verification.json", result.Verify)
		if result.Verify.Overall == validation.VerifyFail {
			return p.finish(ctx, cand, rec, result,
				validation.DeterminationBlocked, "structural verification failed")
		}
	}

	windows, err := walkforward.Schedule(p.cfg.WalkFwd.Windows)
	if err != nil {
		return nil, err
	}

	if err := p.orch.LockHypothesis(ctx, rec, dossier(cand, windows, p.cfg)); err != nil {
		return nil, err
	}

	if err := p.orch.Transition(ctx, rec, validation.StateDataAudit, "resolving data requirements"); err != nil {
		return nil, err
	}
	result.DataAudit, err = p.resolver.Resolve(ctx, cand)
	if err != nil {
		return nil, err
	}
	p.saveJSON(ctx, id, "data_audit.json", result.DataAudit)
	if !result.DataAudit.AllResolved {
		return p.finish(ctx, cand, rec, result,
			validation.DeterminationBlocked, core.ErrDataUnavailable.Error())
	}

	prog, err := p.generator.Generate(ctx, cand)
	if err != nil {
		return p.finish(ctx, cand, rec, result,
			validation.DeterminationFailed, err.Error())
	}
	_ = p.store.SaveArtifact(ctx, id, "algorithm.py", []byte(prog.Source))

	if p.opts.DryRun {
		result.Reason = "dry run stopped before backtesting"
		return result, nil
	}

	return p.backtest(ctx, cand, rec, result, prog, windows)
}

// backtest runs the in-sample windows, the analysis stages, and the
// one-shot out-of-sample window.
func (p *Pipeline) backtest(ctx context.Context, cand *strategy.Candidate, rec *validation.StateRecord, result *Result, prog *ports.GeneratedProgram, windows []validation.WindowSpec) (*Result, error) {
	id := cand.ID

	isWindows, oosWindow := splitWindows(windows)

	if err := p.orch.Transition(ctx, rec, validation.StateISTesting, "running in-sample windows"); err != nil {
		return nil, err
	}

	wf, finalSource, err := p.executor.Execute(ctx, cand, prog, isWindows)
	if err != nil {
		return nil, err
	}
	wf.RunID = rec.RunID
	result.WalkForward = wf
	if finalSource != prog.Source {
		_ = p.store.SaveArtifact(ctx, id, "algorithm.py", []byte(finalSource))
	}
	p.saveJSON(ctx, id, "walk_forward.json", wf)

	if wf.Outcome == validation.DeterminationRetryLater || wf.Outcome == validation.DeterminationBlocked {
		return p.finish(ctx, cand, rec, result, wf.Outcome, wf.Reason)
	}

	if err := p.orch.Transition(ctx, rec, validation.StateStatistical, "testing significance"); err != nil {
		return nil, err
	}
	observedSharpe := 0.0
	if wf.Aggregate != nil && wf.Aggregate.Sharpe != nil {
		observedSharpe = *wf.Aggregate.Sharpe
	}
	result.Significance = p.stats.Evaluate(observedSharpe, statistics.SampleYears(isWindows))

	if err := p.orch.Transition(ctx, rec, validation.StateRegime, "checking regime consistency"); err != nil {
		return nil, err
	}
	result.Regime = regime.Analyze(wf.Windows)

	if err := p.orch.Transition(ctx, rec, validation.StateOOSTesting, "running out-of-sample window"); err != nil {
		return nil, err
	}

	oosOutcome, err := p.runOOS(ctx, cand, finalSource, oosWindow, wf)
	if err != nil {
		return nil, err
	}
	if err := p.orch.SubmitOOS(ctx, rec, oosOutcome); err != nil {
		return nil, err
	}
	if oosOutcome.RateLimited {
		wf.Outcome = validation.DeterminationRetryLater
		wf.IsTransient = true
		wf.Reason = "out-of-sample window rate limited"
		p.saveJSON(ctx, id, "walk_forward.json", wf)
		return p.finish(ctx, cand, rec, result, wf.Outcome, wf.Reason)
	}
	if oosOutcome.EngineCrash {
		wf.Outcome = validation.DeterminationBlocked
		wf.Reason = "out-of-sample window crashed the engine"
		p.saveJSON(ctx, id, "walk_forward.json", wf)
		return p.finish(ctx, cand, rec, result, wf.Outcome, wf.Reason)
	}

	allWindows := appendOOS(wf.Windows, oosOutcome, oosWindow != nil)
	wf.Windows = allWindows
	wf.Aggregate = walkforward.Aggregate(allWindows)
	p.saveJSON(ctx, id, "walk_forward.json", wf)
	p.saveWindowsYAML(ctx, id, allWindows)

	result.Gates = p.gates.Evaluate(wf.Aggregate)
	result.Flags = append(p.sanity.Check(wf.Aggregate), p.sanity.CheckWindows(allWindows)...)

	outcome, reason := orchestrator.Determine(orchestrator.DeterminationInput{
		Gates:        result.Gates,
		Flags:        result.Flags,
		Significance: result.Significance,
		Regime:       result.Regime,
	})
	return p.finish(ctx, cand, rec, result, outcome, reason)
}

// runOOS executes the held-out window with no correction loop. A
// single-window schedule has no held-out window; its one result is
// submitted as the out-of-sample evidence.
func (p *Pipeline) runOOS(ctx context.Context, cand *strategy.Candidate, source string, oosWindow *validation.WindowSpec, wf *validation.WalkForward) (*validation.WindowOutcome, error) {
	if oosWindow == nil {
		last := wf.Windows[len(wf.Windows)-1]
		return &last, nil
	}
	oosExec := walkforward.NewExecutor(p.executorRunner(), nil, 0)
	oosWF, _, err := oosExec.Execute(ctx, cand,
		&ports.GeneratedProgram{Source: source}, []validation.WindowSpec{*oosWindow})
	if err != nil {
		return nil, err
	}
	return &oosWF.Windows[0], nil
}

// executorRunner exposes the runner for the one-off OOS executor.
func (p *Pipeline) executorRunner() ports.BacktestRunner {
	return p.executor.Runner()
}

// finish records the determination, persists the result artifacts, and
// files the candidate into its outcome bucket.
func (p *Pipeline) finish(ctx context.Context, cand *strategy.Candidate, rec *validation.StateRecord, result *Result, outcome validation.Determination, reason string) (*Result, error) {
	result.Determination = outcome
	result.Reason = reason

	if err := p.orch.Complete(ctx, rec, outcome, reason); err != nil {
		return nil, err
	}
	p.saveJSON(ctx, cand.ID, "run_result.json", result)
	p.saveJSON(ctx, cand.ID, "determination.json", map[string]string{
		"determination": string(outcome),
		"reason":        reason,
	})

	if bucket, moved := bucketFor(outcome); moved {
		if err := p.catalog.Move(ctx, cand.ID, bucket); err != nil {
			return nil, err
		}
		cand.Status = bucket
	}

	if p.index != nil {
		if err := p.index.Upsert(ctx, cand, outcome, reason); err != nil {
			p.log.Warn().Err(err).Msg("index update failed")
		}
	}

	p.log.Info().Str("strategy", string(cand.ID)).
		Str("determination", string(outcome)).Str("reason", reason).Msg("run finished")
	return result, nil
}

// bucketFor maps a determination to a status bucket. RETRY_LATER
// leaves the candidate pending.
func bucketFor(outcome validation.Determination) (strategy.Status, bool) {
	switch outcome {
	case validation.DeterminationValidated, validation.DeterminationConditional:
		return strategy.StatusValidated, true
	case validation.DeterminationInvalidated:
		return strategy.StatusInvalidated, true
	case validation.DeterminationBlocked, validation.DeterminationFailed:
		return strategy.StatusBlocked, true
	default:
		return "", false
	}
}

// splitWindows holds the last window out of sample. A single-window
// schedule keeps its window in sample.
func splitWindows(windows []validation.WindowSpec) ([]validation.WindowSpec, *validation.WindowSpec) {
	if len(windows) < 2 {
		return windows, nil
	}
	last := windows[len(windows)-1]
	return windows[:len(windows)-1], &last
}

func appendOOS(windows []validation.WindowOutcome, oos *validation.WindowOutcome, held bool) []validation.WindowOutcome {
	if !held {
		return windows
	}
	return append(windows, *oos)
}

// dossier is the locked input set: candidate, schedule, thresholds.
func dossier(cand *strategy.Candidate, windows []validation.WindowSpec, cfg *config.Config) map[string]any {
	return map[string]any{
		"strategy_id":   string(cand.ID),
		"strategy_type": cand.StrategyType(),
		"parameters":    cand.Parameters,
		"data_primary":  cand.PrimaryData(),
		"windows":       windows,
		"gates":         cfg.Gates,
		"statistics":    cfg.Statistics,
	}
}

func (p *Pipeline) saveJSON(ctx context.Context, id core.StrategyID, name string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		p.log.Warn().Err(err).Str("artifact", name).Msg("artifact encode failed")
		return
	}
	if err := p.store.SaveArtifact(ctx, id, name, data); err != nil {
		p.log.Warn().Err(err).Str("artifact", name).Msg("artifact write failed")
	}
}

func (p *Pipeline) saveWindowsYAML(ctx context.Context, id core.StrategyID, windows []validation.WindowOutcome) {
	data, err := yaml.Marshal(map[string]any{"windows": windows})
	if err != nil {
		return
	}
	_ = p.store.SaveArtifact(ctx, id, "backtest_results.yaml", data)
}
