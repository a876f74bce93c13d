package walkforward

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"stratval/domain/strategy"
	"stratval/domain/validation"
	"stratval/internal/logging"
	"stratval/internal/retry"
	"stratval/ports"
)

// correctableErrorPatterns match engine errors the model-backed
// correction loop has a realistic chance of fixing: API misuse, typos,
// and programs that never trade.
var correctableErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AttributeError.*has no attribute`),
	regexp.MustCompile(`NameError.*not defined`),
	regexp.MustCompile(`TypeError.*argument`),
	regexp.MustCompile(`IndexError.*out of range`),
	regexp.MustCompile(`KeyError`),
	regexp.MustCompile(`No such option`),
	regexp.MustCompile(`Resolution\.`),
	regexp.MustCompile(`DataNormalizationMode`),
	regexp.MustCompile(`is_ready`),
	regexp.MustCompile(`invalid syntax`),
	regexp.MustCompile(`unexpected keyword argument`),
	regexp.MustCompile(`missing.*positional`),
	regexp.MustCompile(`not callable`),
	regexp.MustCompile(`not subscriptable`),
	regexp.MustCompile(`zero trades executed`),
}

// IsCorrectable reports whether the correction loop should attempt a
// fix for this engine error.
func IsCorrectable(errorText string) bool {
	for _, re := range correctableErrorPatterns {
		if re.MatchString(errorText) {
			return true
		}
	}
	return false
}

// Executor runs a candidate's program across the window schedule.
type Executor struct {
	runner         ports.BacktestRunner
	generator      ports.ProgramGenerator
	maxCorrections int
	log            zerolog.Logger
}

// NewExecutor builds a walk-forward executor. generator may be nil;
// the correction loop is then disabled.
func NewExecutor(runner ports.BacktestRunner, generator ports.ProgramGenerator, maxCorrections int) *Executor {
	return &Executor{
		runner:         runner,
		generator:      generator,
		maxCorrections: maxCorrections,
		log:            logging.For("walkforward"),
	}
}

// Runner exposes the underlying backtest runner.
func (e *Executor) Runner() ports.BacktestRunner {
	return e.runner
}

// Execute runs the schedule in order. The first window doubles as the
// shake-out run: correctable errors there go through the correction
// loop and the fixed program carries into the remaining windows.
// Rate-limited windows park the whole run for a later retry; an engine
// crash blocks it permanently.
func (e *Executor) Execute(ctx context.Context, cand *strategy.Candidate, prog *ports.GeneratedProgram, windows []validation.WindowSpec) (*validation.WalkForward, string, error) {
	result := &validation.WalkForward{StrategyID: cand.ID}
	source := prog.Source

	for i, window := range windows {
		outcome, err := e.runWindow(ctx, cand, &source, window, i == 0)
		if err != nil {
			return nil, source, err
		}
		result.Windows = append(result.Windows, *outcome)

		if outcome.RateLimited {
			result.Outcome = validation.DeterminationRetryLater
			result.IsTransient = true
			result.Reason = fmt.Sprintf("window %d rate limited: %s", window.ID, outcome.Error)
			return result, source, nil
		}
		if outcome.EngineCrash {
			result.Outcome = validation.DeterminationBlocked
			result.Reason = fmt.Sprintf("window %d crashed the engine: %s", window.ID, outcome.Error)
			return result, source, nil
		}
	}

	result.Aggregate = Aggregate(result.Windows)
	if result.Aggregate.WindowsPassed == 0 {
		result.Outcome = validation.DeterminationBlocked
		result.Reason = "no successful backtest windows"
		return result, source, nil
	}

	result.Outcome = validation.DeterminationPending
	return result, source, nil
}

// runWindow executes one window as a bounded retry loop: the first
// attempt runs the source as-is, and when this is the first window and
// the error looks fixable, each further attempt runs a corrected
// program. source is updated in place when a correction lands.
func (e *Executor) runWindow(ctx context.Context, cand *strategy.Candidate, source *string, window validation.WindowSpec, allowCorrection bool) (*validation.WindowOutcome, error) {
	req := ports.BacktestRequest{
		StrategyID: string(cand.ID),
		Source:     *source,
		Window:     window,
		Name:       fmt.Sprintf("%s-w%d", cand.ID, window.ID),
	}

	attempts := 1
	if allowCorrection && e.generator != nil {
		attempts += e.maxCorrections
	}

	var outcome *validation.WindowOutcome
	err := retry.Policy{MaxAttempts: attempts}.Do(ctx, func(attempt int) (retry.Decision, error) {
		if attempt > 1 {
			e.log.Info().Str("strategy", string(cand.ID)).Int("attempt", attempt-1).
				Str("error", outcome.Error).Msg("attempting error correction")

			corrected, err := e.generator.Correct(ctx, cand, *source, outcome.Error)
			if err != nil {
				e.log.Warn().Err(err).Msg("correction generation failed")
				return retry.Done, nil
			}
			*source = corrected.Source
			req.Source = *source
		}

		run, err := e.runner.Run(ctx, req)
		if err != nil {
			return retry.Done, err
		}
		run.Attempts = attempt
		outcome = run

		if run.Success || run.RateLimited || run.EngineCrash {
			return retry.Done, nil
		}
		if !IsCorrectable(run.Error) {
			return retry.Done, nil
		}
		return retry.Again, nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
