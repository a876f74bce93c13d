package lean

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stratval/domain/validation"
	"stratval/internal/config"
	"stratval/internal/logging"
	"stratval/internal/retry"
	"stratval/ports"
)

// CommandRunner abstracts subprocess execution so tests can script the
// engine CLI.
type CommandRunner interface {
	Run(ctx context.Context, dir string, name string, args ...string) (output string, exitCode int, err error)
}

// ExecRunner runs real subprocesses with combined output capture.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(out), exitErr.ExitCode(), nil
		}
		return string(out), -1, err
	}
	return string(out), 0, nil
}

var backtestIDRe = regexp.MustCompile(`backtests/([A-Za-z0-9-]+)`)

// Runner drives the engine CLI for one backtest window, in local
// docker mode or against the cloud.
type Runner struct {
	cfg     config.BacktestConfig
	workDir string
	cmd     CommandRunner
	api     *APIClient
	sleep   func(ctx context.Context, d time.Duration) error
	rng     *rand.Rand
	log     zerolog.Logger
}

// NewRunner builds an engine runner. api may be nil in local mode.
func NewRunner(cfg config.BacktestConfig, workDir string, api *APIClient) *Runner {
	return &Runner{
		cfg:     cfg,
		workDir: workDir,
		cmd:     ExecRunner{},
		api:     api,
		sleep:   sleepCtx,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     logging.For("lean"),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// WithCommandRunner swaps the subprocess layer. Tests use this.
func (r *Runner) WithCommandRunner(cmd CommandRunner) *Runner {
	r.cmd = cmd
	return r
}

// WithSleep swaps the backoff sleeper. Tests use this.
func (r *Runner) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Runner {
	r.sleep = sleep
	return r
}

// Run executes one window. Rate-limited attempts are retried a bounded
// number of times after a randomized node wait; a still-rate-limited
// final attempt is reported on the outcome so the caller can park the
// candidate instead of failing it. A run that outlives its deadline is
// also reported as rate limited: the engine is slow, not broken.
func (r *Runner) Run(ctx context.Context, req ports.BacktestRequest) (*validation.WindowOutcome, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	source, err := RewriteDates(req.Source, req.Window)
	if err != nil {
		return nil, err
	}

	projectDir, err := r.prepareProject(req.StrategyID, source)
	if err != nil {
		return nil, err
	}

	var outcome *validation.WindowOutcome
	policy := retry.Policy{MaxAttempts: r.cfg.MaxRateRetries}
	err = policy.Do(runCtx, func(attempt int) (retry.Decision, error) {
		if attempt > 1 {
			if err := r.sleep(runCtx, r.nodeWait()); err != nil {
				return retry.Done, err
			}
		}
		out, err := r.runOnce(runCtx, projectDir, req)
		if out != nil {
			outcome = out
		}
		if err != nil {
			return retry.Done, err
		}
		if !out.RateLimited {
			return retry.Done, nil
		}
		r.log.Warn().Str("strategy", req.StrategyID).Int("window", req.Window.ID).
			Int("attempt", attempt).Msg("engine rate limited, waiting for a node")
		r.cleanupOrphans(runCtx, req.Name)
		return retry.Again, nil
	})

	if deadlineHit(runCtx, err) && (err != nil || outcome == nil || !outcome.Success) {
		return r.timeoutOutcome(ctx, req, outcome), nil
	}
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func deadlineHit(ctx context.Context, err error) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded)
}

// timeoutOutcome converts a run that exceeded its deadline into a
// transient outcome. The engine may still be chewing on a cloud
// backtest, so that backtest is deleted first to free its node.
func (r *Runner) timeoutOutcome(ctx context.Context, req ports.BacktestRequest, outcome *validation.WindowOutcome) *validation.WindowOutcome {
	r.log.Warn().Str("strategy", req.StrategyID).Int("window", req.Window.ID).
		Dur("timeout", r.cfg.Timeout).Msg("backtest timed out")

	if r.cfg.Mode == "cloud" && r.api != nil && outcome != nil && outcome.BacktestID != "" {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		projectID, err := r.api.FindProject(cleanupCtx, r.cfg.ProjectName)
		if err == nil {
			err = r.api.DeleteBacktest(cleanupCtx, projectID, outcome.BacktestID)
		}
		if err != nil {
			r.log.Warn().Err(err).Str("backtest", outcome.BacktestID).
				Msg("timed-out backtest cleanup failed")
		}
	}

	return &validation.WindowOutcome{
		Window:      req.Window,
		RateLimited: true,
		Error:       fmt.Sprintf("backtest exceeded %s timeout", r.cfg.Timeout),
	}
}

// nodeWait picks a randomized wait inside the configured band so
// parallel candidates do not stampede the node pool together.
func (r *Runner) nodeWait() time.Duration {
	min, max := r.cfg.NodeWaitMin, r.cfg.NodeWaitMax
	if max <= min {
		return min
	}
	return min + time.Duration(r.rng.Int63n(int64(max-min)))
}

// prepareProject writes the engine project directory. Local runs reuse
// a per-strategy directory; the engine CLI keeps its data cache there.
func (r *Runner) prepareProject(strategyID, source string) (string, error) {
	dir := filepath.Join(r.workDir, "_runner", strategyID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte(source), 0o644); err != nil {
		return "", err
	}
	cfg := `{
    "algorithm-language": "Python",
    "parameters": {},
    "description": ""
}
`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

func (r *Runner) runOnce(ctx context.Context, projectDir string, req ports.BacktestRequest) (*validation.WindowOutcome, error) {
	outcome := &validation.WindowOutcome{Window: req.Window}

	var args []string
	if r.cfg.Mode == "cloud" {
		args = []string{"cloud", "backtest", filepath.Base(projectDir), "--name", req.Name, "--push"}
	} else {
		args = []string{"backtest", filepath.Base(projectDir)}
	}

	output, exitCode, err := r.cmd.Run(ctx, filepath.Dir(projectDir), r.cfg.LeanCLI, args...)
	if err != nil {
		return nil, err
	}

	class, message := Classify(output, exitCode)
	switch class {
	case ClassEngineCrash:
		outcome.EngineCrash = true
		outcome.Error = message
		return outcome, nil
	case ClassRateLimited:
		outcome.RateLimited = true
		outcome.Error = message
		return outcome, nil
	case ClassExitFailure, ClassRuntimeError:
		outcome.Error = message
		return outcome, nil
	}

	outcome.Success = true
	if r.cfg.Mode == "cloud" && r.api != nil {
		if id := extractBacktestID(output); id != "" {
			outcome.BacktestID = id
			if err := r.awaitCloudStats(ctx, id, outcome); err != nil {
				// The outcome carries the backtest ID so a timed-out
				// run can still be cleaned up.
				return outcome, err
			}
			return outcome, nil
		}
	}

	ParseStats(output, outcome)
	return outcome, nil
}

func extractBacktestID(output string) string {
	if m := backtestIDRe.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return ""
}

// awaitCloudStats polls the API until the backtest completes, then
// maps its statistics onto the outcome.
func (r *Runner) awaitCloudStats(ctx context.Context, backtestID string, outcome *validation.WindowOutcome) error {
	projectID, err := r.api.FindProject(ctx, r.cfg.ProjectName)
	if err != nil {
		return err
	}

	for {
		result, err := r.api.ReadBacktest(ctx, projectID, backtestID)
		if err != nil {
			return err
		}
		if result.Completed {
			if result.Error != "" {
				outcome.Success = false
				outcome.Error = result.Error
				return nil
			}
			StatsFromAPI(result.Statistics, outcome)
			return nil
		}
		r.log.Debug().Str("backtest", backtestID).Float64("progress", result.Progress).
			Msg("backtest in progress")
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// cleanupOrphans deletes queued cloud backtests matching this run's
// name. Interrupted rate-limited submissions otherwise pile up and
// hold nodes.
func (r *Runner) cleanupOrphans(ctx context.Context, name string) {
	if r.api == nil || r.cfg.Mode != "cloud" {
		return
	}
	projectID, err := r.api.FindProject(ctx, r.cfg.ProjectName)
	if err != nil {
		return
	}
	backtests, err := r.api.ListBacktests(ctx, projectID)
	if err != nil {
		return
	}
	for _, bt := range backtests {
		if bt.Completed || !strings.HasPrefix(bt.Name, name) {
			continue
		}
		if err := r.api.DeleteBacktest(ctx, projectID, bt.BacktestID); err != nil {
			r.log.Warn().Err(err).Str("backtest", bt.BacktestID).Msg("orphan cleanup failed")
		}
	}
}

// interface check
var _ ports.BacktestRunner = (*Runner)(nil)
