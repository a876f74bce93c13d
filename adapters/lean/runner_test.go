package lean

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stratval/domain/validation"
	"stratval/internal/config"
	"stratval/ports"
)

// scriptedRunner returns canned outputs in sequence.
type scriptedRunner struct {
	outputs []string
	codes   []int
	calls   int
}

func (s *scriptedRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, int, error) {
	idx := s.calls
	if idx >= len(s.outputs) {
		idx = len(s.outputs) - 1
	}
	s.calls++
	return s.outputs[idx], s.codes[idx], nil
}

func testBacktestConfig() config.BacktestConfig {
	return config.BacktestConfig{
		Mode:           "local",
		LeanCLI:        "lean",
		Timeout:        time.Minute,
		PollInterval:   time.Millisecond,
		NodeWaitMin:    time.Millisecond,
		NodeWaitMax:    2 * time.Millisecond,
		MaxRateRetries: 3,
	}
}

func testRequest() ports.BacktestRequest {
	return ports.BacktestRequest{
		StrategyID: "STRAT-001",
		Source: `from AlgorithmImports import *

class Strat001Algorithm(QCAlgorithm):
    def initialize(self):
        self.set_cash(100000)
`,
		Window: validation.WindowSpec{ID: 1, Start: "2012-01-01", End: "2015-12-31"},
		Name:   "STRAT-001-w1",
	}
}

func newTestRunner(t *testing.T, cmd CommandRunner) *Runner {
	t.Helper()
	r := NewRunner(testBacktestConfig(), t.TempDir(), nil).WithCommandRunner(cmd)
	return r.WithSleep(func(ctx context.Context, d time.Duration) error { return nil })
}

func TestRunnerSuccessParsesStats(t *testing.T) {
	cmd := &scriptedRunner{
		outputs: []string{sampleOutput},
		codes:   []int{0},
	}
	r := newTestRunner(t, cmd)

	outcome, err := r.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	require.NotNil(t, outcome.Sharpe)
	assert.InDelta(t, 1.12, *outcome.Sharpe, 1e-9)
	assert.Equal(t, 1, cmd.calls)
}

func TestRunnerWritesProjectWithRewrittenDates(t *testing.T) {
	cmd := &scriptedRunner{outputs: []string{sampleOutput}, codes: []int{0}}
	workDir := t.TempDir()
	r := NewRunner(testBacktestConfig(), workDir, nil).
		WithCommandRunner(cmd).
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil })

	_, err := r.Run(context.Background(), testRequest())
	require.NoError(t, err)

	src, err := os.ReadFile(filepath.Join(workDir, "_runner", "STRAT-001", "main.py"))
	require.NoError(t, err)
	assert.Contains(t, string(src), "self.set_start_date(2012, 1, 1)")
	assert.Contains(t, string(src), "self.set_end_date(2015, 12, 31)")

	cfg, err := os.ReadFile(filepath.Join(workDir, "_runner", "STRAT-001", "config.json"))
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "Python")
}

func TestRunnerRetriesRateLimit(t *testing.T) {
	cmd := &scriptedRunner{
		outputs: []string{"Error: no spare nodes available", sampleOutput},
		codes:   []int{1, 0},
	}
	r := newTestRunner(t, cmd)

	outcome, err := r.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.False(t, outcome.RateLimited)
	assert.Equal(t, 2, cmd.calls)
}

func TestRunnerRateLimitExhausted(t *testing.T) {
	cmd := &scriptedRunner{
		outputs: []string{"rate limit exceeded"},
		codes:   []int{1},
	}
	r := newTestRunner(t, cmd)

	outcome, err := r.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, outcome.RateLimited)
	assert.False(t, outcome.Success)
	assert.Equal(t, 3, cmd.calls)
}

func TestRunnerEngineCrashNotRetried(t *testing.T) {
	cmd := &scriptedRunner{
		outputs: []string{"FATAL UNHANDLED EXCEPTION: boom"},
		codes:   []int{1},
	}
	r := newTestRunner(t, cmd)

	outcome, err := r.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, outcome.EngineCrash)
	assert.False(t, outcome.Success)
	assert.Equal(t, 1, cmd.calls)
}

// hangingRunner blocks until the context expires, like an engine run
// that never finishes inside the window timeout.
type hangingRunner struct {
	calls int
}

func (h *hangingRunner) Run(ctx context.Context, dir string, name string, args ...string) (string, int, error) {
	h.calls++
	<-ctx.Done()
	return "", -1, ctx.Err()
}

func TestRunnerTimeoutReportedAsRateLimited(t *testing.T) {
	cfg := testBacktestConfig()
	cfg.Timeout = 50 * time.Millisecond
	cmd := &hangingRunner{}
	r := NewRunner(cfg, t.TempDir(), nil).
		WithCommandRunner(cmd).
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil })

	outcome, err := r.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, outcome.RateLimited)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "timeout")
	assert.Equal(t, 1, cmd.calls)
}

func TestRunnerCloudTimeoutDeletesBacktest(t *testing.T) {
	deleted := make(chan string, 1)
	client, _ := newAPITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/projects/read":
			w.Write([]byte(`{"success": true, "projects": [{"projectId": 42, "name": "stratval"}]}`))
		case "/backtests/read":
			// Never completes inside the window timeout.
			w.Write([]byte(`{"success": true, "backtest": {"backtestId": "bt-slow", "completed": false, "progress": 0.4}}`))
		case "/backtests/delete":
			_ = r.ParseForm()
			select {
			case deleted <- r.FormValue("backtestId"):
			default:
			}
			w.Write([]byte(`{"success": true}`))
		default:
			w.Write([]byte(`{"success": true}`))
		}
	})

	cfg := testBacktestConfig()
	cfg.Mode = "cloud"
	cfg.ProjectName = "stratval"
	cfg.Timeout = 200 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MaxRateRetries = 1

	cmd := &scriptedRunner{
		outputs: []string{"Started backtest, results at backtests/bt-slow"},
		codes:   []int{0},
	}
	r := NewRunner(cfg, t.TempDir(), client).WithCommandRunner(cmd)

	outcome, err := r.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, outcome.RateLimited)
	assert.False(t, outcome.Success)

	select {
	case id := <-deleted:
		assert.Equal(t, "bt-slow", id)
	case <-time.After(time.Second):
		t.Fatal("timed-out backtest was not deleted")
	}
}

func TestRunnerRuntimeErrorReported(t *testing.T) {
	cmd := &scriptedRunner{
		outputs: []string{"An error occurred during this backtest: AttributeError: 'x' object has no attribute 'y'"},
		codes:   []int{0},
	}
	r := newTestRunner(t, cmd)

	outcome, err := r.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.Error, "AttributeError")
}
