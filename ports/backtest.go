package ports

import (
	"context"

	"stratval/domain/validation"
)

// BacktestRequest is one window execution of a generated program.
type BacktestRequest struct {
	StrategyID string
	Source     string
	Window     validation.WindowSpec
	Name       string // backtest name shown by the engine
}

// BacktestRunner drives an external backtest engine for one window.
type BacktestRunner interface {
	Run(ctx context.Context, req BacktestRequest) (*validation.WindowOutcome, error)
}
