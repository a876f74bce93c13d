package ports

import (
	"context"

	"stratval/domain/strategy"
)

// GeneratedProgram is a rendered algorithm with provenance.
type GeneratedProgram struct {
	Source   string
	Template string // template name, or "llm" when generated by fallback
	Model    string // model used, empty for template renders
}

// ProgramGenerator turns a candidate into a runnable backtest program
// and repairs it when the engine rejects it.
type ProgramGenerator interface {
	Generate(ctx context.Context, cand *strategy.Candidate) (*GeneratedProgram, error)
	Correct(ctx context.Context, cand *strategy.Candidate, source, errorText string) (*GeneratedProgram, error)
}
