package ports

import (
	"context"

	"stratval/domain/core"
	"stratval/domain/validation"
)

// ArtifactStore persists per-run artifacts (state records, reports,
// generated programs, raw engine output) under a run directory.
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, id core.StrategyID, name string, data []byte) error
	LoadArtifact(ctx context.Context, id core.StrategyID, name string) ([]byte, error)
	SaveState(ctx context.Context, rec *validation.StateRecord) error
	LoadState(ctx context.Context, id core.StrategyID) (*validation.StateRecord, error)
	RunDir(id core.StrategyID) string
}
