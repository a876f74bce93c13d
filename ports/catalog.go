package ports

import (
	"context"

	"stratval/domain/core"
	"stratval/domain/strategy"
)

// Catalog is the store of strategy candidates, organized by status
// bucket.
type Catalog interface {
	Load(ctx context.Context, id core.StrategyID) (*strategy.Candidate, error)
	List(ctx context.Context, status strategy.Status) ([]*strategy.Candidate, error)
	Save(ctx context.Context, cand *strategy.Candidate) error
	Move(ctx context.Context, id core.StrategyID, to strategy.Status) error
	ResetStatus(ctx context.Context, id core.StrategyID) error
}
