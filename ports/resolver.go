package ports

import (
	"context"

	"stratval/domain/strategy"
	"stratval/domain/validation"
)

// DataResolver maps a candidate's data requirements onto known sources.
type DataResolver interface {
	Resolve(ctx context.Context, cand *strategy.Candidate) (*validation.DataAudit, error)
}
