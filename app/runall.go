package app

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"stratval/domain/strategy"
	"stratval/domain/validation"
	"stratval/internal/report"
)

// RunAll validates every pending candidate with bounded parallelism.
// Per-candidate failures are recorded as FAILED results rather than
// aborting the batch.
func (p *Pipeline) RunAll(ctx context.Context) ([]*Result, error) {
	pending, err := p.catalog.List(ctx, strategy.StatusPending)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		p.log.Info().Msg("no pending candidates")
		return nil, nil
	}

	parallelism := p.cfg.WalkFwd.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	var mu sync.Mutex
	var results []*Result

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, cand := range pending {
		cand := cand
		g.Go(func() error {
			res, err := p.Run(gctx, cand.ID)
			if err != nil {
				p.log.Error().Err(err).Str("strategy", string(cand.ID)).Msg("run failed")
				res = &Result{
					StrategyID:    cand.ID,
					Determination: validation.DeterminationFailed,
					Reason:        err.Error(),
				}
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].StrategyID < results[j].StrategyID
	})
	return results, nil
}

// Summaries converts batch results into report rows.
func Summaries(results []*Result) []report.Summary {
	rows := make([]report.Summary, 0, len(results))
	for _, r := range results {
		rows = append(rows, report.FromWalkForward(
			string(r.StrategyID), "", "", r.WalkForward, r.Determination, r.Reason))
	}
	return rows
}
