package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"stratval/domain/core"
	"stratval/domain/strategy"
	"stratval/domain/validation"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenIndex("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexUpsertAndGet(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	cand := testCandidate()
	cand.Status = strategy.StatusValidated
	require.NoError(t, idx.Upsert(ctx, cand, validation.DeterminationValidated, "all gates passed"))

	row, err := idx.Get(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, string(testID), row.ID)
	assert.Equal(t, "validated", row.Status)
	assert.Equal(t, "VALIDATED", row.Determination)
	assert.Equal(t, "all gates passed", row.Reason)
}

func TestIndexUpsertReplaces(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	cand := testCandidate()
	require.NoError(t, idx.Upsert(ctx, cand, validation.DeterminationPending, ""))

	cand.Status = strategy.StatusInvalidated
	require.NoError(t, idx.Upsert(ctx, cand, validation.DeterminationInvalidated, "performance gates not met"))

	row, err := idx.Get(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, "INVALIDATED", row.Determination)

	all, err := idx.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestIndexGetMissing(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Get(context.Background(), core.StrategyID("STRAT-NOPE-1"))
	require.Error(t, err)
	assert.True(t, core.IsNotFoundError(err))
}

func TestIndexCountByStatus(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for _, tc := range []struct {
		id     core.StrategyID
		status strategy.Status
	}{
		{"STRAT-A-1", strategy.StatusValidated},
		{"STRAT-B-1", strategy.StatusValidated},
		{"STRAT-C-1", strategy.StatusBlocked},
	} {
		cand := &strategy.Candidate{ID: tc.id, Name: string(tc.id), Status: tc.status}
		require.NoError(t, idx.Upsert(ctx, cand, validation.DeterminationPending, ""))
	}

	counts, err := idx.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["validated"])
	assert.Equal(t, 1, counts["blocked"])
}
