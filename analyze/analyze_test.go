package analyze

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pairgo/expr"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/pairs"
	"github.com/hupe1980/pairgo/signature"
	"github.com/hupe1980/pairgo/subset"
	"github.com/hupe1980/pairgo/testutil"
)

func fixtures(t *testing.T) (*expr.SparseMatrix, *recfile.Store, *subset.Subset, *subset.Subset) {
	t.Helper()
	rng := testutil.NewRNG(61)
	m := rng.ClusteredMatrix(120, 24, 4, 2.0)
	store, err := recfile.NewStore(t.TempDir())
	require.NoError(t, err)
	return m, store, subset.All(120), subset.All(24)
}

func exactTable(t *testing.T, store *recfile.Store, m *expr.SparseMatrix, genes, cells *subset.Subset, name string, threshold float64) *pairs.Pairs {
	t.Helper()
	p, err := pairs.Create(store, name, 8, genes, cells)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	want, err := testutil.ExactPairs(m, genes, cells, threshold)
	require.NoError(t, err)
	for _, pr := range want {
		require.NoError(t, p.Insert(pr.I, pr.J, float32(pr.Similarity)))
	}
	p.FinalizeSort()
	return p
}

func TestEstimate(t *testing.T) {
	m, store, genes, cells := fixtures(t)
	p := exactTable(t, store, m, genes, cells, "exact", 0.9)

	sigs, err := signature.Generate(m, genes, cells, 1024, 7)
	require.NoError(t, err)

	stats, err := Estimate(context.Background(), p, sigs)
	require.NoError(t, err)

	assert.Greater(t, stats.Entries, 0)
	// Stored similarities are all >= 0.9; a 1024-bit estimate stays close.
	assert.InDelta(t, 0, stats.MeanError, 0.15)
	assert.Less(t, stats.StdDevError, 0.15)
}

func TestEstimateMismatchedSets(t *testing.T) {
	m, store, genes, cells := fixtures(t)
	p := exactTable(t, store, m, genes, cells, "exact", 0.9)

	smaller := subset.All(10)
	sigs, err := signature.Generate(m, genes, smaller, 256, 7)
	require.NoError(t, err)

	_, err = Estimate(context.Background(), p, sigs)
	assert.ErrorIs(t, err, ErrMismatchedSets)
}

func TestEstimateEmptyIndex(t *testing.T) {
	m, store, genes, cells := fixtures(t)

	p, err := pairs.Create(store, "empty", 4, genes, cells)
	require.NoError(t, err)
	defer p.Close()

	sigs, err := signature.Generate(m, genes, cells, 256, 7)
	require.NoError(t, err)

	_, err = Estimate(context.Background(), p, sigs)
	assert.ErrorIs(t, err, ErrNoPairs)
}

func TestCompare(t *testing.T) {
	m, store, genes, cells := fixtures(t)

	// The 0.95 table's pairs are a subset of the 0.85 table's.
	loose := exactTable(t, store, m, genes, cells, "loose", 0.85)
	tight := exactTable(t, store, m, genes, cells, "tight", 0.95)

	cmp, err := Compare(context.Background(), loose, tight)
	require.NoError(t, err)

	assert.Greater(t, cmp.Common, 0)
	assert.Zero(t, cmp.OnlyB)
	assert.Zero(t, cmp.MeanAbsDiff) // identical scoring on common pairs

	// Compared against itself, nothing is exclusive.
	self, err := Compare(context.Background(), loose, loose)
	require.NoError(t, err)
	assert.Zero(t, self.OnlyA)
	assert.Zero(t, self.OnlyB)
	assert.Equal(t, cmp.Common+cmp.OnlyA, self.Common)
}

func TestCompareMismatchedSets(t *testing.T) {
	m, store, genes, cells := fixtures(t)
	a := exactTable(t, store, m, genes, cells, "a", 0.9)

	b, err := pairs.Create(store, "b", 4, genes, subset.All(10))
	require.NoError(t, err)
	defer b.Close()

	_, err = Compare(context.Background(), a, b)
	assert.ErrorIs(t, err, ErrMismatchedSets)
}
