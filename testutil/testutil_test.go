package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/expr"
	"github.com/hupe1980/pairgo/subset"
)

func TestRNGDeterminism(t *testing.T) {
	a := NewRNG(4711)
	b := NewRNG(4711)

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
	}

	a.Reset()
	c := NewRNG(4711)
	assert.Equal(t, c.Float64(), a.Float64())
}

func TestSparseMatrix(t *testing.T) {
	rng := NewRNG(1)
	m := rng.SparseMatrix(50, 10, 0.2, 5)

	assert.Equal(t, 50, m.GeneCount())
	assert.Equal(t, 10, m.CellCount())

	nonzero := 0
	for c := 0; c < 10; c++ {
		row, err := m.Vector(core.GlobalID(c), nil)
		require.NoError(t, err)
		nonzero += len(row)
		for _, e := range row {
			assert.GreaterOrEqual(t, e.Count, float32(1))
			assert.LessOrEqual(t, e.Count, float32(5))
		}
	}
	assert.Greater(t, nonzero, 0)
}

func TestClusteredMatrixIntraVsInter(t *testing.T) {
	rng := NewRNG(7)
	m := rng.ClusteredMatrix(100, 8, 2, 1.0)

	genes := subset.All(100)
	cells := subset.All(8)
	scorer, err := expr.NewCorrelationScorer(m, genes, cells, expr.NormalizationNone)
	require.NoError(t, err)

	// Cells 0 and 2 share a prototype; cells 0 and 1 do not.
	intra := scorer.Similarity(0, 2)
	inter := scorer.Similarity(0, 1)
	assert.Greater(t, intra, 0.9)
	assert.Less(t, inter, intra)
}

func TestExactTopK(t *testing.T) {
	rng := NewRNG(99)
	m := rng.ClusteredMatrix(60, 9, 3, 1.0)

	genes := subset.All(60)
	cells := subset.All(9)
	scorer, err := expr.NewCorrelationScorer(m, genes, cells, expr.NormalizationNone)
	require.NoError(t, err)

	top := ExactTopK(scorer, 0, 2)
	require.Len(t, top, 2)

	// Cells 3 and 6 share cell 0's prototype and must dominate.
	assert.ElementsMatch(t, []core.LocalID{3, 6}, top)
	// Closest first.
	assert.GreaterOrEqual(t,
		scorer.Similarity(0, top[0]),
		scorer.Similarity(0, top[1]))
}

func TestRecall(t *testing.T) {
	truth := map[uint64]bool{
		PairKey(0, 1): true,
		PairKey(1, 2): true,
		PairKey(2, 3): true,
		PairKey(0, 3): true,
	}
	found := map[uint64]bool{
		PairKey(1, 0): true, // order must not matter
		PairKey(1, 2): true,
	}

	assert.InDelta(t, 0.5, Recall(truth, found), 1e-12)
	assert.Equal(t, 1.0, Recall(nil, found))
}
