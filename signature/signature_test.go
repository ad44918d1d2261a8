package signature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/expr"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/subset"
	"github.com/hupe1980/pairgo/testutil"
)

func newStore(t *testing.T) *recfile.Store {
	t.Helper()
	store, err := recfile.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestGenerateValidation(t *testing.T) {
	m := expr.NewSparseMatrix(10, 4)

	_, err := Generate(m, subset.All(10), subset.All(4), 0, 1)
	assert.ErrorIs(t, err, ErrInvalidBitCount)

	_, err = Generate(m, subset.New(nil), subset.All(4), 64, 1)
	assert.ErrorIs(t, err, ErrEmptyGeneSet)

	_, err = Generate(m, subset.All(10), subset.New(nil), 64, 1)
	assert.ErrorIs(t, err, ErrEmptyCellSet)
}

func TestGenerateDeterminism(t *testing.T) {
	rng := testutil.NewRNG(42)
	m := rng.SparseMatrix(100, 16, 0.3, 10)
	genes := subset.All(100)
	cells := subset.All(16)

	a, err := Generate(m, genes, cells, 256, 7)
	require.NoError(t, err)
	b, err := Generate(m, genes, cells, 256, 7)
	require.NoError(t, err)

	for i := 0; i < 16; i++ {
		assert.Equal(t, a.Words(core.LocalID(i)), b.Words(core.LocalID(i)))
	}

	// A different seed draws different hyperplanes.
	c, err := Generate(m, genes, cells, 256, 8)
	require.NoError(t, err)
	differ := false
	for i := 0; i < 16 && !differ; i++ {
		differ = !assert.ObjectsAreEqual(a.Words(core.LocalID(i)), c.Words(core.LocalID(i)))
	}
	assert.True(t, differ)
}

func TestIdenticalVectorsHaveZeroDistance(t *testing.T) {
	m := expr.NewSparseMatrix(20, 2)
	for g := 0; g < 20; g += 3 {
		require.NoError(t, m.Add(0, core.GlobalID(g), float32(g+1)))
		require.NoError(t, m.Add(1, core.GlobalID(g), float32(g+1)))
	}

	s, err := Generate(m, subset.All(20), subset.All(2), 128, 1)
	require.NoError(t, err)

	assert.Equal(t, 0, s.HammingDistance(0, 1))
	assert.Equal(t, 1.0, s.EstimatedSimilarity(0, 1))
	assert.Equal(t, 1.0, s.Similarity(0, 1))
}

func TestEstimateIsCosineOfHammingFraction(t *testing.T) {
	rng := testutil.NewRNG(3)
	m := rng.SparseMatrix(60, 8, 0.4, 5)

	s, err := Generate(m, subset.All(60), subset.All(8), 8, 11)
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		for j := i + 1; j < 8; j++ {
			h := s.HammingDistance(core.LocalID(i), core.LocalID(j))
			want := math.Cos(math.Pi * float64(h) / 8)
			assert.InDelta(t, want, s.EstimatedSimilarity(core.LocalID(i), core.LocalID(j)), 1e-12)
		}
	}
}

func TestEstimateConstants(t *testing.T) {
	m := expr.NewSparseMatrix(10, 2)
	require.NoError(t, m.Add(0, 0, 1))
	require.NoError(t, m.Add(1, 1, 1))

	s, err := Generate(m, subset.All(10), subset.All(2), 8, 1)
	require.NoError(t, err)

	// Two differing bits out of eight estimate cos(π/4).
	assert.InDelta(t, math.Sqrt2/2, s.cosTable[2], 1e-12)
	assert.Equal(t, -1.0, s.cosTable[8])
	assert.Equal(t, 1.0, s.cosTable[0])
}

func TestEstimateTracksCorrelation(t *testing.T) {
	rng := testutil.NewRNG(5)
	m := rng.ClusteredMatrix(200, 12, 3, 2.0)
	genes := subset.All(200)
	cells := subset.All(12)

	s, err := Generate(m, genes, cells, 1024, 99)
	require.NoError(t, err)

	scorer, err := expr.NewCorrelationScorer(m, genes, cells, expr.NormalizationNone)
	require.NoError(t, err)

	// Same-cluster pairs: high correlation, high estimate.
	for _, pair := range [][2]core.LocalID{{0, 3}, {1, 4}, {2, 5}} {
		exact := scorer.Similarity(pair[0], pair[1])
		est := s.EstimatedSimilarity(pair[0], pair[1])
		require.Greater(t, exact, 0.9)
		assert.InDelta(t, exact, est, 0.15)
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	store := newStore(t)
	rng := testutil.NewRNG(17)
	m := rng.SparseMatrix(80, 10, 0.3, 8)
	genes := subset.All(80)
	cells := subset.All(10)

	s, err := Compute(store, "sigs", m, genes, cells, 192, 123)
	require.NoError(t, err)

	mem, err := Generate(m, genes, cells, 192, 123)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.Equal(t, mem.Words(core.LocalID(i)), s.Words(core.LocalID(i)))
	}
	require.NoError(t, s.Close())

	assert.True(t, Exists(store, "sigs"))

	r, err := Open(store, "sigs")
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 192, r.BitCount())
	assert.Equal(t, 3, r.WordCount())
	assert.Equal(t, 10, r.ItemCount())
	assert.Equal(t, uint64(123), r.Seed())
	for i := 0; i < 10; i++ {
		assert.Equal(t, mem.Words(core.LocalID(i)), r.Words(core.LocalID(i)))
	}
}

func TestOpenMissingAndRemove(t *testing.T) {
	store := newStore(t)

	_, err := Open(store, "nope")
	assert.ErrorIs(t, err, recfile.ErrNotFound)

	m := expr.NewSparseMatrix(10, 3)
	require.NoError(t, m.Add(0, 1, 2))
	require.NoError(t, m.Add(1, 2, 3))
	require.NoError(t, m.Add(2, 3, 4))

	s, err := Compute(store, "gone", m, subset.All(10), subset.All(3), 64, 1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	require.NoError(t, Remove(store, "gone"))
	assert.False(t, Exists(store, "gone"))
	assert.ErrorIs(t, Remove(store, "gone"), recfile.ErrNotFound)
}

func TestOpenCorruptInfo(t *testing.T) {
	store := newStore(t)

	// An info record of the wrong shape must be rejected.
	f, err := store.Create(infoName("bad"), 16, 1)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Open(store, "bad")
	assert.ErrorIs(t, err, recfile.ErrCorrupt)
}
