package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/subset"
)

func TestSparseMatrix_AddAndVector(t *testing.T) {
	m := NewSparseMatrix(10, 3)

	require.NoError(t, m.Add(0, 7, 2))
	require.NoError(t, m.Add(0, 3, 1))
	require.NoError(t, m.Add(0, 7, 3)) // accumulates

	row, err := m.Vector(0, nil)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Gene: 3, Count: 1}, {Gene: 7, Count: 5}}, row)

	genes := subset.New([]core.GlobalID{7, 9})
	row, err = m.Vector(0, genes)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Gene: 7, Count: 5}}, row)
}

func TestSparseMatrix_Validation(t *testing.T) {
	m := NewSparseMatrix(4, 2)

	assert.ErrorIs(t, m.Add(2, 0, 1), ErrCellOutOfRange)
	assert.ErrorIs(t, m.Add(0, 4, 1), ErrGeneOutOfRange)
	assert.ErrorIs(t, m.Add(0, 0, -1), ErrNegativeCount)

	_, err := m.Vector(5, nil)
	assert.ErrorIs(t, err, ErrCellOutOfRange)
}

func TestRestrict_TranslatesToLocalIDs(t *testing.T) {
	m := NewSparseMatrix(10, 1)
	require.NoError(t, m.Add(0, 2, 1))
	require.NoError(t, m.Add(0, 8, 4))

	genes := subset.New([]core.GlobalID{2, 5, 8})
	v, err := Restrict(m, genes, 0, NormalizationNone)
	require.NoError(t, err)
	assert.Equal(t, []LocalEntry{{Gene: 0, Count: 1}, {Gene: 2, Count: 4}}, v)
}

func TestNormalization(t *testing.T) {
	m := NewSparseMatrix(4, 1)
	require.NoError(t, m.Add(0, 0, 3))
	require.NoError(t, m.Add(0, 1, 4))

	genes := subset.All(4)

	l1, err := Restrict(m, genes, 0, NormalizationL1)
	require.NoError(t, err)
	assert.InDelta(t, 3.0/7.0, l1[0].Count, 1e-6)
	assert.InDelta(t, 4.0/7.0, l1[1].Count, 1e-6)

	l2, err := Restrict(m, genes, 0, NormalizationL2)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, l2[0].Count, 1e-6)
	assert.InDelta(t, 0.8, l2[1].Count, 1e-6)
}

func TestNormalizationMethod_String(t *testing.T) {
	assert.Equal(t, "none", NormalizationNone.String())
	assert.Equal(t, "l1", NormalizationL1.String())
	assert.Equal(t, "l2", NormalizationL2.String())
	assert.True(t, NormalizationL2.Valid())
	assert.False(t, NormalizationMethod(42).Valid())
}

func TestCorrelation_PerfectAndInverse(t *testing.T) {
	a := []LocalEntry{{0, 1}, {1, 2}, {2, 3}}
	b := []LocalEntry{{0, 2}, {1, 4}, {2, 6}}
	assert.InDelta(t, 1.0, Correlation(a, b, 3), 1e-9)

	c := []LocalEntry{{0, 3}, {1, 2}, {2, 1}}
	assert.InDelta(t, -1.0, Correlation(a, c, 3), 1e-9)
}

func TestCorrelation_KnownValue(t *testing.T) {
	// Dense vectors x=(1,2,0,4), y=(2,1,1,3) over dim 4.
	x := []LocalEntry{{0, 1}, {1, 2}, {3, 4}}
	y := []LocalEntry{{0, 2}, {1, 1}, {2, 1}, {3, 3}}

	// Hand-computed Pearson r.
	xs := []float64{1, 2, 0, 4}
	ys := []float64{2, 1, 1, 3}
	var sx, sy, sxx, syy, sxy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxx += xs[i] * xs[i]
		syy += ys[i] * ys[i]
		sxy += xs[i] * ys[i]
	}
	n := float64(4)
	want := (n*sxy - sx*sy) / math.Sqrt((n*sxx-sx*sx)*(n*syy-sy*sy))

	assert.InDelta(t, want, Correlation(x, y, 4), 1e-9)
}

func TestCorrelation_ZeroVariance(t *testing.T) {
	a := []LocalEntry{{0, 1}, {1, 1}}
	var b []LocalEntry // all zero
	assert.Equal(t, 0.0, Correlation(a, b, 2))
	assert.Equal(t, 0.0, Correlation(a, b, 0))
}

func TestCorrelationScorer_MatchesCorrelation(t *testing.T) {
	m := NewSparseMatrix(6, 3)
	counts := [][]float32{
		{0, 1, 2, 0, 3, 0},
		{1, 1, 2, 0, 3, 1},
		{5, 0, 0, 4, 0, 0},
	}
	for cell, row := range counts {
		for gene, c := range row {
			if c != 0 {
				require.NoError(t, m.Add(core.GlobalID(cell), core.GlobalID(gene), c))
			}
		}
	}

	genes := subset.All(6)
	cells := subset.All(3)
	s, err := NewCorrelationScorer(m, genes, cells, NormalizationNone)
	require.NoError(t, err)

	for i := core.LocalID(0); i < 3; i++ {
		for j := core.LocalID(0); j < 3; j++ {
			want := Correlation(s.Vector(i), s.Vector(j), 6)
			assert.InDelta(t, want, s.Similarity(i, j), 1e-9, "pair %d,%d", i, j)
		}
	}

	// Symmetry and self-similarity.
	assert.InDelta(t, s.Similarity(0, 1), s.Similarity(1, 0), 1e-12)
	assert.InDelta(t, 1.0, s.Similarity(1, 1), 1e-9)
}

func TestCorrelationScorer_ScaleInvariance(t *testing.T) {
	m := NewSparseMatrix(4, 2)
	require.NoError(t, m.Add(0, 0, 2))
	require.NoError(t, m.Add(0, 2, 6))
	require.NoError(t, m.Add(1, 0, 1))
	require.NoError(t, m.Add(1, 1, 5))

	genes := subset.All(4)
	cells := subset.All(2)

	raw, err := NewCorrelationScorer(m, genes, cells, NormalizationNone)
	require.NoError(t, err)
	l2, err := NewCorrelationScorer(m, genes, cells, NormalizationL2)
	require.NoError(t, err)

	assert.InDelta(t, raw.Similarity(0, 1), l2.Similarity(0, 1), 1e-6)
}
