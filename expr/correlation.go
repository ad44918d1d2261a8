package expr

import (
	"math"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/subset"
)

// Correlation computes the Pearson correlation coefficient of two sparse
// vectors over a dim-dimensional space, treating absent coordinates as zero.
// Both vectors must be sorted by gene id. Returns 0 when either vector has
// zero variance.
func Correlation(a, b []LocalEntry, dim int) float64 {
	if dim == 0 {
		return 0
	}

	var sumX, sumY, sumXX, sumYY, sumXY float64
	for _, e := range a {
		c := float64(e.Count)
		sumX += c
		sumXX += c * c
	}
	for _, e := range b {
		c := float64(e.Count)
		sumY += c
		sumYY += c * c
	}

	// Sparse merge over matching gene ids.
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Gene < b[j].Gene:
			i++
		case a[i].Gene > b[j].Gene:
			j++
		default:
			sumXY += float64(a[i].Count) * float64(b[j].Count)
			i++
			j++
		}
	}

	n := float64(dim)
	varX := n*sumXX - sumX*sumX
	varY := n*sumYY - sumY*sumY
	if varX <= 0 || varY <= 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / math.Sqrt(varX*varY)
}

// CorrelationScorer scores cell pairs by exact Pearson correlation. The
// restricted vectors and their moments are materialized once; Similarity
// then only pays for the sparse merge of the two rows.
//
// Safe for concurrent use once constructed.
type CorrelationScorer struct {
	dim   int
	vecs  [][]LocalEntry
	sumX  []float64
	sumXX []float64
}

// NewCorrelationScorer materializes the scorer for all cells in the subset.
func NewCorrelationScorer(m Matrix, genes, cells *subset.Subset, norm NormalizationMethod) (*CorrelationScorer, error) {
	vecs, err := RestrictAll(m, genes, cells, norm)
	if err != nil {
		return nil, err
	}
	s := &CorrelationScorer{
		dim:   genes.Size(),
		vecs:  vecs,
		sumX:  make([]float64, len(vecs)),
		sumXX: make([]float64, len(vecs)),
	}
	for i, v := range vecs {
		for _, e := range v {
			c := float64(e.Count)
			s.sumX[i] += c
			s.sumXX[i] += c * c
		}
	}
	return s, nil
}

// Dim returns the gene-space dimensionality.
func (s *CorrelationScorer) Dim() int { return s.dim }

// Cells returns the number of scored cells.
func (s *CorrelationScorer) Cells() int { return len(s.vecs) }

// Vector returns cell i's restricted, normalized vector.
func (s *CorrelationScorer) Vector(i core.LocalID) []LocalEntry {
	return s.vecs[i]
}

// Similarity returns the Pearson correlation of cells i and j.
func (s *CorrelationScorer) Similarity(i, j core.LocalID) float64 {
	a, b := s.vecs[i], s.vecs[j]

	var sumXY float64
	x, y := 0, 0
	for x < len(a) && y < len(b) {
		switch {
		case a[x].Gene < b[y].Gene:
			x++
		case a[x].Gene > b[y].Gene:
			y++
		default:
			sumXY += float64(a[x].Count) * float64(b[y].Count)
			x++
			y++
		}
	}

	n := float64(s.dim)
	varX := n*s.sumXX[i] - s.sumX[i]*s.sumX[i]
	varY := n*s.sumXX[j] - s.sumX[j]*s.sumX[j]
	if varX <= 0 || varY <= 0 {
		return 0
	}
	return (n*sumXY - s.sumX[i]*s.sumX[j]) / math.Sqrt(varX*varY)
}
