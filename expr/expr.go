// Package expr provides the sparse expression matrix the search strategies
// read from: per-cell (gene, count) vectors, restriction to gene/cell
// subsets, optional normalization, and Pearson correlation scoring.
package expr

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/subset"
)

var (
	// ErrCellOutOfRange is returned for a cell id outside the matrix.
	ErrCellOutOfRange = errors.New("expr: cell id out of range")
	// ErrGeneOutOfRange is returned for a gene id outside the matrix.
	ErrGeneOutOfRange = errors.New("expr: gene id out of range")
	// ErrNegativeCount is returned when adding a negative count.
	ErrNegativeCount = errors.New("expr: negative count")
)

// Entry is one nonzero coordinate of a cell's expression vector.
type Entry struct {
	Gene  core.GlobalID
	Count float32
}

// LocalEntry is an Entry with the gene id translated into a gene subset's
// local id space.
type LocalEntry struct {
	Gene  core.LocalID
	Count float32
}

// Matrix supplies sparse expression vectors on demand.
//
// Implementations must be safe for concurrent reads once populated; the
// search strategies fan out over cells from multiple goroutines.
type Matrix interface {
	// GeneCount returns the number of genes (the global gene id space).
	GeneCount() int
	// CellCount returns the number of cells (the global cell id space).
	CellCount() int
	// Vector returns the cell's nonzero counts restricted to genes, sorted
	// by ascending gene id. A nil genes subset means no restriction.
	Vector(cell core.GlobalID, genes *subset.Subset) ([]Entry, error)
}

// SparseMatrix is an in-memory Matrix built incrementally with Add.
//
// Add is not safe for concurrent use; all read methods are, once building is
// done. Rows are kept sorted by gene id and duplicate (cell, gene) additions
// accumulate.
type SparseMatrix struct {
	geneCount int
	cellCount int
	rows      [][]Entry
}

var _ Matrix = (*SparseMatrix)(nil)

// NewSparseMatrix creates an empty geneCount × cellCount matrix.
func NewSparseMatrix(geneCount, cellCount int) *SparseMatrix {
	return &SparseMatrix{
		geneCount: geneCount,
		cellCount: cellCount,
		rows:      make([][]Entry, cellCount),
	}
}

// GeneCount returns the number of genes.
func (m *SparseMatrix) GeneCount() int { return m.geneCount }

// CellCount returns the number of cells.
func (m *SparseMatrix) CellCount() int { return m.cellCount }

// Add records count for (cell, gene), accumulating onto any prior value.
func (m *SparseMatrix) Add(cell, gene core.GlobalID, count float32) error {
	if int(cell) >= m.cellCount {
		return fmt.Errorf("%w: %d", ErrCellOutOfRange, cell)
	}
	if int(gene) >= m.geneCount {
		return fmt.Errorf("%w: %d", ErrGeneOutOfRange, gene)
	}
	if count < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeCount, count)
	}

	row := m.rows[cell]
	i := sort.Search(len(row), func(i int) bool { return row[i].Gene >= gene })
	if i < len(row) && row[i].Gene == gene {
		row[i].Count += count
		return nil
	}
	row = append(row, Entry{})
	copy(row[i+1:], row[i:])
	row[i] = Entry{Gene: gene, Count: count}
	m.rows[cell] = row
	return nil
}

// Vector returns the cell's nonzero counts restricted to genes, sorted by
// ascending gene id.
func (m *SparseMatrix) Vector(cell core.GlobalID, genes *subset.Subset) ([]Entry, error) {
	if int(cell) >= m.cellCount {
		return nil, fmt.Errorf("%w: %d", ErrCellOutOfRange, cell)
	}
	row := m.rows[cell]
	if genes == nil {
		out := make([]Entry, len(row))
		copy(out, row)
		return out, nil
	}
	out := make([]Entry, 0, len(row))
	for _, e := range row {
		if genes.Contains(e.Gene) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Restrict materializes one cell's vector in the gene subset's local id
// space, normalized with norm.
func Restrict(m Matrix, genes *subset.Subset, cell core.GlobalID, norm NormalizationMethod) ([]LocalEntry, error) {
	row, err := m.Vector(cell, genes)
	if err != nil {
		return nil, err
	}
	out := make([]LocalEntry, len(row))
	for i, e := range row {
		out[i] = LocalEntry{Gene: genes.IndexOf(e.Gene), Count: e.Count}
	}
	normalize(out, norm)
	return out, nil
}

// RestrictAll materializes the restricted, normalized vectors of every cell
// in the cell subset, indexed by cell local id.
func RestrictAll(m Matrix, genes, cells *subset.Subset, norm NormalizationMethod) ([][]LocalEntry, error) {
	vecs := make([][]LocalEntry, cells.Size())
	for local, global := range cells.All() {
		v, err := Restrict(m, genes, global, norm)
		if err != nil {
			return nil, err
		}
		vecs[local] = v
	}
	return vecs, nil
}
