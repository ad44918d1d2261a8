package pairgo

import (
	"fmt"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/expr"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/resource"
	"github.com/hupe1980/pairgo/subset"
)

// Reserved subset names registered at engine creation.
const (
	// AllGenes is the gene set holding every gene of the matrix.
	AllGenes = "AllGenes"
	// AllCells is the cell set holding every cell of the matrix.
	AllCells = "AllCells"
)

const (
	geneSetPrefix = "geneset-"
	cellSetPrefix = "cellset-"
)

// Engine owns a storage directory of persisted subsets, signature sets, and
// top-k neighbor tables over one expression matrix, and runs the pair-search
// strategies against them.
//
// Engine methods are safe for concurrent use as long as concurrent calls
// target different named objects; two runs writing the same index name race
// on creation and one of them fails with ErrAlreadyExists.
type Engine struct {
	matrix     expr.Matrix
	store      *recfile.Store
	logger     *Logger
	metrics    MetricsCollector
	controller *resource.Controller
	workers    int
	stripes    int
	norm       expr.NormalizationMethod
}

// New creates an engine over matrix with persisted state under dir. The
// AllGenes and AllCells subsets are registered on first use of the
// directory.
func New(matrix expr.Matrix, dir string, optFns ...Option) (*Engine, error) {
	if matrix == nil {
		return nil, &InvalidArgumentError{Op: "new", Reason: "nil matrix"}
	}
	if matrix.GeneCount() == 0 || matrix.CellCount() == 0 {
		return nil, &InvalidArgumentError{Op: "new", Reason: "empty matrix"}
	}

	store, err := recfile.NewStore(dir)
	if err != nil {
		return nil, translateError(err)
	}

	o := applyOptions(optFns)
	e := &Engine{
		matrix:     matrix,
		store:      store,
		logger:     o.logger,
		metrics:    o.metricsCollector,
		controller: o.controller,
		workers:    o.workers,
		stripes:    o.stripes,
		norm:       o.normalization,
	}

	if !store.Exists(geneSetPrefix + AllGenes) {
		if err := subset.All(matrix.GeneCount()).Save(store, geneSetPrefix+AllGenes); err != nil {
			return nil, translateError(err)
		}
	}
	if !store.Exists(cellSetPrefix + AllCells) {
		if err := subset.All(matrix.CellCount()).Save(store, cellSetPrefix+AllCells); err != nil {
			return nil, translateError(err)
		}
	}
	return e, nil
}

// Store exposes the engine's record store, for archive publication.
func (e *Engine) Store() *recfile.Store { return e.store }

// Matrix returns the expression matrix the engine searches over.
func (e *Engine) Matrix() expr.Matrix { return e.matrix }

// CreateGeneSet registers a named gene set. The ids are sorted and
// deduplicated; every id must be a valid gene of the matrix.
func (e *Engine) CreateGeneSet(name string, ids []core.GlobalID) error {
	return e.createSet("create gene set", geneSetPrefix+name, ids, e.matrix.GeneCount(), "gene")
}

// CreateCellSet registers a named cell set. The ids are sorted and
// deduplicated; every id must be a valid cell of the matrix.
func (e *Engine) CreateCellSet(name string, ids []core.GlobalID) error {
	return e.createSet("create cell set", cellSetPrefix+name, ids, e.matrix.CellCount(), "cell")
}

func (e *Engine) createSet(op, storeName string, ids []core.GlobalID, limit int, what string) error {
	if len(ids) == 0 {
		return &InvalidArgumentError{Op: op, Reason: "empty id list"}
	}
	for _, id := range ids {
		if int(id) >= limit {
			return &OutOfRangeError{What: what + " id", ID: uint32(id), Limit: limit}
		}
	}
	if e.store.Exists(storeName) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, storeName)
	}
	return translateError(subset.New(ids).Save(e.store, storeName))
}

// GeneSet loads a named gene set.
func (e *Engine) GeneSet(name string) (*subset.Subset, error) {
	s, err := subset.Load(e.store, geneSetPrefix+name)
	return s, translateError(err)
}

// CellSet loads a named cell set.
func (e *Engine) CellSet(name string) (*subset.Subset, error) {
	s, err := subset.Load(e.store, cellSetPrefix+name)
	return s, translateError(err)
}

// RemoveGeneSet deletes a named gene set.
func (e *Engine) RemoveGeneSet(name string) error {
	return translateError(e.store.Remove(geneSetPrefix + name))
}

// RemoveCellSet deletes a named cell set.
func (e *Engine) RemoveCellSet(name string) error {
	return translateError(e.store.Remove(cellSetPrefix + name))
}

// IntersectGeneSets stores the intersection of gene sets a and b under name.
func (e *Engine) IntersectGeneSets(name, a, b string) error {
	return e.combineSets(geneSetPrefix, name, a, b, subset.Intersect)
}

// UniteGeneSets stores the union of gene sets a and b under name.
func (e *Engine) UniteGeneSets(name, a, b string) error {
	return e.combineSets(geneSetPrefix, name, a, b, subset.Union)
}

// SubtractGeneSets stores the members of gene set a not in b under name.
func (e *Engine) SubtractGeneSets(name, a, b string) error {
	return e.combineSets(geneSetPrefix, name, a, b, subset.Subtract)
}

// IntersectCellSets stores the intersection of cell sets a and b under name.
func (e *Engine) IntersectCellSets(name, a, b string) error {
	return e.combineSets(cellSetPrefix, name, a, b, subset.Intersect)
}

// UniteCellSets stores the union of cell sets a and b under name.
func (e *Engine) UniteCellSets(name, a, b string) error {
	return e.combineSets(cellSetPrefix, name, a, b, subset.Union)
}

// SubtractCellSets stores the members of cell set a not in b under name.
func (e *Engine) SubtractCellSets(name, a, b string) error {
	return e.combineSets(cellSetPrefix, name, a, b, subset.Subtract)
}

func (e *Engine) combineSets(prefix, name, a, b string, op func(x, y *subset.Subset) *subset.Subset) error {
	sa, err := subset.Load(e.store, prefix+a)
	if err != nil {
		return translateError(err)
	}
	sb, err := subset.Load(e.store, prefix+b)
	if err != nil {
		return translateError(err)
	}
	if e.store.Exists(prefix + name) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, prefix+name)
	}
	return translateError(op(sa, sb).Save(e.store, prefix+name))
}
