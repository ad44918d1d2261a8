package pairgo

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/expr"
	"github.com/hupe1980/pairgo/pairs"
	"github.com/hupe1980/pairgo/search"
	"github.com/hupe1980/pairgo/signature"
	"github.com/hupe1980/pairgo/subset"
)

// CreateIndex allocates an empty top-k neighbor table named name over the
// given gene and cell sets. The caller owns the returned handle and must
// Close it.
func (e *Engine) CreateIndex(ctx context.Context, name string, k int, geneSetName, cellSetName string) (*pairs.Pairs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	genes, cells, err := e.loadSets(geneSetName, cellSetName)
	if err != nil {
		return nil, err
	}
	if pairs.Exists(e.store, name) {
		return nil, fmt.Errorf("%w: index %s", ErrAlreadyExists, name)
	}
	p, err := pairs.Create(e.store, name, k, genes, cells)
	return p, translateError(err)
}

// OpenIndex attaches to a previously built index.
func (e *Engine) OpenIndex(ctx context.Context, name string) (*pairs.Pairs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := pairs.Open(e.store, name)
	return p, translateError(err)
}

// RemoveIndex deletes a named index's storage.
func (e *Engine) RemoveIndex(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translateError(pairs.Remove(e.store, name))
}

// ComputeSignatures generates and persists LSH signatures of lshCount bits
// for every cell of cellSetName, named lshName. Identical (gene set,
// lshCount, seed) reproduce bit-identical signatures.
func (e *Engine) ComputeSignatures(ctx context.Context, geneSetName, cellSetName, lshName string, lshCount int, seed uint64) error {
	start := time.Now()

	genes, cells, err := e.loadSets(geneSetName, cellSetName)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if signature.Exists(e.store, lshName) {
		return fmt.Errorf("%w: signatures %s", ErrAlreadyExists, lshName)
	}

	sigs, err := signature.Compute(e.store, lshName, e.matrix, genes, cells, lshCount, seed)
	if err == nil {
		err = sigs.Close()
	}
	err = translateError(err)

	e.logger.LogSignatures(ctx, lshName, cells.Size(), lshCount, time.Since(start), err)
	e.metrics.RecordSignatures(cells.Size(), lshCount, time.Since(start), err)
	return err
}

// RemoveSignatures deletes a named signature set's storage.
func (e *Engine) RemoveSignatures(ctx context.Context, lshName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return translateError(signature.Remove(e.store, lshName))
}

// FindSimilarPairsExact scores every unordered cell pair by exact Pearson
// correlation and stores pairs at or above similarityThreshold in a new
// index named name with k neighbors per cell. O(N²) pair scorings.
func (e *Engine) FindSimilarPairsExact(ctx context.Context, geneSetName, cellSetName, name string, k int, similarityThreshold float64) error {
	return e.runSearch(ctx, "exact", name, k, geneSetName, cellSetName, func(ctx context.Context, genes, cells *subset.Subset, ins *search.Inserter) error {
		scorer, err := expr.NewCorrelationScorer(e.matrix, genes, cells, e.norm)
		if err != nil {
			return err
		}
		return search.FindPairsBrute(ctx, scorer, ins, similarityThreshold, e.workers)
	})
}

// FindSimilarPairsApprox is the O(N²) loop of FindSimilarPairsExact with
// pair scoring replaced by the Hamming estimate over freshly generated
// lshCount-bit signatures. Roughly two orders of magnitude cheaper per pair,
// at the signature approximation error.
func (e *Engine) FindSimilarPairsApprox(ctx context.Context, geneSetName, cellSetName, name string, k int, similarityThreshold float64, lshCount int, seed uint64) error {
	return e.runSearch(ctx, "approx", name, k, geneSetName, cellSetName, func(ctx context.Context, genes, cells *subset.Subset, ins *search.Inserter) error {
		sigs, err := signature.Generate(e.matrix, genes, cells, lshCount, seed)
		if err != nil {
			return err
		}
		return search.FindPairsBrute(ctx, sigs, ins, similarityThreshold, e.workers)
	})
}

// FindSimilarPairsBucketed runs the sub-quadratic slice-bucket strategy over
// the persisted signature set lshName. Candidate pairs share at least one
// signature-prefix bucket; they are scored by the Hamming estimate.
// bucketOverflow of 0 means no bucket cap.
func (e *Engine) FindSimilarPairsBucketed(ctx context.Context, geneSetName, cellSetName, lshName, name string, k int, similarityThreshold float64, sliceLengths []int, maxCheck, log2BucketCount, bucketOverflow int) error {
	return e.runSearch(ctx, "bucketed", name, k, geneSetName, cellSetName, func(ctx context.Context, genes, cells *subset.Subset, ins *search.Inserter) error {
		sigs, err := e.openSignatures(lshName, cells)
		if err != nil {
			return err
		}
		defer sigs.Close()
		return search.FindPairsBucketed(ctx, sigs, sigs, ins, similarityThreshold, search.BucketParams{
			SliceLengths:    sliceLengths,
			MaxCheck:        maxCheck,
			Log2BucketCount: log2BucketCount,
			BucketOverflow:  bucketOverflow,
		}, e.workers)
	})
}

// FindSimilarPairsCharikar runs permutation-based approximate
// nearest-neighbor search over the persisted signature set lshName. Cells
// adjacent in any permuted-truncated sorted order are candidates, scored by
// the Hamming estimate.
func (e *Engine) FindSimilarPairsCharikar(ctx context.Context, geneSetName, cellSetName, lshName, name string, k int, similarityThreshold float64, permutationCount, searchCount, permutedBitCount int, seed uint64) error {
	return e.runSearch(ctx, "charikar", name, k, geneSetName, cellSetName, func(ctx context.Context, genes, cells *subset.Subset, ins *search.Inserter) error {
		sigs, err := e.openSignatures(lshName, cells)
		if err != nil {
			return err
		}
		defer sigs.Close()
		return search.FindPairsCharikar(ctx, sigs, sigs, ins, similarityThreshold, search.CharikarParams{
			PermutationCount: permutationCount,
			SearchCount:      searchCount,
			PermutedBitCount: permutedBitCount,
			Seed:             seed,
		}, e.workers)
	})
}

func (e *Engine) loadSets(geneSetName, cellSetName string) (*subset.Subset, *subset.Subset, error) {
	genes, err := subset.Load(e.store, geneSetPrefix+geneSetName)
	if err != nil {
		return nil, nil, translateError(err)
	}
	cells, err := subset.Load(e.store, cellSetPrefix+cellSetName)
	if err != nil {
		return nil, nil, translateError(err)
	}
	return genes, cells, nil
}

func (e *Engine) openSignatures(lshName string, cells *subset.Subset) (*signature.Set, error) {
	sigs, err := signature.Open(e.store, lshName)
	if err != nil {
		return nil, err
	}
	if sigs.ItemCount() != cells.Size() {
		sigs.Close()
		return nil, &InvalidArgumentError{
			Op:     "open signatures",
			Reason: fmt.Sprintf("signature set %s covers %d cells, cell set has %d", lshName, sigs.ItemCount(), cells.Size()),
		}
	}
	return sigs, nil
}

// runSearch owns the shared driver contract: create the index, run the
// strategy through a striped inserter, finalize, flush. A strategy failure
// removes the half-built index so the run leaves nothing behind.
func (e *Engine) runSearch(ctx context.Context, strategy, name string, k int, geneSetName, cellSetName string, fn func(ctx context.Context, genes, cells *subset.Subset, ins *search.Inserter) error) error {
	start := time.Now()

	run := func() error {
		if err := e.controller.AcquireSearch(ctx); err != nil {
			return err
		}
		defer e.controller.ReleaseSearch()

		genes, cells, err := e.loadSets(geneSetName, cellSetName)
		if err != nil {
			return err
		}
		if pairs.Exists(e.store, name) {
			return fmt.Errorf("%w: index %s", ErrAlreadyExists, name)
		}

		table, err := pairs.Create(e.store, name, k, genes, cells)
		if err != nil {
			return translateError(err)
		}

		ins := search.NewInserter(table, e.stripes)
		if err := fn(ctx, genes, cells, ins); err != nil {
			table.Close()
			_ = pairs.Remove(e.store, name)
			return translateError(err)
		}

		table.FinalizeSort()
		e.metrics.RecordPairInsertions(storedEntries(table))

		if err := table.Flush(); err != nil {
			table.Close()
			return translateError(err)
		}
		return translateError(table.Close())
	}

	err := run()
	cells := -1
	if s, serr := e.CellSet(cellSetName); serr == nil {
		cells = s.Size()
	}
	e.logger.LogSearch(ctx, strategy, name, cells, time.Since(start), err)
	e.metrics.RecordSearch(strategy, cells, time.Since(start), err)
	return err
}

func storedEntries(p *pairs.Pairs) int64 {
	var total int64
	for i := 0; i < p.ItemCount(); i++ {
		if list, err := p.Neighbors(core.LocalID(i)); err == nil {
			total += int64(len(list))
		}
	}
	return total
}
