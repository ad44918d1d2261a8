package search

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/hupe1980/pairgo/core"
)

// FindPairsBrute scores every unordered pair (i, j), i < j, over the table's
// cell set and inserts pairs whose similarity is at least threshold. The
// scorer decides the variant: exact Pearson correlation or the signature
// Hamming estimate. Cost is O(N²) pair scorings either way; this is the
// baseline the sub-quadratic strategies are validated against.
//
// The outer loop over i is partitioned across workers goroutines. Each
// unordered pair is scored exactly once, so insertion skips the duplicate
// scan.
func FindPairsBrute(ctx context.Context, scorer Scorer, ins *Inserter, threshold float64, workers int) error {
	n := ins.Table().ItemCount()
	if err := checkCommon(n, threshold, workers); err != nil {
		return err
	}

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for start := 0; start < n; start += bruteChunk {
		lo, hi := start, min(start+bruteChunk, n)
		p.Go(func(ctx context.Context) error {
			for i := lo; i < hi; i++ {
				if err := checkCtx(ctx); err != nil {
					return err
				}
				for j := i + 1; j < n; j++ {
					sim := scorer.Similarity(core.LocalID(i), core.LocalID(j))
					if sim < threshold {
						continue
					}
					if err := ins.InsertNoDuplicateCheck(core.LocalID(i), core.LocalID(j), float32(sim)); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return p.Wait()
}

// bruteChunk is the i-range granularity handed to one worker. Small enough
// to balance the triangular workload, large enough to amortize scheduling.
const bruteChunk = 64
