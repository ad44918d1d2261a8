package search

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/signature"
)

var (
	// ErrInvalidPermutationCount is returned for a non-positive permutation
	// count.
	ErrInvalidPermutationCount = errors.New("search: permutation count must be positive")

	// ErrInvalidSearchCount is returned for a non-positive per-cell candidate
	// budget.
	ErrInvalidSearchCount = errors.New("search: search count must be positive")

	// ErrInvalidPermutedBits is returned when the truncated key length is
	// outside (0, 64] or exceeds the signature length.
	ErrInvalidPermutedBits = errors.New("search: permuted bit count outside (0, 64]")
)

// CharikarParams tunes the permutation strategy.
type CharikarParams struct {
	// PermutationCount is the number of independent random bit permutations.
	PermutationCount int

	// SearchCount caps the total candidates scored per cell across all
	// permutations. Charikar's guidance for the nearest-neighbor regime is
	// roughly 2×PermutationCount candidates per cell.
	SearchCount int

	// PermutedBitCount keeps only this many most-significant bits of each
	// permuted signature, packed into a uint64 sort key.
	PermutedBitCount int

	// Seed drives the permutation draws; identical parameters reproduce
	// identical sorted orders.
	Seed uint64
}

func (p CharikarParams) validate(bitCount int) error {
	if p.PermutationCount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPermutationCount, p.PermutationCount)
	}
	if p.SearchCount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSearchCount, p.SearchCount)
	}
	if p.PermutedBitCount <= 0 || p.PermutedBitCount > 64 || p.PermutedBitCount > bitCount {
		return fmt.Errorf("%w: %d (signature bits %d)", ErrInvalidPermutedBits, p.PermutedBitCount, bitCount)
	}
	return nil
}

// permTable is one sorted order of all cells by permuted-truncated signature
// key. Read-only once built.
type permTable struct {
	order []core.LocalID // cells sorted by key
	rank  []uint32       // cell -> position in order
}

// buildPermTable draws a random permutation of the signature bit positions
// from rng, keys every cell by its permutedBits most significant permuted
// bits, and sorts. Ties are broken by cell id so the order is deterministic.
func buildPermTable(sigs *signature.Set, permutedBits int, rng *rand.Rand) *permTable {
	n := sigs.ItemCount()
	perm := rng.Perm(sigs.BitCount())

	keys := make([]uint64, n)
	for i := 0; i < n; i++ {
		words := sigs.Words(core.LocalID(i))
		var key uint64
		for t := 0; t < permutedBits; t++ {
			b := perm[t]
			bit := (words[b/64] >> (b % 64)) & 1
			key = key<<1 | bit
		}
		keys[i] = key
	}

	t := &permTable{
		order: make([]core.LocalID, n),
		rank:  make([]uint32, n),
	}
	for i := range t.order {
		t.order[i] = core.LocalID(i)
	}
	sort.Slice(t.order, func(a, b int) bool {
		ka, kb := keys[t.order[a]], keys[t.order[b]]
		if ka != kb {
			return ka < kb
		}
		return t.order[a] < t.order[b]
	})
	for pos, id := range t.order {
		t.rank[id] = uint32(pos)
	}
	return t
}

// FindPairsCharikar runs permutation-based approximate nearest-neighbor
// search: cells adjacent in any of the permuted-truncated sorted orders are
// candidate pairs, scored with scorer and inserted when at least threshold.
//
// Undersized PermutationCount or SearchCount reduce recall silently; they
// never produce errors.
func FindPairsCharikar(ctx context.Context, sigs *signature.Set, scorer Scorer, ins *Inserter, threshold float64, params CharikarParams, workers int) error {
	n := ins.Table().ItemCount()

	var r run
	if err := checkCommon(n, threshold, workers); err != nil {
		return err
	}
	if err := params.validate(sigs.BitCount()); err != nil {
		return err
	}
	if sigs.ItemCount() != n {
		return fmt.Errorf("search: signature set has %d cells, table has %d", sigs.ItemCount(), n)
	}
	if err := r.advance(PhaseSignaturesReady); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(int64(params.Seed)))
	tables := make([]*permTable, params.PermutationCount)
	for p := range tables {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		tables[p] = buildPermTable(sigs, params.PermutedBitCount, rng)
	}
	if err := r.advance(PhaseTablesBuilt); err != nil {
		return err
	}
	if err := r.advance(PhaseScoring); err != nil {
		return err
	}

	// Window half-width per sorted order; with the default SearchCount of
	// about 2×PermutationCount this is one neighbor on each side.
	width := max(1, params.SearchCount/(2*params.PermutationCount))

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for start := 0; start < n; start += bruteChunk {
		lo, hi := start, min(start+bruteChunk, n)
		p.Go(func(ctx context.Context) error {
			seen := make([]uint32, n)
			epoch := uint32(0)

			for i := lo; i < hi; i++ {
				if err := checkCtx(ctx); err != nil {
					return err
				}
				epoch++
				seen[i] = epoch
				checked := 0

			perms:
				for _, t := range tables {
					pos := int(t.rank[i])
					for off := -width; off <= width; off++ {
						at := pos + off
						if off == 0 || at < 0 || at >= n {
							continue
						}
						j := t.order[at]
						if seen[j] == epoch {
							continue
						}
						seen[j] = epoch
						if checked >= params.SearchCount {
							break perms
						}
						checked++

						sim := scorer.Similarity(core.LocalID(i), j)
						if sim < threshold {
							continue
						}
						if err := ins.Insert(core.LocalID(i), j, float32(sim)); err != nil {
							return err
						}
					}
				}
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	return r.advance(PhaseFinalized)
}
