package search

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/sourcegraph/conc/pool"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/signature"
)

var (
	// ErrInvalidSliceLengths is returned when the slice lengths are empty,
	// not strictly decreasing, or exceed the signature length.
	ErrInvalidSliceLengths = errors.New("search: invalid slice lengths")

	// ErrInvalidBucketBits is returned for log2BucketCount outside [1, 31].
	ErrInvalidBucketBits = errors.New("search: log2 bucket count outside [1, 31]")

	// ErrInvalidMaxCheck is returned for a non-positive per-cell candidate cap.
	ErrInvalidMaxCheck = errors.New("search: max check must be positive")
)

// BucketParams tunes the slice-bucket strategy.
type BucketParams struct {
	// SliceLengths are the signature prefix lengths, strictly decreasing,
	// each in (0, bit count]. One bucket table is built per slice.
	SliceLengths []int

	// MaxCheck caps, per cell, how many candidates are scored across all
	// slices before moving to the next cell.
	MaxCheck int

	// Log2BucketCount sizes every bucket table at 2^Log2BucketCount buckets.
	Log2BucketCount int

	// BucketOverflow skips any bucket holding more members than the cap;
	// no pairs from a skipped bucket are scored. Zero means no cap. This is
	// a deliberate recall/cost trade, not an error.
	BucketOverflow int
}

func (p BucketParams) validate(bitCount int) error {
	if len(p.SliceLengths) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidSliceLengths)
	}
	for s, l := range p.SliceLengths {
		if l <= 0 || l > bitCount {
			return fmt.Errorf("%w: length %d outside (0, %d]", ErrInvalidSliceLengths, l, bitCount)
		}
		if s > 0 && l >= p.SliceLengths[s-1] {
			return fmt.Errorf("%w: not strictly decreasing at %d", ErrInvalidSliceLengths, s)
		}
	}
	if p.Log2BucketCount < 1 || p.Log2BucketCount > 31 {
		return fmt.Errorf("%w: %d", ErrInvalidBucketBits, p.Log2BucketCount)
	}
	if p.MaxCheck <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxCheck, p.MaxCheck)
	}
	if p.BucketOverflow < 0 {
		return fmt.Errorf("search: negative bucket overflow %d", p.BucketOverflow)
	}
	return nil
}

// bucketTable groups cells by the hash of one signature prefix. Read-only
// once built.
type bucketTable struct {
	buckets [][]core.LocalID
	// cell -> bucket index, so scoring can find a cell's bucket without
	// rehashing its prefix.
	home []uint32
}

// buildBucketTable hashes each cell's masked signature prefix into
// 2^log2BucketCount buckets. The prefix covers sliceLen bits: whole words
// plus a masked partial word.
func buildBucketTable(sigs *signature.Set, sliceLen, log2BucketCount int) *bucketTable {
	n := sigs.ItemCount()
	bucketCount := 1 << log2BucketCount
	mask := uint64(bucketCount - 1)

	wholeWords := sliceLen / 64
	var tailMask uint64
	if rem := sliceLen % 64; rem != 0 {
		tailMask = (uint64(1) << rem) - 1
	}

	t := &bucketTable{
		buckets: make([][]core.LocalID, bucketCount),
		home:    make([]uint32, n),
	}

	var scratch [8]byte
	for i := 0; i < n; i++ {
		words := sigs.Words(core.LocalID(i))
		h := fnv.New64a()
		for w := 0; w < wholeWords; w++ {
			putWord(&scratch, words[w])
			_, _ = h.Write(scratch[:])
		}
		if tailMask != 0 {
			putWord(&scratch, words[wholeWords]&tailMask)
			_, _ = h.Write(scratch[:])
		}
		b := uint32(h.Sum64() & mask)
		t.home[i] = b
		t.buckets[b] = append(t.buckets[b], core.LocalID(i))
	}
	return t
}

func putWord(dst *[8]byte, w uint64) {
	for b := 0; b < 8; b++ {
		dst[b] = byte(w >> (8 * b))
	}
}

// FindPairsBucketed runs the slice-bucket strategy: per slice, cells sharing
// a bucket of identical (hashed) signature prefixes are candidate pairs.
// Candidates are scored with scorer and inserted when at least threshold.
//
// Buckets above params.BucketOverflow members contribute no pairs, and each
// cell stops after params.MaxCheck scored candidates; both caps bound cost
// by silently reducing recall.
func FindPairsBucketed(ctx context.Context, sigs *signature.Set, scorer Scorer, ins *Inserter, threshold float64, params BucketParams, workers int) error {
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

	tables := make([]*bucketTable, len(params.SliceLengths))
	for s, l := range params.SliceLengths {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		tables[s] = buildBucketTable(sigs, l, params.Log2BucketCount)
	}
	if err := r.advance(PhaseTablesBuilt); err != nil {
		return err
	}
	if err := r.advance(PhaseScoring); err != nil {
		return err
	}

	p := pool.New().WithMaxGoroutines(workers).WithContext(ctx).WithCancelOnError()
	for start := 0; start < n; start += bruteChunk {
		lo, hi := start, min(start+bruteChunk, n)
		p.Go(func(ctx context.Context) error {
			// Per-worker scratch: epoch marks dedup candidates across
			// slices without clearing between cells.
			seen := make([]uint32, n)
			epoch := uint32(0)

			for i := lo; i < hi; i++ {
				if err := checkCtx(ctx); err != nil {
					return err
				}
				epoch++
				seen[i] = epoch // never pair a cell with itself
				checked := 0

			slices:
				for _, t := range tables {
					members := t.buckets[t.home[i]]
					if params.BucketOverflow > 0 && len(members) > params.BucketOverflow {
						continue
					}
					for _, j := range members {
						if seen[j] == epoch {
							continue
						}
						seen[j] = epoch
						if checked >= params.MaxCheck {
							break slices
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
