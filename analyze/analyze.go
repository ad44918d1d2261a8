// Package analyze inspects finalized neighbor indexes: how well signature
// estimates track stored similarities, and how two indexes over the same
// cell set differ.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/pairs"
	"github.com/hupe1980/pairgo/signature"
)

var (
	// ErrMismatchedSets is returned when the compared objects cover
	// different cell sets.
	ErrMismatchedSets = errors.New("analyze: cell sets differ")

	// ErrNoPairs is returned when an index holds no entries to analyze.
	ErrNoPairs = errors.New("analyze: index holds no pairs")
)

// EstimateStats summarizes stored-vs-estimated similarity over every stored
// entry of an index.
type EstimateStats struct {
	// Entries is the number of stored neighbor entries inspected.
	Entries int

	// MeanError and StdDevError describe estimated − stored.
	MeanError   float64
	StdDevError float64

	// Correlation is the Pearson correlation of stored and estimated
	// similarities. NaN when either side has no variance.
	Correlation float64
}

// Estimate scores every stored entry of p against the signature Hamming
// estimate from sigs. Useful for judging whether a signature set's bit
// count suits a threshold before committing to a sub-quadratic run.
func Estimate(ctx context.Context, p *pairs.Pairs, sigs *signature.Set) (EstimateStats, error) {
	if p.ItemCount() != sigs.ItemCount() {
		return EstimateStats{}, fmt.Errorf("%w: index %d cells, signatures %d", ErrMismatchedSets, p.ItemCount(), sigs.ItemCount())
	}

	var stored, estimated, diffs []float64
	for i := 0; i < p.ItemCount(); i++ {
		if err := ctx.Err(); err != nil {
			return EstimateStats{}, err
		}
		list, err := p.Neighbors(core.LocalID(i))
		if err != nil {
			return EstimateStats{}, err
		}
		for _, e := range list {
			s := float64(e.Similarity)
			est := sigs.EstimatedSimilarity(core.LocalID(i), e.Neighbor)
			stored = append(stored, s)
			estimated = append(estimated, est)
			diffs = append(diffs, est-s)
		}
	}
	if len(stored) == 0 {
		return EstimateStats{}, ErrNoPairs
	}

	mean, std := stat.MeanStdDev(diffs, nil)
	if math.IsNaN(std) {
		std = 0 // single entry
	}
	return EstimateStats{
		Entries:     len(stored),
		MeanError:   mean,
		StdDevError: std,
		Correlation: stat.Correlation(stored, estimated, nil),
	}, nil
}

// Comparison summarizes the overlap of two indexes over one cell set.
type Comparison struct {
	// Common, OnlyA, OnlyB count unordered pairs by membership.
	Common int
	OnlyA  int
	OnlyB  int

	// MeanAbsDiff is the mean absolute similarity difference on common
	// pairs, 0 when there are none.
	MeanAbsDiff float64
}

// pairKey folds an unordered local-id pair into one map key.
func pairKey(i, j core.LocalID) uint64 {
	if j < i {
		i, j = j, i
	}
	return uint64(i)<<32 | uint64(j)
}

func collect(ctx context.Context, p *pairs.Pairs) (map[uint64]float64, error) {
	out := make(map[uint64]float64)
	for i := 0; i < p.ItemCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		list, err := p.Neighbors(core.LocalID(i))
		if err != nil {
			return nil, err
		}
		for _, e := range list {
			out[pairKey(core.LocalID(i), e.Neighbor)] = float64(e.Similarity)
		}
	}
	return out, nil
}

// Compare reports how two indexes built over the same cell set agree. A
// pair counts once regardless of how many of the four lists store it.
func Compare(ctx context.Context, a, b *pairs.Pairs) (Comparison, error) {
	if a.ItemCount() != b.ItemCount() {
		return Comparison{}, fmt.Errorf("%w: %d vs %d cells", ErrMismatchedSets, a.ItemCount(), b.ItemCount())
	}

	pa, err := collect(ctx, a)
	if err != nil {
		return Comparison{}, err
	}
	pb, err := collect(ctx, b)
	if err != nil {
		return Comparison{}, err
	}

	var c Comparison
	var absSum float64
	for key, sa := range pa {
		if sb, ok := pb[key]; ok {
			c.Common++
			absSum += math.Abs(sa - sb)
		} else {
			c.OnlyA++
		}
	}
	for key := range pb {
		if _, ok := pa[key]; !ok {
			c.OnlyB++
		}
	}
	if c.Common > 0 {
		c.MeanAbsDiff = absSum / float64(c.Common)
	}
	return c, nil
}
