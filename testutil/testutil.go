// Package testutil provides seeded data generators and reference
// computations for pair-search tests: synthetic sparse expression matrices,
// exact brute-force neighbor sets, and recall measurement.
package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/expr"
	"github.com/hupe1980/pairgo/internal/queue"
	"github.com/hupe1980/pairgo/subset"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// NormFloat64 returns a normally distributed pseudo-random number.
func (r *RNG) NormFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.NormFloat64()
}

// SparseMatrix generates a geneCount × cellCount matrix where each cell has
// roughly density×geneCount nonzero counts drawn uniformly from [1, maxCount].
func (r *RNG) SparseMatrix(geneCount, cellCount int, density float64, maxCount int) *expr.SparseMatrix {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := expr.NewSparseMatrix(geneCount, cellCount)
	for c := 0; c < cellCount; c++ {
		for g := 0; g < geneCount; g++ {
			if r.rand.Float64() < density {
				count := float32(1 + r.rand.Intn(maxCount))
				_ = m.Add(core.GlobalID(c), core.GlobalID(g), count)
			}
		}
	}
	return m
}

// ClusteredMatrix generates a dense matrix whose cells fall into
// clusterCount groups. Cells of one group share a prototype vector with
// small per-cell noise, so intra-group correlations are high and
// inter-group correlations are low. Good for threshold/recall tests where
// the true high-similarity pairs must be known by construction.
func (r *RNG) ClusteredMatrix(geneCount, cellCount, clusterCount int, noise float64) *expr.SparseMatrix {
	r.mu.Lock()
	defer r.mu.Unlock()

	prototypes := make([][]float64, clusterCount)
	for p := range prototypes {
		proto := make([]float64, geneCount)
		for g := range proto {
			proto[g] = r.rand.Float64() * 100
		}
		prototypes[p] = proto
	}

	m := expr.NewSparseMatrix(geneCount, cellCount)
	for c := 0; c < cellCount; c++ {
		proto := prototypes[c%clusterCount]
		for g := 0; g < geneCount; g++ {
			v := proto[g] + r.rand.NormFloat64()*noise
			if v < 0.5 {
				continue
			}
			_ = m.Add(core.GlobalID(c), core.GlobalID(g), float32(v))
		}
	}
	return m
}

// Pair is one unordered cell pair with its exact similarity.
type Pair struct {
	I, J       core.LocalID // I < J
	Similarity float64
}

// ExactPairs scores every unordered pair by exact correlation and returns
// those at or above threshold. The reference result approximate strategies
// are judged against.
func ExactPairs(m expr.Matrix, genes, cells *subset.Subset, threshold float64) ([]Pair, error) {
	scorer, err := expr.NewCorrelationScorer(m, genes, cells, expr.NormalizationNone)
	if err != nil {
		return nil, err
	}

	var out []Pair
	n := cells.Size()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sim := scorer.Similarity(core.LocalID(i), core.LocalID(j))
			if sim >= threshold {
				out = append(out, Pair{I: core.LocalID(i), J: core.LocalID(j), Similarity: sim})
			}
		}
	}
	return out, nil
}

// ExactTopK returns, for one cell, the local ids of its k highest-
// similarity neighbors by exact correlation, using a bounded min-heap the
// way the production eviction path does.
func ExactTopK(scorer *expr.CorrelationScorer, i core.LocalID, k int) []core.LocalID {
	pq := queue.NewMin(k)
	n := scorer.Cells()
	for j := 0; j < n; j++ {
		if core.LocalID(j) == i {
			continue
		}
		sim := float32(scorer.Similarity(i, core.LocalID(j)))
		if pq.Len() < k {
			pq.PushItem(queue.PriorityQueueItem{Item: uint32(j), Similarity: sim})
			continue
		}
		if top, ok := pq.TopItem(); ok && sim > top.Similarity {
			pq.PopItem()
			pq.PushItem(queue.PriorityQueueItem{Item: uint32(j), Similarity: sim})
		}
	}

	out := make([]core.LocalID, 0, pq.Len())
	for {
		item, ok := pq.PopItem()
		if !ok {
			break
		}
		out = append(out, core.LocalID(item.Item))
	}
	// Heap pops lowest first; reverse to closest-first.
	for a, b := 0, len(out)-1; a < b; a, b = a+1, b-1 {
		out[a], out[b] = out[b], out[a]
	}
	return out
}

// PairSet folds pairs into a membership set keyed by unordered pair.
func PairSet(ps []Pair) map[uint64]bool {
	set := make(map[uint64]bool, len(ps))
	for _, p := range ps {
		set[PairKey(p.I, p.J)] = true
	}
	return set
}

// PairKey folds an unordered local-id pair into one map key.
func PairKey(i, j core.LocalID) uint64 {
	if j < i {
		i, j = j, i
	}
	return uint64(i)<<32 | uint64(j)
}

// Recall returns |found ∩ truth| / |truth|, 1 for empty truth.
func Recall(truth, found map[uint64]bool) float64 {
	if len(truth) == 0 {
		return 1
	}
	hit := 0
	for key := range truth {
		if found[key] {
			hit++
		}
	}
	return float64(hit) / float64(len(truth))
}
