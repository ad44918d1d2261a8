// Package search implements the four pair-finding strategies: exact brute
// force, signature-approximated brute force, slice-bucket search, and
// Charikar permutation search.
//
// All strategies enumerate candidate cell pairs, score them, and insert
// qualifying pairs into a top-k neighbor table. They share one insertion
// contract: the table is written through an Inserter that serializes list
// writes per cell behind striped locks, so the outer loop over cells can fan
// out across workers. FinalizeSort is the caller's job, once, after the
// strategy returns.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/internal/stripe"
	"github.com/hupe1980/pairgo/pairs"
)

var (
	// ErrInvalidThreshold is returned for a similarity threshold outside [-1, 1].
	ErrInvalidThreshold = errors.New("search: similarity threshold outside [-1, 1]")

	// ErrInvalidWorkers is returned for a non-positive worker count.
	ErrInvalidWorkers = errors.New("search: worker count must be positive")

	// ErrPhase is returned when a run's steps execute out of order.
	ErrPhase = errors.New("search: phase out of order")
)

// Scorer scores a cell pair. Implementations: expr.CorrelationScorer (exact
// Pearson correlation) and signature.Set (Hamming estimate).
type Scorer interface {
	Similarity(i, j core.LocalID) float64
}

// Inserter writes scored pairs into a top-k table, serializing per-cell list
// writes behind striped locks. Safe for concurrent use.
type Inserter struct {
	table *pairs.Pairs
	locks *stripe.Locker
}

// NewInserter wraps table for concurrent insertion. stripes <= 0 selects the
// default stripe count.
func NewInserter(table *pairs.Pairs, stripes int) *Inserter {
	return &Inserter{
		table: table,
		locks: stripe.New(stripes),
	}
}

// Table returns the wrapped top-k table.
func (ins *Inserter) Table() *pairs.Pairs { return ins.table }

// Insert stores the pair in both cells' lists, duplicate-checked. Both
// stripes are held for the double write so concurrent workers cannot
// interleave half-inserted pairs.
func (ins *Inserter) Insert(i, j core.LocalID, similarity float32) error {
	ins.locks.LockPair(uint32(i), uint32(j))
	defer ins.locks.UnlockPair(uint32(i), uint32(j))
	return ins.table.Insert(i, j, similarity)
}

// InsertNoDuplicateCheck is Insert without the duplicate scan; callers must
// guarantee each unordered pair is offered at most once.
func (ins *Inserter) InsertNoDuplicateCheck(i, j core.LocalID, similarity float32) error {
	ins.locks.LockPair(uint32(i), uint32(j))
	defer ins.locks.UnlockPair(uint32(i), uint32(j))
	return ins.table.InsertNoDuplicateCheck(i, j, similarity)
}

// Phase is a step of a strategy run. Steps never run out of order and no
// step is retried: a failure before PhaseScoring leaves the top-k table
// untouched for that run.
type Phase int

const (
	// PhaseConfigured means parameters were validated.
	PhaseConfigured Phase = iota
	// PhaseSignaturesReady means signatures are available.
	PhaseSignaturesReady
	// PhaseTablesBuilt means bucket or permutation tables are built.
	PhaseTablesBuilt
	// PhaseScoring means candidate pairs are being scored and inserted.
	PhaseScoring
	// PhaseFinalized means all insertions are done.
	PhaseFinalized
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseConfigured:
		return "configured"
	case PhaseSignaturesReady:
		return "signatures-ready"
	case PhaseTablesBuilt:
		return "tables-built"
	case PhaseScoring:
		return "scoring"
	case PhaseFinalized:
		return "finalized"
	default:
		return "invalid"
	}
}

// run tracks a strategy's progress through the fixed phase order.
type run struct {
	phase Phase
}

func (r *run) advance(next Phase) error {
	if next != r.phase+1 {
		return fmt.Errorf("%w: %s -> %s", ErrPhase, r.phase, next)
	}
	r.phase = next
	return nil
}

func checkCommon(n int, threshold float64, workers int) error {
	if threshold < -1 || threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, threshold)
	}
	if workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if n < 0 {
		return fmt.Errorf("search: negative cell count %d", n)
	}
	return nil
}

// checkCtx polls ctx at cell granularity; scoring loops have no other
// suspension points.
func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
