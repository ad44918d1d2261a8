package pairgo

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pairgo/expr"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/pairs"
	"github.com/hupe1980/pairgo/search"
	"github.com/hupe1980/pairgo/signature"
)

var (
	// ErrInvalidArgument is returned for parameters rejected before any work
	// begins: zero k, empty subsets, malformed slice or permutation
	// parameters. Nothing is created or mutated.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is returned for an item id outside the configured subset.
	ErrOutOfRange = errors.New("out of range")

	// ErrCorruptState is returned when persisted metadata disagrees with
	// storage sizes on open. The attach fails entirely.
	ErrCorruptState = errors.New("corrupt state")

	// ErrNotFound is returned when operating on a named index, signature
	// set, or subset that was never created.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when creating over an existing name.
	ErrAlreadyExists = errors.New("already exists")
)

// InvalidArgumentError carries which operation rejected which parameter.
//
// The original underlying error (if any) can be accessed via errors.Unwrap;
// errors.Is(err, ErrInvalidArgument) holds.
type InvalidArgumentError struct {
	Op     string
	Reason string
	cause  error
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument: %s", e.Op, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrInvalidArgument
}

// Is reports whether target is ErrInvalidArgument.
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// OutOfRangeError identifies the offending id and the valid limit.
type OutOfRangeError struct {
	What  string
	ID    uint32
	Limit int
	cause error
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range (limit %d)", e.What, e.ID, e.Limit)
}

func (e *OutOfRangeError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrOutOfRange
}

// Is reports whether target is ErrOutOfRange.
func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// CorruptStateError names the persisted object whose metadata is
// inconsistent.
type CorruptStateError struct {
	Name   string
	Detail string
	cause  error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("%s: corrupt state: %s", e.Name, e.Detail)
}

func (e *CorruptStateError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return ErrCorruptState
}

// Is reports whether target is ErrCorruptState.
func (e *CorruptStateError) Is(target error) bool {
	return target == ErrCorruptState
}

// translateError funnels package-level errors into the engine taxonomy so
// callers only match against the sentinels above.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, recfile.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, recfile.ErrExists):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, recfile.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorruptState, err)
	}

	switch {
	case errors.Is(err, pairs.ErrItemOutOfRange),
		errors.Is(err, signature.ErrItemOutOfRange),
		errors.Is(err, expr.ErrCellOutOfRange),
		errors.Is(err, expr.ErrGeneOutOfRange):
		return fmt.Errorf("%w: %w", ErrOutOfRange, err)
	}

	switch {
	case errors.Is(err, pairs.ErrInvalidK),
		errors.Is(err, pairs.ErrEmptyCellSet),
		errors.Is(err, signature.ErrInvalidBitCount),
		errors.Is(err, signature.ErrEmptyGeneSet),
		errors.Is(err, signature.ErrEmptyCellSet),
		errors.Is(err, recfile.ErrInvalidName),
		errors.Is(err, recfile.ErrInvalidShape),
		errors.Is(err, search.ErrInvalidThreshold),
		errors.Is(err, search.ErrInvalidWorkers),
		errors.Is(err, search.ErrInvalidSliceLengths),
		errors.Is(err, search.ErrInvalidBucketBits),
		errors.Is(err, search.ErrInvalidMaxCheck),
		errors.Is(err, search.ErrInvalidPermutationCount),
		errors.Is(err, search.ErrInvalidSearchCount),
		errors.Is(err, search.ErrInvalidPermutedBits):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return err
}
