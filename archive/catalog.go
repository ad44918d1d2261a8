package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAlreadyPublished is returned when a run id is registered twice.
	ErrAlreadyPublished = errors.New("archive: run already published")

	// ErrRunNotFound is returned for an unknown run id or an index with no
	// current run.
	ErrRunNotFound = errors.New("archive: run not found")
)

// RunRecord is one catalog entry for a published run.
type RunRecord struct {
	RunID       string
	Index       string
	K           int
	ItemCount   int
	CreatedAt   time.Time
	ManifestKey string
}

// Catalog registers published runs and tracks the current run per index
// name. Registration is write-once per run id; implementations must reject
// duplicates with ErrAlreadyPublished.
type Catalog interface {
	// PutRun registers a run. Fails with ErrAlreadyPublished when the run
	// id is already registered.
	PutRun(ctx context.Context, rec RunRecord) error

	// GetRun returns a registered run.
	GetRun(ctx context.Context, runID string) (RunRecord, error)

	// SetCurrent points the index name at the given run.
	SetCurrent(ctx context.Context, index, runID string) error

	// Current returns the run id the index name points at.
	Current(ctx context.Context, index string) (string, error)
}

// MemoryCatalog is an in-memory Catalog for tests and single-process use.
// Thread-safe.
type MemoryCatalog struct {
	mu      sync.RWMutex
	runs    map[string]RunRecord
	current map[string]string
}

var _ Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		runs:    make(map[string]RunRecord),
		current: make(map[string]string),
	}
}

// PutRun implements Catalog.
func (c *MemoryCatalog) PutRun(_ context.Context, rec RunRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.runs[rec.RunID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyPublished, rec.RunID)
	}
	c.runs[rec.RunID] = rec
	return nil
}

// GetRun implements Catalog.
func (c *MemoryCatalog) GetRun(_ context.Context, runID string) (RunRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.runs[runID]
	if !ok {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return rec, nil
}

// SetCurrent implements Catalog.
func (c *MemoryCatalog) SetCurrent(_ context.Context, index, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.runs[runID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	c.current[index] = runID
	return nil
}

// Current implements Catalog.
func (c *MemoryCatalog) Current(_ context.Context, index string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	runID, ok := c.current[index]
	if !ok {
		return "", fmt.Errorf("%w: no current run for index %s", ErrRunNotFound, index)
	}
	return runID, nil
}
