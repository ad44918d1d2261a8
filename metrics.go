package pairgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordSearch is called after each pair-search run.
	// strategy names the variant, cells is the cell-set size,
	// duration is the total time taken, err is nil if successful.
	RecordSearch(strategy string, cells int, duration time.Duration, err error)

	// RecordSignatures is called after each signature generation.
	// cells and bits describe the generated set.
	RecordSignatures(cells, bits int, duration time.Duration, err error)

	// RecordPairInsertions is called after each search run with the number
	// of pairs that cleared the similarity threshold.
	RecordPairInsertions(count int64)

	// RecordExport is called after each index export.
	RecordExport(rows int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSearch(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSignatures(int, int, time.Duration, error) {
}
func (NoopMetricsCollector) RecordPairInsertions(int64)            {}
func (NoopMetricsCollector) RecordExport(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SearchCount          atomic.Int64
	SearchErrors         atomic.Int64
	SearchTotalNanos     atomic.Int64
	SignatureCount       atomic.Int64
	SignatureErrors      atomic.Int64
	SignatureTotalNanos  atomic.Int64
	PairInsertions       atomic.Int64
	ExportCount          atomic.Int64
	ExportErrors         atomic.Int64
	ExportRows           atomic.Int64
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(strategy string, cells int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordSignatures implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSignatures(cells, bits int, duration time.Duration, err error) {
	b.SignatureCount.Add(1)
	b.SignatureTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SignatureErrors.Add(1)
	}
}

// RecordPairInsertions implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPairInsertions(count int64) {
	b.PairInsertions.Add(count)
}

// RecordExport implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExport(rows int, duration time.Duration, err error) {
	b.ExportCount.Add(1)
	b.ExportRows.Add(int64(rows))
	if err != nil {
		b.ExportErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SearchCount:     b.SearchCount.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		SearchAvgNanos:  avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		SignatureCount:  b.SignatureCount.Load(),
		SignatureErrors: b.SignatureErrors.Load(),
		PairInsertions:  b.PairInsertions.Load(),
		ExportCount:     b.ExportCount.Load(),
		ExportErrors:    b.ExportErrors.Load(),
		ExportRows:      b.ExportRows.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SearchCount     int64
	SearchErrors    int64
	SearchAvgNanos  int64
	SignatureCount  int64
	SignatureErrors int64
	PairInsertions  int64
	ExportCount     int64
	ExportErrors    int64
	ExportRows      int64
}
