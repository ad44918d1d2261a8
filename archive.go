package pairgo

import (
	"context"
	"io"
	"time"

	"github.com/hupe1980/pairgo/analyze"
	"github.com/hupe1980/pairgo/archive"
	"github.com/hupe1980/pairgo/blobstore"
	"github.com/hupe1980/pairgo/pairs"
	"github.com/hupe1980/pairgo/signature"
)

// AnalyzePairs scores every stored entry of the index named name against
// the signature estimates of the set named lshName.
func (e *Engine) AnalyzePairs(ctx context.Context, name, lshName string) (analyze.EstimateStats, error) {
	table, err := pairs.Open(e.store, name)
	if err != nil {
		return analyze.EstimateStats{}, translateError(err)
	}
	defer table.Close()

	sigs, err := signature.Open(e.store, lshName)
	if err != nil {
		return analyze.EstimateStats{}, translateError(err)
	}
	defer sigs.Close()

	stats, err := analyze.Estimate(ctx, table, sigs)
	return stats, translateError(err)
}

// ComparePairs reports how the indexes named nameA and nameB agree. Both
// must cover the same cell set.
func (e *Engine) ComparePairs(ctx context.Context, nameA, nameB string) (analyze.Comparison, error) {
	a, err := pairs.Open(e.store, nameA)
	if err != nil {
		return analyze.Comparison{}, translateError(err)
	}
	defer a.Close()

	b, err := pairs.Open(e.store, nameB)
	if err != nil {
		return analyze.Comparison{}, translateError(err)
	}
	defer b.Close()

	cmp, err := analyze.Compare(ctx, a, b)
	return cmp, translateError(err)
}

// ExportPairsCSV writes the index named name to w as CSV rows of global
// cell id, global neighbor id, similarity.
func (e *Engine) ExportPairsCSV(ctx context.Context, name string, w io.Writer, optFns ...func(*archive.ExportOptions)) error {
	start := time.Now()

	table, err := pairs.Open(e.store, name)
	if err != nil {
		err = translateError(err)
		e.logger.LogExport(ctx, name, 0, err)
		return err
	}
	defer table.Close()

	rows, err := archive.ExportCSV(ctx, table, w, optFns...)
	err = translateError(err)
	e.logger.LogExport(ctx, name, rows, err)
	e.metrics.RecordExport(rows, time.Since(start), err)
	return err
}

// PublishRun archives the finalized index named name to bs and registers
// the run in cat. Returns the manifest of the published run.
func (e *Engine) PublishRun(ctx context.Context, name string, bs blobstore.Store, cat archive.Catalog, optFns ...func(*archive.PublishOptions)) (*archive.Manifest, error) {
	withController := append([]func(*archive.PublishOptions){func(o *archive.PublishOptions) {
		o.Controller = e.controller
	}}, optFns...)

	m, err := archive.Publish(ctx, e.store, name, bs, cat, withController...)
	runID := ""
	if m != nil {
		runID = m.RunID
	}
	e.logger.LogCatalog(ctx, "publish", runID, err)
	return m, translateError(err)
}

// FetchRun downloads a published run's record files into dir, verified
// against the run's manifest.
func (e *Engine) FetchRun(ctx context.Context, bs blobstore.Store, runID, dir string, optFns ...func(*archive.PublishOptions)) (*archive.Manifest, error) {
	withController := append([]func(*archive.PublishOptions){func(o *archive.PublishOptions) {
		o.Controller = e.controller
	}}, optFns...)

	m, err := archive.FetchRun(ctx, bs, runID, dir, withController...)
	e.logger.LogCatalog(ctx, "fetch", runID, err)
	return m, translateError(err)
}
