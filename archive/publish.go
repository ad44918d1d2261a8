package archive

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pairgo/blobstore"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/pairs"
	"github.com/hupe1980/pairgo/resource"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// PublishOptions configures Publish.
type PublishOptions struct {
	// Compression is applied to the exported CSV artifact. The raw record
	// files are uploaded as-is so FetchRun can reattach them directly.
	Compression Compression

	// Controller rate-limits upload and download I/O when set.
	Controller *resource.Controller

	// Concurrency bounds parallel artifact transfers. Default 4.
	Concurrency int
}

// DefaultPublishOptions returns the publish defaults.
func DefaultPublishOptions() PublishOptions {
	return PublishOptions{
		Compression: CompressionZstd,
		Concurrency: 4,
	}
}

func runPrefix(runID string) string { return "runs/" + runID + "/" }

// ManifestKey returns the blob name of a run's manifest.
func ManifestKey(runID string) string { return runPrefix(runID) + "manifest.json" }

// CurrentKey returns the blob name of an index's current-run pointer.
func CurrentKey(index string) string { return "indexes/" + index + "/CURRENT" }

// Publish archives the finalized index named index from store to bs and
// registers the run in cat. Artifacts (the index's record files plus a CSV
// export) upload concurrently; the manifest uploads last, then the CURRENT
// pointer and catalog entries are written, so a readable manifest always
// describes a complete run. Returns the manifest of the published run.
func Publish(ctx context.Context, store *recfile.Store, index string, bs blobstore.Store, cat Catalog, optFns ...func(*PublishOptions)) (*Manifest, error) {
	o := DefaultPublishOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}

	table, err := pairs.Open(store, index)
	if err != nil {
		return nil, err
	}
	defer table.Close()

	runID := uuid.NewString()
	m := &Manifest{
		Version:   ManifestVersion,
		RunID:     runID,
		Index:     index,
		K:         table.K(),
		ItemCount: table.ItemCount(),
		CreatedAt: time.Now().UTC(),
	}

	// The CSV is rendered up front so its checksum lands in the manifest
	// like every file artifact's.
	var csv bytes.Buffer
	if _, err := ExportCSV(ctx, table, &csv, func(eo *ExportOptions) {
		eo.Compression = o.Compression
	}); err != nil {
		return nil, fmt.Errorf("archive: publish %s: %w", index, err)
	}

	type artifact struct {
		name string
		data []byte
	}
	artifacts := []artifact{
		{name: "pairs.csv" + o.Compression.Ext(), data: csv.Bytes()},
	}
	for _, fileName := range pairs.FileNames(index) {
		data, err := os.ReadFile(filepath.Join(store.Dir(), fileName))
		if err != nil {
			return nil, fmt.Errorf("archive: publish %s: %w", index, err)
		}
		artifacts = append(artifacts, artifact{name: fileName, data: data})
	}

	m.Artifacts = make([]Artifact, len(artifacts))
	for i, a := range artifacts {
		m.Artifacts[i] = Artifact{
			Name:   a.name,
			Size:   int64(len(a.data)),
			CRC32C: crc32.Checksum(a.data, castagnoli),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for _, a := range artifacts {
		g.Go(func() error {
			r := resource.NewRateLimitedReader(gctx, bytes.NewReader(a.data), o.Controller)
			if err := bs.Put(gctx, runPrefix(runID)+a.name, r); err != nil {
				return fmt.Errorf("archive: upload %s: %w", a.name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	encoded, err := m.Encode()
	if err != nil {
		return nil, err
	}
	if err := bs.Put(ctx, ManifestKey(runID), bytes.NewReader(encoded)); err != nil {
		return nil, fmt.Errorf("archive: upload manifest: %w", err)
	}
	if err := bs.Put(ctx, CurrentKey(index), bytes.NewReader([]byte(runID))); err != nil {
		return nil, fmt.Errorf("archive: write current pointer: %w", err)
	}

	rec := RunRecord{
		RunID:       runID,
		Index:       index,
		K:           m.K,
		ItemCount:   m.ItemCount,
		CreatedAt:   m.CreatedAt,
		ManifestKey: ManifestKey(runID),
	}
	if err := cat.PutRun(ctx, rec); err != nil {
		return nil, err
	}
	if err := cat.SetCurrent(ctx, index, runID); err != nil {
		return nil, err
	}
	return m, nil
}

// FetchRun downloads a published run's artifacts into dir, verifying sizes
// and checksums against the manifest. The CSV artifact is skipped: it is a
// derived export, and fetching exists to reattach the record files.
func FetchRun(ctx context.Context, bs blobstore.Store, runID, dir string, optFns ...func(*PublishOptions)) (*Manifest, error) {
	o := DefaultPublishOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}

	data, err := blobstore.ReadAll(ctx, bs, ManifestKey(runID))
	if err != nil {
		return nil, fmt.Errorf("archive: fetch run %s: %w", runID, err)
	}
	m, err := DecodeManifest(data)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: fetch run %s: %w", runID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for _, a := range m.Artifacts {
		if strings.HasPrefix(a.Name, "pairs.csv") {
			continue
		}
		g.Go(func() error {
			blob, err := bs.Open(gctx, runPrefix(runID)+a.Name)
			if err != nil {
				return fmt.Errorf("archive: fetch %s: %w", a.Name, err)
			}
			defer blob.Close()

			r := resource.NewRateLimitedReader(gctx, blobstore.NewReader(blob), o.Controller)
			data, err := io.ReadAll(r)
			if err != nil {
				return fmt.Errorf("archive: fetch %s: %w", a.Name, err)
			}

			if int64(len(data)) != a.Size {
				return fmt.Errorf("archive: fetch %s: size %d, manifest says %d", a.Name, len(data), a.Size)
			}
			if crc32.Checksum(data, castagnoli) != a.CRC32C {
				return fmt.Errorf("archive: fetch %s: checksum mismatch", a.Name)
			}
			return os.WriteFile(filepath.Join(dir, a.Name), data, 0o644)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}
