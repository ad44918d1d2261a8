// Package archive turns finalized neighbor indexes into portable artifacts:
// CSV export with optional compression, a manifest describing a published
// run, blob-store publication, and a run catalog.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/pairs"
)

// Compression selects the codec for exported artifacts.
type Compression int

const (
	// CompressionNone writes plain bytes.
	CompressionNone Compression = iota
	// CompressionZstd writes a zstd stream (good ratio, fast decode).
	CompressionZstd
	// CompressionLZ4 writes an lz4 frame (fastest, lighter ratio).
	CompressionLZ4
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "invalid"
	}
}

// Ext returns the filename suffix for the codec, empty for none.
func (c Compression) Ext() string {
	switch c {
	case CompressionZstd:
		return ".zst"
	case CompressionLZ4:
		return ".lz4"
	default:
		return ""
	}
}

// ErrInvalidCompression is returned for an unknown codec.
var ErrInvalidCompression = errors.New("archive: invalid compression")

// Encoders are stateful and expensive to build; reuse them across exports.
var zstdEncoders = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil)
		return enc
	},
}

// ExportOptions configures ExportCSV.
type ExportOptions struct {
	// Compression selects the output codec. Default none.
	Compression Compression

	// Header controls whether a "cell_a,cell_b,similarity" header row is
	// written. Default true.
	Header bool
}

// DefaultExportOptions returns the export defaults.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Compression: CompressionNone,
		Header:      true,
	}
}

// ExportCSV writes the index's stored pairs to w, one row per stored
// neighbor entry: global cell id, global neighbor id, similarity. Rows
// follow each cell's list order, so exporting after FinalizeSort yields
// closest-first rows per cell. Returns the number of data rows written.
func ExportCSV(ctx context.Context, p *pairs.Pairs, w io.Writer, optFns ...func(*ExportOptions)) (int, error) {
	o := DefaultExportOptions()
	for _, fn := range optFns {
		fn(&o)
	}

	out, finish, err := wrapWriter(w, o.Compression)
	if err != nil {
		return 0, err
	}

	bw := bufio.NewWriter(out)
	rows := 0

	if o.Header {
		if _, err := bw.WriteString("cell_a,cell_b,similarity\n"); err != nil {
			return 0, err
		}
	}

	var line []byte
	for i := 0; i < p.ItemCount(); i++ {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		gi, err := p.LocalToGlobal(core.LocalID(i))
		if err != nil {
			return rows, err
		}
		list, err := p.Neighbors(core.LocalID(i))
		if err != nil {
			return rows, err
		}
		for _, e := range list {
			gj, err := p.LocalToGlobal(e.Neighbor)
			if err != nil {
				return rows, err
			}
			line = line[:0]
			line = strconv.AppendUint(line, uint64(gi), 10)
			line = append(line, ',')
			line = strconv.AppendUint(line, uint64(gj), 10)
			line = append(line, ',')
			line = strconv.AppendFloat(line, float64(e.Similarity), 'g', -1, 32)
			line = append(line, '\n')
			if _, err := bw.Write(line); err != nil {
				return rows, err
			}
			rows++
		}
	}

	if err := bw.Flush(); err != nil {
		return rows, err
	}
	if err := finish(); err != nil {
		return rows, err
	}
	return rows, nil
}

// wrapWriter layers the selected codec over w and returns the writer plus a
// finish func closing the codec stream (never the underlying writer).
func wrapWriter(w io.Writer, c Compression) (io.Writer, func() error, error) {
	switch c {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionZstd:
		enc := zstdEncoders.Get().(*zstd.Encoder)
		enc.Reset(w)
		return enc, func() error {
			err := enc.Close()
			zstdEncoders.Put(enc)
			return err
		}, nil
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		return zw, zw.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidCompression, c)
	}
}

// NewDecompressor layers the matching decoder over r. The returned closer
// releases codec state and must be called.
func NewDecompressor(r io.Reader, c Compression) (io.Reader, func(), error) {
	switch c {
	case CompressionNone:
		return r, func() {}, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return dec.IOReadCloser(), dec.Close, nil
	case CompressionLZ4:
		return lz4.NewReader(r), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidCompression, c)
	}
}
