package archive

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/pairs"
	"github.com/hupe1980/pairgo/subset"
)

// newTable builds a small finalized table over cells {10, 20, 30}: local
// pairs (0,1)=0.75 and (0,2)=0.5, sorted closest-first.
func newTable(t *testing.T) (*recfile.Store, *pairs.Pairs) {
	t.Helper()
	store, err := recfile.NewStore(t.TempDir())
	require.NoError(t, err)

	genes := subset.New([]core.GlobalID{0, 1, 2})
	cells := subset.New([]core.GlobalID{10, 20, 30})
	p, err := pairs.Create(store, "table", 2, genes, cells)
	require.NoError(t, err)
	require.NoError(t, p.Insert(0, 1, 0.75))
	require.NoError(t, p.Insert(0, 2, 0.5))
	p.FinalizeSort()
	t.Cleanup(func() { p.Close() })
	return store, p
}

func TestExportCSV(t *testing.T) {
	_, p := newTable(t)

	var buf bytes.Buffer
	rows, err := ExportCSV(context.Background(), p, &buf)
	require.NoError(t, err)
	assert.Equal(t, 4, rows) // each pair stored on both sides

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "cell_a,cell_b,similarity", lines[0])
	// Cell 10's list, closest first, in global ids.
	assert.Equal(t, "10,20,0.75", lines[1])
	assert.Equal(t, "10,30,0.5", lines[2])
	assert.Equal(t, "20,10,0.75", lines[3])
	assert.Equal(t, "30,10,0.5", lines[4])
}

func TestExportCSVNoHeader(t *testing.T) {
	_, p := newTable(t)

	var buf bytes.Buffer
	rows, err := ExportCSV(context.Background(), p, &buf, func(o *ExportOptions) {
		o.Header = false
	})
	require.NoError(t, err)
	assert.Equal(t, 4, rows)
	assert.NotContains(t, buf.String(), "cell_a")
}

func TestExportCSVCompressedRoundtrip(t *testing.T) {
	_, p := newTable(t)

	var plain bytes.Buffer
	_, err := ExportCSV(context.Background(), p, &plain)
	require.NoError(t, err)

	for _, c := range []Compression{CompressionZstd, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			rows, err := ExportCSV(context.Background(), p, &buf, func(o *ExportOptions) {
				o.Compression = c
			})
			require.NoError(t, err)
			assert.Equal(t, 4, rows)

			r, done, err := NewDecompressor(&buf, c)
			require.NoError(t, err)
			defer done()

			data, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, plain.String(), string(data))
		})
	}
}

func TestExportCSVInvalidCompression(t *testing.T) {
	_, p := newTable(t)

	var buf bytes.Buffer
	_, err := ExportCSV(context.Background(), p, &buf, func(o *ExportOptions) {
		o.Compression = Compression(99)
	})
	assert.ErrorIs(t, err, ErrInvalidCompression)
}

func TestExportCSVCancelled(t *testing.T) {
	_, p := newTable(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	_, err := ExportCSV(ctx, p, &buf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompressionNaming(t *testing.T) {
	assert.Equal(t, "none", CompressionNone.String())
	assert.Equal(t, "", CompressionNone.Ext())
	assert.Equal(t, "zstd", CompressionZstd.String())
	assert.Equal(t, ".zst", CompressionZstd.Ext())
	assert.Equal(t, "lz4", CompressionLZ4.String())
	assert.Equal(t, ".lz4", CompressionLZ4.Ext())
}
