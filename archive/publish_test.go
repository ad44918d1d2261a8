package archive

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pairgo/blobstore"
	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/pairs"
)

func TestPublishAndFetchRoundtrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTable(t)
	bs := blobstore.NewMemoryStore()
	cat := NewMemoryCatalog()

	m, err := Publish(ctx, store, "table", bs, cat)
	require.NoError(t, err)
	require.NotEmpty(t, m.RunID)
	assert.Equal(t, "table", m.Index)
	assert.Equal(t, 2, m.K)
	assert.Equal(t, 3, m.ItemCount)

	// One CSV artifact plus the five record files.
	require.Len(t, m.Artifacts, 6)
	_, ok := m.Artifact("pairs.csv.zst")
	assert.True(t, ok)
	for _, fileName := range pairs.FileNames("table") {
		a, ok := m.Artifact(fileName)
		require.True(t, ok, fileName)
		assert.Greater(t, a.Size, int64(0))
	}

	// Every artifact and the manifest are readable under the run prefix.
	for _, a := range m.Artifacts {
		data, err := blobstore.ReadAll(ctx, bs, "runs/"+m.RunID+"/"+a.Name)
		require.NoError(t, err)
		assert.Equal(t, a.Size, int64(len(data)))
	}
	manifestData, err := blobstore.ReadAll(ctx, bs, ManifestKey(m.RunID))
	require.NoError(t, err)
	decoded, err := DecodeManifest(manifestData)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, decoded.RunID)

	// CURRENT pointer and catalog agree.
	cur, err := blobstore.ReadAll(ctx, bs, CurrentKey("table"))
	require.NoError(t, err)
	assert.Equal(t, m.RunID, string(cur))
	catCur, err := cat.Current(ctx, "table")
	require.NoError(t, err)
	assert.Equal(t, m.RunID, catCur)

	// Fetch into a fresh directory and reattach the table.
	dir := t.TempDir()
	fetched, err := FetchRun(ctx, bs, m.RunID, dir)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, fetched.RunID)

	fetchedStore, err := recfile.NewStore(dir)
	require.NoError(t, err)
	p, err := pairs.Open(fetchedStore, "table")
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 2, p.K())
	assert.Equal(t, 3, p.ItemCount())
	list, err := p.Neighbors(0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, core.LocalID(1), list[0].Neighbor)
	assert.Equal(t, float32(0.75), list[0].Similarity)
}

func TestPublishMissingIndex(t *testing.T) {
	ctx := context.Background()
	store, err := recfile.NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = Publish(ctx, store, "missing", blobstore.NewMemoryStore(), NewMemoryCatalog())
	assert.ErrorIs(t, err, recfile.ErrNotFound)
}

func TestPublishUncompressedCSV(t *testing.T) {
	ctx := context.Background()
	store, _ := newTable(t)
	bs := blobstore.NewMemoryStore()

	m, err := Publish(ctx, store, "table", bs, NewMemoryCatalog(), func(o *PublishOptions) {
		o.Compression = CompressionNone
	})
	require.NoError(t, err)

	data, err := blobstore.ReadAll(ctx, bs, "runs/"+m.RunID+"/pairs.csv")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("cell_a,cell_b,similarity\n")))
}

func TestFetchRunMissingManifest(t *testing.T) {
	ctx := context.Background()
	_, err := FetchRun(ctx, blobstore.NewMemoryStore(), "no-such-run", t.TempDir())
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestFetchRunDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	store, _ := newTable(t)
	bs := blobstore.NewMemoryStore()

	m, err := Publish(ctx, store, "table", bs, NewMemoryCatalog())
	require.NoError(t, err)

	// Corrupt one record artifact in place; same size, different bytes.
	name := "runs/" + m.RunID + "/" + pairs.FileNames("table")[1]
	data, err := blobstore.ReadAll(ctx, bs, name)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, bs.Put(ctx, name, bytes.NewReader(data)))

	_, err = FetchRun(ctx, bs, m.RunID, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}
