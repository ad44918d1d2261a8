package pairs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/subset"
)

func newStore(t *testing.T) *recfile.Store {
	t.Helper()
	store, err := recfile.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func newTable(t *testing.T, store *recfile.Store, name string, k, cellCount int) *Pairs {
	t.Helper()
	p, err := Create(store, name, k, subset.All(100), subset.All(cellCount))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestCreateValidation(t *testing.T) {
	store := newStore(t)

	_, err := Create(store, "zero-k", 0, subset.All(10), subset.All(10))
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = Create(store, "no-cells", 3, subset.All(10), subset.New(nil))
	assert.ErrorIs(t, err, ErrEmptyCellSet)
}

func TestInsertEviction(t *testing.T) {
	store := newStore(t)
	p := newTable(t, store, "evict", 2, 8)

	require.NoError(t, p.Insert(0, 1, 0.9))
	require.NoError(t, p.Insert(0, 2, 0.5))
	require.NoError(t, p.Insert(0, 3, 0.7))

	p.FinalizeSort()

	list, err := p.Neighbors(0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, Entry{Neighbor: 1, Similarity: 0.9}, list[0])
	assert.Equal(t, Entry{Neighbor: 3, Similarity: 0.7}, list[1])
}

func TestInsertSymmetric(t *testing.T) {
	store := newStore(t)
	p := newTable(t, store, "sym", 4, 8)

	require.NoError(t, p.Insert(2, 5, 0.3))

	ok, err := p.Exists(2, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Exists(5, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInsertSelfPairIgnored(t *testing.T) {
	store := newStore(t)
	p := newTable(t, store, "self", 4, 8)

	require.NoError(t, p.Insert(3, 3, 1.0))

	list, err := p.Neighbors(3)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTieKeepsExisting(t *testing.T) {
	store := newStore(t)
	p := newTable(t, store, "tie", 2, 8)

	require.NoError(t, p.InsertUnsymmetric(0, 1, 0.5))
	require.NoError(t, p.InsertUnsymmetric(0, 2, 0.8))
	// Full. Candidate ties with the current lowest; the stored entry wins.
	require.NoError(t, p.InsertUnsymmetric(0, 3, 0.5))

	ok, err := p.Exists(0, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Exists(0, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDuplicateCheckSemantics(t *testing.T) {
	store := newStore(t)

	checked := newTable(t, store, "dup-checked", 4, 8)
	require.NoError(t, checked.Insert(0, 1, 0.6))
	require.NoError(t, checked.Insert(0, 1, 0.6))
	list, err := checked.Neighbors(0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	unchecked := newTable(t, store, "dup-unchecked", 4, 8)
	require.NoError(t, unchecked.InsertNoDuplicateCheck(0, 1, 0.6))
	require.NoError(t, unchecked.InsertNoDuplicateCheck(0, 1, 0.6))
	list, err = unchecked.Neighbors(0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestHeapVariantMatchesLinear(t *testing.T) {
	store := newStore(t)
	linear := newTable(t, store, "heap-lin", 3, 16)
	heaped := newTable(t, store, "heap-heap", 3, 16)

	sims := []float32{0.1, 0.9, 0.4, 0.7, 0.2, 0.95, 0.6, 0.3, 0.8, 0.5}
	for n, sim := range sims {
		j := core.LocalID(n + 1)
		require.NoError(t, linear.InsertUnsymmetricNoDuplicateCheck(0, j, sim))
		require.NoError(t, heaped.InsertUnsymmetricNoDuplicateCheckHeap(0, j, sim))
	}

	linear.FinalizeSort()
	heaped.FinalizeSort()

	wantList, err := linear.Neighbors(0)
	require.NoError(t, err)
	gotList, err := heaped.Neighbors(0)
	require.NoError(t, err)
	assert.Equal(t, wantList, gotList)

	// Both kept exactly the top 3.
	require.Len(t, gotList, 3)
	assert.Equal(t, float32(0.95), gotList[0].Similarity)
	assert.Equal(t, float32(0.9), gotList[1].Similarity)
	assert.Equal(t, float32(0.8), gotList[2].Similarity)
}

func TestCachedLowestTracksMin(t *testing.T) {
	store := newStore(t)
	p := newTable(t, store, "lowest", 3, 32)

	sims := []float32{0.4, 0.9, 0.6, 0.8, 0.1, 0.7, 0.95}
	for n, sim := range sims {
		require.NoError(t, p.InsertUnsymmetric(0, core.LocalID(n+1), sim))

		list, err := p.Neighbors(0)
		require.NoError(t, err)
		lowest := list[0].Similarity
		for _, e := range list[1:] {
			if e.Similarity < lowest {
				lowest = e.Similarity
			}
		}
		assert.Equal(t, lowest, p.infos[0].lowestSimilarity)
		assert.Equal(t, lowest, list[p.infos[0].lowestIndex].Similarity)
	}
}

func TestUsedCountNeverExceedsK(t *testing.T) {
	store := newStore(t)
	p := newTable(t, store, "cap", 4, 64)

	for j := 1; j < 64; j++ {
		require.NoError(t, p.InsertUnsymmetric(0, core.LocalID(j), float32(j)/64))
	}

	list, err := p.Neighbors(0)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

func TestOutOfRange(t *testing.T) {
	store := newStore(t)
	p := newTable(t, store, "range", 2, 8)

	assert.ErrorIs(t, p.Insert(8, 0, 0.5), ErrItemOutOfRange)
	assert.ErrorIs(t, p.Insert(0, 8, 0.5), ErrItemOutOfRange)

	_, err := p.Neighbors(8)
	assert.ErrorIs(t, err, ErrItemOutOfRange)

	_, err = p.Exists(0, 99)
	assert.ErrorIs(t, err, ErrItemOutOfRange)
}

func TestFinalizeSortEmptyTable(t *testing.T) {
	store := newStore(t)
	p := newTable(t, store, "empty", 2, 8)

	p.FinalizeSort()
	p.FinalizeSort() // idempotent

	for i := 0; i < 8; i++ {
		list, err := p.Neighbors(core.LocalID(i))
		require.NoError(t, err)
		assert.Empty(t, list)
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	store := newStore(t)

	cells := subset.New([]core.GlobalID{3, 7, 11, 20})
	genes := subset.New([]core.GlobalID{0, 2, 4})

	p, err := Create(store, "persist", 2, genes, cells)
	require.NoError(t, err)
	require.NoError(t, p.Insert(0, 1, 0.9))
	require.NoError(t, p.Insert(0, 2, 0.4))
	p.FinalizeSort()
	require.NoError(t, p.Close())

	assert.True(t, Exists(store, "persist"))

	r, err := Open(store, "persist")
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 2, r.K())
	assert.Equal(t, 4, r.ItemCount())
	assert.Equal(t, cells.IDs(), r.CellSet().IDs())
	assert.Equal(t, genes.IDs(), r.GeneSet().IDs())

	list, err := r.Neighbors(0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, core.LocalID(1), list[0].Neighbor)
	assert.Equal(t, float32(0.9), list[0].Similarity)

	g, err := r.LocalToGlobal(1)
	require.NoError(t, err)
	assert.Equal(t, core.GlobalID(7), g)
	assert.Equal(t, core.LocalID(3), r.GlobalToLocal(20))
	assert.Equal(t, core.InvalidLocalID, r.GlobalToLocal(5))
}

func TestOpenMissing(t *testing.T) {
	store := newStore(t)

	_, err := Open(store, "nope")
	assert.ErrorIs(t, err, recfile.ErrNotFound)
	assert.False(t, Exists(store, "nope"))
}

func TestOpenTruncated(t *testing.T) {
	dir := t.TempDir()
	store, err := recfile.NewStore(dir)
	require.NoError(t, err)

	p, err := Create(store, "trunc", 2, subset.All(10), subset.All(4))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	// Chop the slots file mid-record.
	path := filepath.Join(dir, slotsName("trunc"))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-4))

	_, err = Open(store, "trunc")
	assert.ErrorIs(t, err, recfile.ErrCorrupt)
}

func TestRemove(t *testing.T) {
	store := newStore(t)

	p, err := Create(store, "gone", 2, subset.All(10), subset.All(4))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	require.NoError(t, Remove(store, "gone"))
	assert.False(t, Exists(store, "gone"))
	for _, name := range FileNames("gone") {
		assert.False(t, store.Exists(name))
	}

	assert.ErrorIs(t, Remove(store, "gone"), recfile.ErrNotFound)
}
