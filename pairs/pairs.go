// Package pairs implements the persisted bounded top-k neighbor table.
//
// For each cell in a chosen cell set, at most k neighbor entries are kept,
// always the k highest-similarity ones seen so far. All search strategies
// write into this table; once writing is done, FinalizeSort orders every
// list by decreasing similarity.
//
// All cell ids used and stored by this package are local to the table's
// cell set, not global ids. Use LocalToGlobal/GlobalToLocal to translate.
//
// Methods are not safe for concurrent use. Parallel writers must serialize
// access per cell (see the search driver's striped locking) or use the
// unsymmetric variants on disjoint owned ranges.
package pairs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"unsafe"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/subset"
)

var (
	// ErrInvalidK is returned when k is zero.
	ErrInvalidK = errors.New("pairs: k must be positive")

	// ErrEmptyCellSet is returned when the cell set has no members.
	ErrEmptyCellSet = errors.New("pairs: empty cell set")

	// ErrItemOutOfRange is returned for a local cell id outside [0, ItemCount).
	ErrItemOutOfRange = errors.New("pairs: cell id out of range")
)

// Entry is one stored neighbor: the neighbor's local cell id and the
// similarity of the pair.
type Entry struct {
	Neighbor   core.LocalID
	Similarity float32
}

const entrySize = int(unsafe.Sizeof(Entry{})) // 8

// itemInfo is the per-cell bookkeeping record.
//
// While usedCount == k, (lowestIndex, lowestSimilarity) always identify the
// minimum-similarity entry among the k stored, so insertion decisions are a
// single comparison.
type itemInfo struct {
	usedCount        uint32
	lowestIndex      uint32
	lowestSimilarity float32
}

const itemInfoSize = int(unsafe.Sizeof(itemInfo{})) // 12

const infoRecordSize = 16 // k uint64, itemCount uint32, 4 bytes reserved

func infoName(name string) string    { return "pairs-" + name + "-info" }
func itemsName(name string) string   { return "pairs-" + name + "-items" }
func slotsName(name string) string   { return "pairs-" + name + "-slots" }
func geneSetName(name string) string { return "pairs-" + name + "-geneset" }
func cellSetName(name string) string { return "pairs-" + name + "-cellset" }

// Pairs is an open top-k neighbor table.
type Pairs struct {
	name      string
	k         int
	itemCount int

	info  *recfile.File
	items *recfile.File
	slots *recfile.File

	genes *subset.Subset
	cells *subset.Subset

	// Zero-copy views into the mapped record payloads.
	infos   []itemInfo
	entries []Entry
}

// Create allocates a new table named name with room for k neighbors per
// cell. The gene and cell sets are copied into the table's own storage.
func Create(store *recfile.Store, name string, k int, genes, cells *subset.Subset) (*Pairs, error) {
	if k == 0 {
		return nil, ErrInvalidK
	}
	if cells.Size() == 0 {
		return nil, ErrEmptyCellSet
	}
	itemCount := cells.Size()

	created := make([]string, 0, 5)
	cleanup := func() {
		for _, n := range created {
			_ = store.Remove(n)
		}
	}

	info, err := store.Create(infoName(name), infoRecordSize, 1)
	if err != nil {
		return nil, fmt.Errorf("pairs: create %s: %w", name, err)
	}
	created = append(created, infoName(name))

	buf := info.Record(0)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(k))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(itemCount))

	items, err := store.Create(itemsName(name), itemInfoSize, itemCount)
	if err != nil {
		info.Close()
		cleanup()
		return nil, fmt.Errorf("pairs: create %s: %w", name, err)
	}
	created = append(created, itemsName(name))

	slots, err := store.Create(slotsName(name), entrySize, itemCount*k)
	if err != nil {
		info.Close()
		items.Close()
		cleanup()
		return nil, fmt.Errorf("pairs: create %s: %w", name, err)
	}
	created = append(created, slotsName(name))

	if err := genes.Save(store, geneSetName(name)); err != nil {
		info.Close()
		items.Close()
		slots.Close()
		cleanup()
		return nil, err
	}
	created = append(created, geneSetName(name))

	if err := cells.Save(store, cellSetName(name)); err != nil {
		info.Close()
		items.Close()
		slots.Close()
		cleanup()
		return nil, err
	}

	return &Pairs{
		name:      name,
		k:         k,
		itemCount: itemCount,
		info:      info,
		items:     items,
		slots:     slots,
		genes:     genes,
		cells:     cells,
		infos:     itemInfoView(items.Bytes(), itemCount),
		entries:   entryView(slots.Bytes(), itemCount*k),
	}, nil
}

// Open attaches to an existing table. The recorded k and cell count must be
// consistent with the sizes of all backing files.
func Open(store *recfile.Store, name string) (*Pairs, error) {
	info, err := store.Open(infoName(name))
	if err != nil {
		return nil, fmt.Errorf("pairs: open %s: %w", name, err)
	}
	if info.ElemSize() != infoRecordSize || info.ElemCount() != 1 {
		info.Close()
		return nil, fmt.Errorf("%w: %s: malformed info record", recfile.ErrCorrupt, name)
	}

	buf := info.Record(0)
	k := int(binary.LittleEndian.Uint64(buf[0:8]))
	itemCount := int(binary.LittleEndian.Uint32(buf[8:12]))
	if k <= 0 || itemCount <= 0 {
		info.Close()
		return nil, fmt.Errorf("%w: %s: k=%d itemCount=%d", recfile.ErrCorrupt, name, k, itemCount)
	}

	items, err := store.Open(itemsName(name))
	if err != nil {
		info.Close()
		return nil, fmt.Errorf("pairs: open %s: %w", name, err)
	}
	slots, err := store.Open(slotsName(name))
	if err != nil {
		info.Close()
		items.Close()
		return nil, fmt.Errorf("pairs: open %s: %w", name, err)
	}

	if items.ElemSize() != itemInfoSize || items.ElemCount() != itemCount ||
		slots.ElemSize() != entrySize || slots.ElemCount() != itemCount*k {
		info.Close()
		items.Close()
		slots.Close()
		return nil, fmt.Errorf("%w: %s: file sizes disagree with k=%d itemCount=%d", recfile.ErrCorrupt, name, k, itemCount)
	}

	genes, err := subset.Load(store, geneSetName(name))
	if err != nil {
		info.Close()
		items.Close()
		slots.Close()
		return nil, fmt.Errorf("pairs: open %s: %w", name, err)
	}
	cells, err := subset.Load(store, cellSetName(name))
	if err != nil {
		info.Close()
		items.Close()
		slots.Close()
		return nil, fmt.Errorf("pairs: open %s: %w", name, err)
	}
	if cells.Size() != itemCount {
		info.Close()
		items.Close()
		slots.Close()
		return nil, fmt.Errorf("%w: %s: cell set size %d, info says %d", recfile.ErrCorrupt, name, cells.Size(), itemCount)
	}

	return &Pairs{
		name:      name,
		k:         k,
		itemCount: itemCount,
		info:      info,
		items:     items,
		slots:     slots,
		genes:     genes,
		cells:     cells,
		infos:     itemInfoView(items.Bytes(), itemCount),
		entries:   entryView(slots.Bytes(), itemCount*k),
	}, nil
}

// Exists reports whether a table named name exists in the store.
func Exists(store *recfile.Store, name string) bool {
	return store.Exists(infoName(name))
}

// FileNames returns the store file names that make up the named table, in a
// fixed order. Archival copies a table by copying exactly these files.
func FileNames(name string) []string {
	return []string{
		infoName(name),
		itemsName(name),
		slotsName(name),
		geneSetName(name),
		cellSetName(name),
	}
}

// Remove deletes the named table's storage.
func Remove(store *recfile.Store, name string) error {
	if err := store.Remove(infoName(name)); err != nil {
		return fmt.Errorf("pairs: remove %s: %w", name, err)
	}
	for _, n := range []string{itemsName(name), slotsName(name), geneSetName(name), cellSetName(name)} {
		if err := store.Remove(n); err != nil && !errors.Is(err, recfile.ErrNotFound) {
			return fmt.Errorf("pairs: remove %s: %w", name, err)
		}
	}
	return nil
}

// The payload of a record file starts header-aligned at a 32-byte offset in
// a page-aligned mapping, so reinterpreting it as a slice of 4-byte-aligned
// records is safe.
func entryView(b []byte, n int) []Entry {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*Entry)(unsafe.Pointer(&b[0])), n)
}

func itemInfoView(b []byte, n int) []itemInfo {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*itemInfo)(unsafe.Pointer(&b[0])), n)
}

// Name returns the table's name.
func (p *Pairs) Name() string { return p.name }

// K returns the per-cell neighbor capacity.
func (p *Pairs) K() int { return p.k }

// ItemCount returns the number of cells in the table's cell set.
func (p *Pairs) ItemCount() int { return p.itemCount }

// GeneSet returns the gene set the table was built for.
func (p *Pairs) GeneSet() *subset.Subset { return p.genes }

// CellSet returns the cell set the table was built for.
func (p *Pairs) CellSet() *subset.Subset { return p.cells }

func (p *Pairs) checkItem(i core.LocalID) error {
	if int(i) >= p.itemCount {
		return fmt.Errorf("%w: %d (cell count %d)", ErrItemOutOfRange, i, p.itemCount)
	}
	return nil
}

func (p *Pairs) list(i core.LocalID) []Entry {
	base := int(i) * p.k
	return p.entries[base : base+int(p.infos[i].usedCount)]
}

func (p *Pairs) contains(i core.LocalID, j core.LocalID) bool {
	for _, e := range p.list(i) {
		if e.Neighbor == j {
			return true
		}
	}
	return false
}

// addOne attempts to store e in cell i's list.
//
// While the list is filling, entries are appended and the cached lowest is
// maintained incrementally. Once full, a candidate must be strictly greater
// than the cached lowest to displace it; ties keep the existing entry. The
// duplicate check runs only when the entry would otherwise be stored, so
// rejected candidates never pay the O(used) scan.
func (p *Pairs) addOne(i core.LocalID, e Entry, dupCheck bool) {
	info := &p.infos[i]
	base := int(i) * p.k

	if int(info.usedCount) < p.k {
		if dupCheck && p.contains(i, e.Neighbor) {
			return
		}
		idx := info.usedCount
		p.entries[base+int(idx)] = e
		if idx == 0 || e.Similarity < info.lowestSimilarity {
			info.lowestIndex = idx
			info.lowestSimilarity = e.Similarity
		}
		info.usedCount++
		return
	}

	if e.Similarity <= info.lowestSimilarity {
		return
	}
	if dupCheck && p.contains(i, e.Neighbor) {
		return
	}
	p.entries[base+int(info.lowestIndex)] = e

	// Rescan for the new lowest (k comparisons).
	lowest := uint32(0)
	lowestSim := p.entries[base].Similarity
	for s := 1; s < p.k; s++ {
		if p.entries[base+s].Similarity < lowestSim {
			lowest = uint32(s)
			lowestSim = p.entries[base+s].Similarity
		}
	}
	info.lowestIndex = lowest
	info.lowestSimilarity = lowestSim
}

// addOneHeap is the O(log k) replace variant: while the list is full it is
// kept as a similarity min-heap, so the cached lowest is always slot 0.
// Heap and linear insertion must not be mixed for one cell within a run.
func (p *Pairs) addOneHeap(i core.LocalID, e Entry) {
	info := &p.infos[i]
	base := int(i) * p.k

	if int(info.usedCount) < p.k {
		idx := info.usedCount
		p.entries[base+int(idx)] = e
		if idx == 0 || e.Similarity < info.lowestSimilarity {
			info.lowestIndex = idx
			info.lowestSimilarity = e.Similarity
		}
		info.usedCount++
		if int(info.usedCount) == p.k {
			p.heapify(base)
			info.lowestIndex = 0
			info.lowestSimilarity = p.entries[base].Similarity
		}
		return
	}

	if e.Similarity <= info.lowestSimilarity {
		return
	}
	p.entries[base] = e
	p.siftDown(base, 0)
	info.lowestIndex = 0
	info.lowestSimilarity = p.entries[base].Similarity
}

func (p *Pairs) heapify(base int) {
	for i := p.k/2 - 1; i >= 0; i-- {
		p.siftDown(base, i)
	}
}

func (p *Pairs) siftDown(base, i int) {
	n := p.k
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		least := l
		if r := l + 1; r < n && p.entries[base+r].Similarity < p.entries[base+l].Similarity {
			least = r
		}
		if p.entries[base+least].Similarity >= p.entries[base+i].Similarity {
			return
		}
		p.entries[base+i], p.entries[base+least] = p.entries[base+least], p.entries[base+i]
		i = least
	}
}

// Insert attempts to store the pair in both cells' lists. Self-pairs are
// rejected. Whether the pair sticks on either side depends on that side's
// current entries. Duplicate neighbors are checked and skipped.
func (p *Pairs) Insert(i, j core.LocalID, similarity float32) error {
	if err := p.checkItem(i); err != nil {
		return err
	}
	if err := p.checkItem(j); err != nil {
		return err
	}
	if i == j {
		return nil
	}
	p.addOne(i, Entry{Neighbor: j, Similarity: similarity}, true)
	p.addOne(j, Entry{Neighbor: i, Similarity: similarity}, true)
	return nil
}

// InsertNoDuplicateCheck is Insert without the duplicate scan. Calling it
// twice with the same pair may store the neighbor twice; callers choose this
// variant when they can guarantee pair uniqueness and want the scan's cost
// back.
func (p *Pairs) InsertNoDuplicateCheck(i, j core.LocalID, similarity float32) error {
	if err := p.checkItem(i); err != nil {
		return err
	}
	if err := p.checkItem(j); err != nil {
		return err
	}
	if i == j {
		return nil
	}
	p.addOne(i, Entry{Neighbor: j, Similarity: similarity}, false)
	p.addOne(j, Entry{Neighbor: i, Similarity: similarity}, false)
	return nil
}

// InsertNoDuplicateCheckHeap is InsertNoDuplicateCheck with heap-based
// replacement in the full state.
func (p *Pairs) InsertNoDuplicateCheckHeap(i, j core.LocalID, similarity float32) error {
	if err := p.checkItem(i); err != nil {
		return err
	}
	if err := p.checkItem(j); err != nil {
		return err
	}
	if i == j {
		return nil
	}
	p.addOneHeap(i, Entry{Neighbor: j, Similarity: similarity})
	p.addOneHeap(j, Entry{Neighbor: i, Similarity: similarity})
	return nil
}

// InsertUnsymmetric stores the pair only in cell i's list, with duplicate
// checking. Used when the caller separately inserts the reverse direction or
// wants a directed table.
func (p *Pairs) InsertUnsymmetric(i, j core.LocalID, similarity float32) error {
	if err := p.checkItem(i); err != nil {
		return err
	}
	if err := p.checkItem(j); err != nil {
		return err
	}
	if i == j {
		return nil
	}
	p.addOne(i, Entry{Neighbor: j, Similarity: similarity}, true)
	return nil
}

// InsertUnsymmetricNoDuplicateCheck is InsertUnsymmetric without the
// duplicate scan.
func (p *Pairs) InsertUnsymmetricNoDuplicateCheck(i, j core.LocalID, similarity float32) error {
	if err := p.checkItem(i); err != nil {
		return err
	}
	if err := p.checkItem(j); err != nil {
		return err
	}
	if i == j {
		return nil
	}
	p.addOne(i, Entry{Neighbor: j, Similarity: similarity}, false)
	return nil
}

// InsertUnsymmetricNoDuplicateCheckHeap is the heap-replacement flavor of
// InsertUnsymmetricNoDuplicateCheck.
func (p *Pairs) InsertUnsymmetricNoDuplicateCheckHeap(i, j core.LocalID, similarity float32) error {
	if err := p.checkItem(i); err != nil {
		return err
	}
	if err := p.checkItem(j); err != nil {
		return err
	}
	if i == j {
		return nil
	}
	p.addOneHeap(i, Entry{Neighbor: j, Similarity: similarity})
	return nil
}

// Exists reports whether j currently appears in i's list. The check is not
// symmetric: it does not look at j's list.
func (p *Pairs) Exists(i, j core.LocalID) (bool, error) {
	if err := p.checkItem(i); err != nil {
		return false, err
	}
	if err := p.checkItem(j); err != nil {
		return false, err
	}
	return p.contains(i, j), nil
}

// Neighbors returns a read-only view of cell i's current entries, in
// insertion order before FinalizeSort and by decreasing similarity after.
// The view is valid until the next mutation of i's list or Close.
func (p *Pairs) Neighbors(i core.LocalID) ([]Entry, error) {
	if err := p.checkItem(i); err != nil {
		return nil, err
	}
	return p.list(i), nil
}

// FinalizeSort orders every cell's entries by decreasing similarity.
// Consumers relying on "closest neighbor first" must call it after all
// insertions are done. Empty lists are untouched, so a freshly created
// table is unchanged.
func (p *Pairs) FinalizeSort() {
	for i := 0; i < p.itemCount; i++ {
		info := &p.infos[i]
		used := int(info.usedCount)
		if used == 0 {
			continue
		}
		base := i * p.k
		list := p.entries[base : base+used]
		sort.Slice(list, func(a, b int) bool {
			return list[a].Similarity > list[b].Similarity
		})
		info.lowestIndex = uint32(used - 1)
		info.lowestSimilarity = list[used-1].Similarity
	}
}

// LocalToGlobal returns the global cell id for a table-local id.
func (p *Pairs) LocalToGlobal(i core.LocalID) (core.GlobalID, error) {
	g, ok := p.cells.At(i)
	if !ok {
		return core.InvalidGlobalID, fmt.Errorf("%w: %d (cell count %d)", ErrItemOutOfRange, i, p.itemCount)
	}
	return g, nil
}

// GlobalToLocal returns the table-local id for a global cell id, or
// InvalidLocalID when the cell is not in the table's cell set.
func (p *Pairs) GlobalToLocal(g core.GlobalID) core.LocalID {
	return p.cells.IndexOf(g)
}

// Flush forces all modified records to stable storage.
func (p *Pairs) Flush() error {
	for _, f := range []*recfile.File{p.info, p.items, p.slots} {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("pairs: flush %s: %w", p.name, err)
		}
	}
	return nil
}

// Close flushes and unmaps the table's storage. The table must not be used
// afterwards.
func (p *Pairs) Close() error {
	var firstErr error
	for _, f := range []*recfile.File{p.info, p.items, p.slots} {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.entries = nil
	p.infos = nil
	return firstErr
}
