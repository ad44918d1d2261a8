// Package subset implements ordered, deduplicated sets of global ids with
// local/global id translation and set algebra.
//
// A subset assigns every member a dense local id in [0, Size()), ordered by
// ascending global id. Search strategies and neighbor tables work entirely
// in local ids; the subset is the bijection back to global ids.
package subset

import (
	"encoding/binary"
	"fmt"
	"iter"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/internal/recfile"
)

const idSize = 4 // uint32 records

// Subset is an immutable ordered set of global ids.
type Subset struct {
	ids []core.GlobalID // strictly increasing
	bm  *roaring.Bitmap
}

// New builds a subset from ids, sorting and deduplicating them.
func New(ids []core.GlobalID) *Subset {
	sorted := make([]core.GlobalID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	dedup := sorted[:0]
	for i, id := range sorted {
		if i == 0 || id != dedup[len(dedup)-1] {
			dedup = append(dedup, id)
		}
	}
	return fromSorted(dedup)
}

// All returns the subset {0, 1, …, n-1}.
func All(n int) *Subset {
	ids := make([]core.GlobalID, n)
	for i := range ids {
		ids[i] = core.GlobalID(i)
	}
	return fromSorted(ids)
}

func fromSorted(ids []core.GlobalID) *Subset {
	bm := roaring.New()
	for _, id := range ids {
		bm.Add(uint32(id))
	}
	return &Subset{ids: ids, bm: bm}
}

func fromBitmap(bm *roaring.Bitmap) *Subset {
	arr := bm.ToArray() // ascending
	ids := make([]core.GlobalID, len(arr))
	for i, v := range arr {
		ids[i] = core.GlobalID(v)
	}
	return &Subset{ids: ids, bm: bm}
}

// Size returns the number of members.
func (s *Subset) Size() int {
	return len(s.ids)
}

// Contains reports whether id is a member.
func (s *Subset) Contains(id core.GlobalID) bool {
	return s.bm.Contains(uint32(id))
}

// IndexOf returns the local id of the given global id, or InvalidLocalID
// when absent. Lookup is a binary search on the sorted id array.
func (s *Subset) IndexOf(id core.GlobalID) core.LocalID {
	i := sort.Search(len(s.ids), func(i int) bool { return s.ids[i] >= id })
	if i < len(s.ids) && s.ids[i] == id {
		return core.LocalID(i)
	}
	return core.InvalidLocalID
}

// At returns the global id at local id i.
func (s *Subset) At(i core.LocalID) (core.GlobalID, bool) {
	if int(i) >= len(s.ids) {
		return core.InvalidGlobalID, false
	}
	return s.ids[i], true
}

// IDs returns the sorted global ids. The slice must not be mutated.
func (s *Subset) IDs() []core.GlobalID {
	return s.ids
}

// All iterates members in ascending global-id order as (local, global) pairs.
func (s *Subset) All() iter.Seq2[core.LocalID, core.GlobalID] {
	return func(yield func(core.LocalID, core.GlobalID) bool) {
		for i, id := range s.ids {
			if !yield(core.LocalID(i), id) {
				return
			}
		}
	}
}

// Intersect returns the members present in both a and b.
func Intersect(a, b *Subset) *Subset {
	return fromBitmap(roaring.And(a.bm, b.bm))
}

// Union returns the members present in a, b, or both.
func Union(a, b *Subset) *Subset {
	return fromBitmap(roaring.Or(a.bm, b.bm))
}

// Subtract returns the members of a that are not in b.
func Subtract(a, b *Subset) *Subset {
	return fromBitmap(roaring.AndNot(a.bm, b.bm))
}

// Save persists the subset under name as uint32 records.
func (s *Subset) Save(store *recfile.Store, name string) error {
	f, err := store.Create(name, idSize, len(s.ids))
	if err != nil {
		return fmt.Errorf("subset: save %s: %w", name, err)
	}
	buf := f.Bytes()
	for i, id := range s.ids {
		binary.LittleEndian.PutUint32(buf[i*idSize:], uint32(id))
	}
	if err := f.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("subset: save %s: %w", name, err)
	}
	return f.Close()
}

// Load reads a subset persisted with Save. The stored ids must be strictly
// increasing; anything else means the file was not written by Save.
func Load(store *recfile.Store, name string) (*Subset, error) {
	f, err := store.OpenReadOnly(name)
	if err != nil {
		return nil, fmt.Errorf("subset: load %s: %w", name, err)
	}
	defer f.Close()

	if f.ElemSize() != idSize {
		return nil, fmt.Errorf("%w: %s: element size %d", recfile.ErrCorrupt, name, f.ElemSize())
	}

	buf := f.Bytes()
	ids := make([]core.GlobalID, f.ElemCount())
	for i := range ids {
		ids[i] = core.GlobalID(binary.LittleEndian.Uint32(buf[i*idSize:]))
		if i > 0 && ids[i] <= ids[i-1] {
			return nil, fmt.Errorf("%w: %s: ids not strictly increasing", recfile.ErrCorrupt, name)
		}
	}
	return fromSorted(ids), nil
}
