// Package signature implements LSH bit signatures approximating angular
// similarity between expression vectors.
//
// Each cell gets a fixed-length bit vector: bit b is the sign of the dot
// product of the cell's restricted expression vector with the b-th random
// hyperplane. Hyperplane coefficients are drawn from a seeded normal source,
// so identical (gene set, bit count, seed) always reproduce bit-identical
// signatures. That determinism is load-bearing: bucket and permutation
// search group items by exact equality of derived bit patterns.
//
// Hamming distance between two signatures estimates the angle between the
// vectors: estimate = cos(π·hamming/L). The RMS error of the estimate
// shrinks as O(1/√L); L = 1024 gives roughly 0.05.
package signature

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand"

	"github.com/hupe1980/pairgo/core"
	"github.com/hupe1980/pairgo/expr"
	"github.com/hupe1980/pairgo/internal/recfile"
	"github.com/hupe1980/pairgo/subset"
)

var (
	// ErrInvalidBitCount is returned when the signature length is zero.
	ErrInvalidBitCount = errors.New("signature: bit count must be positive")

	// ErrEmptyGeneSet is returned when the gene set has no members.
	ErrEmptyGeneSet = errors.New("signature: empty gene set")

	// ErrEmptyCellSet is returned when the cell set has no members.
	ErrEmptyCellSet = errors.New("signature: empty cell set")

	// ErrItemOutOfRange is returned for a local cell id outside [0, ItemCount).
	ErrItemOutOfRange = errors.New("signature: cell id out of range")
)

const wordBytes = 8

const infoRecordSize = 32 // bitCount, wordCount, itemCount+pad, seed (uint64 each)

func infoName(name string) string  { return "sig-" + name + "-info" }
func wordsName(name string) string { return "sig-" + name + "-words" }

// Set holds one signature per cell of a cell subset, packed into uint64
// words. A Set is either memory-backed (built by Generate) or attached to
// persisted storage (Compute/Open); either way reads are safe for concurrent
// use once the Set exists.
type Set struct {
	bitCount  int
	wordCount int
	itemCount int
	seed      uint64

	words []uint64

	// cosTable[h] = cos(π·h/bitCount); one lookup per pair estimate.
	cosTable []float64

	info *recfile.File // nil for memory-backed sets
	data *recfile.File
}

// Generate builds signatures in memory for every cell in cells.
//
// For each signature bit, one coefficient per gene in genes is drawn from a
// normal source seeded with seed; the bit is 1 iff the dot product of the
// cell's restricted vector with those coefficients is non-negative. The draw
// order (bit-major, then gene in ascending local id) is part of the format:
// changing it changes every signature.
func Generate(m expr.Matrix, genes, cells *subset.Subset, bitCount int, seed uint64) (*Set, error) {
	if bitCount <= 0 {
		return nil, ErrInvalidBitCount
	}
	if genes == nil || genes.Size() == 0 {
		return nil, ErrEmptyGeneSet
	}
	if cells == nil || cells.Size() == 0 {
		return nil, ErrEmptyCellSet
	}

	vecs, err := expr.RestrictAll(m, genes, cells, expr.NormalizationNone)
	if err != nil {
		return nil, fmt.Errorf("signature: generate: %w", err)
	}

	s := newSet(bitCount, cells.Size(), seed, nil, nil)
	fill(s, vecs, genes.Size())
	return s, nil
}

// Compute generates signatures and persists them under name.
func Compute(store *recfile.Store, name string, m expr.Matrix, genes, cells *subset.Subset, bitCount int, seed uint64) (*Set, error) {
	if bitCount <= 0 {
		return nil, ErrInvalidBitCount
	}
	if genes == nil || genes.Size() == 0 {
		return nil, ErrEmptyGeneSet
	}
	if cells == nil || cells.Size() == 0 {
		return nil, ErrEmptyCellSet
	}

	vecs, err := expr.RestrictAll(m, genes, cells, expr.NormalizationNone)
	if err != nil {
		return nil, fmt.Errorf("signature: compute %s: %w", name, err)
	}

	itemCount := cells.Size()
	wordCount := (bitCount + 63) / 64

	info, err := store.Create(infoName(name), infoRecordSize, 1)
	if err != nil {
		return nil, fmt.Errorf("signature: compute %s: %w", name, err)
	}
	buf := info.Record(0)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(bitCount))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(wordCount))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(itemCount))
	binary.LittleEndian.PutUint64(buf[24:32], seed)

	data, err := store.Create(wordsName(name), wordBytes, itemCount*wordCount)
	if err != nil {
		info.Close()
		_ = store.Remove(infoName(name))
		return nil, fmt.Errorf("signature: compute %s: %w", name, err)
	}

	s := newSet(bitCount, itemCount, seed, info, data)
	fill(s, vecs, genes.Size())

	if err := s.Flush(); err != nil {
		s.Close()
		_ = Remove(store, name)
		return nil, err
	}
	return s, nil
}

// Open attaches to a signature set persisted by Compute.
func Open(store *recfile.Store, name string) (*Set, error) {
	info, err := store.Open(infoName(name))
	if err != nil {
		return nil, fmt.Errorf("signature: open %s: %w", name, err)
	}
	if info.ElemSize() != infoRecordSize || info.ElemCount() != 1 {
		info.Close()
		return nil, fmt.Errorf("%w: %s: malformed info record", recfile.ErrCorrupt, name)
	}

	buf := info.Record(0)
	bitCount := int(binary.LittleEndian.Uint64(buf[0:8]))
	wordCount := int(binary.LittleEndian.Uint64(buf[8:16]))
	itemCount := int(binary.LittleEndian.Uint64(buf[16:24]))
	seed := binary.LittleEndian.Uint64(buf[24:32])

	if bitCount <= 0 || itemCount <= 0 || wordCount != (bitCount+63)/64 {
		info.Close()
		return nil, fmt.Errorf("%w: %s: bitCount=%d wordCount=%d itemCount=%d", recfile.ErrCorrupt, name, bitCount, wordCount, itemCount)
	}

	data, err := store.Open(wordsName(name))
	if err != nil {
		info.Close()
		return nil, fmt.Errorf("signature: open %s: %w", name, err)
	}
	if data.ElemSize() != wordBytes || data.ElemCount() != itemCount*wordCount {
		info.Close()
		data.Close()
		return nil, fmt.Errorf("%w: %s: word file disagrees with bitCount=%d itemCount=%d", recfile.ErrCorrupt, name, bitCount, itemCount)
	}

	return newSet(bitCount, itemCount, seed, info, data), nil
}

// Exists reports whether a signature set named name exists in the store.
func Exists(store *recfile.Store, name string) bool {
	return store.Exists(infoName(name))
}

// Remove deletes the named signature set's storage.
func Remove(store *recfile.Store, name string) error {
	if err := store.Remove(infoName(name)); err != nil {
		return fmt.Errorf("signature: remove %s: %w", name, err)
	}
	if err := store.Remove(wordsName(name)); err != nil && !errors.Is(err, recfile.ErrNotFound) {
		return fmt.Errorf("signature: remove %s: %w", name, err)
	}
	return nil
}

func newSet(bitCount, itemCount int, seed uint64, info, data *recfile.File) *Set {
	wordCount := (bitCount + 63) / 64

	var words []uint64
	if data != nil {
		words = wordView(data.Bytes(), itemCount*wordCount)
	} else {
		words = make([]uint64, itemCount*wordCount)
	}

	cosTable := make([]float64, bitCount+1)
	for h := range cosTable {
		cosTable[h] = math.Cos(math.Pi * float64(h) / float64(bitCount))
	}

	return &Set{
		bitCount:  bitCount,
		wordCount: wordCount,
		itemCount: itemCount,
		seed:      seed,
		words:     words,
		cosTable:  cosTable,
		info:      info,
		data:      data,
	}
}

// fill computes all signature bits into s.words. One hyperplane is drawn per
// bit; its coefficients are indexed by gene local id, matching the id space
// of the restricted vectors.
func fill(s *Set, vecs [][]expr.LocalEntry, geneCount int) {
	rng := rand.New(rand.NewSource(int64(s.seed)))
	coeffs := make([]float64, geneCount)

	for b := 0; b < s.bitCount; b++ {
		for g := range coeffs {
			coeffs[g] = rng.NormFloat64()
		}
		word, mask := b/64, uint64(1)<<(b%64)
		for i, v := range vecs {
			var dot float64
			for _, e := range v {
				dot += float64(e.Count) * coeffs[e.Gene]
			}
			if dot >= 0 {
				s.words[i*s.wordCount+word] |= mask
			}
		}
	}
}

// Record files are little-endian; reinterpreting the payload as uint64 words
// matches the persisted layout on the architectures we map files on.
func wordView(b []byte, n int) []uint64 {
	if n == 0 {
		return nil
	}
	words := make([]uint64, n)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(b[i*wordBytes:])
	}
	return words
}

// BitCount returns the signature length in bits.
func (s *Set) BitCount() int { return s.bitCount }

// WordCount returns the number of uint64 words per signature.
func (s *Set) WordCount() int { return s.wordCount }

// ItemCount returns the number of cells in the set.
func (s *Set) ItemCount() int { return s.itemCount }

// Seed returns the seed the hyperplanes were drawn with.
func (s *Set) Seed() uint64 { return s.seed }

// Words returns cell i's packed signature. The slice must not be mutated.
func (s *Set) Words(i core.LocalID) []uint64 {
	base := int(i) * s.wordCount
	return s.words[base : base+s.wordCount]
}

func (s *Set) checkItem(i core.LocalID) error {
	if int(i) >= s.itemCount {
		return fmt.Errorf("%w: %d (cell count %d)", ErrItemOutOfRange, i, s.itemCount)
	}
	return nil
}

// HammingDistance returns the number of differing bits between cells i and j.
func (s *Set) HammingDistance(i, j core.LocalID) int {
	a := s.words[int(i)*s.wordCount:]
	b := s.words[int(j)*s.wordCount:]
	h := 0
	for w := 0; w < s.wordCount; w++ {
		h += bits.OnesCount64(a[w] ^ b[w])
	}
	return h
}

// EstimatedSimilarity returns cos(π·hamming(i,j)/L), the angular-similarity
// estimate for the pair.
func (s *Set) EstimatedSimilarity(i, j core.LocalID) float64 {
	return s.cosTable[s.HammingDistance(i, j)]
}

// Similarity implements the search scorer contract over signature estimates.
func (s *Set) Similarity(i, j core.LocalID) float64 {
	return s.EstimatedSimilarity(i, j)
}

// Flush forces persisted words to stable storage. Memory-backed sets return
// nil.
func (s *Set) Flush() error {
	if s.data == nil {
		return nil
	}
	// Memory view and mapped payload are separate for alignment safety;
	// write the words back before syncing.
	buf := s.data.Bytes()
	for i, w := range s.words {
		binary.LittleEndian.PutUint64(buf[i*wordBytes:], w)
	}
	for _, f := range []*recfile.File{s.info, s.data} {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("signature: flush: %w", err)
		}
	}
	return nil
}

// Close releases persisted storage. Memory-backed sets return nil.
func (s *Set) Close() error {
	if s.data == nil {
		return nil
	}
	var firstErr error
	for _, f := range []*recfile.File{s.info, s.data} {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
