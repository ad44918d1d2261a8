package expr

import "math"

// NormalizationMethod selects how restricted vectors are scaled before
// scoring. Pearson correlation is invariant under positive per-vector
// scaling, so the choice does not change exact similarities; it exists for
// parity with signature generation and for exported vectors.
type NormalizationMethod int

const (
	// NormalizationNone leaves raw counts.
	NormalizationNone NormalizationMethod = iota
	// NormalizationL1 scales each vector to unit L1 norm.
	NormalizationL1
	// NormalizationL2 scales each vector to unit L2 norm.
	NormalizationL2
)

// String implements fmt.Stringer.
func (n NormalizationMethod) String() string {
	switch n {
	case NormalizationNone:
		return "none"
	case NormalizationL1:
		return "l1"
	case NormalizationL2:
		return "l2"
	default:
		return "invalid"
	}
}

// Valid reports whether n is a known method.
func (n NormalizationMethod) Valid() bool {
	switch n {
	case NormalizationNone, NormalizationL1, NormalizationL2:
		return true
	default:
		return false
	}
}

func normalize(v []LocalEntry, method NormalizationMethod) {
	switch method {
	case NormalizationL1:
		var sum float64
		for _, e := range v {
			sum += float64(e.Count)
		}
		if sum == 0 {
			return
		}
		inv := float32(1 / sum)
		for i := range v {
			v[i].Count *= inv
		}
	case NormalizationL2:
		var sumSq float64
		for _, e := range v {
			sumSq += float64(e.Count) * float64(e.Count)
		}
		if sumSq == 0 {
			return
		}
		inv := float32(1 / math.Sqrt(sumSq))
		for i := range v {
			v[i].Count *= inv
		}
	}
}
