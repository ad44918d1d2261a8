package core

// LocalID is a dense identifier for an item within one chosen item subset.
// It is strictly 32-bit and contiguous in [0, subset size), ordered by
// ascending global id. Used for all hot-path structures (neighbor slots,
// signatures, buckets).
type LocalID uint32

// GlobalID is the stable identifier of an item or feature across the whole
// collection, independent of any subset.
type GlobalID uint32

// InvalidLocalID is the not-found sentinel for local id lookups.
const InvalidLocalID = ^LocalID(0)

// InvalidGlobalID is the not-found sentinel for global id lookups.
const InvalidGlobalID = ^GlobalID(0)
