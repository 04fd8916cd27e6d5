// Package types holds the small value types shared across every consensus
// package: hashes, block pointers, and the two numeric domains (timeslots and
// MiniLas amounts) that would otherwise get redeclared in every package that
// touches them.
package types

import "fmt"

// Hash is a SHA-256 digest.
type Hash [32]byte

func (h Hash) String() string {
	return fmt.Sprintf("%x", [32]byte(h))
}

// IsZero reports whether h is the all-zero hash, used as a sentinel for
// "not yet computed" and for the depth-less genesis parent slot.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MiniLas is the base currency unit. 1 LAS = 1_000_000 MiniLas.
type MiniLas = uint64

// Timeslot is a monotonic discrete time unit, (now-start_time)/SLOT_LENGTH.
type Timeslot = uint64

// BlockPtr uniquely identifies a block within the block tree. Depth is
// carried alongside the hash purely so lookups in a depth-indexed structure
// are O(1); two BlockPtrs are equal iff their hashes are equal.
type BlockPtr struct {
	Hash  Hash
	Depth int64
}

func (p BlockPtr) String() string {
	return fmt.Sprintf("%s@%d", p.Hash, p.Depth)
}
