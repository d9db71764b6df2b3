// Package interp implements the dense bit-set Interpretation data type and
// its two-bit partial-assignment variant (spec §3).
package interp

import (
	"github.com/RoaringBitmap/roaring/v2"

	"hexsolve/internal/id"
)

// Set is a dense bit-set over ground-atom IDAddresses, backed by a Roaring
// bitmap — the natural Go analogue of the spec's "dense bit-set over
// IDAddresses ... with set operations and enumerators".
type Set struct {
	bits *roaring.Bitmap
}

// NewSet returns an empty set.
func NewSet() *Set { return &Set{bits: roaring.New()} }

// Add inserts addr.
func (s *Set) Add(addr uint32) { s.bits.Add(addr) }

// Remove deletes addr.
func (s *Set) Remove(addr uint32) { s.bits.Remove(addr) }

// Contains reports whether addr is in the set.
func (s *Set) Contains(addr uint32) bool { return s.bits.Contains(addr) }

// Len returns the cardinality.
func (s *Set) Len() int { return int(s.bits.GetCardinality()) }

// Clone returns a deep copy.
func (s *Set) Clone() *Set { return &Set{bits: s.bits.Clone()} }

// Union mutates s to be the union of s and other.
func (s *Set) Union(other *Set) { s.bits.Or(other.bits) }

// Intersect mutates s to be the intersection of s and other.
func (s *Set) Intersect(other *Set) { s.bits.And(other.bits) }

// Subtract mutates s to remove every member of other.
func (s *Set) Subtract(other *Set) { s.bits.AndNot(other.bits) }

// Each calls fn for every member address in increasing order; stops early
// if fn returns false.
func (s *Set) Each(fn func(addr uint32) bool) {
	it := s.bits.Iterator()
	for it.HasNext() {
		if !fn(it.Next()) {
			return
		}
	}
}

// ToSlice returns the sorted member addresses.
func (s *Set) ToSlice() []uint32 { return s.bits.ToArray() }

// Fingerprint returns a stable hash of the set's membership, used as the
// external-atom input-projection cache key (spec §4.4 point 3).
func (s *Set) Fingerprint() uint64 {
	h := uint64(1469598103934665603) // FNV offset basis
	s.Each(func(addr uint32) bool {
		h ^= uint64(addr)
		h *= 1099511628211
		return true
	})
	return h
}

// AtomSet builds a Set from a slice of ground atom IDs, using their address.
func AtomSet(ids []id.ID) *Set {
	s := NewSet()
	for _, i := range ids {
		s.Add(i.Address())
	}
	return s
}

// Partial is the two-bit partial interpretation of spec §3: the pair
// (truth, assigned) with the convention (unassigned, true, false) ≡
// (assigned=0, assigned=1∧truth=1, assigned=1∧truth=0).
type Partial struct {
	Truth    *Set
	Assigned *Set
}

// NewPartial returns an entirely-unassigned partial interpretation.
func NewPartial() *Partial {
	return &Partial{Truth: NewSet(), Assigned: NewSet()}
}

// Value is the three-valued truth of an atom under a Partial.
type Value int

const (
	Unassigned Value = iota
	True
	False
)

// Get returns the three-valued truth of addr.
func (p *Partial) Get(addr uint32) Value {
	if !p.Assigned.Contains(addr) {
		return Unassigned
	}
	if p.Truth.Contains(addr) {
		return True
	}
	return False
}

// Set assigns addr to v. Unassigned clears both bits.
func (p *Partial) Set(addr uint32, v Value) {
	switch v {
	case True:
		p.Assigned.Add(addr)
		p.Truth.Add(addr)
	case False:
		p.Assigned.Add(addr)
		p.Truth.Remove(addr)
	case Unassigned:
		p.Assigned.Remove(addr)
		p.Truth.Remove(addr)
	}
}

// Clone deep-copies the partial interpretation.
func (p *Partial) Clone() *Partial {
	return &Partial{Truth: p.Truth.Clone(), Assigned: p.Assigned.Clone()}
}

// Project returns the Set of addresses in mask that are assigned True.
func (p *Partial) Project(mask *Set) *Set {
	out := p.Truth.Clone()
	out.Intersect(mask)
	return out
}
