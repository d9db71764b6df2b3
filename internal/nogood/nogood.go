// Package nogood implements the no-good store (component C6): signed-literal
// clauses with hashing, resolution, instantiation, and duplicate filtering.
package nogood

import (
	"sort"

	"hexsolve/internal/id"
)

// Nogood is an unordered set of signed literal IDs meaning "this conjunction
// is forbidden". The sign is carried by the literal ID's NAF bit: an entry
// with NAF=false means "this atom must not be true", NAF=true means "this
// atom must not be false" — i.e. the nogood fires when every listed literal
// holds under that polarity.
type Nogood struct {
	lits     map[id.ID]struct{}
	hash     uint64
	template bool // true if any literal refers to a non-ground registry entry
	AddCount int
}

// New builds a Nogood from the given literals, normalising duplicates.
func New(lits ...id.ID) *Nogood {
	ng := &Nogood{lits: make(map[id.ID]struct{}, len(lits))}
	for _, l := range lits {
		ng.Insert(l)
	}
	return ng
}

// Insert adds lit as given, collapsing duplicates and keeping the hash in
// sync. No kind normalisation is applied: lit is stored with whatever kind
// bits it carries.
func (ng *Nogood) Insert(lit id.ID) {
	if _, ok := ng.lits[lit]; ok {
		return
	}
	ng.lits[lit] = struct{}{}
	ng.hash ^= rehash(lit)
}

func rehash(l id.ID) uint64 {
	x := uint64(l)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// Hash returns the order-independent hash kept in sync with Insert.
func (ng *Nogood) Hash() uint64 { return ng.hash }

// Len returns the number of distinct literals.
func (ng *Nogood) Len() int { return len(ng.lits) }

// Contains reports whether lit is a member.
func (ng *Nogood) Contains(lit id.ID) bool {
	_, ok := ng.lits[lit]
	return ok
}

// Literals returns a deterministically sorted snapshot of the member
// literals (sorted for reproducible watch selection and testing).
func (ng *Nogood) Literals() []id.ID {
	out := make([]id.ID, 0, len(ng.lits))
	for l := range ng.lits {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsUnary reports whether the nogood has exactly one literal.
func (ng *Nogood) IsUnary() bool { return len(ng.lits) == 1 }

// Resolve returns the nogood containing every literal of ng1 ∪ ng2 except
// pivot and its negation. Precondition (caller's responsibility per spec
// §4.5): pivot appears positively in one operand and negatively in the
// other — i.e. one of {pivot, pivot.WithNAF(!pivot.NAF())} is in ng1 and the
// other is in ng2.
func Resolve(ng1, ng2 *Nogood, pivot id.ID) *Nogood {
	negPivot := pivot.WithNAF(!pivot.NAF())
	out := &Nogood{lits: make(map[id.ID]struct{}, len(ng1.lits)+len(ng2.lits))}
	for _, src := range []*Nogood{ng1, ng2} {
		for l := range src.lits {
			if l == pivot || l == negPivot {
				continue
			}
			out.Insert(l)
		}
	}
	return out
}

// ApplySubstitution produces a new Nogood (ground or further non-ground)
// from a template by replacing every literal whose address appears in subst.
func (ng *Nogood) ApplySubstitution(subst map[id.ID]id.ID) *Nogood {
	out := &Nogood{lits: make(map[id.ID]struct{}, len(ng.lits))}
	for l := range ng.lits {
		if repl, ok := subst[l.WithNAF(false)]; ok {
			out.Insert(repl.WithNAF(l.NAF()))
		} else {
			out.Insert(l)
		}
	}
	return out
}

// Clone returns a deep copy.
func (ng *Nogood) Clone() *Nogood {
	out := &Nogood{lits: make(map[id.ID]struct{}, len(ng.lits)), hash: ng.hash, AddCount: ng.AddCount}
	for l := range ng.lits {
		out.lits[l] = struct{}{}
	}
	return out
}

// Store is the no-good container: add, eviction by least-frequently-added,
// and defragmentation after removals (spec §4.5 "Container operations").
type Store struct {
	entries []*Nogood
	byHash  map[uint64][]int // hash -> indices into entries (tombstones are nil)
	live    int
}

// NewStore returns an empty no-good store.
func NewStore() *Store {
	return &Store{byHash: make(map[uint64][]int)}
}

// Add inserts ng, returning its index, unless an equal nogood (same literal
// set) is already present — in which case the existing entry's AddCount is
// bumped and its index returned.
func (s *Store) Add(ng *Nogood) int {
	h := ng.Hash()
	for _, idx := range s.byHash[h] {
		if s.entries[idx] != nil && sameLiterals(s.entries[idx], ng) {
			s.entries[idx].AddCount++
			return idx
		}
	}
	ng.AddCount = 1
	idx := len(s.entries)
	s.entries = append(s.entries, ng)
	s.byHash[h] = append(s.byHash[h], idx)
	s.live++
	return idx
}

func sameLiterals(a, b *Nogood) bool {
	if len(a.lits) != len(b.lits) {
		return false
	}
	for l := range a.lits {
		if _, ok := b.lits[l]; !ok {
			return false
		}
	}
	return true
}

// Get returns the nogood at idx, or nil if it has been evicted.
func (s *Store) Get(idx int) *Nogood {
	if idx < 0 || idx >= len(s.entries) {
		return nil
	}
	return s.entries[idx]
}

// Len returns the number of live entries.
func (s *Store) Len() int { return s.live }

// RemoveLeastFrequentlyAdded evicts the bottom quartile of entries by
// AddCount, returning the count removed. Unary nogoods and entries whose
// index is in protected are never evicted.
func (s *Store) RemoveLeastFrequentlyAdded(protected map[int]bool) int {
	type ranked struct {
		idx   int
		count int
	}
	var candidates []ranked
	for i, ng := range s.entries {
		if ng == nil || ng.IsUnary() || protected[i] {
			continue
		}
		candidates = append(candidates, ranked{i, ng.AddCount})
	}
	if len(candidates) == 0 {
		return 0
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].count < candidates[j].count })
	cut := len(candidates) / 4
	removed := 0
	for _, c := range candidates[:cut] {
		h := s.entries[c.idx].Hash()
		s.entries[c.idx] = nil
		s.live--
		removed++
		filtered := s.byHash[h][:0]
		for _, idx := range s.byHash[h] {
			if idx != c.idx {
				filtered = append(filtered, idx)
			}
		}
		s.byHash[h] = filtered
	}
	return removed
}

// Defragment repacks the entries slice, dropping tombstones and returning
// the mapping from old index to new index (-1 if the entry was evicted).
func (s *Store) Defragment() []int {
	remap := make([]int, len(s.entries))
	out := s.entries[:0]
	newByHash := make(map[uint64][]int, len(s.byHash))
	for old, ng := range s.entries {
		if ng == nil {
			remap[old] = -1
			continue
		}
		newIdx := len(out)
		out = append(out, ng)
		remap[old] = newIdx
		newByHash[ng.Hash()] = append(newByHash[ng.Hash()], newIdx)
	}
	s.entries = out
	s.byHash = newByHash
	return remap
}

// All returns every live nogood in storage order.
func (s *Store) All() []*Nogood {
	out := make([]*Nogood, 0, s.live)
	for _, ng := range s.entries {
		if ng != nil {
			out = append(out, ng)
		}
	}
	return out
}
