package solver

import (
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
)

// bumpHeuristic increments the per-atom conflict-involvement counter for
// every literal of a freshly learned nogood (spec §4.6's "a per-literal
// counter incremented on conflict involvement").
func (e *Engine) bumpHeuristic(ng *nogood.Nogood) {
	for _, l := range ng.Literals() {
		e.heuristic[l.Address()]++
	}
}

// pickDecision picks the unassigned atom in the program mask with the
// highest heuristic counter, tie-broken by lowest address for determinism
// (spec's "tie-broken by assignment-order recency" — since an unassigned
// atom has no assignment order yet, address order is the closest stable
// proxy and keeps decisions reproducible across runs). The chosen literal is
// always decided positively first; if that branch fails, conflict-driven
// backtracking tries the negative branch via the derived no-goods.
func (e *Engine) pickDecision() (id.ID, bool) {
	var best uint32
	bestCount := -1
	found := false

	e.agp.ProgramMask.Each(func(addr uint32) bool {
		if e.partial.Get(addr) != interp.Unassigned {
			return true
		}
		count := e.heuristic[addr]
		if count > bestCount || (count == bestCount && found && addr < best) || !found {
			bestCount = count
			best = addr
			found = true
		}
		return true
	})

	if !found {
		return id.Fail, false
	}
	return id.New(id.KindAtom, id.AtomOrdinaryGround, id.Props{}, false, best), true
}
