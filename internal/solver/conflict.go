package solver

import (
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
)

// analyzeConflict performs 1-UIP conflict analysis starting from the
// conflicting nogood at conflictIdx (spec §4.6): resolve against the
// implying nogood of the most-recently-assigned literal at the current
// decision level, repeatedly, until exactly one literal of the working
// nogood remains at that level. Returns the learned nogood and the level to
// back-jump to (the second-highest level among its literals, or 0 if the
// nogood is unary).
func (e *Engine) analyzeConflict(conflictIdx int) (*nogood.Nogood, int) {
	working := e.store.Get(conflictIdx).Clone()

	for e.countAtLevel(working, e.decisionLevel) > 1 {
		last, ok := e.mostRecentAtLevel(working, e.decisionLevel)
		if !ok {
			break
		}
		causeIdx, ok := e.Cause(last.Address())
		if !ok || causeIdx == -1 {
			break
		}
		causeNogood := e.store.Get(causeIdx)
		if causeNogood == nil {
			break
		}
		working = nogood.Resolve(working, causeNogood, last)
	}

	backjump := e.secondHighestLevel(working)
	return working, backjump
}

// countAtLevel returns how many of ng's literals are assigned at level.
func (e *Engine) countAtLevel(ng *nogood.Nogood, level int) int {
	n := 0
	for _, l := range ng.Literals() {
		if e.levelOf[l.Address()] == level {
			n++
		}
	}
	return n
}

// mostRecentAtLevel returns the literal of ng (in its dangerous polarity, as
// stored in ng) assigned at level whose trail position is latest.
func (e *Engine) mostRecentAtLevel(ng *nogood.Nogood, level int) (id.ID, bool) {
	best := -1
	var bestLit id.ID
	for _, l := range ng.Literals() {
		if e.levelOf[l.Address()] != level {
			continue
		}
		for i := len(e.trail) - 1; i >= 0; i-- {
			if e.trail[i] == l.Address() {
				if i > best {
					best = i
					bestLit = l
				}
				break
			}
		}
	}
	if best == -1 {
		return id.Fail, false
	}
	return bestLit, true
}

// secondHighestLevel returns the second-highest decision level among ng's
// literals, or 0 if ng is unary or all literals share one level.
func (e *Engine) secondHighestLevel(ng *nogood.Nogood) int {
	if ng.IsUnary() {
		return 0
	}
	highest, second := -1, -1
	for _, l := range ng.Literals() {
		lvl := e.levelOf[l.Address()]
		if lvl > highest {
			second = highest
			highest = lvl
		} else if lvl < highest && lvl > second {
			second = lvl
		}
	}
	if second == -1 {
		return 0
	}
	return second
}

// backjumpTo undoes every assignment made at a level greater than target,
// notifying post-propagators so their shadow state stays consistent (spec
// §4.7's undo_level).
func (e *Engine) backjumpTo(target int) {
	if target >= e.decisionLevel {
		return
	}
	cut := e.trailStart[target+1]
	for i := len(e.trail) - 1; i >= cut; i-- {
		addr := e.trail[i]
		e.partial.Set(addr, interp.Unassigned)
		delete(e.levelOf, addr)
		delete(e.causeOf, addr)
	}
	e.trail = e.trail[:cut]
	e.trailStart = e.trailStart[:target+1]
	e.decisionLevel = target
	for _, p := range e.postPropagators {
		p.Undo(target + 1)
	}
}
