// Package solver implements the CDNL engine (component C7): two-watched-
// literal unit propagation over a no-good store, 1-UIP conflict analysis
// and back-jumping, a VSIDS-like decision heuristic, and model enumeration
// cooperating with the FLP checker (C9), the external propagator (C8), and
// the optimizer (C10).
package solver

import (
	"fmt"

	"go.uber.org/zap"

	"hexsolve/internal/groundprogram"
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
	"hexsolve/internal/registry"
)

// watchSlot identifies one of a nogood's two watched literals: the atom
// address and whether the watched literal requires True (pos) or False.
type watchSlot struct {
	addr uint32
	pos  bool
}

// Engine is one CDNL search instance over one annotated ground program.
type Engine struct {
	reg *registry.Registry
	agp *groundprogram.AnnotatedGroundProgram
	log *zap.Logger

	store   *nogood.Store
	partial *interp.Partial

	decisionLevel int
	levelOf       map[uint32]int
	causeOf       map[uint32]int // nogood store index, or -1 for a decision
	trail         []uint32
	trailStart    []int // trailStart[l] = index into trail where level l begins

	watchPos map[uint32][]int
	watchNeg map[uint32][]int
	slots    map[int][2]watchSlot

	heuristic map[uint32]int

	assumptions []id.ID

	postPropagators []PostPropagator
	flpChecker      FLPChecker
	optimizer       Optimizer

	maxModels  int
	modelCount int

	// exhaustedDL is reset to -1 by RestartWithAssumptions and is not
	// otherwise consulted. Once the search space is exhausted it is
	// inconsistent that makes re-invoking GetNextModel (with no new
	// assumptions) yield nil until the next restart (Testable Property 6).
	exhaustedDL     int
	inconsistent    bool
	pendingConflict int
}

// New builds an Engine over agp's compiled rule no-goods plus whatever
// no-goods the caller has already installed in store (e.g. from a prior
// grounding pass or a loaded support-set cache).
func New(reg *registry.Registry, agp *groundprogram.AnnotatedGroundProgram, store *nogood.Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		reg:        reg,
		agp:        agp,
		log:        log,
		store:      store,
		partial:    interp.NewPartial(),
		levelOf:    make(map[uint32]int),
		causeOf:    make(map[uint32]int),
		trailStart: []int{0},
		watchPos:   make(map[uint32][]int),
		watchNeg:   make(map[uint32][]int),
		slots:      make(map[int][2]watchSlot),
		heuristic:   make(map[uint32]int),
		maxModels:   0, // 0 = unbounded
		exhaustedDL: -1,
		pendingConflict: -1,
	}
	for _, ng := range compileProgram(reg, agp.IDB) {
		e.AddNogood(ng)
	}
	return e
}

// SetMaxModels bounds the number of models GetNextModel will ever return
// (Testable Property 4); 0 means unbounded.
func (e *Engine) SetMaxModels(n int) { e.maxModels = n }

// RegisterPostPropagator installs a component-C8 style callback.
func (e *Engine) RegisterPostPropagator(p PostPropagator) { e.postPropagators = append(e.postPropagators, p) }

// SetFLPChecker installs the component-C9 unfounded-set checker.
func (e *Engine) SetFLPChecker(c FLPChecker) { e.flpChecker = c }

// SetOptimizer installs the component-C10 weak-constraint optimizer.
func (e *Engine) SetOptimizer(o Optimizer) { e.optimizer = o }

// Store exposes the underlying no-good store, e.g. for the external
// propagator or FLP checker to add learned no-goods directly.
func (e *Engine) Store() *nogood.Store { return e.store }

// Assignment exposes the current partial interpretation.
func (e *Engine) Assignment() *interp.Partial { return e.partial }

func requiredValue(lit id.ID) interp.Value {
	if lit.NAF() {
		return interp.False
	}
	return interp.True
}

// litState classifies lit against the current partial assignment: -1 means
// the literal currently holds at its required value (dangerous — it
// contributes toward the nogood firing), 0 means unassigned, 1 means it is
// assigned to the opposite of its required value (safe — this nogood can
// never fire through this literal).
func (e *Engine) litState(lit id.ID) int {
	v := e.partial.Get(lit.Address())
	if v == interp.Unassigned {
		return 0
	}
	if v == requiredValue(lit) {
		return -1
	}
	return 1
}

// Add implements NogoodSink: post-propagators and the FLP/plugin callers add
// no-goods through this so they get watches attached like any other nogood.
// The conflict flag (if ng is already falsified) is recorded and surfaces
// through propagate()'s next conflict check.
func (e *Engine) Add(ng *nogood.Nogood) int {
	idx, conflict := e.AddNogood(ng)
	if conflict {
		e.pendingConflict = idx
	}
	return idx
}

// AddNogood interns ng into the store and attaches its initial two watches,
// preferring unresolved literals, then safe ones, then the most-recently-
// assigned dangerous ones. A freshly learned no-good is added right after
// back-jumping, so its watches are its one unassigned literal plus the most
// recent of the rest, per spec §4.6's "watches installed on the two
// most-recently-assigned literals" rule. A no-good that is already unit,
// including a unary one whose literal is unassigned, is propagated at once.
// conflict is true if every literal is already dangerous (the nogood is
// violated right now).
func (e *Engine) AddNogood(ng *nogood.Nogood) (storeIdx int, conflict bool) {
	idx := e.store.Add(ng)
	lits := ng.Literals()

	var chosen []watchSlot
	for _, state := range []int{0, 1} {
		for _, l := range lits {
			if len(chosen) == 2 {
				break
			}
			if e.litState(l) == state {
				chosen = append(chosen, watchSlot{addr: l.Address(), pos: !l.NAF()})
			}
		}
	}
	if len(chosen) < 2 {
		// every remaining literal is dangerous: fill up with the most
		// recently assigned ones, which is the learned-nogood case.
		byRecency := append([]id.ID(nil), lits...)
		sortByTrailRecency(e, byRecency)
		for _, l := range byRecency {
			if len(chosen) == 2 {
				break
			}
			already := false
			for _, c := range chosen {
				if c.addr == l.Address() {
					already = true
				}
			}
			if !already {
				chosen = append(chosen, watchSlot{addr: l.Address(), pos: !l.NAF()})
			}
		}
	}
	if len(chosen) == 1 {
		chosen = append(chosen, chosen[0])
	}
	if len(chosen) == 0 {
		return idx, false
	}
	e.slots[idx] = [2]watchSlot{chosen[0], chosen[1]}
	e.attach(idx, chosen[0])
	if chosen[1] != chosen[0] {
		e.attach(idx, chosen[1])
	}

	allDangerous := true
	for _, l := range lits {
		if e.litState(l) != -1 {
			allDangerous = false
			break
		}
	}
	if allDangerous {
		return idx, true
	}

	// A unary no-good with its literal unassigned is asserted at once: both
	// watches are that one literal, so no later watch visit would force it.
	if len(lits) == 1 && e.litState(lits[0]) == 0 {
		e.enqueue(chosen[0].addr, oppositeOf(chosen[0].pos), idx)
		return idx, false
	}

	// A nogood added mid-search may already be unit: one watch dangerous,
	// the other still unresolved. Propagate immediately rather than waiting
	// for the next trail scan to stumble onto it.
	l0, l1 := watchSlotToLiteral(chosen[0]), watchSlotToLiteral(chosen[1])
	s0, s1 := e.litState(l0), e.litState(l1)
	if s0 == -1 && s1 == 0 {
		e.enqueue(chosen[1].addr, oppositeOf(chosen[1].pos), idx)
	} else if s1 == -1 && s0 == 0 {
		e.enqueue(chosen[0].addr, oppositeOf(chosen[0].pos), idx)
	}
	return idx, false
}

func (e *Engine) attach(idx int, s watchSlot) {
	if s.pos {
		e.watchPos[s.addr] = append(e.watchPos[s.addr], idx)
	} else {
		e.watchNeg[s.addr] = append(e.watchNeg[s.addr], idx)
	}
}

func (e *Engine) detach(idx int, s watchSlot) {
	list := e.watchPos
	if !s.pos {
		list = e.watchNeg
	}
	entries := list[s.addr]
	for i, v := range entries {
		if v == idx {
			list[s.addr] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

func sortByTrailRecency(e *Engine, lits []id.ID) {
	rank := make(map[uint32]int, len(e.trail))
	for i, a := range e.trail {
		rank[a] = i
	}
	for i := 1; i < len(lits); i++ {
		for j := i; j > 0; j-- {
			ri, rj := rank[lits[j].Address()], rank[lits[j-1].Address()]
			if ri <= rj {
				break
			}
			lits[j], lits[j-1] = lits[j-1], lits[j]
		}
	}
}

// enqueue assigns addr to v at the current decision level with the given
// cause (-1 for a decision), pushing it onto the trail.
func (e *Engine) enqueue(addr uint32, v interp.Value, cause int) {
	e.partial.Set(addr, v)
	e.levelOf[addr] = e.decisionLevel
	e.causeOf[addr] = cause
	e.trail = append(e.trail, addr)
}

// propagate runs unit propagation to fixpoint, interleaved with the
// external post-propagators' deferred schedule. Returns the index of a
// conflicting nogood, or -1 if a fixpoint with no conflict was reached.
func (e *Engine) propagate() int {
	qi := e.trailStart[e.decisionLevel]
	for {
		for ; qi < len(e.trail); qi++ {
			addr := e.trail[qi]
			v := e.partial.Get(addr)
			if conflict := e.propagateOne(addr, v); conflict != -1 {
				return conflict
			}
		}

		trailLenBefore := len(e.trail)
		assigned := interp.NewSet()
		for a := range e.levelOf {
			assigned.Add(a)
		}
		changed := assigned.Clone()

		e.pendingConflict = -1
		for _, p := range e.postPropagators {
			ok, err := p.Propagate(assigned, changed, e.partial, e)
			if err != nil {
				e.log.Warn("post-propagator error", zap.Error(err))
				continue
			}
			if !ok {
				if e.pendingConflict != -1 {
					return e.pendingConflict
				}
				return -1
			}
		}
		if e.pendingConflict != -1 {
			return e.pendingConflict
		}
		if qi >= len(e.trail) && len(e.trail) == trailLenBefore {
			return -1
		}
	}
}

func (e *Engine) propagateOne(addr uint32, v interp.Value) int {
	var list []int
	if v == interp.True {
		list = append([]int(nil), e.watchPos[addr]...)
	} else {
		list = append([]int(nil), e.watchNeg[addr]...)
	}
	pos := v == interp.True

	for _, idx := range list {
		ng := e.store.Get(idx)
		if ng == nil {
			continue
		}
		slot := e.slots[idx]
		var mySlot, otherSlot watchSlot
		if slot[0].addr == addr && slot[0].pos == pos {
			mySlot, otherSlot = slot[0], slot[1]
		} else {
			mySlot, otherSlot = slot[1], slot[0]
		}

		replaced := false
		for _, l := range ng.Literals() {
			cand := watchSlot{addr: l.Address(), pos: !l.NAF()}
			if cand == mySlot || cand == otherSlot {
				continue
			}
			if e.litState(l) != -1 {
				e.detach(idx, mySlot)
				e.attach(idx, cand)
				if mySlot == slot[0] {
					e.slots[idx] = [2]watchSlot{cand, otherSlot}
				} else {
					e.slots[idx] = [2]watchSlot{otherSlot, cand}
				}
				replaced = true
				break
			}
		}
		if replaced {
			continue
		}

		otherLit := watchSlotToLiteral(otherSlot)
		switch e.litState(otherLit) {
		case 0:
			e.enqueue(otherSlot.addr, oppositeOf(otherSlot.pos), idx)
		case -1:
			return idx
		}
	}
	return -1
}

func watchSlotToLiteral(s watchSlot) id.ID {
	base := id.New(id.KindAtom, id.AtomOrdinaryGround, id.Props{}, false, s.addr)
	return base.WithNAF(!s.pos)
}

func oppositeOf(pos bool) interp.Value {
	if pos {
		return interp.False
	}
	return interp.True
}

// Cause returns the store index that implied addr's current assignment, or
// -1 if it was a decision. ok is false if addr is unassigned.
func (e *Engine) Cause(addr uint32) (idx int, ok bool) {
	idx, ok = e.causeOf[addr]
	return
}

// Level returns the decision level at which addr was assigned.
func (e *Engine) Level(addr uint32) int { return e.levelOf[addr] }

// String renders a short diagnostic summary.
func (e *Engine) String() string {
	return fmt.Sprintf("solver.Engine{dl=%d trail=%d nogoods=%d}", e.decisionLevel, len(e.trail), e.store.Len())
}
