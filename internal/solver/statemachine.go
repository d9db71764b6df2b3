package solver

import (
	"context"

	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
)

// Model is a candidate or accepted answer set, projected through the
// program mask (spec §3 "only the model returned to the caller outlives the
// solver call").
type Model struct {
	Atoms *interp.Set
}

// RestartWithAssumptions clears every decision above level 0, then applies
// each of lits as a decision in order (spec §4.6's restart_with_assumptions).
// A conflict while applying an assumption marks the instance inconsistent
// for this caller-visible state until the next call to this method.
func (e *Engine) RestartWithAssumptions(lits []id.ID) {
	e.backjumpTo(0)
	e.inconsistent = false
	e.exhaustedDL = -1
	e.modelCount = 0
	e.assumptions = append([]id.ID(nil), lits...)

	for _, lit := range lits {
		if e.inconsistent {
			return
		}
		e.newDecisionLevel()
		e.enqueue(lit.Address(), requiredValue(lit), -1)
		if conflict := e.propagate(); conflict != -1 {
			e.inconsistent = true
			return
		}
	}
}

func (e *Engine) newDecisionLevel() {
	e.decisionLevel++
	e.trailStart = append(e.trailStart, len(e.trail))
}

// GetNextModel runs the NextSolveStep state machine (spec §4.6) until it
// either yields a model or exhausts the search space, returning (nil, nil)
// in the latter case. Re-invoking after a (nil, nil) result continues to
// return (nil, nil) until RestartWithAssumptions is called again (Testable
// Property 6).
func (e *Engine) GetNextModel(ctx context.Context) (*Model, error) {
	if e.inconsistent {
		return nil, nil
	}
	if e.maxModels > 0 && e.modelCount >= e.maxModels {
		return nil, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		conflict := e.propagate()
		if conflict != -1 {
			if e.decisionLevel == 0 {
				e.inconsistent = true
				return nil, nil
			}
			learned, backjumpLevel := e.analyzeConflict(conflict)
			e.bumpHeuristic(learned)
			e.backjumpTo(backjumpLevel)
			e.AddNogood(learned)
			continue
		}

		lit, hasDecision := e.pickDecision()
		if hasDecision {
			e.newDecisionLevel()
			e.enqueue(lit.Address(), requiredValue(lit), -1)
			continue
		}

		// Unconditional propagation before accepting the model (spec §4.7's
		// is_model rule: deferring is not sound at this point).
		assigned, changed := e.assignedAndChangedSets()
		e.pendingConflict = -1
		isModelConflict := -1
		for _, p := range e.postPropagators {
			ok, err := p.PropagateIsModel(assigned, changed, e.partial, e)
			if err != nil {
				return nil, err
			}
			if !ok {
				isModelConflict = e.pendingConflict
				break
			}
		}
		if isModelConflict == -1 && e.pendingConflict != -1 {
			isModelConflict = e.pendingConflict
		}
		if isModelConflict == -1 {
			isModelConflict = e.propagate()
		}
		if isModelConflict != -1 {
			if e.decisionLevel == 0 {
				e.inconsistent = true
				return nil, nil
			}
			learned, backjumpLevel := e.analyzeConflict(isModelConflict)
			e.bumpHeuristic(learned)
			e.backjumpTo(backjumpLevel)
			e.AddNogood(learned)
			continue
		}

		model := e.extractFullModel()
		accepted, learned, err := e.runFLP(model)
		if err != nil {
			return nil, err
		}
		if !accepted {
			for _, ng := range learned {
				e.AddNogood(ng)
			}
			continue
		}

		if e.optimizer != nil {
			cost := e.optimizer.Cost(model)
			if !e.optimizer.Accept(cost) {
				e.blockModel(model)
				continue
			}
			e.optimizer.SetOptimum(cost)
			e.optimizer.IntegrateNextOptimum()
		}

		e.modelCount++
		projected := model.Clone()
		projected.Intersect(e.agp.ProgramMask)
		e.blockModel(model)
		return &Model{Atoms: projected}, nil
	}
}

func (e *Engine) assignedAndChangedSets() (*interp.Set, *interp.Set) {
	assigned := interp.NewSet()
	for a := range e.levelOf {
		assigned.Add(a)
	}
	return assigned, assigned.Clone()
}

// extractFullModel returns the dense True-atom set of the current complete
// assignment (not yet projected through the program mask).
func (e *Engine) extractFullModel() *interp.Set {
	out := interp.NewSet()
	for _, addr := range e.trail {
		if e.partial.Get(addr) == interp.True {
			out.Add(addr)
		}
	}
	return out
}

// runFLP invokes the FLP/unfounded-set checker (C9) on every component with
// a head cycle or external cycle; components without either are accepted
// without a check (Testable Property 5).
func (e *Engine) runFLP(model *interp.Set) (accepted bool, learned []*nogood.Nogood, err error) {
	if e.flpChecker == nil {
		return true, nil, nil
	}
	accepted = true
	for _, comp := range e.agp.ProgramComponents {
		if !comp.HeadCycle && !comp.ECycle {
			continue
		}
		ok, ngs, cerr := e.flpChecker.Check(e.agp, comp, model)
		if cerr != nil {
			return false, nil, cerr
		}
		if !ok {
			accepted = false
			learned = append(learned, ngs...)
		}
	}
	return accepted, learned, nil
}

// blockModel adds a no-good forbidding exactly this full truth assignment
// over the program mask, so the next GetNextModel call finds a different one
// (spec §4.6 Update: "apply model-blocking no-good").
func (e *Engine) blockModel(model *interp.Set) {
	lits := make([]id.ID, 0, model.Len())
	e.agp.ProgramMask.Each(func(addr uint32) bool {
		base := id.New(id.KindAtom, id.AtomOrdinaryGround, id.Props{}, false, addr)
		if model.Contains(addr) {
			lits = append(lits, base)
		} else {
			lits = append(lits, base.WithNAF(true))
		}
		return true
	})
	e.AddNogood(nogood.New(lits...))
}
