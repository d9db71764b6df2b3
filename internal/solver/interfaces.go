package solver

import (
	"hexsolve/internal/groundprogram"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
)

// NogoodSink is the narrow interface the engine exposes to callbacks that
// want to add learned no-goods without otherwise touching engine state.
// *nogood.Store satisfies this directly.
type NogoodSink interface {
	Add(ng *nogood.Nogood) int
}

// PostPropagator is the external propagator's hook into the CDNL engine
// (component C8). The engine calls Propagate on every fixpoint (subject to
// the propagator's own deferred schedule), PropagateIsModel unconditionally
// right before accepting a candidate model, and Undo on every backtrack
// past a decision level.
type PostPropagator interface {
	Propagate(assigned, changed *interp.Set, current *interp.Partial, learned NogoodSink) (bool, error)
	PropagateIsModel(assigned, changed *interp.Set, current *interp.Partial, learned NogoodSink) (bool, error)
	Undo(level int)
}

// FLPChecker is the component C9 seam: given a component sub-program and a
// candidate model, it either accepts the model or returns learned no-goods
// that rule the candidate out as non-minimal.
type FLPChecker interface {
	Check(agp *groundprogram.AnnotatedGroundProgram, comp groundprogram.Component, model *interp.Set) (accepted bool, learned []*nogood.Nogood, err error)
}

// Optimizer is the component C10 seam for weak-constraint optimization.
type Optimizer interface {
	Cost(model *interp.Set) []int64
	Accept(cost []int64) bool
	SetOptimum(cost []int64)
	IntegrateNextOptimum() bool
}
