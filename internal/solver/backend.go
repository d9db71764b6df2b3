package solver

import (
	"context"
	"iter"

	"hexsolve/internal/groundprogram"
	"hexsolve/internal/id"
)

// Assumptions are literals assumed true at decision level 0 before search
// begins (spec §4.6's restart_with_assumptions).
type Assumptions []id.ID

// Backend is the external-solver seam (spec §9 Open Question iii): Solve
// enumerates every answer set of agp as a Go iterator. The internal CDNL
// engine is the only implementation. No external backend is registered:
// cmd/hexsolve rejects --solver=clasp with an herror.Usage error, keeping
// the CLI surface of spec §6 without claiming a bundled clasp integration.
type Backend interface {
	Solve(ctx context.Context, agp *groundprogram.AnnotatedGroundProgram, assumptions Assumptions) iter.Seq[*Model]
}

// Solve implements Backend directly on the CDNL engine: agp is expected to
// be the same program e was constructed over (the parameter exists so
// Backend's shape matches what an out-of-process solver would need, namely
// the whole program on every call).
func (e *Engine) Solve(ctx context.Context, agp *groundprogram.AnnotatedGroundProgram, assumptions Assumptions) iter.Seq[*Model] {
	return func(yield func(*Model) bool) {
		e.RestartWithAssumptions([]id.ID(assumptions))
		for {
			model, err := e.GetNextModel(ctx)
			if err != nil || model == nil {
				return
			}
			if !yield(model) {
				return
			}
		}
	}
}
