// Package optimize implements weak-constraint optimization (component
// C10): cost-vector computation over a candidate model, lexicographic
// comparison against the current best, and the tightening/integration
// knobs the orchestrator exposes to callers.
package optimize

import (
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/registry"
)

// weakConstraint is one &gt;= 1 weighted, leveled constraint: its body
// firing contributes Weight to the cost vector at Level.
type weakConstraint struct {
	body   []id.ID
	weight int64
	level  int64
}

// Optimizer implements solver.Optimizer over the weak constraints of one
// program. The cost vector is indexed by level (index 0 unused, per spec
// §4.9); higher levels dominate lexicographic comparison.
type Optimizer struct {
	constraints []weakConstraint
	maxLevel    int64

best []int64

	// pendingBest holds a bound from SetOptimum not yet folded into best;
	// IntegrateNextOptimum is the explicit pull that folds it in (spec
	// §4.9's integrate_next_optimum: whether the tighter bound takes effect
	// at the next propagation, via an immediate pull, or only at the next
	// restart, via the orchestrator delaying that call).
	pendingBest []int64
}

// New scans idb for RuleWeak rules and builds the optimizer over them.
func New(reg *registry.Registry, idb []id.ID) *Optimizer {
	o := &Optimizer{}
	for _, rid := range idb {
		rule := reg.GetRule(rid)
		if rule.Kind != id.RuleWeak {
			continue
		}
		o.constraints = append(o.constraints, weakConstraint{
			body:   rule.Body,
			weight: rule.Weight,
			level:  rule.Level,
		})
		if rule.Level > o.maxLevel {
			o.maxLevel = rule.Level
		}
	}
	return o
}

// Cost computes model's cost vector: cost[level] is the sum of weights of
// every weak constraint at that level whose body is satisfied by model.
// Index 0 is always 0 (unused, per spec §4.9).
func (o *Optimizer) Cost(model *interp.Set) []int64 {
	cost := make([]int64, o.maxLevel+1)
	for _, wc := range o.constraints {
		if bodyHolds(wc.body, model) {
			cost[wc.level] += wc.weight
		}
	}
	return cost
}

func bodyHolds(body []id.ID, model *interp.Set) bool {
	for _, lit := range body {
		holds := model.Contains(lit.Address())
		if lit.NAF() {
			holds = !holds
		}
		if !holds {
			return false
		}
	}
	return true
}

// Accept reports whether cost is at least as good as the current best,
// comparing from the highest level down (higher level dominates). No
// recorded best accepts everything.
func (o *Optimizer) Accept(cost []int64) bool {
	if o.best == nil {
		return true
	}
	return lexLessEq(cost, o.best)
}

// lexLessEq reports whether a <= b lexicographically, comparing from the
// highest index (level) down to 1; index 0 is skipped as unused.
func lexLessEq(a, b []int64) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for lvl := n - 1; lvl >= 1; lvl-- {
		av, bv := at(a, lvl), at(b, lvl)
		if av != bv {
			return av < bv
		}
	}
	return true
}

func at(v []int64, i int) int64 {
	if i >= len(v) {
		return 0
	}
	return v[i]
}

// SetOptimum records a tighter bound found by a just-accepted model. It
// does not take effect for Accept until IntegrateNextOptimum pulls it in —
// callers that want the bound live immediately call IntegrateNextOptimum
// right after SetOptimum; callers that want to delay pruning until the
// next restart call it there instead.
func (o *Optimizer) SetOptimum(cost []int64) {
	o.pendingBest = append([]int64(nil), cost...)
}

// IntegrateNextOptimum folds any pending bound from SetOptimum into the
// bound Accept compares against, returning true if it integrated a new
// one (false if there was nothing pending).
func (o *Optimizer) IntegrateNextOptimum() bool {
	if o.pendingBest == nil {
		return false
	}
	o.best = o.pendingBest
	o.pendingBest = nil
	return true
}
