package registry

import (
	"fmt"
	"strings"

	"hexsolve/internal/herror"
	"hexsolve/internal/id"
)

// Rule is the unified representation of spec §3: ordinary disjunctive
// rules, integrity constraints, weak constraints, and weight rules all
// share this shape, discriminated by Kind.
type Rule struct {
	Kind             id.SubKind // RuleDisjunctive, RuleConstraint, RuleWeak, RuleWeight
	Head             []id.ID    // disjunction of atom IDs (empty for constraints)
	Body             []id.ID    // literal IDs (NAF bit = negation)
	HeadGuard        id.ID      // optional; id.Fail if none
	BodyWeightVector []int64    // weight-rule: one weight per Body entry
	Bound            int64      // weight-rule bound
	Weight           int64      // weak-constraint weight, >= 1
	Level            int64      // weak-constraint level, >= 1
}

func (r Rule) contentKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|", r.Kind)
	for _, h := range r.Head {
		fmt.Fprintf(&b, "%d,", h)
	}
	b.WriteByte('|')
	for _, l := range r.Body {
		fmt.Fprintf(&b, "%d,", l)
	}
	fmt.Fprintf(&b, "|%d|%d|%d|%d|", r.HeadGuard, r.Bound, r.Weight, r.Level)
	for _, w := range r.BodyWeightVector {
		fmt.Fprintf(&b, "%d,", w)
	}
	return b.String()
}

// StoreRule interns a rule.
func (r *Registry) StoreRule(rule Rule) id.ID {
	addr := r.rules.storeByContent(rule.contentKey(), rule)
	return id.New(id.KindRule, rule.Kind, id.Props{}, false, addr)
}

// GetRule dereferences a rule ID.
func (r *Registry) GetRule(rid id.ID) Rule {
	if rid.Main() != id.KindRule {
		herror.Fatalf("GetRule: %s is not a rule ID", rid)
	}
	row, ok := r.rules.get(rid.Address())
	if !ok || row.Kind != rid.Sub() {
		herror.Fatalf("GetRule: dangling or mismatched rule ID %s", rid)
	}
	return row
}

// RuleCount returns the number of interned rules.
func (r *Registry) RuleCount() int { return r.rules.len() }

// EachRule visits every interned rule.
func (r *Registry) EachRule(fn func(rid id.ID, rule Rule)) {
	r.rules.each(func(addr uint32, rule Rule) {
		fn(id.New(id.KindRule, rule.Kind, id.Props{}, false, addr), rule)
	})
}
