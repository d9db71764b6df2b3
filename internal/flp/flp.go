// Package flp implements the FLP/unfounded-set checker (component C9):
// for every strongly connected component with a head cycle or an external
// cycle, it builds the component's reduct against a candidate model and
// searches for a non-empty unfounded set, turning one into a no-good if
// found.
package flp

import (
	"go.uber.org/zap"

	"hexsolve/internal/groundprogram"
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
	"hexsolve/internal/registry"
)

// Checker implements solver.FLPChecker with a native search: it derives the
// reduct directly rather than encoding it as a second ASP instance (spec
// §4.8 allows either; both must agree — this repo only ships the native
// form).
type Checker struct {
	reg *registry.Registry
	log *zap.Logger
}

// New returns an FLP checker backed by reg.
func New(reg *registry.Registry, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{reg: reg, log: log}
}

// reductRule is one rule of comp's reduct w.r.t. candidate: NAF body
// literals that are false under candidate are dropped (they hold
// vacuously in the reduct); a rule whose positive body is not fully
// satisfied by candidate is absent entirely.
type reductRule struct {
	head []id.ID
	body []id.ID // positive literals only, all required true by candidate
}

// Check implements solver.FLPChecker. It is only meaningful to call on
// components with a head cycle or an external cycle; the caller
// (internal/solver's runFLP) already skips everything else per spec
// §4.8 point 3.
func (c *Checker) Check(agp *groundprogram.AnnotatedGroundProgram, comp groundprogram.Component, model *interp.Set) (bool, []*nogood.Nogood, error) {
	reduct := c.buildReduct(comp, model)

	trueInComponent := interp.NewSet()
	for _, a := range comp.Atoms {
		if model.Contains(a) {
			trueInComponent.Add(a)
		}
	}
	if trueInComponent.Len() == 0 {
		return true, nil, nil
	}

	u := c.searchUnfoundedSet(comp, reduct, model, trueInComponent)
	if u.Len() == 0 {
		return true, nil, nil
	}

	c.log.Debug("unfounded set found", zap.Int("size", u.Len()))
	return false, []*nogood.Nogood{c.unfoundedNogood(comp, reduct, u)}, nil
}

// buildReduct deletes rules whose positive body is not satisfied by
// candidate, and drops NAF literals that are false under candidate (they
// hold vacuously and no longer constrain the reduct), per spec §4.8 step 1.
func (c *Checker) buildReduct(comp groundprogram.Component, candidate *interp.Set) []reductRule {
	var out []reductRule
	for _, rid := range comp.Rules {
		rule := c.reg.GetRule(rid)

		positiveBodyOK := true
		var pos []id.ID
		for _, lit := range rule.Body {
			if lit.NAF() {
				if candidate.Contains(lit.Address()) {
					// NAF literal is false under candidate's negation test
					// (atom is true, so "not atom" fails): rule absent.
					positiveBodyOK = false
					break
				}
				// false NAF literal: holds vacuously, dropped from reduct.
				continue
			}
			if !candidate.Contains(lit.Address()) {
				positiveBodyOK = false
				break
			}
			pos = append(pos, lit)
		}
		if !positiveBodyOK {
			continue
		}
		out = append(out, reductRule{head: rule.Head, body: pos})
	}
	return out
}

// searchUnfoundedSet looks for a non-empty U subset of trueInComponent such
// that every reduct rule supporting any atom in U has a body literal
// falsified by candidate \ U (spec §4.8 step 2). It starts from the
// greatest candidate (every true-in-component atom) and repeatedly removes
// atoms that turn out to still have support, converging to the greatest
// unfounded set — standard fixpoint computation for this check.
func (c *Checker) searchUnfoundedSet(comp groundprogram.Component, reduct []reductRule, candidate *interp.Set, trueInComponent *interp.Set) *interp.Set {
	u := trueInComponent.Clone()

	for {
		removed := false
		u.Each(func(atom uint32) bool {
			if c.hasExternalSupport(reduct, atom, candidate, u) {
				u.Remove(atom)
				removed = true
			}
			return true
		})
		if !removed {
			break
		}
	}
	return u
}

// hasExternalSupport reports whether atom has a reduct rule supporting it
// whose body survives removing u from candidate — i.e. a rule not relying
// on any other atom of u for its support.
func (c *Checker) hasExternalSupport(reduct []reductRule, atom uint32, candidate, u *interp.Set) bool {
	for _, r := range reduct {
		if !headContains(r.head, atom) {
			continue
		}
		bodyHoldsOutsideU := true
		for _, lit := range r.body {
			if u.Contains(lit.Address()) {
				bodyHoldsOutsideU = false
				break
			}
		}
		if bodyHoldsOutsideU {
			return true
		}
	}
	return false
}

func headContains(head []id.ID, atom uint32) bool {
	for _, h := range head {
		if h.Address() == atom {
			return true
		}
	}
	return false
}

// unfoundedNogood forbids every atom of u being true unless some reduct
// rule supporting it holds: for each atom in u, the no-good records "atom
// true and every supporting rule's non-u body literals false" is
// forbidden, encoded as a single no-good covering the whole set (spec §4.8
// step 2: "turn it into a no-good").
func (c *Checker) unfoundedNogood(comp groundprogram.Component, reduct []reductRule, u *interp.Set) *nogood.Nogood {
	var lits []id.ID
	u.Each(func(atom uint32) bool {
		base := id.New(id.KindAtom, id.AtomOrdinaryGround, id.Props{}, false, atom)
		lits = append(lits, base)
		return true
	})
	for _, r := range reduct {
		supportsU := false
		for _, h := range r.head {
			if u.Contains(h.Address()) {
				supportsU = true
				break
			}
		}
		if !supportsU {
			continue
		}
		for _, lit := range r.body {
			if !u.Contains(lit.Address()) {
				lits = append(lits, lit.WithNAF(true))
			}
		}
	}
	return nogood.New(lits...)
}
