package solver

import (
	"hexsolve/internal/id"
	"hexsolve/internal/nogood"
	"hexsolve/internal/registry"
)

// compiledRule is the Tseitin-style translation of one rule into a body
// auxiliary atom plus the no-goods that define it, grounded on the standard
// body-aux encoding used by clause-learning ASP solvers (spec §4.6 assumes
// this shape without prescribing it; this is the "rule -> nogoods"
// compilation step feeding the CDNL engine's initial no-good set).
type compiledRule struct {
	rule    registry.Rule
	bodyAux id.ID // 0-ary ordinary atom: "the body of this rule holds"
}

// compileProgram translates every rule of idb into no-goods: those defining
// each rule's body auxiliary (one per body literal, plus one), one
// forbidding "body true, no head true" (soundness) for every rule except
// weak constraints, which only add cost (C10), and — for atoms that head no
// disjunctive rule — one forbidding "head true, no rule supporting it has
// its body true" (support). Support no-goods are skipped for atoms of
// disjunctive (multi-head) rules; minimality there is the job of the
// FLP/unfounded-set checker (C9), exactly the case spec §4.8 describes as
// requiring a cycle-aware check. Weight rules are compiled like ordinary
// rules: BodyWeightVector and Bound are not consulted, so such a rule fires
// only when its whole body holds.
func compileProgram(reg *registry.Registry, idb []id.ID) []*nogood.Nogood {
	var out []*nogood.Nogood
	supportersOf := make(map[id.ID][]id.ID) // single-head atom -> its rules' body auxes
	inDisjunctiveHead := make(map[id.ID]bool)

	for _, rid := range idb {
		rule := reg.GetRule(rid)
		bodyAux := ruleBodyAux(reg, rid)

		out = append(out, bodyDefinitionNogoods(bodyAux, rule.Body)...)
		if rule.Kind != id.RuleWeak {
			out = append(out, forwardNogood(bodyAux, rule.Head))
		}

		if len(rule.Head) == 1 {
			supportersOf[rule.Head[0]] = append(supportersOf[rule.Head[0]], bodyAux)
		} else {
			for _, h := range rule.Head {
				inDisjunctiveHead[h] = true
			}
		}
	}

	for head, auxes := range supportersOf {
		if inDisjunctiveHead[head] {
			continue
		}
		out = append(out, supportNogood(head, auxes))
	}
	return out
}

func ruleBodyAux(reg *registry.Registry, rid id.ID) id.ID {
	pred := reg.AuxiliaryConstant('b', rid)
	return reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: pred, Args: nil})
}

// bodyDefinitionNogoods ties bodyAux to the conjunction of body literals:
// bodyAux true forces every body literal to hold, and every body literal
// holding forces bodyAux true.
func bodyDefinitionNogoods(bodyAux id.ID, body []id.ID) []*nogood.Nogood {
	var out []*nogood.Nogood
	for _, lit := range body {
		out = append(out, nogood.New(bodyAux, flip(lit)))
	}
	all := make([]id.ID, 0, len(body)+1)
	all = append(all, bodyAux.WithNAF(true))
	all = append(all, body...)
	out = append(out, nogood.New(all...))
	return out
}

// forwardNogood forbids bodyAux true while every head atom is false.
func forwardNogood(bodyAux id.ID, head []id.ID) *nogood.Nogood {
	lits := make([]id.ID, 0, len(head)+1)
	lits = append(lits, bodyAux)
	for _, h := range head {
		lits = append(lits, h.WithNAF(true))
	}
	return nogood.New(lits...)
}

// supportNogood forbids head true while no supporting rule's body holds.
func supportNogood(head id.ID, bodyAuxes []id.ID) *nogood.Nogood {
	lits := make([]id.ID, 0, len(bodyAuxes)+1)
	lits = append(lits, head)
	for _, aux := range bodyAuxes {
		lits = append(lits, aux.WithNAF(true))
	}
	return nogood.New(lits...)
}

// flip returns lit with its NAF bit toggled — the literal that must hold
// for the original to be falsified.
func flip(lit id.ID) id.ID { return lit.WithNAF(!lit.NAF()) }
