package registry

import "hexsolve/internal/id"

// GetVariables collects every variable ID occurring (recursively, through
// nested terms and every atom/rule kind) within x. If includeAnonymous is
// false, occurrences of the anonymous variable ("_") are skipped.
func (r *Registry) GetVariables(x id.ID, includeAnonymous bool) map[id.ID]struct{} {
	out := make(map[id.ID]struct{})
	r.collectVariables(x, includeAnonymous, out)
	return out
}

func (r *Registry) collectVariables(x id.ID, includeAnon bool, out map[id.ID]struct{}) {
	switch x.Main() {
	case id.KindTerm:
		r.collectTermVariables(x, includeAnon, out)
	case id.KindLiteral:
		r.collectVariables(x.WithNAF(false), includeAnon, out)
	case id.KindAtom:
		r.collectAtomVariables(x, includeAnon, out)
	case id.KindRule:
		rule := r.GetRule(x)
		for _, h := range rule.Head {
			r.collectVariables(h, includeAnon, out)
		}
		for _, b := range rule.Body {
			r.collectVariables(b, includeAnon, out)
		}
		if !rule.HeadGuard.IsFail() {
			r.collectVariables(rule.HeadGuard, includeAnon, out)
		}
	}
}

func (r *Registry) collectTermVariables(tid id.ID, includeAnon bool, out map[id.ID]struct{}) {
	if tid.Sub() == id.TermInteger {
		return
	}
	t := r.GetTerm(tid)
	switch t.Kind {
	case id.TermVariable:
		if t.Anonymous && !includeAnon {
			return
		}
		out[tid] = struct{}{}
	case id.TermNested:
		for _, child := range t.Args {
			r.collectVariables(child, includeAnon, out)
		}
	}
}

func (r *Registry) collectAtomVariables(aid id.ID, includeAnon bool, out map[id.ID]struct{}) {
	switch aid.Sub() {
	case id.AtomOrdinaryGround, id.AtomOrdinaryNonground:
		a := r.GetOrdinaryAtom(aid)
		r.collectVariables(a.Predicate, includeAnon, out)
		for _, arg := range a.Args {
			r.collectVariables(arg, includeAnon, out)
		}
	case id.AtomBuiltin:
		b := r.GetBuiltinAtom(aid)
		for _, arg := range b.Args {
			r.collectVariables(arg, includeAnon, out)
		}
	case id.AtomAggregate:
		agg := r.GetAggregateAtom(aid)
		r.collectVariables(agg.Result, includeAnon, out)
		for _, v := range agg.BodyVars {
			r.collectVariables(v, includeAnon, out)
		}
		for _, l := range agg.Body {
			r.collectVariables(l, includeAnon, out)
		}
		if !agg.Bound.IsFail() {
			r.collectVariables(agg.Bound, includeAnon, out)
		}
	case id.AtomExternal:
		e := r.GetExternalAtom(aid)
		for _, in := range e.Input {
			r.collectVariables(in, includeAnon, out)
		}
		for _, out2 := range e.Output {
			r.collectVariables(out2, includeAnon, out)
		}
	case id.AtomModule:
		m := r.GetModuleAtom(aid)
		for _, in := range m.Input {
			r.collectVariables(in, includeAnon, out)
		}
		for _, o := range m.Output {
			r.collectVariables(o, includeAnon, out)
		}
	}
}

// ReplaceVariablesInTerm performs structural substitution of every
// occurrence of variable `v` by `by` within `term`, returning the input
// unchanged (same ID) when there is no occurrence. Only meaningful for term
// IDs; nested terms are rebuilt bottom-up through StoreTerm so the result is
// itself a properly interned term.
func (r *Registry) ReplaceVariablesInTerm(term, v, by id.ID) id.ID {
	if term == v {
		return by
	}
	if term.Sub() == id.TermInteger {
		return term
	}
	t := r.GetTerm(term)
	if t.Kind != id.TermNested {
		return term
	}
	changed := false
	newArgs := make([]id.ID, len(t.Args))
	for i, child := range t.Args {
		replaced := r.ReplaceVariablesInTerm(child, v, by)
		newArgs[i] = replaced
		if replaced != child {
			changed = true
		}
	}
	if !changed {
		return term
	}
	return r.StoreTerm(Term{Kind: id.TermNested, Symbol: t.Symbol, Args: newArgs})
}
