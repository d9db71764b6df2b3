// Package registry implements the interned term/atom/rule store (component
// C2): content-addressed, dense-index tables that are the lingua franca of
// every other component. One Registry is created per solver session — it is
// never a global singleton (spec §9 design note on Registry::Instance).
package registry

import (
	"sync"

	"hexsolve/internal/herror"
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/plugin"
)

// Registry owns every interned table for one solver session.
type Registry struct {
	terms          *table[Term]
	groundAtoms    *table[OrdinaryAtom]
	nongroundAtoms *table[OrdinaryAtom]
	builtins       *table[BuiltinAtom]
	aggregates     *table[AggregateAtom]
	externals      *table[ExternalAtom]
	modules        *table[ModuleAtom]
	rules          *table[Rule]

	predMu    sync.RWMutex
	predIndex map[id.ID][]id.ID // predicate term ID -> ground ordinary atom IDs

	auxMu      sync.RWMutex
	auxForward map[auxKey]id.ID
	auxReverse map[id.ID]auxKey

	maskMu  sync.RWMutex
	auxMask *interp.Set
}

type auxKey struct {
	Type   byte
	Source id.ID
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		terms:          newTable[Term](),
		groundAtoms:    newTable[OrdinaryAtom](),
		nongroundAtoms: newTable[OrdinaryAtom](),
		builtins:       newTable[BuiltinAtom](),
		aggregates:     newTable[AggregateAtom](),
		externals:      newTable[ExternalAtom](),
		modules:        newTable[ModuleAtom](),
		rules:          newTable[Rule](),
		predIndex:      make(map[id.ID][]id.ID),
		auxForward:     make(map[auxKey]id.ID),
		auxReverse:     make(map[id.ID]auxKey),
		auxMask:        interp.NewSet(),
	}
}

// onStoreGroundAtom hooks every freshly-or-previously-interned ground
// ordinary atom to maintain the predicate secondary index and the
// auxiliary ground-atom mask.
func (r *Registry) onStoreGroundAtom(aid id.ID, a OrdinaryAtom) {
	r.predMu.Lock()
	already := false
	for _, existing := range r.predIndex[a.Predicate] {
		if existing == aid {
			already = true
			break
		}
	}
	if !already {
		r.predIndex[a.Predicate] = append(r.predIndex[a.Predicate], aid)
	}
	r.predMu.Unlock()

	if r.isAuxiliaryPredicate(a.Predicate) {
		r.maskMu.Lock()
		r.auxMask.Add(aid.Address())
		r.maskMu.Unlock()
	}
}

func (r *Registry) isAuxiliaryPredicate(pid id.ID) bool {
	if pid.Main() != id.KindTerm {
		return false
	}
	if pid.Sub() == id.TermInteger {
		return false
	}
	t := r.GetTerm(pid)
	return t.Auxiliary
}

// AtomsForPredicate returns every ground ordinary atom interned for pred.
func (r *Registry) AtomsForPredicate(pred id.ID) []id.ID {
	r.predMu.RLock()
	defer r.predMu.RUnlock()
	out := make([]id.ID, len(r.predIndex[pred]))
	copy(out, r.predIndex[pred])
	return out
}

// AuxiliaryGroundAtomMask returns the bitset over every ground atom address
// whose predicate is an auxiliary constant (spec §4.1).
func (r *Registry) AuxiliaryGroundAtomMask() *interp.Set {
	r.maskMu.RLock()
	defer r.maskMu.RUnlock()
	return r.auxMask.Clone()
}

// AuxiliaryConstant deterministically maps (kind, source) to an ID with the
// auxiliary bit set. Types in use: 'r' positive external-atom auxiliary,
// 'n' negative external-atom auxiliary, 'i' input-tuple auxiliary, '0' null
// (Skolem) term, 'w' weak-constraint weight atom, 'b' rule-body auxiliary
// (internal/solver's rule compilation); plugins may reserve more.
func (r *Registry) AuxiliaryConstant(kind byte, source id.ID) id.ID {
	key := auxKey{Type: kind, Source: source}

	r.auxMu.RLock()
	if existing, ok := r.auxForward[key]; ok {
		r.auxMu.RUnlock()
		return existing
	}
	r.auxMu.RUnlock()

	r.auxMu.Lock()
	defer r.auxMu.Unlock()
	if existing, ok := r.auxForward[key]; ok {
		return existing
	}
	symbol := auxSymbol(kind, source)
	tid := r.StoreTerm(Term{Kind: id.TermConstant, Symbol: symbol, Auxiliary: true})
	if _, clash := r.auxReverse[tid]; clash {
		herror.Fatalf("AuxiliaryConstant: double-assignment for %s", tid)
	}
	r.auxForward[key] = tid
	r.auxReverse[tid] = key
	return tid
}

func auxSymbol(kind byte, source id.ID) string {
	return string(kind) + "_aux_" + source.String()
}

// IDOfAuxiliaryConstant is the reverse lookup of AuxiliaryConstant: it must
// satisfy IDOfAuxiliaryConstant(AuxiliaryConstant(t, s)) == (t, s, true).
func (r *Registry) IDOfAuxiliaryConstant(aid id.ID) (kind byte, source id.ID, ok bool) {
	r.auxMu.RLock()
	defer r.auxMu.RUnlock()
	key, found := r.auxReverse[aid]
	if !found {
		return 0, id.Fail, false
	}
	return key.Type, key.Source, true
}

// SwapExternalAuxiliary toggles an 'r'/'n' external-atom auxiliary to its
// opposite polarity. Fatal if aid is not such an auxiliary.
func (r *Registry) SwapExternalAuxiliary(aid id.ID) id.ID {
	kind, source, ok := r.IDOfAuxiliaryConstant(aid)
	if !ok || (kind != 'r' && kind != 'n') {
		herror.Fatalf("SwapExternalAuxiliary: %s is not an r/n auxiliary", aid)
	}
	other := byte('n')
	if kind == 'n' {
		other = 'r'
	}
	return r.AuxiliaryConstant(other, source)
}

// Valid reports whether id addresses a live entry whose table's stored kind
// matches id.Kind modulo the NAF bit (spec §3 invariant).
func (r *Registry) Valid(x id.ID) bool {
	if x.IsFail() {
		return false
	}
	switch x.Main() {
	case id.KindTerm:
		if x.Sub() == id.TermInteger {
			return true
		}
		row, ok := r.terms.get(x.Address())
		return ok && row.Kind == x.Sub()
	case id.KindAtom:
		switch x.Sub() {
		case id.AtomOrdinaryGround:
			_, ok := r.groundAtoms.get(x.Address())
			return ok
		case id.AtomOrdinaryNonground:
			_, ok := r.nongroundAtoms.get(x.Address())
			return ok
		case id.AtomBuiltin:
			_, ok := r.builtins.get(x.Address())
			return ok
		case id.AtomAggregate:
			_, ok := r.aggregates.get(x.Address())
			return ok
		case id.AtomExternal:
			_, ok := r.externals.get(x.Address())
			return ok
		case id.AtomModule:
			_, ok := r.modules.get(x.Address())
			return ok
		}
		return false
	case id.KindRule:
		row, ok := r.rules.get(x.Address())
		return ok && row.Kind == x.Sub()
	case id.KindLiteral:
		// A literal ID wraps an atom ID with the NAF bit; validity defers
		// to the underlying atom.
		return r.Valid(x.WithNAF(false))
	}
	return false
}

// Decode implements plugin.Codec: a ComfortValue for a ground term ID.
func (r *Registry) Decode(tid id.ID) plugin.ComfortValue {
	t := r.GetTerm(tid)
	switch t.Kind {
	case id.TermInteger:
		return IntegerValue(tid)
	case id.TermConstant, id.TermQuotedString:
		return t.Symbol
	default:
		return r.TermText(tid)
	}
}

// Encode implements plugin.Codec: interns a Go value as a ground term ID.
func (r *Registry) Encode(v plugin.ComfortValue) id.ID {
	switch x := v.(type) {
	case int:
		return r.StoreInteger(int32(x))
	case int32:
		return r.StoreInteger(x)
	case int64:
		return r.StoreInteger(int32(x))
	case string:
		return r.StoreTerm(Term{Kind: id.TermConstant, Symbol: x})
	default:
		herror.Fatalf("Encode: unsupported comfort value %T", v)
		return id.Fail
	}
}
