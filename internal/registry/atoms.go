package registry

import (
	"fmt"
	"strings"

	"hexsolve/internal/herror"
	"hexsolve/internal/id"
	"hexsolve/internal/plugin"
)

// OrdinaryAtom is a tuple [predicate, arg1, ..., argn] with a cached
// printable form. Ground and non-ground instances live in separate tables
// (so the sub-kind need not be inferred), but share this row type.
type OrdinaryAtom struct {
	Predicate id.ID
	Args      []id.ID
	text      string
}

func (a OrdinaryAtom) contentKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|", a.Predicate)
	for _, arg := range a.Args {
		fmt.Fprintf(&b, "%d,", arg)
	}
	return b.String()
}

// BuiltinAtom is a built-in predicate call, e.g. comparisons (==, <, ...)
// or arithmetic (#int, #succ); Symbol names the built-in.
type BuiltinAtom struct {
	Symbol string
	Args   []id.ID
}

func (a BuiltinAtom) contentKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|", a.Symbol)
	for _, arg := range a.Args {
		fmt.Fprintf(&b, "%d,", arg)
	}
	return b.String()
}

// AggregateAtom is an aggregate call (#count, #sum, #min, #max, #avg,
// #times) binding Result from the projection of Body over BodyVars, guarded
// by an optional comparison against Bound.
type AggregateAtom struct {
	Func     string
	Result   id.ID
	BodyVars []id.ID
	Body     []id.ID // conjunctive body literals of the aggregate
	CmpOp    string  // "<", "<=", "=", ">=", ">", or "" if unguarded
	Bound    id.ID
}

func (a AggregateAtom) contentKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%s|%d|", a.Func, a.Result, a.CmpOp, a.Bound)
	for _, v := range a.BodyVars {
		fmt.Fprintf(&b, "%d,", v)
	}
	b.WriteByte('|')
	for _, l := range a.Body {
		fmt.Fprintf(&b, "%d,", l)
	}
	return b.String()
}

// ExternalAtom is a call &g[input](output) plus the monotonicity and
// finiteness properties the grounder and propagator rely on, and a
// back-reference to the plugin object that answers it.
type ExternalAtom struct {
	Name       string
	Input      []id.ID
	Output     []id.ID
	InputKinds []plugin.InputKind
	Props      plugin.Properties
	PluginAtom plugin.Atom
}

func (a ExternalAtom) contentKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|", a.Name)
	for _, in := range a.Input {
		fmt.Fprintf(&b, "%d,", in)
	}
	b.WriteByte('|')
	for _, out := range a.Output {
		fmt.Fprintf(&b, "%d,", out)
	}
	return b.String()
}

// ModuleAtom is a call into a named HEX module's output predicate, for
// modular-syntax programs (orchestrator state MLPSolver).
type ModuleAtom struct {
	Module string
	Input  []id.ID
	Output []id.ID
}

func (a ModuleAtom) contentKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|", a.Module)
	for _, in := range a.Input {
		fmt.Fprintf(&b, "%d,", in)
	}
	b.WriteByte('|')
	for _, out := range a.Output {
		fmt.Fprintf(&b, "%d,", out)
	}
	return b.String()
}

func (r *Registry) storeOrdinary(tbl *table[OrdinaryAtom], sub id.SubKind, a OrdinaryAtom) id.ID {
	addr := tbl.storeByContent(a.contentKey(), a)
	aid := id.New(id.KindAtom, sub, id.Props{}, false, addr)
	if a.text == "" {
		row, _ := tbl.get(addr)
		if row.text == "" {
			row.text = r.renderOrdinary(a)
			tbl.set(addr, row)
		}
	}
	if sub == id.AtomOrdinaryGround {
		r.onStoreGroundAtom(aid, a)
	}
	return aid
}

func (r *Registry) renderOrdinary(a OrdinaryAtom) string {
	parts := make([]string, len(a.Args))
	for i, arg := range a.Args {
		parts[i] = r.TermText(arg)
	}
	return r.TermText(a.Predicate) + "(" + strings.Join(parts, ",") + ")"
}

// StoreOrdinaryGroundAtom interns a ground ordinary atom.
func (r *Registry) StoreOrdinaryGroundAtom(a OrdinaryAtom) id.ID {
	return r.storeOrdinary(r.groundAtoms, id.AtomOrdinaryGround, a)
}

// StoreOrdinaryNongroundAtom interns a non-ground ordinary atom.
func (r *Registry) StoreOrdinaryNongroundAtom(a OrdinaryAtom) id.ID {
	return r.storeOrdinary(r.nongroundAtoms, id.AtomOrdinaryNonground, a)
}

// GetOrdinaryAtom dereferences an ordinary atom ID (ground or non-ground).
func (r *Registry) GetOrdinaryAtom(aid id.ID) OrdinaryAtom {
	tbl := r.tableForOrdinary(aid)
	row, ok := tbl.get(aid.Address())
	if !ok {
		herror.Fatalf("GetOrdinaryAtom: dangling ID %s", aid)
	}
	return row
}

func (r *Registry) tableForOrdinary(aid id.ID) *table[OrdinaryAtom] {
	if aid.Main() != id.KindAtom {
		herror.Fatalf("tableForOrdinary: %s is not an atom ID", aid)
	}
	switch aid.Sub() {
	case id.AtomOrdinaryGround:
		return r.groundAtoms
	case id.AtomOrdinaryNonground:
		return r.nongroundAtoms
	default:
		herror.Fatalf("tableForOrdinary: %s is not an ordinary atom ID", aid)
		return nil
	}
}

// AtomText returns the cached printable form of an ordinary atom.
func (r *Registry) AtomText(aid id.ID) string {
	row, ok := r.tableForOrdinary(aid).get(aid.Address())
	if !ok {
		herror.Fatalf("AtomText: dangling ID %s", aid)
	}
	return row.text
}

// StoreBuiltinAtom interns a built-in atom.
func (r *Registry) StoreBuiltinAtom(a BuiltinAtom) id.ID {
	addr := r.builtins.storeByContent(a.contentKey(), a)
	return id.New(id.KindAtom, id.AtomBuiltin, id.Props{}, false, addr)
}

// GetBuiltinAtom dereferences a built-in atom ID.
func (r *Registry) GetBuiltinAtom(aid id.ID) BuiltinAtom {
	requireKind(aid, id.KindAtom, id.AtomBuiltin)
	row, ok := r.builtins.get(aid.Address())
	if !ok {
		herror.Fatalf("GetBuiltinAtom: dangling ID %s", aid)
	}
	return row
}

// StoreAggregateAtom interns an aggregate atom.
func (r *Registry) StoreAggregateAtom(a AggregateAtom) id.ID {
	addr := r.aggregates.storeByContent(a.contentKey(), a)
	return id.New(id.KindAtom, id.AtomAggregate, id.Props{}, false, addr)
}

// GetAggregateAtom dereferences an aggregate atom ID.
func (r *Registry) GetAggregateAtom(aid id.ID) AggregateAtom {
	requireKind(aid, id.KindAtom, id.AtomAggregate)
	row, ok := r.aggregates.get(aid.Address())
	if !ok {
		herror.Fatalf("GetAggregateAtom: dangling ID %s", aid)
	}
	return row
}

// StoreExternalAtom interns an external atom descriptor.
func (r *Registry) StoreExternalAtom(a ExternalAtom) id.ID {
	addr := r.externals.storeByContent(a.contentKey(), a)
	return id.New(id.KindAtom, id.AtomExternal, id.Props{}, false, addr)
}

// GetExternalAtom dereferences an external atom ID.
func (r *Registry) GetExternalAtom(aid id.ID) ExternalAtom {
	requireKind(aid, id.KindAtom, id.AtomExternal)
	row, ok := r.externals.get(aid.Address())
	if !ok {
		herror.Fatalf("GetExternalAtom: dangling ID %s", aid)
	}
	return row
}

// StoreModuleAtom interns a module atom.
func (r *Registry) StoreModuleAtom(a ModuleAtom) id.ID {
	addr := r.modules.storeByContent(a.contentKey(), a)
	return id.New(id.KindAtom, id.AtomModule, id.Props{}, false, addr)
}

// GetModuleAtom dereferences a module atom ID.
func (r *Registry) GetModuleAtom(aid id.ID) ModuleAtom {
	requireKind(aid, id.KindAtom, id.AtomModule)
	row, ok := r.modules.get(aid.Address())
	if !ok {
		herror.Fatalf("GetModuleAtom: dangling ID %s", aid)
	}
	return row
}

func requireKind(x id.ID, main id.MainKind, sub id.SubKind) {
	if x.Main() != main || x.Sub() != sub {
		herror.Fatalf("requireKind: expected %s/%d, got %s", main, sub, x)
	}
}
