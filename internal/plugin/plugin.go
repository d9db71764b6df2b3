// Package plugin defines the capability interface the core consumes from
// plugins (component C4): term semantics, external-atom retrieval, optional
// learning callbacks, and the propagator callback.
package plugin

import (
	"context"

	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
)

// InputKind classifies an external atom's input argument.
type InputKind int

const (
	Constant InputKind = iota
	Predicate
	Tuple
)

// Properties are the optional capability claims an external atom may make.
// Violating one at runtime is a plugin fault (spec §4.3), not a solver
// fault — the evaluator only ever trusts these to decide how aggressively
// to cache and re-derive, never to skip correctness checks.
type Properties struct {
	Functional                  bool
	FiniteOutputDomain          bool
	FiniteFiber                 bool
	WellOrderingStrlen          bool
	AntimonotonicInputPredicate []bool
	MonotonicInputPredicate     []bool
}

// NogoodContainer receives no-goods a plugin's retrieval or propagator
// callback wants to justify its answer with.
type NogoodContainer interface {
	Add(ng *nogood.Nogood)
}

// Query bundles everything a plugin needs to evaluate one external-atom
// call, per spec §4.3.
type Query struct {
	Ctx           context.Context
	Interpretation *interp.Partial // truth defined only on addresses in Assigned
	Assigned      *interp.Set     // only populated mid-search (propagator calls)
	Changed       *interp.Set     // only populated mid-search
	Input         []id.ID         // ground input tuple
	Pattern       []id.ID         // output pattern to match against (variables = wildcard)
	Learned       NogoodContainer // optional: plugin may populate with learned nogoods
}

// Answer is the set of output tuples a plugin returns for one Query.
type Answer struct {
	Tuples [][]id.ID
}

// Atom is the capability descriptor plus retrieval entry points a plugin
// exposes for one external predicate &g.
type Atom interface {
	// Name returns the external predicate name, e.g. "testTransitiveClosure"
	// for &testTransitiveClosure[...](...).
	Name() string
	InputArity() int
	InputKinds() []InputKind
	OutputArity() int
	Properties() Properties

	// Retrieve returns every output tuple in &g[input](·) under query's
	// interpretation that matches query.Pattern. Input tuples are always
	// ground; returned IDs must be either integer terms or already-interned
	// constants (the solver's contract guarantee to the plugin).
	Retrieve(q Query) (Answer, error)

	// RetrieveCached may reuse a previously computed answer if the
	// projection of the interpretation onto the atom's relevant mask is
	// unchanged since the last call with an equal fingerprint.
	RetrieveCached(q Query, fingerprint uint64) (Answer, error)
}

// Propagator is the optional mid-search callback a plugin registers to be
// invoked by the external propagator (component C8) on a deferred schedule.
type Propagator interface {
	// Propagate is called with the shadow assignment accumulated since the
	// last call; it may append no-goods to learned.
	Propagate(ctx context.Context, current *interp.Partial, assigned, changed *interp.Set, learned NogoodContainer) error
}

// ComfortValue is the Go-native counterpart of a ground term, used by
// ComfortAtom so plugin authors can work with Go values instead of raw
// registry IDs (spec's "Design Notes" calls out the C++ ComfortPluginInterface
// convenience layer this mirrors).
type ComfortValue any

// ComfortAtom lets a plugin implement retrieval purely in terms of Go
// values; Adapt wraps it into a full Atom using the supplied term codec.
type ComfortAtom interface {
	Name() string
	InputArity() int
	OutputArity() int
	Properties() Properties
	RetrieveValues(ctx context.Context, input []ComfortValue) ([][]ComfortValue, error)
}

// Codec converts between registry IDs and ComfortValues. Implemented by the
// registry package; kept as an interface here to avoid an import cycle.
type Codec interface {
	Decode(id.ID) ComfortValue
	Encode(ComfortValue) id.ID
}

type comfortAdapter struct {
	inner ComfortAtom
	codec Codec
}

// Adapt turns a ComfortAtom into a full Atom.
func Adapt(inner ComfortAtom, codec Codec) Atom {
	return &comfortAdapter{inner: inner, codec: codec}
}

func (a *comfortAdapter) Name() string         { return a.inner.Name() }
func (a *comfortAdapter) InputArity() int       { return a.inner.InputArity() }
func (a *comfortAdapter) OutputArity() int      { return a.inner.OutputArity() }
func (a *comfortAdapter) Properties() Properties { return a.inner.Properties() }

func (a *comfortAdapter) InputKinds() []InputKind {
	kinds := make([]InputKind, a.inner.InputArity())
	for i := range kinds {
		kinds[i] = Constant
	}
	return kinds
}

func (a *comfortAdapter) Retrieve(q Query) (Answer, error) {
	input := make([]ComfortValue, len(q.Input))
	for i, t := range q.Input {
		input[i] = a.codec.Decode(t)
	}
	rows, err := a.inner.RetrieveValues(q.Ctx, input)
	if err != nil {
		return Answer{}, err
	}
	out := Answer{Tuples: make([][]id.ID, len(rows))}
	for i, row := range rows {
		tuple := make([]id.ID, len(row))
		for j, v := range row {
			tuple[j] = a.codec.Encode(v)
		}
		out.Tuples[i] = tuple
	}
	return out, nil
}

func (a *comfortAdapter) RetrieveCached(q Query, _ uint64) (Answer, error) {
	return a.Retrieve(q)
}

// Registry is the set of plugin atoms and propagators known to one solver
// session, keyed by external predicate name.
type Registry struct {
	atoms        map[string]Atom
	propagators  []Propagator
}

// NewRegistry returns an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{atoms: make(map[string]Atom)}
}

// RegisterAtom adds an external atom implementation, keyed by its Name().
func (r *Registry) RegisterAtom(a Atom) { r.atoms[a.Name()] = a }

// RegisterPropagator adds a plugin propagator callback.
func (r *Registry) RegisterPropagator(p Propagator) { r.propagators = append(r.propagators, p) }

// Atom looks up a registered external atom by name.
func (r *Registry) Atom(name string) (Atom, bool) { a, ok := r.atoms[name]; return a, ok }

// Propagators returns every registered propagator.
func (r *Registry) Propagators() []Propagator { return r.propagators }
