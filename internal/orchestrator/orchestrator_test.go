package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"hexsolve/internal/config"
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/plugin"
	"hexsolve/internal/registry"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "ShowPlugins", stateShowPlugins.String())
	assert.Equal(t, "Done", stateDone.String())
	assert.Equal(t, "state(99)", state(99).String())
}

func TestRun_FactOnlyProgram(t *testing.T) {
	reg := registry.New()
	plugins := plugin.NewRegistry()
	cfg := config.DefaultConfig()

	pred := reg.StoreTerm(registry.Term{Kind: 0, Symbol: "p"})
	fact := reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: pred})

	edb := interp.NewSet()
	edb.Add(fact.Address())

	prog := Program{EDB: edb}

	s := New(reg, plugins, cfg, nil)
	backend, err := s.Run(context.Background(), prog)
	require.NoError(t, err)
	require.NotNil(t, backend)

	var models int
	for range backend.Solve(context.Background(), nil, nil) {
		models++
		if models > 4 {
			break
		}
	}
	assert.GreaterOrEqual(t, models, 1)
}

func TestModuleSyntaxCheck_FallsThroughWhenNotModular(t *testing.T) {
	reg := registry.New()
	plugins := plugin.NewRegistry()
	cfg := config.DefaultConfig()
	s := New(reg, plugins, cfg, nil)

	next, _, err := s.step(context.Background(), stateModuleSyntaxCheck, Program{Modular: false})
	require.NoError(t, err)
	assert.Equal(t, stateRewriteEDBIDB, next)
}

func TestSafetyCheck_AggregatesEveryViolation(t *testing.T) {
	reg := registry.New()
	plugins := plugin.NewRegistry()
	cfg := config.DefaultConfig()
	s := New(reg, plugins, cfg, nil)

	prog := Program{IDB: []id.ID{id.Fail, id.Fail}}
	err := s.safetyCheck(prog)
	require.Error(t, err)
	assert.Equal(t, 2, len(multierr.Errors(err)))
}

// booleanStubAtom is a 0-ary external atom, e.g. spec §8 scenario 1's
// &testEven[x] check folded to a boolean: it has exactly one candidate in
// its output schema (the empty tuple).
type booleanStubAtom struct{}

func (booleanStubAtom) Name() string                   { return "testBoolean" }
func (booleanStubAtom) InputArity() int                { return 0 }
func (booleanStubAtom) InputKinds() []plugin.InputKind { return nil }
func (booleanStubAtom) OutputArity() int               { return 0 }
func (booleanStubAtom) Properties() plugin.Properties  { return plugin.Properties{} }
func (booleanStubAtom) Retrieve(plugin.Query) (plugin.Answer, error) {
	return plugin.Answer{Tuples: [][]id.ID{{}}}, nil
}
func (a booleanStubAtom) RetrieveCached(q plugin.Query, _ uint64) (plugin.Answer, error) {
	return a.Retrieve(q)
}

func TestRewriteEDBIDB_BooleanAtomAlwaysGuessesOverEmptyTuple(t *testing.T) {
	reg := registry.New()
	plugins := plugin.NewRegistry()
	plugins.RegisterAtom(booleanStubAtom{})
	extID := reg.StoreExternalAtom(registry.ExternalAtom{Name: "testBoolean", PluginAtom: booleanStubAtom{}})

	cfg := config.DefaultConfig()
	s := New(reg, plugins, cfg, nil)

	prog := Program{EDB: interp.NewSet(), IndexedExternals: []id.ID{extID}}
	next, prog, err := s.step(context.Background(), stateRewriteEDBIDB, prog)
	require.NoError(t, err)
	assert.Equal(t, stateSafetyCheck, next)

	// Exactly one guessing rule, never a hard-asserted EDB fact: the
	// propagator (not the grounder) is responsible for keeping this
	// consistent with &testBoolean during search.
	assert.Len(t, prog.IDB, 1)
	assert.Equal(t, 0, prog.EDB.Len())
}

// pairStubAtom is a unary-output external atom with two candidate tuples
// known at grounding time (spec §8 scenario 2's transitive-closure shape,
// simplified to a constant domain).
type pairStubAtom struct{ one, two id.ID }

func (pairStubAtom) Name() string                   { return "testPair" }
func (pairStubAtom) InputArity() int                { return 0 }
func (pairStubAtom) InputKinds() []plugin.InputKind { return nil }
func (pairStubAtom) OutputArity() int               { return 1 }
func (pairStubAtom) Properties() plugin.Properties  { return plugin.Properties{} }
func (a pairStubAtom) Retrieve(plugin.Query) (plugin.Answer, error) {
	return plugin.Answer{Tuples: [][]id.ID{{a.one}, {a.two}}}, nil
}
func (a pairStubAtom) RetrieveCached(q plugin.Query, _ uint64) (plugin.Answer, error) {
	return a.Retrieve(q)
}

func TestRewriteEDBIDB_GuessesPerDiscoveredOutputTuple(t *testing.T) {
	reg := registry.New()
	plugins := plugin.NewRegistry()
	one := reg.StoreInteger(1)
	two := reg.StoreInteger(2)
	atom := pairStubAtom{one: one, two: two}
	plugins.RegisterAtom(atom)
	extID := reg.StoreExternalAtom(registry.ExternalAtom{Name: "testPair", PluginAtom: atom})

	cfg := config.DefaultConfig()
	s := New(reg, plugins, cfg, nil)

	prog := Program{EDB: interp.NewSet(), IndexedExternals: []id.ID{extID}}
	next, prog, err := s.step(context.Background(), stateRewriteEDBIDB, prog)
	require.NoError(t, err)
	assert.Equal(t, stateSafetyCheck, next)

	// One guessing rule per discovered candidate tuple, not a single
	// hard-coded guess over the empty tuple.
	assert.Len(t, prog.IDB, 2)
	assert.Equal(t, 0, prog.EDB.Len())
}
