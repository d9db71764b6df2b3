package propagator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexsolve/internal/exteval"
	"hexsolve/internal/groundprogram"
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
	"hexsolve/internal/plugin"
	"hexsolve/internal/registry"
)

// stubBoolAtom is a 0-ary (boolean) external atom: &testStub's answer is
// either {()} or {}, never depending on any input.
type stubBoolAtom struct{ value bool }

func (s stubBoolAtom) Name() string                   { return "testStub" }
func (s stubBoolAtom) InputArity() int                { return 0 }
func (s stubBoolAtom) InputKinds() []plugin.InputKind { return nil }
func (s stubBoolAtom) OutputArity() int               { return 0 }
func (s stubBoolAtom) Properties() plugin.Properties  { return plugin.Properties{} }

func (s stubBoolAtom) Retrieve(q plugin.Query) (plugin.Answer, error) {
	if s.value {
		return plugin.Answer{Tuples: [][]id.ID{{}}}, nil
	}
	return plugin.Answer{}, nil
}

func (s stubBoolAtom) RetrieveCached(q plugin.Query, _ uint64) (plugin.Answer, error) {
	return s.Retrieve(q)
}

func setupStubExternal(t *testing.T, answerTrue bool) (*registry.Registry, *exteval.Evaluator, *groundprogram.AnnotatedGroundProgram, id.ID, id.ID, id.ID) {
	t.Helper()
	reg := registry.New()
	plugins := plugin.NewRegistry()
	atom := stubBoolAtom{value: answerTrue}
	plugins.RegisterAtom(atom)

	extID := reg.StoreExternalAtom(registry.ExternalAtom{Name: "testStub", PluginAtom: atom})
	evaluator := exteval.New(reg, plugins)
	ruleID := evaluator.GuessingRule(extID, nil)

	posID := evaluator.ReplacementAtom(extID, nil)
	negPred := reg.SwapExternalAuxiliary(reg.AuxiliaryConstant('r', extID))
	negID := reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: negPred})

	agp, err := groundprogram.Build(reg, interp.NewSet(), []id.ID{ruleID}, []id.ID{extID}, nil)
	require.NoError(t, err)

	return reg, evaluator, agp, extID, posID, negID
}

func TestVerifyExternals_CorrectsWrongGuess(t *testing.T) {
	reg, evaluator, agp, _, posID, negID := setupStubExternal(t, true)

	ext := New(plugin.NewRegistry(), nil)
	ext.BindExternals(reg, agp, evaluator)

	assigned := interp.NewSet()
	assigned.Add(posID.Address())
	assigned.Add(negID.Address())
	changed := interp.NewSet()
	changed.Add(posID.Address())
	changed.Add(negID.Address())
	current := interp.NewPartial()
	current.Set(posID.Address(), interp.False)
	current.Set(negID.Address(), interp.True)

	ext.updateShadow(assigned, changed, current)

	learned := nogood.NewStore()
	ok, err := ext.runPlugins(context.Background(), learned)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Equal(t, 2, learned.Len())
	var sawForcePosTrue, sawForceNegFalse bool
	for _, ng := range learned.All() {
		if ng.IsUnary() && ng.Contains(posID.WithNAF(true)) {
			sawForcePosTrue = true
		}
		if ng.IsUnary() && ng.Contains(negID) {
			sawForceNegFalse = true
		}
	}
	assert.True(t, sawForcePosTrue, "expected a corrective nogood forcing the positive auxiliary true")
	assert.True(t, sawForceNegFalse, "expected a corrective nogood forcing the negative auxiliary false")
}

func TestVerifyExternals_ConsistentGuessAddsNothing(t *testing.T) {
	reg, evaluator, agp, _, posID, negID := setupStubExternal(t, true)

	ext := New(plugin.NewRegistry(), nil)
	ext.BindExternals(reg, agp, evaluator)

	assigned := interp.NewSet()
	assigned.Add(posID.Address())
	assigned.Add(negID.Address())
	changed := interp.NewSet()
	changed.Add(posID.Address())
	current := interp.NewPartial()
	current.Set(posID.Address(), interp.True)
	current.Set(negID.Address(), interp.False)

	ext.updateShadow(assigned, changed, current)

	learned := nogood.NewStore()
	ok, err := ext.runPlugins(context.Background(), learned)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, learned.Len())
}
