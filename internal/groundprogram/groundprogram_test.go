package groundprogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/plugin"
	"hexsolve/internal/registry"
)

// TestBuild_PredicateInputExternalEdgeDetectsECycle grounds "p :- &testNonmon[p]."
// (spec §8 scenario 5's odd support loop through a predicate-kind external
// input) and checks that the dependency edge from the replacement auxiliary
// back to p is actually installed, so the component is flagged as an
// external cycle and FLP checking (C9) will not be skipped for it.
func TestBuild_PredicateInputExternalEdgeDetectsECycle(t *testing.T) {
	reg := registry.New()

	predP := reg.StoreTerm(registry.Term{Kind: id.TermConstant, Symbol: "p"})
	atomP := reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: predP})

	extID := reg.StoreExternalAtom(registry.ExternalAtom{
		Name:       "testNonmon",
		Input:      []id.ID{predP},
		InputKinds: []plugin.InputKind{plugin.Predicate},
	})
	posPred := reg.AuxiliaryConstant('r', extID)
	posAtom := reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: posPred})

	rule := reg.StoreRule(registry.Rule{
		Kind: id.RuleDisjunctive,
		Head: []id.ID{atomP},
		Body: []id.ID{posAtom},
	})

	agp, err := Build(reg, interp.NewSet(), []id.ID{rule}, []id.ID{extID}, nil)
	require.NoError(t, err)

	ci, ok := agp.ComponentOf(atomP.Address())
	require.True(t, ok, "p must participate in the dependency graph")

	otherCi, ok := agp.ComponentOf(posAtom.Address())
	require.True(t, ok)
	assert.Equal(t, ci, otherCi, "p and its external replacement auxiliary must land in the same SCC")
	assert.True(t, agp.ECycles[ci], "external cycle through a predicate-kind input must be detected")
	assert.True(t, agp.HasCycle(atomP.Address()))
}

// TestBuild_ConstantInputNoSpuriousCycle is the control: a constant-kind
// input never introduces a dependency edge back to anything, so two
// otherwise-independent atoms stay in separate components.
func TestBuild_ConstantInputNoSpuriousCycle(t *testing.T) {
	reg := registry.New()

	predQ := reg.StoreTerm(registry.Term{Kind: id.TermConstant, Symbol: "q"})
	atomQ := reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: predQ})
	five := reg.StoreInteger(5)

	extID := reg.StoreExternalAtom(registry.ExternalAtom{
		Name:       "testConst",
		Input:      []id.ID{five},
		InputKinds: []plugin.InputKind{plugin.Constant},
	})
	posPred := reg.AuxiliaryConstant('r', extID)
	posAtom := reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: posPred})

	rule := reg.StoreRule(registry.Rule{
		Kind: id.RuleDisjunctive,
		Head: []id.ID{atomQ},
		Body: []id.ID{posAtom},
	})

	agp, err := Build(reg, interp.NewSet(), []id.ID{rule}, []id.ID{extID}, nil)
	require.NoError(t, err)

	qCi, ok := agp.ComponentOf(atomQ.Address())
	require.True(t, ok)
	assert.False(t, agp.ECycles[qCi])
	assert.False(t, agp.HasCycle(atomQ.Address()))
}
