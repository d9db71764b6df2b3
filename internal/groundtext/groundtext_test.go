package groundtext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hexsolve/internal/plugin"
	"hexsolve/internal/registry"
)

func TestBuild_FactsAndRules(t *testing.T) {
	reg := registry.New()
	plugins := plugin.NewRegistry()

	doc := Document{
		Facts: []string{"edge(a,b)", "edge(b,c)"},
		Rules: []RuleText{
			{
				Kind: "disjunctive",
				Head: []string{"reachable(X,Y)"},
				Body: []string{"edge(X,Y)"},
			},
			{
				Kind: "constraint",
				Body: []string{"reachable(a,a)"},
			},
		},
	}

	prog, err := Build(doc, reg, plugins)
	require.NoError(t, err)
	assert.Len(t, prog.IDB, 2)
	assert.False(t, prog.Modular)

	var facts int
	prog.EDB.Each(func(uint32) bool { facts++; return true })
	assert.Equal(t, 2, facts)
}

func TestBuild_NegationAndNestedTerm(t *testing.T) {
	reg := registry.New()
	plugins := plugin.NewRegistry()

	doc := Document{
		Facts: []string{`tagged(item(1),"urgent")`},
		Rules: []RuleText{
			{
				Kind: "disjunctive",
				Head: []string{"untagged(X)"},
				Body: []string{"item(X)", "not tagged(X,Y)"},
			},
		},
	}

	prog, err := Build(doc, reg, plugins)
	require.NoError(t, err)
	require.Len(t, prog.IDB, 1)

	rule := reg.GetRule(prog.IDB[0])
	require.Len(t, rule.Body, 2)
	assert.False(t, rule.Body[0].NAF())
	assert.True(t, rule.Body[1].NAF())
}

func TestBuild_UnknownExternalAtom(t *testing.T) {
	reg := registry.New()
	plugins := plugin.NewRegistry()

	doc := Document{
		ExternalAtoms: []ExternalText{{Name: "missing", Input: []string{"a"}}},
	}

	_, err := Build(doc, reg, plugins)
	require.Error(t, err)
}

func TestSplitFunctor(t *testing.T) {
	cases := []struct {
		in       string
		name     string
		args     []string
	}{
		{"p", "p", nil},
		{"p(a,b)", "p", []string{"a", "b"}},
		{"p(q(a,b),c)", "p", []string{"q(a,b)", "c"}},
		{`p("a,b",c)`, "p", []string{`"a,b"`, "c"}},
	}
	for _, c := range cases {
		name, args, err := splitFunctor(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.name, name, c.in)
		assert.Equal(t, c.args, args, c.in)
	}
}
