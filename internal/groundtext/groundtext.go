// Package groundtext is the CLI's own minimal ground-program document
// reader. spec §1 puts "the parser lexer/grammar beyond its output
// signature" out of the core's scope — this package is that external
// collaborator, intentionally scoped to ground terms only (no variables, no
// grounding): a JSON document naming facts, rules, and indexed external
// atoms, which it turns directly into an orchestrator.Program by calling
// straight into the registry's interning API.
package groundtext

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/orchestrator"
	"hexsolve/internal/plugin"
	"hexsolve/internal/registry"
)

// Document is the on-disk JSON shape a solver invocation reads.
type Document struct {
	Facts         []string       `json:"facts"`
	Rules         []RuleText     `json:"rules"`
	ExternalAtoms []ExternalText `json:"external_atoms"`
	Modular       bool           `json:"modular"`
}

// RuleText is one rule, in the unified shape spec §3 gives Rule: Kind
// discriminates disjunctive/constraint/weak/weight, everything else is
// ground-atom text parsed the same way as Facts.
type RuleText struct {
	Kind       string   `json:"kind"` // "disjunctive" (default), "constraint", "weak", "weight"
	Head       []string `json:"head"`
	Body       []string `json:"body"` // "not " prefix for NAF
	Weight     int64    `json:"weight"`
	Level      int64    `json:"level"`
	Bound      int64    `json:"bound"`
	BodyWeight []int64  `json:"body_weight"`
}

// ExternalText declares one indexed external-atom call against an atom
// already registered in the plugin registry by name.
type ExternalText struct {
	Name  string   `json:"name"`
	Input []string `json:"input"`
}

// Load parses data as a Document and builds the ground orchestrator.Program
// it describes, interning every term/atom/rule into reg and resolving every
// external atom against plugins.
func Load(data []byte, reg *registry.Registry, plugins *plugin.Registry) (orchestrator.Program, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return orchestrator.Program{}, fmt.Errorf("parse ground program document: %w", err)
	}
	return Build(doc, reg, plugins)
}

// Build turns an already-decoded Document into a Program.
func Build(doc Document, reg *registry.Registry, plugins *plugin.Registry) (orchestrator.Program, error) {
	edb := interp.NewSet()
	for _, f := range doc.Facts {
		aid, err := parseGroundAtom(f, reg)
		if err != nil {
			return orchestrator.Program{}, fmt.Errorf("fact %q: %w", f, err)
		}
		edb.Add(aid.Address())
	}

	var idb []id.ID
	for i, rt := range doc.Rules {
		rid, err := buildRule(rt, reg)
		if err != nil {
			return orchestrator.Program{}, fmt.Errorf("rule #%d: %w", i, err)
		}
		idb = append(idb, rid)
	}

	var indexedExternals []id.ID
	for i, ext := range doc.ExternalAtoms {
		eid, err := buildExternal(ext, reg, plugins)
		if err != nil {
			return orchestrator.Program{}, fmt.Errorf("external atom #%d: %w", i, err)
		}
		indexedExternals = append(indexedExternals, eid)
	}

	return orchestrator.Program{
		EDB:              edb,
		IDB:              idb,
		IndexedExternals: indexedExternals,
		Modular:          doc.Modular,
	}, nil
}

func buildRule(rt RuleText, reg *registry.Registry) (id.ID, error) {
	kind := id.RuleDisjunctive
	switch rt.Kind {
	case "", "disjunctive":
		kind = id.RuleDisjunctive
	case "constraint":
		kind = id.RuleConstraint
	case "weak":
		kind = id.RuleWeak
	case "weight":
		kind = id.RuleWeight
	default:
		return id.Fail, fmt.Errorf("unknown rule kind %q", rt.Kind)
	}

	head := make([]id.ID, 0, len(rt.Head))
	for _, h := range rt.Head {
		aid, err := parseGroundAtom(h, reg)
		if err != nil {
			return id.Fail, fmt.Errorf("head %q: %w", h, err)
		}
		head = append(head, aid)
	}

	body := make([]id.ID, 0, len(rt.Body))
	for _, b := range rt.Body {
		lit, err := parseLiteral(b, reg)
		if err != nil {
			return id.Fail, fmt.Errorf("body literal %q: %w", b, err)
		}
		body = append(body, lit)
	}

	return reg.StoreRule(registry.Rule{
		Kind:             kind,
		Head:             head,
		Body:             body,
		HeadGuard:        id.Fail,
		BodyWeightVector: rt.BodyWeight,
		Bound:            rt.Bound,
		Weight:           rt.Weight,
		Level:            rt.Level,
	}), nil
}

func buildExternal(ext ExternalText, reg *registry.Registry, plugins *plugin.Registry) (id.ID, error) {
	pa, ok := plugins.Atom(ext.Name)
	if !ok {
		return id.Fail, fmt.Errorf("no plugin registered for external atom %q", ext.Name)
	}
	input := make([]id.ID, 0, len(ext.Input))
	for _, in := range ext.Input {
		tid, err := parseTerm(in, reg)
		if err != nil {
			return id.Fail, fmt.Errorf("input %q: %w", in, err)
		}
		input = append(input, tid)
	}
	return reg.StoreExternalAtom(registry.ExternalAtom{
		Name:       ext.Name,
		Input:      input,
		InputKinds: pa.InputKinds(),
		Props:      pa.Properties(),
		PluginAtom: pa,
	}), nil
}

// parseLiteral parses one body literal, honoring an optional leading "not "
// for default negation.
func parseLiteral(s string, reg *registry.Registry) (id.ID, error) {
	s = strings.TrimSpace(s)
	neg := false
	if rest, ok := strings.CutPrefix(s, "not "); ok {
		neg = true
		s = strings.TrimSpace(rest)
	}
	aid, err := parseGroundAtom(s, reg)
	if err != nil {
		return id.Fail, err
	}
	return aid.WithNAF(neg), nil
}

// parseGroundAtom parses "pred" or "pred(arg1,...,argn)" into an interned
// ground ordinary atom.
func parseGroundAtom(s string, reg *registry.Registry) (id.ID, error) {
	s = strings.TrimSpace(s)
	name, args, err := splitFunctor(s)
	if err != nil {
		return id.Fail, err
	}
	predTerm := reg.StoreTerm(registry.Term{Kind: id.TermConstant, Symbol: name})
	argIDs := make([]id.ID, 0, len(args))
	for _, a := range args {
		tid, err := parseTerm(a, reg)
		if err != nil {
			return id.Fail, err
		}
		argIDs = append(argIDs, tid)
	}
	return reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: predTerm, Args: argIDs}), nil
}

// parseTerm parses one ground term: an integer, a quoted string, or a
// constant/nested-functor symbol.
func parseTerm(s string, reg *registry.Registry) (id.ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return id.Fail, fmt.Errorf("empty term")
	}
	if s[0] == '"' && s[len(s)-1] == '"' && len(s) >= 2 {
		return reg.StoreTerm(registry.Term{Kind: id.TermQuotedString, Symbol: s[1 : len(s)-1]}), nil
	}
	if v, err := strconv.ParseInt(s, 10, 32); err == nil {
		return reg.StoreInteger(int32(v)), nil
	}
	name, args, err := splitFunctor(s)
	if err != nil {
		return id.Fail, err
	}
	if len(args) == 0 {
		return reg.StoreTerm(registry.Term{Kind: id.TermConstant, Symbol: name}), nil
	}
	argIDs := make([]id.ID, 0, len(args))
	for _, a := range args {
		tid, err := parseTerm(a, reg)
		if err != nil {
			return id.Fail, err
		}
		argIDs = append(argIDs, tid)
	}
	return reg.StoreTerm(registry.Term{Kind: id.TermNested, Symbol: name, Args: argIDs}), nil
}

// splitFunctor splits "name(a,b,c)" into ("name", ["a","b","c"]), or "name"
// into ("name", nil). Commas and parens nested inside an inner functor call
// are tracked by depth so "p(q(a,b),c)" splits into ["q(a,b)","c"].
func splitFunctor(s string) (string, []string, error) {
	open := strings.IndexByte(s, '(')
	if open == -1 {
		if s == "" {
			return "", nil, fmt.Errorf("empty identifier")
		}
		return s, nil, nil
	}
	if s[len(s)-1] != ')' {
		return "", nil, fmt.Errorf("unbalanced parens in %q", s)
	}
	name := s[:open]
	inner := s[open+1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil, nil
	}

	var args []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '"':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		case ',':
			if !inQuote && depth == 0 {
				args = append(args, inner[start:i])
				start = i + 1
			}
		}
	}
	args = append(args, inner[start:])
	return name, args, nil
}
