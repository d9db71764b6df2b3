// Package exteval implements the external-atom evaluator (component C5):
// it turns a &g[input](output) call into ground auxiliary atoms and
// guessing rules the CDNL engine can decide over, calling out to the
// registered plugin to compute (and cache) the actual answer.
package exteval

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"hexsolve/internal/herror"
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/registry"
	"hexsolve/internal/plugin"
)

// Evaluator answers external-atom queries against the registered plugins,
// caching per (external atom, input-projection fingerprint) pair.
type Evaluator struct {
	reg     *registry.Registry
	plugins *plugin.Registry

	mu    sync.Mutex
	cache map[cacheKey]plugin.Answer
}

type cacheKey struct {
	extID       id.ID
	fingerprint uint64
}

// New returns an evaluator backed by reg and the given plugin registry.
func New(reg *registry.Registry, plugins *plugin.Registry) *Evaluator {
	return &Evaluator{reg: reg, plugins: plugins, cache: make(map[cacheKey]plugin.Answer)}
}

// inputFingerprint projects assignment onto the ground atoms of every
// predicate-typed input argument of ext and hashes the projection, giving a
// cache key that changes only when an input the atom actually depends on
// changes (spec §4.4's cache-then-retrieve-then-verify flow).
func (e *Evaluator) inputFingerprint(ext registry.ExternalAtom, assignment *interp.Partial) uint64 {
	mask := interp.NewSet()
	for i, in := range ext.Input {
		if i >= len(ext.InputKinds) {
			continue
		}
		if ext.InputKinds[i] == plugin.Predicate || ext.InputKinds[i] == plugin.Tuple {
			for _, a := range e.reg.AtomsForPredicate(in) {
				mask.Add(a.Address())
			}
		}
	}
	return assignment.Project(mask).Fingerprint()
}

// Evaluate calls (or reuses a cached call to) the plugin implementing extID,
// over the given ground input tuple and current interpretation.
func (e *Evaluator) Evaluate(ctx context.Context, extID id.ID, assignment *interp.Partial, learned plugin.NogoodContainer) (plugin.Answer, error) {
	ext := e.reg.GetExternalAtom(extID)
	atom, ok := e.plugins.Atom(ext.Name)
	if !ok {
		return plugin.Answer{}, herror.Pluginf(ext.Name, nil, "no plugin registered for external atom &%s", ext.Name)
	}

	fp := e.inputFingerprint(ext, assignment)
	key := cacheKey{extID: extID, fingerprint: fp}

	e.mu.Lock()
	if cached, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	q := plugin.Query{
		Ctx:            ctx,
		Interpretation: assignment,
		Input:          ext.Input,
		Pattern:        ext.Output,
		Learned:        learned,
	}
	answer, err := atom.RetrieveCached(q, fp)
	if err != nil {
		return plugin.Answer{}, herror.Pluginf(ext.Name, err, "retrieval failed for &%s", ext.Name)
	}
	if err := e.checkArity(atom, answer); err != nil {
		return plugin.Answer{}, err
	}

	e.mu.Lock()
	e.cache[key] = answer
	e.mu.Unlock()
	return answer, nil
}

func (e *Evaluator) checkArity(atom plugin.Atom, answer plugin.Answer) error {
	for _, t := range answer.Tuples {
		if len(t) != atom.OutputArity() {
			return herror.Pluginf(atom.Name(), nil, "&%s returned tuple of arity %d, want %d", atom.Name(), len(t), atom.OutputArity())
		}
	}
	return nil
}

// EvaluateAll fans out Evaluate across every external atom in extIDs
// concurrently, since distinct external atoms with disjoint input masks are
// independent (spec's concurrency note on C5). Returns the first error
// encountered, cancelling the remaining in-flight calls.
func (e *Evaluator) EvaluateAll(ctx context.Context, extIDs []id.ID, assignment *interp.Partial, learned plugin.NogoodContainer) (map[id.ID]plugin.Answer, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make(map[id.ID]plugin.Answer, len(extIDs))
	var mu sync.Mutex

	for _, extID := range extIDs {
		extID := extID
		g.Go(func() error {
			answer, err := e.Evaluate(gctx, extID, assignment, learned)
			if err != nil {
				return err
			}
			mu.Lock()
			results[extID] = answer
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ReplacementAtom interns (if not already present) the ground ordinary atom
// representing "&g[input](output) holds", addressed through the 'r'
// auxiliary predicate for extID (spec §4.4's ground replacement scheme).
func (e *Evaluator) ReplacementAtom(extID id.ID, output []id.ID) id.ID {
	pred := e.reg.AuxiliaryConstant('r', extID)
	return e.reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: pred, Args: output})
}

// IntroduceAuxiliaries interns a replacement atom for every tuple the
// plugin returned, returning their IDs so the caller can add them to the
// program mask / assert them true for support purposes.
func (e *Evaluator) IntroduceAuxiliaries(extID id.ID, answer plugin.Answer) []id.ID {
	out := make([]id.ID, 0, len(answer.Tuples))
	for _, t := range answer.Tuples {
		out = append(out, e.ReplacementAtom(extID, t))
	}
	return out
}

// GuessingRule builds the disjunctive rule "repl(out) v repl_neg(out)." that
// lets the CDNL engine guess the truth of one replacement atom before it is
// verified against the plugin's actual answer (spec §4.4's guess-and-check
// grounding of external atoms with non-functional or unknown-at-grounding-
// time output). repl_neg is the atom's negative-polarity auxiliary
// counterpart (registry.SwapExternalAuxiliary), not a NAF literal — rule
// heads never carry default negation.
func (e *Evaluator) GuessingRule(extID id.ID, output []id.ID) id.ID {
	posPred := e.reg.AuxiliaryConstant('r', extID)
	negPred := e.reg.SwapExternalAuxiliary(posPred)

	pos := e.reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: posPred, Args: output})
	neg := e.reg.StoreOrdinaryGroundAtom(registry.OrdinaryAtom{Predicate: negPred, Args: output})

	return e.reg.StoreRule(registry.Rule{
		Kind: id.RuleDisjunctive,
		Head: []id.ID{pos, neg},
	})
}
