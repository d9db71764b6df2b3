// Package propagator implements the external propagator (component C8): a
// CDNL post-propagator that maintains a shadow assignment, forwards it to
// plugin propagators on a deferred schedule, and ingests the no-goods they
// derive back into the engine.
package propagator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"hexsolve/internal/exteval"
	"hexsolve/internal/groundprogram"
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
	"hexsolve/internal/plugin"
	"hexsolve/internal/registry"
	"hexsolve/internal/solver"
)

// Clock abstracts wall-time so tests can control the elapsed-time knob
// without sleeping (grounded on the teacher's own injectable-clock pattern
// for time-dependent components).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Schedule holds the two deferred-propagation knobs spec §4.7 names:
// minimum elapsed wall time since the last HEX-visible propagation, and
// minimum count of fixpoints skipped since then. Either threshold crossing
// triggers a propagation round.
type Schedule struct {
	MinElapsed     time.Duration
	MinSkipped     int
}

// DefaultSchedule matches spec §4.7's suggested defaults (30ms / 5 skips).
func DefaultSchedule() Schedule {
	return Schedule{MinElapsed: 30 * time.Millisecond, MinSkipped: 5}
}

// levelSource is the sliver of *solver.Engine the propagator needs to tag
// each shadow entry with its decision level, so Undo can drop exactly the
// entries assigned at or above the level being undone. Kept as an interface
// to avoid coupling to the engine's full surface.
type levelSource interface {
	Level(addr uint32) int
}

// External is the component-C8 post-propagator. One instance is registered
// per solver.Engine; it fans every propagate_fixpoint and is_model call out
// to every plugin.Propagator in plugins.
type External struct {
	plugins  *plugin.Registry
	schedule Schedule
	clock    Clock
	log      *zap.Logger
	levels   levelSource

	currentIntr     *interp.Partial
	currentAssigned *interp.Set
	currentChanged  *interp.Set
	assignedLevel   map[uint32]int

	lastPropagation time.Time
	skippedSince    int

	// reg/agp/evaluator back the verifyExternals consistency check (spec
	// §4.4 point 2: "the propagator ensures consistency with &g"). Unset
	// until BindExternals is called; a program with no external atoms at
	// all never needs it.
	reg       *registry.Registry
	agp       *groundprogram.AnnotatedGroundProgram
	evaluator *exteval.Evaluator
}

// New returns an External propagator with DefaultSchedule and the system
// clock; override either with SetSchedule/SetClock before registering it on
// an engine. Call Bind with the owning engine before the first Propagate.
func New(plugins *plugin.Registry, log *zap.Logger) *External {
	if log == nil {
		log = zap.NewNop()
	}
	return &External{
		plugins:         plugins,
		schedule:        DefaultSchedule(),
		clock:           realClock{},
		log:             log,
		currentIntr:     interp.NewPartial(),
		currentAssigned: interp.NewSet(),
		currentChanged:  interp.NewSet(),
		assignedLevel:   make(map[uint32]int),
	}
}

// Bind attaches the engine this propagator is registered on, so it can
// resolve the decision level of newly shadowed atoms. Call once, before the
// engine's first GetNextModel.
func (p *External) Bind(eng levelSource) { p.levels = eng }

// BindExternals wires the component-C5 evaluator into this propagator so
// runPlugins can verify every guessed replacement auxiliary against &g's
// real answer, not only whatever a plugin's optional Propagator callback
// chooses to check. reg and agp are the registry/annotated ground program
// the evaluator was built against; evaluator should be the same instance
// the orchestrator used during rewriteEDBIDB, so its retrieval cache stays
// warm across grounding and search.
func (p *External) BindExternals(reg *registry.Registry, agp *groundprogram.AnnotatedGroundProgram, evaluator *exteval.Evaluator) {
	p.reg = reg
	p.agp = agp
	p.evaluator = evaluator
}

// SetSchedule overrides the deferred-propagation thresholds.
func (p *External) SetSchedule(s Schedule) { p.schedule = s }

// SetClock overrides the wall-clock source (for deterministic tests).
func (p *External) SetClock(c Clock) { p.clock = c }

// nogoodAdder adapts a solver.NogoodSink (engine watches/attaches) to the
// plugin.NogoodContainer shape plugin propagators write into.
type nogoodAdder struct {
	sink solver.NogoodSink
}

func (a *nogoodAdder) Add(ng *nogood.Nogood) { a.sink.Add(ng) }

// updateShadow folds assigned/changed (as reported by the engine at a
// propagate_fixpoint or is_model call) into the shadow assignment, tagging
// each newly observed address with its current decision level for Undo.
func (p *External) updateShadow(assigned, changed *interp.Set, current *interp.Partial) {
	assigned.Each(func(addr uint32) bool {
		v := current.Get(addr)
		p.currentIntr.Set(addr, v)
		p.currentAssigned.Add(addr)
		if p.levels != nil {
			p.assignedLevel[addr] = p.levels.Level(addr)
		}
		return true
	})
	changed.Each(func(addr uint32) bool {
		p.currentChanged.Add(addr)
		return true
	})
}

// Propagate implements solver.PostPropagator. It folds the delta into the
// shadow assignment, then decides whether this round crosses either
// deferred-schedule threshold; if so it invokes every plugin propagator and
// ingests the no-goods they derive.
func (p *External) Propagate(assigned, changed *interp.Set, current *interp.Partial, learned solver.NogoodSink) (bool, error) {
	p.updateShadow(assigned, changed, current)

	now := p.clock.Now()
	elapsed := now.Sub(p.lastPropagation)
	p.skippedSince++
	if elapsed < p.schedule.MinElapsed && p.skippedSince < p.schedule.MinSkipped {
		return true, nil
	}

	ok, err := p.runPlugins(context.Background(), learned)
	p.lastPropagation = now
	p.skippedSince = 0
	p.currentChanged = interp.NewSet()
	return ok, err
}

// PropagateIsModel implements solver.PostPropagator: unconditional
// propagation, since deferring here is not sound (spec §4.7).
func (p *External) PropagateIsModel(assigned, changed *interp.Set, current *interp.Partial, learned solver.NogoodSink) (bool, error) {
	p.updateShadow(assigned, changed, current)
	ok, err := p.runPlugins(context.Background(), learned)
	p.lastPropagation = p.clock.Now()
	p.skippedSince = 0
	p.currentChanged = interp.NewSet()
	return ok, err
}

func (p *External) runPlugins(ctx context.Context, learned solver.NogoodSink) (bool, error) {
	adder := &nogoodAdder{sink: learned}
	for _, pg := range p.plugins.Propagators() {
		if err := pg.Propagate(ctx, p.currentIntr, p.currentAssigned, p.currentChanged, adder); err != nil {
			p.log.Warn("plugin propagator error", zap.Error(err))
			return false, err
		}
	}
	if err := p.verifyExternals(ctx, learned, adder); err != nil {
		p.log.Warn("external-atom verification error", zap.Error(err))
		return false, err
	}
	return true, nil
}

// verifyExternals is the mandatory half of spec §4.4 point 2: a plugin's
// optional Propagator callback is a bonus — every external atom, whether or
// not its plugin implements one, must still have its guessed r_/n_
// auxiliaries checked against &g's real answer. It re-evaluates every
// external atom whose replacement auxiliaries changed this round and, where
// a currently-assigned auxiliary disagrees with the plugin, adds a unary
// corrective no-good (following the literal-truth convention of
// solver.Engine.blockModel: a bare literal forbids its atom being true, a
// NAF literal forbids it being false).
func (p *External) verifyExternals(ctx context.Context, learned solver.NogoodSink, container plugin.NogoodContainer) error {
	if p.evaluator == nil {
		return nil
	}

	touched := make(map[id.ID]bool)
	p.currentChanged.Each(func(addr uint32) bool {
		for _, extID := range p.agp.AuxToExt[addr] {
			touched[extID] = true
		}
		return true
	})

	for extID := range touched {
		answer, err := p.evaluator.Evaluate(ctx, extID, p.currentIntr, container)
		if err != nil {
			// Inputs not yet fully decided can make retrieval meaningless
			// (or outright fail) mid-search; skip and re-check once more
			// of the input mask settles.
			continue
		}
		expected := make(map[uint32]bool, len(answer.Tuples))
		for _, out := range answer.Tuples {
			expected[p.evaluator.ReplacementAtom(extID, out).Address()] = true
		}

		posPred := p.reg.AuxiliaryConstant('r', extID)
		negPred := p.reg.SwapExternalAuxiliary(posPred)
		for _, posID := range p.reg.AtomsForPredicate(posPred) {
			p.checkPositive(posID, expected, learned)
		}
		for _, negID := range p.reg.AtomsForPredicate(negPred) {
			p.checkNegative(extID, negID, expected, learned)
		}
	}
	return nil
}

func (p *External) checkPositive(posID id.ID, expected map[uint32]bool, learned solver.NogoodSink) {
	if !p.currentAssigned.Contains(posID.Address()) {
		return
	}
	truth := p.currentIntr.Get(posID.Address()) == interp.True
	inAnswer := expected[posID.Address()]
	switch {
	case truth && !inAnswer:
		learned.Add(nogood.New(posID))
	case !truth && inAnswer:
		learned.Add(nogood.New(posID.WithNAF(true)))
	}
}

func (p *External) checkNegative(extID id.ID, negID id.ID, expected map[uint32]bool, learned solver.NogoodSink) {
	if !p.currentAssigned.Contains(negID.Address()) {
		return
	}
	truth := p.currentIntr.Get(negID.Address()) == interp.True
	if !truth {
		// n_{&g,x̄}(ȳ) false is always consistent: r_{&g,x̄}(ȳ) carries the
		// positive obligation, and the r v n guessing rule forces n true by
		// ordinary unit propagation whenever r is forced false.
		return
	}
	args := p.reg.GetOrdinaryAtom(negID).Args
	posID := p.evaluator.ReplacementAtom(extID, args)
	if expected[posID.Address()] {
		// &g's answer contains ȳ, so n_{&g,x̄}(ȳ) asserting its absence is
		// wrong.
		learned.Add(nogood.New(negID))
	}
}

// Undo implements solver.PostPropagator: clear shadow entries for every
// atom assigned at a level >= the one being undone (spec §4.7's
// undo_level).
func (p *External) Undo(level int) {
	for addr, lvl := range p.assignedLevel {
		if lvl < level {
			continue
		}
		p.currentIntr.Set(addr, interp.Unassigned)
		p.currentAssigned.Remove(addr)
		delete(p.assignedLevel, addr)
	}
}

// CurrentIntr exposes the shadow interpretation, mainly for tests.
func (p *External) CurrentIntr() *interp.Partial { return p.currentIntr }
