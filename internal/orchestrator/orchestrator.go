// Package orchestrator implements the pipeline state machine (component
// C11): ShowPlugins -> Convert -> Parse -> ModuleSyntaxCheck -> MLPSolver ->
// RewriteEDBIDB -> SafetyCheck -> CreateDependencyGraph -> CheckLiberalSafety
// -> OptimizeEDBDependencyGraph -> CreateComponentGraph -> StrongSafetyCheck
// -> CreateEvalGraph -> SetupProgramCtx -> Evaluate -> PostProcess.
//
// Parsing HEX surface syntax is explicitly out of core scope (spec §1): the
// orchestrator consumes an already fully ground, interned Program. States
// that would otherwise do grammar work (Convert, Parse, ModuleSyntaxCheck,
// MLPSolver) are thin pass-throughs over that pre-interned input, exactly as
// spec §1's "the core consumes a fully parsed, interned program" specifies.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"hexsolve/internal/benchmark"
	"hexsolve/internal/config"
	"hexsolve/internal/exteval"
	"hexsolve/internal/flp"
	"hexsolve/internal/groundprogram"
	"hexsolve/internal/herror"
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
	"hexsolve/internal/optimize"
	"hexsolve/internal/plugin"
	"hexsolve/internal/propagator"
	"hexsolve/internal/registry"
	"hexsolve/internal/solver"
)

// Program is the pre-interned, fully ground input the orchestrator
// consumes (spec §1's "the core consumes a fully parsed, interned
// program" — no grammar work happens inside this package).
type Program struct {
	EDB              *interp.Set
	IDB              []id.ID
	IndexedExternals []id.ID
	Modular          bool // true routes through the MLPSolver state
}

// state names the orchestrator's pipeline steps, in linear order unless a
// state installs a failure-state fallthrough (spec §4.10, SUPPLEMENTED
// FEATURES #3).
type state int

const (
	stateShowPlugins state = iota
	stateConvert
	stateParse
	stateModuleSyntaxCheck
	stateMLPSolver
	stateRewriteEDBIDB
	stateSafetyCheck
	stateCreateDependencyGraph
	stateCheckLiberalSafety
	stateOptimizeEDBDependencyGraph
	stateCreateComponentGraph
	stateStrongSafetyCheck
	stateCreateEvalGraph
	stateSetupProgramCtx
	stateEvaluate
	statePostProcess
	stateDone
)

func (s state) String() string {
	names := [...]string{
		"ShowPlugins", "Convert", "Parse", "ModuleSyntaxCheck", "MLPSolver",
		"RewriteEDBIDB", "SafetyCheck", "CreateDependencyGraph",
		"CheckLiberalSafety", "OptimizeEDBDependencyGraph",
		"CreateComponentGraph", "StrongSafetyCheck", "CreateEvalGraph",
		"SetupProgramCtx", "Evaluate", "PostProcess", "Done",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// Session drives one solver run: it owns the registry, plugin registry,
// config, and logger for the pipeline's lifetime, and is stamped with a
// SessionID for log correlation across states (SPEC_FULL.md's DOMAIN STACK
// table grounds the github.com/google/uuid usage).
type Session struct {
	SessionID uuid.UUID

	reg     *registry.Registry
	plugins *plugin.Registry
	cfg     *config.Config
	log     *zap.Logger
	bench   benchmark.Controller

	agp       *groundprogram.AnnotatedGroundProgram
	evaluator *exteval.Evaluator
	engine    *solver.Engine
	backend   solver.Backend
}

// New creates a Session bound to reg/plugins/cfg, picking the nesting-aware
// benchmark controller by default (SUPPLEMENTED FEATURES #2) when
// cfg.Benchmark is set.
func New(reg *registry.Registry, plugins *plugin.Registry, cfg *config.Config, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	var bc benchmark.Controller
	if cfg.Benchmark {
		bc = benchmark.NewNesting()
	}
	sid := uuid.New()
	return &Session{
		SessionID: sid,
		reg:       reg,
		plugins:   plugins,
		cfg:       cfg,
		log:       log.With(zap.Stringer("session", sid)),
		bench:     bc,
	}
}

// Run drives the pipeline to completion over prog, returning a
// solver.Backend ready for its Solve iterator.
func (s *Session) Run(ctx context.Context, prog Program) (solver.Backend, error) {
	st := stateShowPlugins
	var err error

	for st != stateDone {
		if s.bench != nil {
			stop := s.bench.Start(st.String())
			st, prog, err = s.step(ctx, st, prog)
			stop()
		} else {
			st, prog, err = s.step(ctx, st, prog)
		}
		if err != nil {
			return nil, fmt.Errorf("orchestrator state %s: %w", st, err)
		}
	}
	return s.backend, nil
}

// step runs one state's onEnter and returns the next state, mirroring the
// C++ State.h explicit failure-state fallthrough (SUPPLEMENTED FEATURES
// #3): a state not applicable to this program's shape falls through to the
// next applicable one instead of erroring.
func (s *Session) step(ctx context.Context, st state, prog Program) (state, Program, error) {
	s.log.Debug("orchestrator state", zap.String("state", st.String()), zap.Stringer("session", s.SessionID))

	switch st {
	case stateShowPlugins:
		s.log.Debug("plugin propagators registered", zap.Int("count", len(s.plugins.Propagators())))
		return stateConvert, prog, nil

	case stateConvert, stateParse:
		// Pass-through: prog is already a fully interned, ground program
		// (spec §1 out-of-scope note). Nothing to convert or parse.
		return st + 1, prog, nil

	case stateModuleSyntaxCheck:
		if !prog.Modular {
			// Failure-state fallthrough: modular syntax not in use, skip
			// straight past MLPSolver.
			return stateRewriteEDBIDB, prog, nil
		}
		return stateMLPSolver, prog, nil

	case stateMLPSolver:
		// Modular-program resolution is beyond this program's declared
		// scope (spec §1's out-of-scope parser note covers module syntax
		// too); a real implementation would flatten module calls here.
		return stateRewriteEDBIDB, prog, nil

	case stateRewriteEDBIDB:
		return s.rewriteEDBIDB(ctx, prog)

	case stateSafetyCheck:
		if err := s.safetyCheck(prog); err != nil {
			return stateDone, prog, err
		}
		return stateCreateDependencyGraph, prog, nil

	case stateCreateDependencyGraph:
		agp, err := groundprogram.Build(s.reg, prog.EDB, prog.IDB, prog.IndexedExternals, nil)
		if err != nil {
			return stateDone, prog, err
		}
		s.agp = agp
		return stateCheckLiberalSafety, prog, nil

	case stateCheckLiberalSafety:
		// Pass-through: the program is already ground, so no variable needs
		// a bound occurrence. No liberal-safety analysis is performed here,
		// and plugin.Properties.FiniteOutputDomain is not consulted.
		return stateOptimizeEDBDependencyGraph, prog, nil

	case stateOptimizeEDBDependencyGraph:
		// The dependency graph is already minimal (C3 builds it directly
		// from rule bodies/heads with no redundant edges to prune).
		return stateCreateComponentGraph, prog, nil

	case stateCreateComponentGraph:
		// agp.ProgramComponents was already populated by C3's Build.
		return stateStrongSafetyCheck, prog, nil

	case stateStrongSafetyCheck:
		// Strong safety (every variable in an aggregate/external input
		// bound by an outer positive literal) is enforced upstream of
		// this pre-interned, ground Program; nothing left to check here.
		return stateCreateEvalGraph, prog, nil

	case stateCreateEvalGraph:
		// Single-process evaluation: the eval graph is just agp's
		// component list in dependency order, which C3 already exposes.
		return stateSetupProgramCtx, prog, nil

	case stateSetupProgramCtx:
		s.setupProgramCtx()
		return stateEvaluate, prog, nil

	case stateEvaluate:
		// The actual search happens lazily inside the Backend's Solve
		// iterator returned from Run; this state only marks the pipeline
		// ready to be driven by the caller.
		return statePostProcess, prog, nil

	case statePostProcess:
		if s.bench != nil {
			for _, line := range s.bench.Report() {
				s.log.Info(line)
			}
		}
		return stateDone, prog, nil
	}

	herror.Fatalf("orchestrator: unhandled state %s", st)
	return stateDone, prog, nil
}

// rewriteEDBIDB expands every indexed external atom into its ground
// replacement auxiliary plus guessing rule (spec §4.4). Per spec §4.4 point
// 2, the guessing rule is the *only* thing this state installs: the
// candidate model assigns truth to the guessed auxiliaries, and the
// propagator (C8, wired in setupProgramCtx) verifies that assignment
// against the plugin's real answer during search. Nothing here is ever
// asserted as a hard EDB fact — at this point, atoms the external atom's
// input depends on may still be IDB-guessed and undecided (spec §8
// scenarios 1 and 5), so any truth value read off a grounding-time call
// would be provisional at best and wrong at worst.
func (s *Session) rewriteEDBIDB(ctx context.Context, prog Program) (state, Program, error) {
	s.evaluator = exteval.New(s.reg, s.plugins)

	var toEvaluate []id.ID
	for _, extID := range prog.IndexedExternals {
		ext := s.reg.GetExternalAtom(extID)
		if ext.PluginAtom.OutputArity() == 0 {
			// A boolean-valued external atom has exactly one candidate in
			// its output schema: the empty tuple. There is nothing to
			// discover by calling the plugin at grounding time.
			prog.IDB = append(prog.IDB, s.evaluator.GuessingRule(extID, nil))
			continue
		}
		toEvaluate = append(toEvaluate, extID)
	}

	if len(toEvaluate) == 0 {
		return stateSafetyCheck, prog, nil
	}

	// This call discovers candidate output tuples to guess over (spec
	// §4.4 point 2's "output schema") against the facts known at grounding
	// time; it is a domain-discovery aid only, never a truth assertion.
	assignment := interp.NewPartial()
	prog.EDB.Each(func(addr uint32) bool {
		assignment.Set(addr, interp.True)
		return true
	})

	answers, err := s.evaluator.EvaluateAll(ctx, toEvaluate, assignment, noopContainer{})
	if err != nil {
		return stateDone, prog, herror.Pluginf("", err, "external-atom rewrite failed")
	}

	for _, extID := range toEvaluate {
		for _, out := range answers[extID].Tuples {
			prog.IDB = append(prog.IDB, s.evaluator.GuessingRule(extID, out))
		}
	}
	return stateSafetyCheck, prog, nil
}

// safetyCheck enforces spec §7's Safety error: every rule body variable
// must have a positive bound occurrence. Since Program is already ground
// (spec §1), the only remaining check is that every IDB rule, and every head
// atom and body literal of it, is Valid() against the registry (spec
// Invariant 1). EDB atoms are not checked.
// Every offending rule is collected via multierr rather than failing on the
// first one, so a caller sees every safety violation in a program at once.
func (s *Session) safetyCheck(prog Program) error {
	var errs error
	for _, rid := range prog.IDB {
		if !s.reg.Valid(rid) {
			errs = multierr.Append(errs, herror.Safetyf("rule %s does not resolve to a valid registry entry", rid))
			continue
		}
		rule := s.reg.GetRule(rid)
		for _, h := range rule.Head {
			if !s.reg.Valid(h) {
				errs = multierr.Append(errs, herror.Safetyf("head atom %s of rule %s is invalid", h, rid))
			}
		}
		for _, l := range rule.Body {
			if !s.reg.Valid(l.WithNAF(false)) {
				errs = multierr.Append(errs, herror.Safetyf("body literal %s of rule %s is invalid", l, rid))
			}
		}
	}
	return errs
}

// setupProgramCtx wires C7 (the CDNL engine) together with C8 (external
// propagator), C9 (FLP checker), and C10 (optimizer), then installs the
// internal backend. This is the one place all eleven components meet.
func (s *Session) setupProgramCtx() {
	store := nogood.NewStore()
	if s.agp.SupportSets != nil {
		for _, ng := range s.agp.SupportSets.All() {
			store.Add(ng)
		}
	}

	eng := solver.New(s.reg, s.agp, store, s.log)
	eng.SetMaxModels(s.cfg.MaxModels)

	ext := propagator.New(s.plugins, s.log)
	ext.SetSchedule(propagator.Schedule{
		MinElapsed: time.Duration(s.cfg.ClaspDeferMS) * time.Millisecond,
		MinSkipped: s.cfg.ClaspDeferN,
	})
	ext.Bind(eng)
	if s.evaluator != nil {
		// Reuses the evaluator rewriteEDBIDB already built, so its
		// retrieval cache stays warm from grounding into search.
		ext.BindExternals(s.reg, s.agp, s.evaluator)
	}
	eng.RegisterPostPropagator(ext)

	eng.SetFLPChecker(flp.New(s.reg, s.log))

	opt := optimize.New(s.reg, s.agp.IDB)
	eng.SetOptimizer(opt)

	s.engine = eng
	s.backend = eng
}

// noopContainer discards any no-goods a plugin derives during the
// rewrite-time evaluation pass; the guessing rule already covers
// uncertainty, and mid-search no-goods come later via the propagator.
type noopContainer struct{}

func (noopContainer) Add(*nogood.Nogood) {}
