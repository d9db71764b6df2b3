// Package groundprogram implements the annotated ground program (component
// C3): the solver-ready ground IDB/EDB plus derived graph structure (SCCs,
// head cycles, external cycles) computed from a grounding pass.
package groundprogram

import (
	"fmt"

	"hexsolve/internal/herror"
	"hexsolve/internal/id"
	"hexsolve/internal/interp"
	"hexsolve/internal/nogood"
	"hexsolve/internal/plugin"
	"hexsolve/internal/registry"
)

// Component is a per-SCC sub-program: the rules whose heads lie entirely in
// the component, plus the EDB atoms in the component (spec §4.2 step 9).
type Component struct {
	Atoms      []uint32
	Rules      []id.ID
	HeadCycle  bool
	ECycle     bool
}

// AnnotatedGroundProgram is the data model of spec §3.
type AnnotatedGroundProgram struct {
	reg *registry.Registry

	EDB              *interp.Set
	IDB              []id.ID
	ProgramMask      *interp.Set
	IndexedExternals []id.ID
	ExternalMasks    map[id.ID]*interp.Set
	AuxToExt         map[uint32][]id.ID

	SCCs            [][]uint32
	ComponentOfAtom map[uint32]int
	HeadCycles      []bool
	ECycles         []bool
	ProgramComponents []Component

	SupportSets *nogood.Store // optional, installed by exteval when available

	graph *depGraph
}

// Build constructs an AnnotatedGroundProgram from a grounded EDB/IDB and the
// external atoms of interest, following the nine steps of spec §4.2.
// extraEdges, if non-nil, supplies additional dependency edges derived by
// replaying non-ground rule templates against the Herbrand universe (step
// 5): these widen cycles conservatively so that incremental extension never
// has to merge two previously distinct SCCs.
func Build(reg *registry.Registry, edb *interp.Set, idb []id.ID, indexedExternals []id.ID, extraEdges [][2]uint32) (*AnnotatedGroundProgram, error) {
	agp := &AnnotatedGroundProgram{
		reg:              reg,
		EDB:              edb.Clone(),
		IDB:              append([]id.ID(nil), idb...),
		IndexedExternals: append([]id.ID(nil), indexedExternals...),
		ExternalMasks:    make(map[id.ID]*interp.Set),
		AuxToExt:         make(map[uint32][]id.ID),
		ComponentOfAtom:  make(map[uint32]int),
	}

	// Step 1: program mask = EDB ∪ head atoms of all rules.
	agp.ProgramMask = edb.Clone()
	for _, rid := range idb {
		rule := reg.GetRule(rid)
		for _, h := range rule.Head {
			agp.ProgramMask.Add(h.Address())
		}
	}

	// Step 2: external-atom masks.
	for _, extID := range indexedExternals {
		posAux := reg.AuxiliaryConstant('r', extID)
		mask := interp.NewSet()
		for _, a := range reg.AtomsForPredicate(posAux) {
			mask.Add(a.Address())
		}
		agp.ExternalMasks[extID] = mask
	}

	// Step 3: auxiliary reverse map — scan rule heads/bodies for atoms whose
	// predicate is an external auxiliary.
	scan := func(lit id.ID) {
		atom := lit.WithNAF(false)
		if atom.Main() != id.KindAtom || atom.Sub() != id.AtomOrdinaryGround {
			return
		}
		ordinary := reg.GetOrdinaryAtom(atom)
		if kind, source, ok := reg.IDOfAuxiliaryConstant(ordinary.Predicate); ok && (kind == 'r' || kind == 'n') {
			agp.AuxToExt[atom.Address()] = appendUnique(agp.AuxToExt[atom.Address()], source)
		}
	}
	for _, rid := range idb {
		rule := reg.GetRule(rid)
		for _, h := range rule.Head {
			scan(h)
		}
		for _, b := range rule.Body {
			scan(b)
		}
	}

	// Step 4: atom dependency graph, including external edges.
	agp.graph = newDepGraph()
	for _, rid := range idb {
		rule := reg.GetRule(rid)
		for _, h := range rule.Head {
			for _, b := range rule.Body {
				agp.graph.addEdge(h.Address(), b.WithNAF(false).Address(), false)
			}
		}
	}
	for atomAddr, extIDs := range agp.AuxToExt {
		for _, extID := range extIDs {
			ext := reg.GetExternalAtom(extID)
			for i, in := range ext.Input {
				kind := plugin.Constant
				if i < len(ext.InputKinds) {
					kind = ext.InputKinds[i]
				}
				switch kind {
				case plugin.Predicate, plugin.Tuple:
					// in names a predicate symbol, not an atom: the edge
					// runs to every ground atom of that predicate (the
					// same expansion exteval.go's inputFingerprint uses to
					// build a cache-key mask), not to the symbol term
					// itself. Predicate and Tuple inputs both reference a
					// predicate symbol this way, differing only in output
					// arity.
					for _, a := range reg.AtomsForPredicate(in) {
						agp.graph.addEdge(atomAddr, a.Address(), true)
					}
				default:
					if in.Main() == id.KindAtom {
						agp.graph.addEdge(atomAddr, in.Address(), true)
					}
				}
			}
		}
	}

	// Step 5: additional conservative edges from the non-ground template
	// replay, if supplied.
	for _, e := range extraEdges {
		agp.graph.addEdge(e[0], e[1], false)
	}

	// Step 6: SCC computation via Tarjan's algorithm.
	agp.SCCs = tarjanSCC(agp.graph)
	for ci, comp := range agp.SCCs {
		for _, addr := range comp {
			agp.ComponentOfAtom[addr] = ci
		}
	}

	// Step 7 & 8: head-cycle and e-cycle detection, step 9: per-component
	// sub-programs.
	agp.HeadCycles = make([]bool, len(agp.SCCs))
	agp.ECycles = make([]bool, len(agp.SCCs))
	agp.ProgramComponents = make([]Component, len(agp.SCCs))
	for ci, comp := range agp.SCCs {
		agp.ProgramComponents[ci].Atoms = comp
	}

	for _, rid := range idb {
		rule := reg.GetRule(rid)
		if len(rule.Head) == 0 {
			continue
		}
		ci, ok := agp.ComponentOfAtom[rule.Head[0].Address()]
		if !ok {
			continue
		}
		allInComponent := true
		sameComponentHeadCount := 0
		for _, h := range rule.Head {
			hc, ok := agp.ComponentOfAtom[h.Address()]
			if !ok || hc != ci {
				allInComponent = false
			}
			if ok && hc == ci {
				sameComponentHeadCount++
			}
		}
		if sameComponentHeadCount >= 2 {
			agp.HeadCycles[ci] = true
		}
		if allInComponent {
			agp.ProgramComponents[ci].Rules = append(agp.ProgramComponents[ci].Rules, rid)
		}
	}

	for from, tos := range agp.graph.adj {
		ci, ok := agp.ComponentOfAtom[from]
		if !ok {
			continue
		}
		for _, to := range tos {
			if agp.ComponentOfAtom[to] == ci && agp.graph.isExternalEdge(from, to) {
				agp.ECycles[ci] = true
			}
		}
	}

	for ci := range agp.SCCs {
		agp.ProgramComponents[ci].HeadCycle = agp.HeadCycles[ci]
		agp.ProgramComponents[ci].ECycle = agp.ECycles[ci]
	}

	return agp, nil
}

func appendUnique(s []id.ID, v id.ID) []id.ID {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// ComponentOf returns the component index containing an SCC-level node. ok
// is false for an atom never seen in the dependency graph (no cycle
// involvement at all — head/e-cycle checks then trivially don't apply).
func (agp *AnnotatedGroundProgram) ComponentOf(addr uint32) (int, bool) {
	ci, ok := agp.ComponentOfAtom[addr]
	return ci, ok
}

// HasCycle reports whether the component containing addr has a head cycle
// or an external cycle — the condition under which FLP checking (C9) is
// required (spec §4.8 point 3 / Testable Property 5).
func (agp *AnnotatedGroundProgram) HasCycle(addr uint32) bool {
	ci, ok := agp.ComponentOfAtom[addr]
	if !ok {
		return false
	}
	return agp.HeadCycles[ci] || agp.ECycles[ci]
}

// AddProgram merges other into agp. Precondition (asserted, Fatal on
// violation per spec §4.2): for every pair of cyclically dependent atoms in
// the merged graph, either the cycle is already fully inside one operand, or
// the atoms occur in only one operand — i.e. no new cycle may merge two
// previously distinct SCCs.
func (agp *AnnotatedGroundProgram) AddProgram(other *AnnotatedGroundProgram) error {
	merged := newDepGraph()
	for from, tos := range agp.graph.adj {
		for _, to := range tos {
			merged.addEdge(from, to, agp.graph.isExternalEdge(from, to))
		}
	}
	for from, tos := range other.graph.adj {
		for _, to := range tos {
			merged.addEdge(from, to, other.graph.isExternalEdge(from, to))
		}
	}
	newSCCs := tarjanSCC(merged)
	newComponentOf := make(map[uint32]int, len(newSCCs))
	for ci, comp := range newSCCs {
		for _, a := range comp {
			newComponentOf[a] = ci
		}
	}
	for addr, oldCi := range agp.ComponentOfAtom {
		for addr2, oldCi2 := range other.ComponentOfAtom {
			if addr == addr2 {
				continue
			}
			if oldCi != agp.ComponentOfAtom[addr] {
				continue
			}
			if newComponentOf[addr] == newComponentOf[addr2] && agp.ComponentOfAtom[addr] != oldCi2 {
				// addr and addr2 were in distinct SCCs of the operands but
				// merge into one SCC post-merge: precondition violated.
				if _, inOther := other.ComponentOfAtom[addr]; !inOther {
					if _, inSelf := agp.ComponentOfAtom[addr2]; !inSelf {
						herror.Fatalf("AddProgram: SCC-merge precondition violated for atoms %d and %d", addr, addr2)
					}
				}
			}
		}
	}

	agp.graph = merged
	agp.SCCs = newSCCs
	agp.ComponentOfAtom = newComponentOf
	agp.EDB.Union(other.EDB)
	agp.IDB = append(agp.IDB, other.IDB...)
	agp.ProgramMask.Union(other.ProgramMask)
	agp.IndexedExternals = append(agp.IndexedExternals, other.IndexedExternals...)
	for k, v := range other.ExternalMasks {
		if existing, ok := agp.ExternalMasks[k]; ok {
			existing.Union(v)
		} else {
			agp.ExternalMasks[k] = v.Clone()
		}
	}
	for k, v := range other.AuxToExt {
		agp.AuxToExt[k] = append(agp.AuxToExt[k], v...)
	}
	return nil
}

// VerifyWithSupportSets checks whether assignment satisfies every installed
// support-set nogood that mentions auxToVerify, avoiding a plugin call (spec
// §4.2). Returns (false, false) if no support sets are installed or none of
// them mentions auxToVerify, signalling the caller must fall back to an
// actual plugin call. Any installed nogood mentioning auxToVerify counts as
// coverage: extID is not consulted, and whether the installed nogoods form
// a complete cover for the external atom is not checked.
func (agp *AnnotatedGroundProgram) VerifyWithSupportSets(extID id.ID, assignment *interp.Partial, auxToVerify id.ID) (satisfied bool, covered bool) {
	if agp.SupportSets == nil {
		return false, false
	}
	covered = false
	satisfied = true
	for _, ng := range agp.SupportSets.All() {
		if !ng.Contains(auxToVerify) && !ng.Contains(auxToVerify.WithNAF(true)) {
			continue
		}
		covered = true
		fires := true
		for _, lit := range ng.Literals() {
			want := interp.True
			if lit.NAF() {
				want = interp.False
			}
			if assignment.Get(lit.Address()) != want {
				fires = false
				break
			}
		}
		if fires {
			satisfied = false
		}
	}
	if !covered {
		return false, false
	}
	return satisfied, covered
}

// String renders a short diagnostic summary (component count, cycle counts).
func (agp *AnnotatedGroundProgram) String() string {
	heads, ex := 0, 0
	for _, h := range agp.HeadCycles {
		if h {
			heads++
		}
	}
	for _, e := range agp.ECycles {
		if e {
			ex++
		}
	}
	return fmt.Sprintf("groundprogram{edb=%d idb=%d sccs=%d headCycles=%d eCycles=%d}",
		agp.EDB.Len(), len(agp.IDB), len(agp.SCCs), heads, ex)
}
