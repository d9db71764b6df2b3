// Package id implements the packed 64-bit identifier scheme (component C1).
//
// An ID is a 64-bit value split into two 32-bit halves: kind and address.
// kind packs the NAF flag, the main kind (atom/term/literal/rule), a
// sub-kind selecting the table within that main kind, an auxiliary flag,
// and a small set of domain-specific property bits. address indexes the
// table selected by kind. ID_FAIL is the sentinel with every bit set.
package id

import "fmt"

// ID is the packed identifier. Never constructed by hand outside this
// package; callers go through New or the Kind/Address accessors.
type ID uint64

// Fail is "not found" — every bit set.
const Fail ID = ^ID(0)

// MainKind selects which family of table an ID addresses.
type MainKind uint8

const (
	KindAtom MainKind = iota
	KindTerm
	KindLiteral
	KindRule
)

func (k MainKind) String() string {
	switch k {
	case KindAtom:
		return "atom"
	case KindTerm:
		return "term"
	case KindLiteral:
		return "literal"
	case KindRule:
		return "rule"
	default:
		return fmt.Sprintf("MainKind(%d)", uint8(k))
	}
}

// SubKind is interpreted relative to MainKind; the same numeric value means
// different things for atoms, terms, and rules.
type SubKind uint8

// Atom sub-kinds.
const (
	AtomOrdinaryGround SubKind = iota
	AtomOrdinaryNonground
	AtomBuiltin
	AtomAggregate
	AtomExternal
	AtomModule
)

// Term sub-kinds.
const (
	TermConstant SubKind = iota
	TermQuotedString
	TermInteger
	TermVariable
	TermNested
)

// Rule sub-kinds.
const (
	RuleDisjunctive SubKind = iota
	RuleConstraint
	RuleWeak
	RuleWeight
)

// Bit layout of the 32-bit kind half. Bits are numbered from 0 (LSB).
const (
	bitNAF        = 31
	bitAuxiliary  = 30
	bitPredicate  = 29
	bitAnonymous  = 28
	mainKindShift = 24
	mainKindMask  = 0x7
	subKindShift  = 16
	subKindMask   = 0xFF
)

// Props carries the optional domain-specific property bits (NAF is tracked
// separately since it toggles independently of everything else).
type Props struct {
	Auxiliary bool
	Predicate bool
	Anonymous bool
}

// New packs a fresh ID from its constituent fields and a table address.
func New(main MainKind, sub SubKind, p Props, naf bool, address uint32) ID {
	var kind uint32
	kind |= uint32(main&mainKindMask) << mainKindShift
	kind |= uint32(sub) << subKindShift
	if naf {
		kind |= 1 << bitNAF
	}
	if p.Auxiliary {
		kind |= 1 << bitAuxiliary
	}
	if p.Predicate {
		kind |= 1 << bitPredicate
	}
	if p.Anonymous {
		kind |= 1 << bitAnonymous
	}
	return ID(uint64(kind)<<32 | uint64(address))
}

// Address returns the table index this ID refers to.
func (id ID) Address() uint32 { return uint32(id) }

func (id ID) kindWord() uint32 { return uint32(id >> 32) }

// Main returns the main kind (atom/term/literal/rule).
func (id ID) Main() MainKind { return MainKind((id.kindWord() >> mainKindShift) & mainKindMask) }

// Sub returns the sub-kind, meaningful relative to Main().
func (id ID) Sub() SubKind { return SubKind((id.kindWord() >> subKindShift) & subKindMask) }

// NAF reports whether the negation-as-failure bit is set.
func (id ID) NAF() bool { return id.kindWord()&(1<<bitNAF) != 0 }

// Auxiliary reports whether this ID names a solver-introduced auxiliary.
func (id ID) Auxiliary() bool { return id.kindWord()&(1<<bitAuxiliary) != 0 }

// Predicate reports the "is a predicate position" property bit.
func (id ID) Predicate() bool { return id.kindWord()&(1<<bitPredicate) != 0 }

// Anonymous reports the "is the anonymous variable" property bit.
func (id ID) Anonymous() bool { return id.kindWord()&(1<<bitAnonymous) != 0 }

// WithNAF returns a copy of id with the NAF bit set to v. Used to build a
// body literal from a stored atom ID without touching the registry.
func (id ID) WithNAF(v bool) ID {
	kind := id.kindWord()
	if v {
		kind |= 1 << bitNAF
	} else {
		kind &^= 1 << bitNAF
	}
	return ID(uint64(kind)<<32 | uint64(id.Address()))
}

// KindEqualModuloNAF reports whether two IDs agree on main kind, sub kind,
// and every property bit except NAF — the invariant required of
// registry.valid: "the stored kind matches id.kind modulo the NAF bit".
func (id ID) KindEqualModuloNAF(other ID) bool {
	const mask = ^uint32(1 << bitNAF)
	return id.kindWord()&mask == other.kindWord()&mask
}

// IsFail reports whether id is the ID_FAIL sentinel.
func (id ID) IsFail() bool { return id == Fail }

func (id ID) String() string {
	if id.IsFail() {
		return "ID_FAIL"
	}
	return fmt.Sprintf("%s/%d#%d[naf=%v,aux=%v]", id.Main(), id.Sub(), id.Address(), id.NAF(), id.Auxiliary())
}
