package registry

import (
	"fmt"
	"strconv"
	"strings"

	"hexsolve/internal/herror"
	"hexsolve/internal/id"
)

// Term is the variant data type of spec §3: constant, quoted string,
// integer (never actually stored — see StoreTerm), variable, or nested
// term (ordered children, for functional symbols).
type Term struct {
	Kind      id.SubKind // TermConstant, TermQuotedString, TermVariable, TermNested
	Symbol    string     // constant/quoted-string/variable name; functor name for nested
	Args      []id.ID    // children, only for TermNested
	Auxiliary bool
	Anonymous bool // only meaningful for TermVariable
}

func (t Term) contentKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%s|%v|", t.Kind, t.Symbol, t.Auxiliary)
	for _, a := range t.Args {
		fmt.Fprintf(&b, "%d,", a)
	}
	return b.String()
}

// StoreTerm interns t, bypassing the table entirely for integers (whose
// value is packed directly into the ID's address, per spec §4.1). Idempotent:
// StoreTerm(t) == StoreTerm(t') iff t and t' have the same kind and payload.
func (r *Registry) StoreTerm(t Term) id.ID {
	if t.Kind == id.TermInteger {
		v, err := strconv.ParseInt(t.Symbol, 10, 32)
		if err != nil {
			herror.Fatalf("StoreTerm: integer term with non-integer payload %q", t.Symbol)
		}
		return r.StoreInteger(int32(v))
	}
	key := t.contentKey()
	addr := r.terms.storeByContent(key, t)
	return id.New(id.KindTerm, t.Kind, id.Props{Auxiliary: t.Auxiliary, Anonymous: t.Anonymous}, false, addr)
}

// StoreInteger interns an integer term. Integers never occupy a table row:
// the value itself is the address.
func (r *Registry) StoreInteger(v int32) id.ID {
	return id.New(id.KindTerm, id.TermInteger, id.Props{}, false, uint32(v))
}

// GetTerm dereferences a term ID, synthesising the row for integers instead
// of touching the table. Panics (Fatal, per spec §4.1) if tid does not name
// a term or its address is out of range.
func (r *Registry) GetTerm(tid id.ID) Term {
	if tid.Main() != id.KindTerm {
		herror.Fatalf("GetTerm: %s is not a term ID", tid)
	}
	if tid.Sub() == id.TermInteger {
		return Term{Kind: id.TermInteger, Symbol: fmt.Sprintf("%d", int32(tid.Address()))}
	}
	row, ok := r.terms.get(tid.Address())
	if !ok || row.Kind != tid.Sub() {
		herror.Fatalf("GetTerm: dangling or mismatched term ID %s", tid)
	}
	return row
}

// IntegerValue returns the integer value of tid, which must be an integer
// term ID.
func IntegerValue(tid id.ID) int32 {
	if tid.Main() != id.KindTerm || tid.Sub() != id.TermInteger {
		herror.Fatalf("IntegerValue: %s is not an integer term", tid)
	}
	return int32(tid.Address())
}

// IsInteger reports whether tid names an integer term, recognised purely by
// sub-kind (spec §3: "Integers are recognised by sub-kind alone").
func IsInteger(tid id.ID) bool {
	return tid.Main() == id.KindTerm && tid.Sub() == id.TermInteger
}

// TermText renders a term ID back to HEX surface syntax (best-effort; used
// for diagnostics and the printable cache of ordinary atoms).
func (r *Registry) TermText(tid id.ID) string {
	t := r.GetTerm(tid)
	switch t.Kind {
	case id.TermInteger:
		return t.Symbol
	case id.TermConstant:
		return t.Symbol
	case id.TermQuotedString:
		return "\"" + t.Symbol + "\""
	case id.TermVariable:
		if t.Anonymous {
			return "_"
		}
		return t.Symbol
	case id.TermNested:
		parts := make([]string, len(t.Args))
		for i, a := range t.Args {
			parts[i] = r.TermText(a)
		}
		return t.Symbol + "(" + strings.Join(parts, ",") + ")"
	default:
		return "?"
	}
}
