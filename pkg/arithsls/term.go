package arithsls

import (
	"fmt"
	"strings"
)

// Sort classifies a term as integer, real or Boolean valued.
type Sort int

const (
	SortInt Sort = iota
	SortReal
	SortBool
)

// TermKind enumerates the expression forms the engine understands. The
// arithmetic kinds feed the algebraic term model; the comparison kinds
// become inequality atoms; the Boolean kinds structure root assertions for
// the global search driver.
type TermKind int

const (
	KindNum TermKind = iota
	KindVar // uninterpreted arithmetic constant
	KindAdd
	KindSub
	KindNeg
	KindMul
	KindMod
	KindDiv
	KindIdiv
	KindRem
	KindPower
	KindAbs
	KindToInt
	KindToReal
	KindIte

	KindLe
	KindLt
	KindGe
	KindGt
	KindEq
	KindDistinct

	KindBool // uninterpreted Boolean constant
	KindTrue
	KindFalse
	KindNot
	KindAnd
	KindOr
	KindXor
	KindImplies
	KindIff
)

// Term is an immutable expression node. Terms are created through a Bank and
// identified by dense ids; structurally identical terms share a node, so id
// equality is term identity.
type Term struct {
	id    int
	kind  TermKind
	sort  Sort
	args  []*Term
	num   Num
	name  string
	depth int
}

// ID returns the term's dense identifier within its Bank.
func (t *Term) ID() int { return t.id }

// Kind returns the term's expression form.
func (t *Term) Kind() TermKind { return t.kind }

// Sort returns the term's sort.
func (t *Term) Sort() Sort { return t.sort }

// Args returns the argument terms. Callers must not mutate the slice.
func (t *Term) Args() []*Term { return t.args }

// NumVal returns the numeral payload of a KindNum term.
func (t *Term) NumVal() Num { return t.num }

// Name returns the name of a KindVar or KindBool leaf.
func (t *Term) Name() string { return t.name }

// Depth returns the syntactic depth of the term (leaves have depth 0).
func (t *Term) Depth() int { return t.depth }

// IsArith reports whether the term is integer or real sorted.
func (t *Term) IsArith() bool { return t.sort == SortInt || t.sort == SortReal }

// String renders the term in prefix form.
func (t *Term) String() string {
	switch t.kind {
	case KindNum:
		return t.num.String()
	case KindVar, KindBool:
		return t.name
	case KindTrue:
		return "true"
	case KindFalse:
		return "false"
	}
	names := map[TermKind]string{
		KindAdd: "+", KindSub: "-", KindNeg: "neg", KindMul: "*",
		KindMod: "mod", KindDiv: "/", KindIdiv: "div", KindRem: "rem",
		KindPower: "^", KindAbs: "abs", KindToInt: "to_int", KindToReal: "to_real",
		KindIte: "ite", KindLe: "<=", KindLt: "<", KindGe: ">=", KindGt: ">",
		KindEq: "=", KindDistinct: "distinct", KindNot: "not", KindAnd: "and",
		KindOr: "or", KindXor: "xor", KindImplies: "=>", KindIff: "iff",
	}
	parts := make([]string, 0, len(t.args)+1)
	parts = append(parts, names[t.kind])
	for _, a := range t.args {
		parts = append(parts, a.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Bank allocates and hash-conses terms. All terms participating in one
// engine must come from the same bank.
type Bank struct {
	terms   []*Term
	memo    map[string]*Term
	parents [][]*Term
}

// NewBank returns an empty term bank.
func NewBank() *Bank {
	return &Bank{memo: make(map[string]*Term)}
}

// NumTerms returns the number of distinct terms allocated so far.
func (b *Bank) NumTerms() int { return len(b.terms) }

// Term returns the term with the given id.
func (b *Bank) Term(id int) *Term { return b.terms[id] }

// Parents returns the terms that have t as a direct argument.
func (b *Bank) Parents(t *Term) []*Term { return b.parents[t.id] }

func (b *Bank) mk(kind TermKind, sort Sort, name string, num Num, args ...*Term) *Term {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%s|%s", kind, name, num)
	for _, a := range args {
		fmt.Fprintf(&sb, "|%d", a.id)
	}
	key := sb.String()
	if t, ok := b.memo[key]; ok {
		return t
	}
	depth := 0
	for _, a := range args {
		if a.depth+1 > depth {
			depth = a.depth + 1
		}
	}
	t := &Term{id: len(b.terms), kind: kind, sort: sort, name: name, num: num, args: args, depth: depth}
	b.terms = append(b.terms, t)
	b.parents = append(b.parents, nil)
	b.memo[key] = t
	for _, a := range args {
		b.parents[a.id] = append(b.parents[a.id], t)
	}
	return t
}

// arithSort returns the joined sort of arithmetic arguments: real wins.
func arithSort(args []*Term) Sort {
	for _, a := range args {
		if a.sort == SortReal {
			return SortReal
		}
	}
	return SortInt
}

// Int returns the integer numeral i.
func (b *Bank) Int(i int64) *Term { return b.mk(KindNum, SortInt, "", N(i)) }

// Real returns the real numeral n.
func (b *Bank) Real(n Num) *Term { return b.mk(KindNum, SortReal, "", n) }

// IntVar returns the integer-sorted leaf named name.
func (b *Bank) IntVar(name string) *Term { return b.mk(KindVar, SortInt, name, Num{}) }

// RealVar returns the real-sorted leaf named name.
func (b *Bank) RealVar(name string) *Term { return b.mk(KindVar, SortReal, name, Num{}) }

// Add returns the n-ary sum of args.
func (b *Bank) Add(args ...*Term) *Term { return b.mk(KindAdd, arithSort(args), "", Num{}, args...) }

// Sub returns x - y.
func (b *Bank) Sub(x, y *Term) *Term {
	return b.mk(KindSub, arithSort([]*Term{x, y}), "", Num{}, x, y)
}

// Neg returns -x.
func (b *Bank) Neg(x *Term) *Term { return b.mk(KindNeg, x.sort, "", Num{}, x) }

// Mul returns the n-ary product of args.
func (b *Bank) Mul(args ...*Term) *Term { return b.mk(KindMul, arithSort(args), "", Num{}, args...) }

// Mod returns x mod y (always non-negative for nonzero y).
func (b *Bank) Mod(x, y *Term) *Term { return b.mk(KindMod, SortInt, "", Num{}, x, y) }

// Div returns the real division x / y.
func (b *Bank) Div(x, y *Term) *Term { return b.mk(KindDiv, SortReal, "", Num{}, x, y) }

// Idiv returns the integer (Euclidean) division of x by y.
func (b *Bank) Idiv(x, y *Term) *Term { return b.mk(KindIdiv, SortInt, "", Num{}, x, y) }

// Rem returns the truncated remainder of x by y.
func (b *Bank) Rem(x, y *Term) *Term { return b.mk(KindRem, SortInt, "", Num{}, x, y) }

// Power returns x raised to y.
func (b *Bank) Power(x, y *Term) *Term {
	return b.mk(KindPower, arithSort([]*Term{x, y}), "", Num{}, x, y)
}

// Abs returns |x|.
func (b *Bank) Abs(x *Term) *Term { return b.mk(KindAbs, x.sort, "", Num{}, x) }

// ToInt returns the floor of the real x as an integer term.
func (b *Bank) ToInt(x *Term) *Term { return b.mk(KindToInt, SortInt, "", Num{}, x) }

// ToReal returns the integer x injected into the reals.
func (b *Bank) ToReal(x *Term) *Term { return b.mk(KindToReal, SortReal, "", Num{}, x) }

// Ite returns the conditional if c then x else y; its sort follows the
// branches.
func (b *Bank) Ite(c, x, y *Term) *Term {
	sort := arithSort([]*Term{x, y})
	if x.sort == SortBool {
		sort = SortBool
	}
	return b.mk(KindIte, sort, "", Num{}, c, x, y)
}

// Le returns the atom x <= y.
func (b *Bank) Le(x, y *Term) *Term { return b.mk(KindLe, SortBool, "", Num{}, x, y) }

// Lt returns the atom x < y.
func (b *Bank) Lt(x, y *Term) *Term { return b.mk(KindLt, SortBool, "", Num{}, x, y) }

// Ge returns the atom x >= y.
func (b *Bank) Ge(x, y *Term) *Term { return b.mk(KindGe, SortBool, "", Num{}, x, y) }

// Gt returns the atom x > y.
func (b *Bank) Gt(x, y *Term) *Term { return b.mk(KindGt, SortBool, "", Num{}, x, y) }

// Eq returns the atom x = y.
func (b *Bank) Eq(x, y *Term) *Term { return b.mk(KindEq, SortBool, "", Num{}, x, y) }

// Distinct returns the atom asserting pairwise disequality of args.
func (b *Bank) Distinct(args ...*Term) *Term {
	return b.mk(KindDistinct, SortBool, "", Num{}, args...)
}

// Bool returns the uninterpreted Boolean leaf named name.
func (b *Bank) Bool(name string) *Term { return b.mk(KindBool, SortBool, name, Num{}) }

// True returns the Boolean constant true.
func (b *Bank) True() *Term { return b.mk(KindTrue, SortBool, "", Num{}) }

// False returns the Boolean constant false.
func (b *Bank) False() *Term { return b.mk(KindFalse, SortBool, "", Num{}) }

// Not returns the negation of x.
func (b *Bank) Not(x *Term) *Term { return b.mk(KindNot, SortBool, "", Num{}, x) }

// And returns the n-ary conjunction of args.
func (b *Bank) And(args ...*Term) *Term { return b.mk(KindAnd, SortBool, "", Num{}, args...) }

// Or returns the n-ary disjunction of args.
func (b *Bank) Or(args ...*Term) *Term { return b.mk(KindOr, SortBool, "", Num{}, args...) }

// Xor returns the n-ary exclusive disjunction of args.
func (b *Bank) Xor(args ...*Term) *Term { return b.mk(KindXor, SortBool, "", Num{}, args...) }

// Implies returns x => y.
func (b *Bank) Implies(x, y *Term) *Term { return b.mk(KindImplies, SortBool, "", Num{}, x, y) }

// Iff returns the Boolean equivalence of x and y.
func (b *Bank) Iff(x, y *Term) *Term { return b.mk(KindIff, SortBool, "", Num{}, x, y) }

// isBoolConnective reports whether t is a Boolean structure node rather than
// an atom.
func isBoolConnective(t *Term) bool {
	switch t.kind {
	case KindNot, KindAnd, KindOr, KindXor, KindImplies, KindIff, KindIte:
		return t.sort == SortBool
	}
	return false
}
