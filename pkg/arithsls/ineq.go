package arithsls

import (
	"fmt"
	"sort"
	"strings"
)

// ineqKind is the stored comparison form. Registration rewrites >= and >
// by operand swap, and integer < into <= with an adjusted constant, so only
// these three kinds exist after normalization.
type ineqKind int

const (
	ineqLE ineqKind = iota
	ineqLT
	ineqEQ
)

func (k ineqKind) String() string {
	switch k {
	case ineqLE:
		return "<="
	case ineqLT:
		return "<"
	default:
		return "=="
	}
}

// nonlinCoeff describes one occurrence of a factor variable inside an
// argument of the atom: monomial variable v contributes coeff times the
// factor raised to p.
type nonlinCoeff struct {
	v     int
	coeff Num
	p     uint
}

// nonlinEntry groups the occurrences of one factor variable x across all
// arguments; the move generators restrict the atom's value to x through it.
type nonlinEntry struct {
	x   int
	occ []nonlinCoeff
}

// ineq is an atom normalized to coefficient-variable-sum ⊕ constant against
// zero. argsValue caches constant + Σ coeff*value(v) and is maintained
// incrementally by the commit protocol.
type ineq struct {
	kind      ineqKind
	coeff     Num
	args      []coeffVar
	monomials [][]monomialFactor
	nonlinear []nonlinEntry
	argsValue Num
	isLinear  bool
}

// isTrue reports whether the unnegated atom holds under the cached value.
func (iq *ineq) isTrue() bool {
	switch iq.kind {
	case ineqLE:
		return iq.argsValue.Sign() <= 0
	case ineqEQ:
		return iq.argsValue.IsZero()
	default:
		return iq.argsValue.Sign() < 0
	}
}

func (iq *ineq) String() string {
	var sb strings.Builder
	for i, a := range iq.args {
		if i > 0 {
			sb.WriteString(" + ")
		}
		fmt.Fprintf(&sb, "%s*v%d", a.coeff, a.v)
	}
	if !iq.coeff.IsZero() {
		fmt.Fprintf(&sb, " + %s", iq.coeff)
	}
	fmt.Fprintf(&sb, " %s 0 (%s)", iq.kind, iq.argsValue)
	return sb.String()
}

// dtt is the distance-to-true of an atom with the given cached value, under
// the given sign (sign true means the atom is asserted false). It is zero
// exactly when the possibly negated comparison holds, and otherwise a
// positive measure of the violation degree. It is not a metric; it is only
// compared against zero and against other distances.
func (e *Engine) dtt(sign bool, value Num, iq *ineq) Num {
	switch iq.kind {
	case ineqLE:
		if sign {
			if value.Sign() <= 0 {
				return N(1).Sub(value)
			}
			return N(0)
		}
		if value.Sign() <= 0 {
			return N(0)
		}
		return value
	case ineqEQ:
		if sign {
			if value.IsZero() {
				return N(1)
			}
			return N(0)
		}
		if value.IsZero() {
			return N(0)
		}
		return N(1)
	default: // ineqLT
		if sign {
			if value.Sign() < 0 {
				return value.Neg()
			}
			return N(0)
		}
		if value.Sign() < 0 {
			return N(0)
		}
		return value.Add(N(1))
	}
}

// dttCur evaluates dtt against the committed cached value.
func (e *Engine) dttCur(sign bool, iq *ineq) Num {
	return e.dtt(sign, iq.argsValue, iq)
}

// dttVar evaluates dtt under the hypothesis that v takes newValue, in O(1)
// given the cached total: only the changed term's contribution is
// recomputed. Variables not occurring linearly yield distance 1.
func (e *Engine) dttVar(sign bool, iq *ineq, v int, newValue Num) Num {
	for _, a := range iq.args {
		if a.v == v {
			delta := a.coeff.Mul(newValue.Sub(e.value(v)))
			return e.dtt(sign, iq.argsValue.Add(delta), iq)
		}
	}
	return N(1)
}

// dttDelta evaluates dtt under a trial delta applied through the given
// coefficient.
func (e *Engine) dttDelta(sign bool, iq *ineq, coeff, delta Num) Num {
	return e.dtt(sign, iq.argsValue.Add(coeff.Mul(delta)), iq)
}

// sign returns the asserted polarity of bv in the host assignment: true when
// the atom is asserted false.
func (e *Engine) sign(bv BoolVar) bool {
	return !e.ctx.IsTrue(Lit(bv, false))
}

// InitBoolVar builds the inequality model for the atom attached to bv.
// Comparisons are classified and rewritten so only <=, < and = against zero
// are stored; >= and > swap operands, and integer strict < becomes <= with
// constant 1 (x < y over ints iff x - y + 1 <= 0). Idempotent per Boolean
// variable. Terms synthesized while flattening are handed to the host.
func (e *Engine) InitBoolVar(bv BoolVar) error {
	if e.ineqs[bv] != nil {
		return nil
	}
	t := e.ctx.Atom(bv)
	if t == nil {
		return nil
	}
	err := catchOverflow(func() {
		var x, y *Term
		if len(t.args) == 2 {
			x, y = t.args[0], t.args[1]
		}
		switch t.kind {
		case KindLe:
			e.buildIneq(bv, ineqLE, N(0), x, y)
		case KindGe:
			e.buildIneq(bv, ineqLE, N(0), y, x)
		case KindLt:
			if x.sort == SortInt {
				e.buildIneq(bv, ineqLE, N(1), x, y)
			} else {
				e.buildIneq(bv, ineqLT, N(0), x, y)
			}
		case KindGt:
			if y.sort == SortInt {
				e.buildIneq(bv, ineqLE, N(1), y, x)
			} else {
				e.buildIneq(bv, ineqLT, N(0), y, x)
			}
		case KindEq:
			if x.IsArith() {
				e.buildIneq(bv, ineqEQ, N(0), x, y)
			}
		case KindDistinct:
			// handled by eval/repairDistinct, no inequality stored
		}
	})
	e.flushNewTerms()
	return err
}

// buildIneq flattens x - y into a linear term seeded with constant c0 and
// registers the resulting inequality for bv.
func (e *Engine) buildIneq(bv BoolVar, kind ineqKind, c0 Num, x, y *Term) {
	lt := linearTerm{coeff: c0}
	e.addArgs(&lt, x, N(1))
	e.addArgs(&lt, y, N(-1))
	iq := &ineq{kind: kind, coeff: lt.coeff, args: lt.args, isLinear: true}
	e.initIneq(bv, iq)
}

// initIneq finalizes a freshly built inequality: arguments are sorted by
// variable and deduplicated, the per-argument monomial expansion and the
// grouped nonlinear index are derived, the cached value is computed, and
// the atom is attached to each participating variable's linear-occurrence
// list.
func (e *Engine) initIneq(bv BoolVar, iq *ineq) {
	sort.SliceStable(iq.args, func(a, b int) bool { return iq.args[a].v < iq.args[b].v })
	args := iq.args[:0]
	for _, a := range iq.args {
		if n := len(args); n > 0 && args[n-1].v == a.v {
			args[n-1].coeff = args[n-1].coeff.Add(a.coeff)
		} else {
			args = append(args, a)
		}
	}
	iq.args = args

	iq.monomials = make([][]monomialFactor, len(iq.args))
	for j, a := range iq.args {
		if e.isMul(a.v) {
			iq.monomials[j] = append(iq.monomials[j], e.getMul(a.v).monomial...)
		} else {
			iq.monomials[j] = []monomialFactor{{v: a.v, p: 1}}
		}
	}

	iq.argsValue = iq.coeff
	for _, a := range iq.args {
		e.vars[a.v].linearOccurs = append(e.vars[a.v].linearOccurs, linearOccur{coeff: a.coeff, bv: bv})
		iq.argsValue = iq.argsValue.Add(a.coeff.Mul(e.value(a.v)))
		if e.isMul(a.v) {
			for _, f := range e.getMul(a.v).monomial {
				iq.nonlinear = append(iq.nonlinear, nonlinEntry{
					x:   f.v,
					occ: []nonlinCoeff{{v: a.v, coeff: a.coeff, p: f.p}},
				})
			}
			iq.isLinear = false
		} else {
			iq.nonlinear = append(iq.nonlinear, nonlinEntry{
				x:   a.v,
				occ: []nonlinCoeff{{v: a.v, coeff: a.coeff, p: 1}},
			})
		}
	}

	// one entry per factor variable; the occurrences inside an entry
	// reference distinct argument variables because the arguments were
	// deduplicated above
	sort.SliceStable(iq.nonlinear, func(a, b int) bool { return iq.nonlinear[a].x < iq.nonlinear[b].x })
	nl := iq.nonlinear[:0]
	for _, entry := range iq.nonlinear {
		if n := len(nl); n > 0 && nl[n-1].x == entry.x {
			nl[n-1].occ = append(nl[n-1].occ, entry.occ...)
		} else {
			nl = append(nl, entry)
		}
	}
	iq.nonlinear = nl

	e.ineqs[bv] = iq
}

// invariantIneq checks that the cached value matches a recomputation from
// current variable values.
func (e *Engine) invariantIneq(iq *ineq) error {
	val := iq.coeff
	for _, a := range iq.args {
		val = val.Add(a.coeff.Mul(e.value(a.v)))
	}
	if !val.Equal(iq.argsValue) {
		return fmt.Errorf("arithsls: stale inequality value: have %s, recomputed %s for %s", iq.argsValue, val, iq)
	}
	return nil
}
