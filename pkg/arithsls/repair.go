package arithsls

import (
	"fmt"

	"go.uber.org/zap"
)

// Repair by definition. When a derived variable's cached value disagrees
// with its defining operator, repairDown moves the operands toward the
// cached value and repairUp moves the cached value toward the operands.

// RepairDown repairs the definition of the variable bound to t by moving
// its operands, with tabu discipline suspended. It reports whether the
// definition holds afterwards.
func (e *Engine) RepairDown(t *Term) bool {
	v, ok := e.termVarIdx[t.id]
	if !ok {
		return false
	}
	vi := &e.vars[v]
	if vi.defIdx == nullIdx {
		return false
	}
	saved := e.useTabu
	e.useTabu = false
	defer func() { e.useTabu = saved }()
	switch vi.op {
	case opAdd:
		return e.repairAdd(e.getAdd(v))
	case opMul:
		return e.repairMul(e.getMul(v))
	case opMod:
		return e.repairMod(&e.ops[vi.defIdx])
	case opRem:
		return e.repairRem(&e.ops[vi.defIdx])
	case opPower:
		return e.repairPower(&e.ops[vi.defIdx])
	case opIdiv:
		return e.repairIdiv(&e.ops[vi.defIdx])
	case opDiv:
		return e.repairDiv(&e.ops[vi.defIdx])
	case opAbs:
		return e.repairAbs(&e.ops[vi.defIdx])
	case opToInt:
		return e.repairToInt(&e.ops[vi.defIdx])
	case opToReal:
		return e.repairToReal(&e.ops[vi.defIdx])
	}
	return true
}

// RepairUp re-evaluates the definition of the term and commits the result
// to its variable; for atoms it realigns the Boolean assignment instead.
// A failed commit still notifies the host that the term needs attention.
func (e *Engine) RepairUp(t *Term) {
	if t.sort == SortBool {
		bv := e.ctx.AtomToBoolVar(t)
		if bv == NullBoolVar {
			return
		}
		if iq := e.ineqs[bv]; iq != nil && iq.isTrue() != e.ctx.IsTrue(Lit(bv, false)) {
			e.ctx.Flip(bv)
		}
		return
	}
	v, ok := e.termVarIdx[t.id]
	if !ok {
		return
	}
	if e.vars[v].defIdx == nullIdx {
		return
	}
	var newValue Num
	err := catchOverflow(func() {
		var evalErr error
		newValue, evalErr = e.evalByDef(v)
		if evalErr != nil {
			panic(overflowPanic{})
		}
	})
	if err != nil {
		e.ctx.NewValue(e.vars[v].term)
		return
	}
	if !e.update(v, newValue) {
		e.ctx.NewValue(e.vars[v].term)
	}
}

// repairAdd moves one summand by the exact delta reconciling the sum, then
// degrades to inexact deltas and reset moves, and finally forces the result
// variable onto the recomputed sum.
func (e *Engine) repairAdd(ad *addDef) bool {
	v := ad.v
	oldValue := e.value(v)
	sum := ad.coeff
	for _, a := range ad.args {
		sum = sum.Add(a.coeff.Mul(e.value(a.v)))
	}
	if oldValue.Equal(sum) {
		return true
	}

	e.updates = e.updates[:0]
	for _, a := range ad.args {
		delta := e.divide(a.v, oldValue.Sub(sum), a.coeff)
		if oldValue.Equal(a.coeff.Mul(delta).Add(sum)) {
			e.addUpdate(a.v, delta)
		}
	}
	if e.applyUpdate() {
		return e.evalIsCorrect(v)
	}

	saved := e.useTabu
	e.useTabu = false
	defer func() { e.useTabu = saved }()

	e.updates = e.updates[:0]
	for _, a := range ad.args {
		delta := e.divide(a.v, oldValue.Sub(sum), a.coeff)
		if !oldValue.Equal(a.coeff.Mul(delta).Add(sum)) {
			e.addUpdate(a.v, delta)
		}
	}
	for _, a := range ad.args {
		e.addResetUpdate(a.v)
	}
	if e.applyUpdate() {
		return e.evalIsCorrect(v)
	}
	return e.update(v, sum)
}

// repairMul moves monomial factors so the product matches the result
// variable: zero the factors for a zero result, push factors to ±1 for a
// unit result, take k'th roots in the general case, then degrade to reset
// moves and finally force the result onto the recomputed product.
func (e *Engine) repairMul(md *mulDef) bool {
	v := md.v
	val := e.value(v)
	product := N(1)
	for _, f := range md.monomial {
		product = product.Mul(powerOf(e.value(f.v), f.p))
	}
	if product.Equal(val) {
		return true
	}
	e.log.Debug("repair mul",
		zap.Int("var", v), zap.String("value", val.String()), zap.String("product", product.String()))

	e.updates = e.updates[:0]
	switch {
	case val.IsZero():
		for _, f := range md.monomial {
			e.addUpdate(f.v, e.value(f.v).Neg())
		}
	case val.Equal(N(1)) || val.Equal(N(-1)):
		for _, f := range md.monomial {
			e.addUpdate(f.v, N(1).Sub(e.value(f.v)))
			e.addUpdate(f.v, N(-1).Sub(e.value(f.v)))
		}
	default:
		for _, f := range md.monomial {
			mx := e.mulValueWithout(v, f.v)
			if mx.IsZero() {
				continue
			}
			valmx := e.divide(f.v, val, mx)
			r := rootOf(f.p, valmx)
			e.addUpdate(f.v, r.Sub(e.value(f.v)))
			if f.p%2 == 0 {
				e.addUpdate(f.v, r.Neg().Sub(e.value(f.v)))
			}
		}
	}
	if e.applyUpdate() {
		return e.evalIsCorrect(v)
	}

	saved := e.useTabu
	e.useTabu = false
	defer func() { e.useTabu = saved }()
	e.updates = e.updates[:0]
	for _, f := range md.monomial {
		e.addResetUpdate(f.v)
	}
	if e.applyUpdate() {
		return e.evalIsCorrect(v)
	}
	return e.update(v, product)
}

// repairMod moves the dividend so the remainder matches the result when the
// result is in the legal range, occasionally diversifying by a full
// divisor; otherwise it forces the result onto the recomputed remainder.
func (e *Engine) repairMod(od *opDef) bool {
	val := e.value(od.v)
	v1 := e.value(od.arg1)
	v2 := e.value(od.arg2)
	if val.Sign() >= 0 && val.Cmp(v2) < 0 {
		v3 := emod(v1, v2)
		if v3.Equal(val) {
			return true
		}
		// mod(v1 + val - v3 (± v2), v2) == val
		v1 = v1.Add(val).Sub(v3)
		switch e.ctx.Rand(6) {
		case 0:
			v1 = v1.Add(v2)
		case 1:
			v1 = v1.Sub(v2)
		}
		return e.update(od.arg1, v1)
	}
	if v2.IsZero() {
		return e.update(od.v, N(0))
	}
	return e.update(od.v, emod(v1, v2))
}

// repairRem forces the result onto the recomputed truncated remainder.
func (e *Engine) repairRem(od *opDef) bool {
	v1 := e.value(od.arg1)
	v2 := e.value(od.arg2)
	if v2.IsZero() {
		return e.update(od.v, N(0))
	}
	return e.update(od.v, rem(v1, v2))
}

// repairAbs pushes the argument onto ±result, or fixes a negative result.
func (e *Engine) repairAbs(od *opDef) bool {
	val := e.value(od.v)
	v1 := e.value(od.arg1)
	if val.Sign() < 0 {
		return e.update(od.v, v1.Abs())
	}
	if e.ctx.Rand(2) == 0 {
		return e.update(od.arg1, val)
	}
	return e.update(od.arg1, val.Neg())
}

// repairToInt snaps the argument onto the result when the floor disagrees.
func (e *Engine) repairToInt(od *opDef) bool {
	val := e.value(od.v)
	v1 := e.value(od.arg1)
	if val.Cmp(v1) <= 0 && v1.Cmp(val.Add(N(1))) < 0 {
		return true
	}
	return e.update(od.arg1, val)
}

// repairToReal reconciles the embedding: mostly the argument follows the
// result, occasionally the result snaps back to the argument.
func (e *Engine) repairToReal(od *opDef) bool {
	val := e.value(od.v)
	if e.ctx.Rand(20) == 0 || !val.IsInt() {
		return e.update(od.v, e.value(od.arg1))
	}
	return e.update(od.arg1, val)
}

// repairPower handles only the 0^0 shape; other shapes are not repaired.
func (e *Engine) repairPower(od *opDef) bool {
	v1 := e.value(od.arg1)
	v2 := e.value(od.arg2)
	if v1.IsZero() && v2.IsZero() {
		return e.update(od.v, N(0))
	}
	e.log.Debug("power repair unsupported", zap.Error(ErrUnsupported))
	return false
}

// repairIdiv forces the result onto the recomputed quotient.
func (e *Engine) repairIdiv(od *opDef) bool {
	v1 := e.value(od.arg1)
	v2 := e.value(od.arg2)
	if v2.IsZero() {
		return e.update(od.v, N(0))
	}
	return e.update(od.v, ediv(v1, v2))
}

// repairDiv forces the result onto the recomputed quotient.
func (e *Engine) repairDiv(od *opDef) bool {
	v1 := e.value(od.arg1)
	v2 := e.value(od.arg2)
	if v2.IsZero() {
		return e.update(od.v, N(0))
	}
	return e.update(od.v, v1.Div(v2))
}

// evalIsCorrect reports whether v's cached value matches its definition.
// Unsupported or overflowing evaluations count as correct; they cannot be
// checked.
func (e *Engine) evalIsCorrect(v int) bool {
	var val Num
	var evalErr error
	if err := catchOverflow(func() { val, evalErr = e.evalByDef(v) }); err != nil || evalErr != nil {
		return true
	}
	return val.Equal(e.value(v))
}

// Invariant checks the full model: every cached atom value matches a
// recomputation and every derived variable matches its definition.
func (e *Engine) Invariant() error {
	for _, iq := range e.ineqs {
		if err := e.invariantIneq(iq); err != nil {
			return err
		}
	}
	for v := range e.vars {
		if !e.evalIsCorrect(v) {
			return fmt.Errorf("arithsls: stale definition for %s", e.displayVar(v))
		}
	}
	return nil
}

// IsSat reports whether every clause of the host has a true literal whose
// atom agrees with the arithmetic model.
func (e *Engine) IsSat() bool {
	for _, clause := range e.ctx.Clauses() {
		sat := false
		for _, lit := range clause.Lits {
			if !e.ctx.IsTrue(lit) {
				continue
			}
			a := e.ctx.Atom(lit.Var)
			if a != nil && e.isDistinct(a) {
				if e.evalDistinct(a) != lit.Sign {
					sat = true
					break
				}
				continue
			}
			iq := e.ineqs[lit.Var]
			if iq == nil {
				sat = true
				break
			}
			if iq.isTrue() != lit.Sign {
				sat = true
				break
			}
		}
		if !sat {
			return false
		}
	}
	return true
}
