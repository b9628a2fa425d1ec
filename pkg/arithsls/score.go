package arithsls

import "math"

// computeScore weighs a candidate delta for x by the atoms it makes and
// breaks. Breaking a root-level unit under tabu discipline vetoes the
// candidate. Net-negative candidates keep a tiny floor probability,
// net-zero ones a slightly larger floor, and net-positive ones decay
// exponentially in the break count with base CB.
func (e *Engine) computeScore(x int, delta Num) float64 {
	result := 0
	breaks := 0
	for _, occ := range e.vars[x].linearOccurs {
		iq := e.ineqs[occ.bv]
		oldSign := e.sign(occ.bv)
		dttOld := e.dttCur(oldSign, iq)
		var dttNew Num
		if err := catchOverflow(func() {
			dttNew = e.dttDelta(oldSign, iq, occ.coeff, delta)
		}); err != nil {
			return 0
		}
		if dttNew.IsZero() && !dttOld.IsZero() {
			result++
		}
		if !dttNew.IsZero() && dttOld.IsZero() {
			if e.useTabu && e.ctx.IsUnit(Lit(occ.bv, oldSign)) {
				return 0
			}
			result--
			breaks++
		}
	}

	if result < 0 {
		return 0.0000001
	}
	if result == 0 {
		return 0.000002
	}
	for i := len(e.probBreak); i <= breaks; i++ {
		e.probBreak = append(e.probBreak, math.Pow(e.cfg.CB, float64(-i)))
	}
	return e.probBreak[breaks]
}
