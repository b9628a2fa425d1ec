package arithsls

// Move generation. A violated atom is repaired by collecting candidate
// variable deltas into the update pool: exact linear solutions where the
// atom is linear in the chosen variable, quadratic-formula boundary moves
// where it is quadratic, and randomized reset moves as the fallback.

// divide returns a delta' with coeff*delta' crossing delta: the exact
// quotient for real variables, the quotient rounded away from zero enough
// to preserve the crossing for integer ones.
func (e *Engine) divide(v int, delta, coeff Num) Num {
	if !e.isInt(v) {
		return delta.Div(coeff)
	}
	adj := delta.Add(coeff.Abs()).Sub(N(1))
	if adj.IsInt() && coeff.IsInt() {
		return ediv(adj, coeff)
	}
	q := delta.Div(coeff)
	if coeff.Sign() > 0 {
		return q.Ceil()
	}
	return q.Floor()
}

// divideFloor returns floor(a/b) for integer variables, the exact quotient
// for real ones.
func (e *Engine) divideFloor(v int, a, b Num) Num {
	if !e.isInt(v) {
		return a.Div(b)
	}
	if !a.IsInt() || !b.IsInt() {
		return a.Div(b).Floor()
	}
	switch {
	case b.Sign() > 0 && a.Sign() >= 0:
		return ediv(a, b)
	case b.Sign() > 0:
		return ediv(a.Neg().Add(b).Sub(N(1)), b).Neg()
	case a.Sign() > 0:
		return ediv(a.Sub(b).Sub(N(1)), b.Neg()).Neg()
	default:
		return ediv(a.Neg(), b.Neg())
	}
}

// divideCeil returns ceil(a/b) for integer variables, the exact quotient
// for real ones.
func (e *Engine) divideCeil(v int, a, b Num) Num {
	if !e.isInt(v) {
		return a.Div(b)
	}
	if !a.IsInt() || !b.IsInt() {
		return a.Div(b).Ceil()
	}
	switch {
	case b.Sign() > 0 && a.Sign() >= 0:
		return ediv(a.Add(b).Sub(N(1)), b)
	case b.Sign() > 0:
		return ediv(a.Neg(), b).Neg()
	case a.Sign() > 0:
		return ediv(a, b.Neg()).Neg()
	default:
		return ediv(a.Neg().Sub(b).Sub(N(1)), b.Neg())
	}
}

// findLinearMoves proposes the exact delta flipping the atom's truth when
// it is linear in v with the given aggregate coefficient. The branch on
// iq.isTrue distinguishes making the atom false from making it true.
func (e *Engine) findLinearMoves(iq *ineq, v int, coeff Num) {
	sum := iq.argsValue
	if iq.isTrue() {
		switch iq.kind {
		case ineqLE:
			e.addUpdate(v, e.divide(v, sum.Neg().Add(N(1)), coeff))
		case ineqLT:
			e.addUpdate(v, e.divide(v, sum.Neg(), coeff))
		case ineqEQ:
			e.addUpdate(v, N(1))
			e.addUpdate(v, N(-1))
		}
		return
	}
	switch iq.kind {
	case ineqLE:
		e.addUpdate(v, e.divide(v, sum, coeff).Neg())
	case ineqLT:
		e.addUpdate(v, e.divide(v, sum.Add(N(1)), coeff).Neg())
	case ineqEQ:
		var delta Num
		if sum.Sign() < 0 {
			delta = e.divide(v, sum.Abs(), coeff)
		} else {
			delta = e.divide(v, sum, coeff).Neg()
		}
		if sum.Add(coeff.Mul(delta)).IsZero() {
			e.addUpdate(v, delta)
		}
	}
}

// findQuadraticMoves solves a*x^2 + b*x + c ⊕ 0 for x, where c is derived
// from the atom's cached value sum at the current x. The real roots bound
// the sign regions; candidate moves land just inside or just outside them,
// with floor/ceil boundaries for integer x and an epsilon step for real x
// shrunk to half the root gap when the roots are close.
func (e *Engine) findQuadraticMoves(iq *ineq, x int, a, b, sum Num) {
	var c, d Num
	xv := e.value(x)
	if err := catchOverflow(func() {
		c = sum.Sub(a.Mul(xv).Mul(xv)).Sub(b.Mul(xv))
		d = b.Mul(b).Sub(N(4).Mul(a).Mul(c))
	}); err != nil {
		return
	}
	if d.Sign() < 0 {
		return
	}
	root := isqrt(d.Floor())
	isSquare := root.Mul(root).Equal(d)
	ll := e.divideFloor(x, b.Neg().Sub(root), N(2).Mul(a))
	lh := e.divideCeil(x, b.Neg().Sub(root), N(2).Mul(a))
	rl := e.divideFloor(x, b.Neg().Add(root), N(2).Mul(a))
	rh := e.divideCeil(x, b.Neg().Add(root), N(2).Mul(a))
	if lh.Cmp(rl) > 0 {
		ll, rl = rl, ll
		lh, rh = rh, lh
	}
	eps := N(1)
	if !e.isInt(x) && rh.Sub(lh).Abs().Cmp(eps) <= 0 {
		eps = rh.Sub(lh).Abs().Div(N(2))
	}
	if d.Sign() > 0 && lh.Equal(rh) {
		return
	}
	if d.IsZero() && !ll.Equal(lh) {
		return
	}
	quad := func(t Num) Num { return a.Mul(t).Mul(t).Add(b.Mul(t)).Add(c) }

	if iq.isTrue() {
		switch iq.kind {
		case ineqLE:
			if d.IsZero() {
				return
			}
			if a.Sign() < 0 {
				if quad(lh).Sign() <= 0 {
					lh = lh.Add(eps)
				}
				if quad(rl).Sign() <= 0 {
					rl = rl.Sub(eps)
				}
				e.addUpdate(x, lh.Sub(xv))
				e.addUpdate(x, rl.Sub(xv))
			} else {
				if quad(ll).Sign() <= 0 {
					ll = ll.Sub(eps)
				}
				if quad(rh).Sign() <= 0 {
					rh = rh.Add(eps)
				}
				e.addUpdate(x, ll.Sub(xv))
				e.addUpdate(x, rh.Sub(xv))
			}
		case ineqLT:
			if d.IsZero() {
				return
			}
			if a.Sign() > 0 {
				e.addUpdate(x, lh.Sub(xv).Add(eps))
				if !ll.Equal(rl) {
					e.addUpdate(x, rh.Sub(xv).Sub(eps))
				}
			} else {
				e.addUpdate(x, ll.Sub(xv).Sub(eps))
				if !ll.Equal(rl) {
					e.addUpdate(x, rl.Sub(xv).Add(eps))
				}
			}
		case ineqEQ:
			e.addUpdate(x, N(1).Sub(xv))
			e.addUpdate(x, N(-1).Sub(xv))
		}
		return
	}

	switch iq.kind {
	case ineqLE:
		if d.IsZero() {
			if a.Sign() > 0 && ll.Equal(lh) {
				e.addUpdate(x, ll.Sub(xv))
			}
			return
		}
		if a.Sign() > 0 {
			if quad(lh).Sign() > 0 {
				lh = lh.Add(eps)
			}
			if quad(rl).Sign() > 0 {
				rl = rl.Sub(eps)
			}
			e.addUpdate(x, lh.Sub(xv))
			e.addUpdate(x, rl.Sub(xv))
		} else {
			if quad(ll).Sign() > 0 {
				ll = ll.Add(eps)
			}
			if quad(rh).Sign() > 0 {
				rh = rh.Sub(eps)
			}
			e.addUpdate(x, ll.Sub(xv))
			e.addUpdate(x, rh.Sub(xv))
		}
	case ineqLT:
		if d.IsZero() {
			return
		}
		if a.Sign() > 0 {
			e.addUpdate(x, lh.Sub(xv).Sub(eps))
			if !ll.Equal(rl) {
				e.addUpdate(x, rh.Sub(xv).Add(eps))
			}
		} else {
			e.addUpdate(x, ll.Sub(xv).Add(eps))
			if !ll.Equal(rl) {
				e.addUpdate(x, rl.Sub(xv).Sub(eps))
			}
		}
	case ineqEQ:
		if !isSquare {
			return
		}
		if ll.Equal(lh) {
			e.addUpdate(x, ll.Sub(xv))
		}
		if rl.Equal(rh) && !lh.Equal(rh) {
			e.addUpdate(x, rl.Sub(xv))
		}
	}
}

// mulValueWithout returns the product of m's monomial factors excluding
// every power of x.
func (e *Engine) mulValueWithout(m, x int) Num {
	r := N(1)
	for _, f := range e.getMul(m).monomial {
		if f.v != x {
			r = r.Mul(powerOf(e.value(f.v), f.p))
		}
	}
	return r
}

// isLinearIn computes the aggregate linear coefficient of x across the
// occurrences nl, treating co-factors of x as constants at their current
// values. It fails when x occurs with exponent above one or the
// coefficient vanishes.
func (e *Engine) isLinearIn(x int, nl []nonlinCoeff) (Num, bool) {
	if len(nl) == 1 && nl[0].v == x {
		return nl[0].coeff, true
	}
	b := N(0)
	for _, o := range nl {
		if o.p > 1 {
			return Num{}, false
		}
		if o.v == x {
			b = b.Add(o.coeff)
		} else {
			b = b.Add(o.coeff.Mul(e.mulValueWithout(o.v, x)))
		}
	}
	return b, !b.IsZero()
}

// isQuadraticIn computes the a (quadratic) and b (linear) coefficients of x
// across the occurrences nl. It fails when x occurs with exponent above two
// or both coefficients vanish.
func (e *Engine) isQuadraticIn(x int, nl []nonlinCoeff) (Num, Num, bool) {
	a, b := N(0), N(0)
	for _, o := range nl {
		switch o.p {
		case 1:
			if o.v == x {
				b = b.Add(o.coeff)
			} else {
				b = b.Add(o.coeff.Mul(e.mulValueWithout(o.v, x)))
			}
		case 2:
			a = a.Add(o.coeff.Mul(e.mulValueWithout(o.v, x)))
		default:
			return Num{}, Num{}, false
		}
	}
	return a, b, !a.IsZero() || !b.IsZero()
}

// findNlMoves collects linear and quadratic moves for every unfixed factor
// variable of the atom and applies one by roulette selection.
func (e *Engine) findNlMoves(lit Literal) bool {
	e.updates = e.updates[:0]
	iq := e.ineqs[lit.Var]
	if iq == nil {
		return false
	}
	for _, entry := range iq.nonlinear {
		x := entry.x
		if e.isFixed(x) {
			continue
		}
		err := catchOverflow(func() {
			if b, ok := e.isLinearIn(x, entry.occ); ok {
				e.findLinearMoves(iq, x, b)
			} else if a, b, ok := e.isQuadraticIn(x, entry.occ); ok {
				e.findQuadraticMoves(iq, x, a, b, iq.argsValue)
			}
		})
		if err != nil {
			continue
		}
	}
	return e.applyUpdate()
}

// findLinMoves collects plain linear moves over the atom's direct
// arguments.
func (e *Engine) findLinMoves(lit Literal) bool {
	e.updates = e.updates[:0]
	iq := e.ineqs[lit.Var]
	if iq == nil {
		return false
	}
	for _, a := range iq.args {
		if e.isFixed(a.v) {
			continue
		}
		e.findLinearMoves(iq, a.v, a.coeff)
	}
	return e.applyUpdate()
}

// addResetUpdate proposes randomized small values for x and, recursively,
// for the operands defining x, clipped into x's bounds.
func (e *Engine) addResetUpdate(x int) {
	e.lastDelta = N(0)
	if e.isFixed(x) {
		return
	}
	if e.isMul(x) {
		for _, f := range e.getMul(x).monomial {
			e.addResetUpdate(f.v)
		}
	}
	if e.isAdd(x) {
		for _, a := range e.getAdd(x).args {
			e.addResetUpdate(a.v)
		}
	}
	vi := &e.vars[x]
	newValue := N(int64(-2 + e.ctx.Rand(5)))
	if vi.lo != nil && vi.lo.value.Cmp(newValue) > 0 {
		newValue = vi.lo.value.Add(N(int64(e.ctx.Rand(2))))
	} else if vi.hi != nil && vi.hi.value.Cmp(newValue) < 0 {
		newValue = vi.hi.value.Sub(N(int64(e.ctx.Rand(2))))
	}
	if !newValue.Equal(e.value(x)) {
		e.addUpdate(x, newValue.Sub(e.value(x)).Add(N(int64(-1+e.ctx.Rand(3)))))
	} else {
		e.addUpdate(x, N(1).Sub(e.value(x)))
		e.addUpdate(x, N(-1).Sub(e.value(x)))
		if !e.value(x).IsZero() {
			e.addUpdate(x, N(1))
			e.addUpdate(x, N(-1))
		}
	}
}

// findResetMoves falls back to reset updates over every factor variable of
// the atom.
func (e *Engine) findResetMoves(lit Literal) bool {
	e.updates = e.updates[:0]
	iq := e.ineqs[lit.Var]
	if iq == nil {
		return false
	}
	for _, entry := range iq.nonlinear {
		e.addResetUpdate(entry.x)
	}
	if len(e.updates) == 0 {
		e.log.Debug("no reset moves for " + lit.String())
	}
	return e.applyUpdate()
}
