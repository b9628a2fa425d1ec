package arithsls

import "go.uber.org/zap"

// The commit protocol. A candidate update enters the pool through
// addUpdate, survives the tabu and bound filters, and is committed through
// update, which maintains the cached atom values incrementally, realigns
// Boolean assignments, and recomputes every product and sum depending on
// the changed variable.

// update is one candidate move: shift variable v by delta.
type update struct {
	v     int
	delta Num
	score float64
}

// isPermittedUpdate filters a candidate delta: it rejects the exact inverse
// of the previous accepted move, tabu directions, values outside the hard
// range, and bound violations. Under tabu discipline a delta leaving the
// bounds from inside is clipped onto the bound (with an epsilon inset for
// strict bounds) instead of rejected. The possibly clipped delta is
// returned.
func (e *Engine) isPermittedUpdate(v int, delta Num) (Num, bool) {
	vi := &e.vars[v]
	deltaOut := delta

	if e.lastVar == v && e.lastDelta.Equal(delta.Neg()) {
		return Num{}, false
	}
	if e.useTabu && vi.isTabu(e.stats.Steps, delta) {
		return Num{}, false
	}

	oldValue := e.value(v)
	var newValue Num
	if err := catchOverflow(func() { newValue = oldValue.Add(delta) }); err != nil {
		return Num{}, false
	}
	if !e.inVarRange(newValue) {
		return Num{}, false
	}

	if e.useTabu && !e.inBounds(v, newValue) && e.inBounds(v, oldValue) {
		lo, hi := vi.lo, vi.hi
		if lo != nil {
			violates := lo.value.Cmp(newValue) > 0 || (lo.strict && lo.value.Cmp(newValue) >= 0)
			if violates {
				switch {
				case lo.strict && deltaOut.Sign() < 0 && lo.value.Cmp(oldValue) <= 0:
					eps := N(1)
					if hi != nil && hi.value.Sub(lo.value).Cmp(eps) <= 0 {
						eps = hi.value.Sub(lo.value).Div(N(2))
					}
					deltaOut = lo.value.Sub(oldValue).Add(eps)
				case !lo.strict && deltaOut.Sign() < 0 && lo.value.Cmp(oldValue) < 0:
					deltaOut = lo.value.Sub(oldValue)
				default:
					return Num{}, false
				}
			}
		}
		if hi != nil {
			violates := hi.value.Cmp(newValue) < 0 || (hi.strict && hi.value.Cmp(newValue) <= 0)
			if violates {
				switch {
				case hi.strict && deltaOut.Sign() >= 0 && hi.value.Cmp(oldValue) >= 0:
					eps := N(1)
					if lo != nil && hi.value.Sub(lo.value).Cmp(eps) <= 0 {
						eps = hi.value.Sub(lo.value).Div(N(2))
					}
					deltaOut = hi.value.Sub(oldValue).Sub(eps)
				case !hi.strict && deltaOut.Sign() > 0 && hi.value.Cmp(oldValue) > 0:
					deltaOut = hi.value.Sub(oldValue)
				default:
					return Num{}, false
				}
			}
		}
	}
	return deltaOut, !deltaOut.IsZero()
}

// addUpdate pushes a candidate move into the pool if permitted.
func (e *Engine) addUpdate(v int, delta Num) {
	deltaOut, ok := e.isPermittedUpdate(v, delta)
	if !ok {
		return
	}
	e.updates = append(e.updates, update{v: v, delta: deltaOut})
}

// applyUpdate scores the candidate pool and commits one move chosen by
// roulette-wheel selection over the scores; failed commits are removed and
// selection retries until the pool drains. It reports whether a move
// committed.
func (e *Engine) applyUpdate() bool {
	for len(e.updates) > e.cfg.UpdatesMaxSize {
		idx := e.ctx.Rand(len(e.updates))
		e.updates[idx] = e.updates[len(e.updates)-1]
		e.updates = e.updates[:len(e.updates)-1]
	}

	sumScore := 0.0
	for i := range e.updates {
		e.updates[i].score = e.computeScore(e.updates[i].v, e.updates[i].delta)
		sumScore += e.updates[i].score
	}

	for len(e.updates) > 0 {
		i := len(e.updates)
		lim := sumScore * e.ctx.RandFloat()
		for {
			i--
			lim -= e.updates[i].score
			if lim < 0 || i == 0 {
				break
			}
		}
		u := e.updates[i]

		var newValue Num
		overflow := catchOverflow(func() { newValue = e.value(u.v).Add(u.delta) }) != nil
		if !overflow && e.update(u.v, newValue) {
			e.lastDelta = u.delta
			e.stats.Steps++
			e.vars[u.v].setStep(e.stats.Steps+3+uint64(e.ctx.Rand(10)), u.delta)
			return true
		}
		sumScore -= u.score
		e.updates[i] = e.updates[len(e.updates)-1]
		e.updates = e.updates[:len(e.updates)-1]
	}
	return false
}

// update commits v := newValue. It prechecks range, bounds and dependent
// product overflow, maintains every dependent atom's cached value, flips
// atoms whose truth changed, notifies the host, and recursively recommits
// dependent products and sums. The recursion stack doubles as a cycle
// guard: revisiting a variable already being committed fails the move.
func (e *Engine) update(v int, newValue Num) bool {
	if e.inCommit[v] {
		e.log.Warn("cycle among derived variables",
			zap.Int("var", v), zap.Error(ErrCycle))
		return false
	}
	vi := &e.vars[v]
	oldValue := vi.value
	if oldValue.Equal(newValue) {
		return true
	}
	if !e.inVarRange(newValue) {
		return false
	}
	if !e.inBounds(v, newValue) && e.inBounds(v, oldValue) {
		return false
	}

	// dependent products and sums must stay representable
	ok := true
	if err := catchOverflow(func() {
		for _, idx := range vi.muls {
			prod := N(1)
			for _, f := range e.muls[idx].monomial {
				if f.v == v {
					prod = prod.Mul(powerOf(newValue, f.p))
				} else {
					prod = prod.Mul(powerOf(e.value(f.v), f.p))
				}
			}
			ok = ok && e.inVarRange(prod)
		}
		for _, idx := range vi.adds {
			ad := &e.adds[idx]
			sum := ad.coeff
			for _, a := range ad.args {
				if a.v == v {
					sum = sum.Add(a.coeff.Mul(newValue))
				} else {
					sum = sum.Add(a.coeff.Mul(e.value(a.v)))
				}
			}
			ok = ok && e.inVarRange(sum)
		}
		for _, occ := range vi.linearOccurs {
			_ = e.ineqs[occ.bv].argsValue.Add(occ.coeff.Mul(newValue.Sub(oldValue)))
		}
	}); err != nil || !ok {
		return false
	}

	e.inCommit[v] = true
	defer delete(e.inCommit, v)

	var toFlip []BoolVar
	for _, occ := range vi.linearOccurs {
		iq := e.ineqs[occ.bv]
		oldSign := e.sign(occ.bv)
		iq.argsValue = iq.argsValue.Add(occ.coeff.Mul(newValue.Sub(oldValue)))
		if !e.dttCur(oldSign, iq).IsZero() {
			toFlip = append(toFlip, occ.bv)
		}
	}
	vi.value = newValue
	e.ctx.NewValue(vi.term)
	e.lastVar = v

	for _, bv := range toFlip {
		if !e.dttCur(e.sign(bv), e.ineqs[bv]).IsZero() {
			e.ctx.Flip(bv)
		}
	}

	for _, idx := range vi.muls {
		e.ctx.NewValue(e.vars[e.muls[idx].v].term)
	}
	for _, idx := range vi.adds {
		e.ctx.NewValue(e.vars[e.adds[idx].v].term)
	}

	for _, idx := range vi.muls {
		md := &e.muls[idx]
		prod := N(1)
		if err := catchOverflow(func() {
			for _, f := range md.monomial {
				prod = prod.Mul(powerOf(e.value(f.v), f.p))
			}
		}); err != nil {
			return false
		}
		if !e.value(md.v).Equal(prod) && !e.update(md.v, prod) {
			return false
		}
	}

	for _, idx := range vi.adds {
		ad := &e.adds[idx]
		sum := ad.coeff
		if err := catchOverflow(func() {
			for _, a := range ad.args {
				sum = sum.Add(a.coeff.Mul(e.value(a.v)))
			}
		}); err != nil {
			return false
		}
		if !e.update(ad.v, sum) {
			return false
		}
	}
	return true
}

// canUpdateNum prechecks the shadow update used by the lookahead driver:
// range, bounds and dependent product overflow, with no state change.
func (e *Engine) canUpdateNum(v int, delta Num) bool {
	vi := &e.vars[v]
	oldValue := e.value(v)
	var newValue Num
	if err := catchOverflow(func() { newValue = oldValue.Add(delta) }); err != nil {
		return false
	}
	if oldValue.Equal(newValue) {
		return true
	}
	if !e.inVarRange(newValue) {
		return false
	}
	if !e.inBounds(v, newValue) && e.inBounds(v, oldValue) {
		return false
	}
	return catchOverflow(func() {
		for _, idx := range vi.muls {
			prod := N(1)
			for _, f := range e.muls[idx].monomial {
				if f.v == v {
					prod = prod.Mul(powerOf(newValue, f.p))
				} else {
					prod = prod.Mul(powerOf(e.value(f.v), f.p))
				}
			}
		}
	}) == nil
}

// updateNum applies a shadow delta through updateArgsValue; unlike update
// it never flips Boolean variables. The lookahead driver uses it to probe
// and then revert moves.
func (e *Engine) updateNum(v int, delta Num) bool {
	if delta.IsZero() {
		return true
	}
	if !e.canUpdateNum(v, delta) {
		return false
	}
	e.updateArgsValue(v, e.value(v).Add(delta))
	return true
}

// updateArgsValue recomputes dependent products, sums and cached atom
// values top-down for a shadow assignment v := newValue.
func (e *Engine) updateArgsValue(v int, newValue Num) {
	vi := &e.vars[v]

	for _, idx := range vi.muls {
		md := &e.muls[idx]
		prod := N(1)
		for _, f := range md.monomial {
			if f.v == v {
				prod = prod.Mul(powerOf(newValue, f.p))
			} else {
				prod = prod.Mul(powerOf(e.value(f.v), f.p))
			}
		}
		e.updateArgsValue(md.v, prod)
	}

	for _, idx := range vi.adds {
		ad := &e.adds[idx]
		sum := ad.coeff
		for _, a := range ad.args {
			if a.v == v {
				sum = sum.Add(a.coeff.Mul(newValue))
			} else {
				sum = sum.Add(a.coeff.Mul(e.value(a.v)))
			}
		}
		e.updateArgsValue(ad.v, sum)
	}

	oldValue := e.value(v)
	for _, occ := range vi.linearOccurs {
		iq := e.ineqs[occ.bv]
		iq.argsValue = iq.argsValue.Add(occ.coeff.Mul(newValue.Sub(oldValue)))
	}
	vi.value = newValue
}
