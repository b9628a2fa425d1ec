package arithsls

import "go.uber.org/zap"

// The algebraic term model flattens host expression trees into free
// variables, linear sums, monomials and derived operator nodes. All nodes
// live in append-only arenas indexed by dense ids; relationships between
// them are plain indices, never pointers.

const nullIdx = -1

// opKind tags a derived variable's defining operator.
type opKind int

const (
	opNone opKind = iota
	opAdd
	opMul
	opMod
	opRem
	opIdiv
	opDiv
	opPower
	opAbs
	opToInt
	opToReal
)

func (k opKind) String() string {
	switch k {
	case opNone:
		return "leaf"
	case opAdd:
		return "add"
	case opMul:
		return "mul"
	case opMod:
		return "mod"
	case opRem:
		return "rem"
	case opIdiv:
		return "idiv"
	case opDiv:
		return "div"
	case opPower:
		return "power"
	case opAbs:
		return "abs"
	case opToInt:
		return "to_int"
	case opToReal:
		return "to_real"
	}
	return "?"
}

// bound is one side of a variable's admissible interval.
type bound struct {
	strict bool
	value  Num
}

// coeffVar is one (coefficient, variable) pair of a linear term.
type coeffVar struct {
	coeff Num
	v     int
}

// linearOccur records that a variable occurs linearly in the atom attached
// to bv, with the given coefficient.
type linearOccur struct {
	coeff Num
	bv    BoolVar
}

// monomialFactor is one (variable, exponent) factor of a monomial.
type monomialFactor struct {
	v int
	p uint
}

// mulDef binds a derived variable to the monomial defining it.
type mulDef struct {
	v        int
	monomial []monomialFactor
}

// linearTerm is a sum of coefficient*variable pairs plus a constant.
type linearTerm struct {
	args  []coeffVar
	coeff Num
}

// addDef binds a derived variable to the linear sum defining it.
type addDef struct {
	linearTerm
	v int
}

// opDef binds a derived variable to a non-sum, non-product operator over up
// to two operand variables.
type opDef struct {
	v    int
	kind opKind
	arg1 int
	arg2 int
}

// varInfo is one arithmetic unknown, bound 1:1 to a host term. If the
// variable is derived (op != opNone) its cached value always equals the
// defining operator evaluated over current argument values; the commit
// protocol in update.go re-establishes this after every accepted move.
type varInfo struct {
	term      *Term
	sort      Sort
	value     Num
	bestValue Num

	op     opKind
	defIdx int

	lo *bound
	hi *bound

	muls         []int
	adds         []int
	linearOccurs []linearOccur
	finiteDomain []Num

	tabuPosUntil uint64
	tabuNegUntil uint64
}

func (vi *varInfo) isTabu(step uint64, delta Num) bool {
	if delta.Sign() > 0 {
		return step < vi.tabuPosUntil
	}
	return step < vi.tabuNegUntil
}

func (vi *varInfo) setStep(until uint64, delta Num) {
	if delta.Sign() > 0 {
		vi.tabuPosUntil = until
	} else {
		vi.tabuNegUntil = until
	}
}

func (e *Engine) value(v int) Num { return e.vars[v].value }

func (e *Engine) isInt(v int) bool { return e.vars[v].sort == SortInt }

func (e *Engine) isMul(v int) bool { return e.vars[v].op == opMul }

func (e *Engine) isAdd(v int) bool { return e.vars[v].op == opAdd }

func (e *Engine) getMul(v int) *mulDef { return &e.muls[e.vars[v].defIdx] }

func (e *Engine) getAdd(v int) *addDef { return &e.adds[e.vars[v].defIdx] }

// inVarRange reports whether n is within the hard representable range every
// variable value must stay in.
func (e *Engine) inVarRange(n Num) bool {
	limit := N(e.cfg.VarRange)
	return n.Abs().Cmp(limit) < 0
}

// mkVar resolves the model variable bound to t, allocating one on first
// reference. Idempotent by term identity.
func (e *Engine) mkVar(t *Term) int {
	if v, ok := e.termVarIdx[t.id]; ok {
		return v
	}
	v := len(e.vars)
	e.termVarIdx[t.id] = v
	e.vars = append(e.vars, varInfo{term: t, sort: t.sort, defIdx: nullIdx})
	return v
}

func (e *Engine) addArg(lt *linearTerm, c Num, v int) {
	if !c.IsZero() {
		lt.args = append(lt.args, coeffVar{coeff: c, v: v})
	}
}

// addArgs flattens t into lt with an incoming coefficient: sums and
// negations distribute, numeral factors fold into coefficients, a product
// with a sum factor is distributed into synthesized product terms that are
// registered with the host, and a general product becomes a canonical
// monomial bound to a fresh derived variable. Remaining operators become
// derived operator nodes.
func (e *Engine) addArgs(lt *linearTerm, t *Term, coeff Num) {
	switch {
	case t.kind == KindNum:
		lt.coeff = lt.coeff.Add(coeff.Mul(t.num))
	case t.kind == KindAdd:
		for _, a := range t.args {
			e.addArgs(lt, a, coeff)
		}
	case t.kind == KindSub:
		e.addArgs(lt, t.args[0], coeff)
		e.addArgs(lt, t.args[1], coeff.Neg())
	case t.kind == KindNeg:
		e.addArgs(lt, t.args[0], coeff.Neg())
	case t.kind == KindMul && len(t.args) == 2 && t.args[0].kind == KindNum:
		e.addArgs(lt, t.args[1], t.args[0].num.Mul(coeff))
	case t.kind == KindMul && len(t.args) == 2 && t.args[1].kind == KindNum:
		e.addArgs(lt, t.args[0], t.args[1].num.Mul(coeff))
	case t.kind == KindMul && len(t.args) == 2 && t.args[1].kind == KindAdd:
		for _, s := range t.args[1].args {
			p := e.bank.Mul(t.args[0], s)
			e.newTerms = append(e.newTerms, p)
			e.addArgs(lt, p, coeff)
		}
	case t.kind == KindMul && len(t.args) == 2 && t.args[0].kind == KindAdd:
		for _, s := range t.args[0].args {
			p := e.bank.Mul(t.args[1], s)
			e.newTerms = append(e.newTerms, p)
			e.addArgs(lt, p, coeff)
		}
	case t.kind == KindMul:
		e.addMonomial(lt, t, coeff)
	default:
		if v, ok := e.termVarIdx[t.id]; ok {
			e.addArg(lt, coeff, v)
			return
		}
		switch t.kind {
		case KindMod:
			e.addArg(lt, coeff, e.mkOp(opMod, t, t.args[0], t.args[1]))
		case KindIdiv:
			e.addArg(lt, coeff, e.mkOp(opIdiv, t, t.args[0], t.args[1]))
		case KindDiv:
			e.addArg(lt, coeff, e.mkOp(opDiv, t, t.args[0], t.args[1]))
		case KindRem:
			e.addArg(lt, coeff, e.mkOp(opRem, t, t.args[0], t.args[1]))
		case KindPower:
			e.addArg(lt, coeff, e.mkOp(opPower, t, t.args[0], t.args[1]))
		case KindAbs:
			e.addArg(lt, coeff, e.mkOp(opAbs, t, t.args[0], t.args[0]))
		case KindToInt:
			e.addArg(lt, coeff, e.mkOp(opToInt, t, t.args[0], t.args[0]))
		case KindToReal:
			e.addArg(lt, coeff, e.mkOp(opToReal, t, t.args[0], t.args[0]))
		default:
			e.addArg(lt, coeff, e.mkVar(t))
		}
	}
}

// addMonomial canonicalizes a general n-ary product: factor variables are
// sorted, repeats compressed into exponents, and the monomial is bound to a
// derived variable whose value is the product of factor values.
func (e *Engine) addMonomial(lt *linearTerm, t *Term, coeff Num) {
	var ms []int
	for _, a := range t.args {
		ms = append(ms, e.mkTerm(a))
	}
	switch len(ms) {
	case 0:
		lt.coeff = lt.coeff.Add(coeff)
	case 1:
		e.addArg(lt, coeff, ms[0])
	default:
		v := e.mkVar(t)
		idx := nullIdx
		for i := range e.muls {
			if e.muls[i].v == v {
				idx = i
				break
			}
		}
		if idx == nullIdx {
			sortInts(ms)
			var mp []monomialFactor
			for i := 0; i < len(ms); i++ {
				w := ms[i]
				p := uint(1)
				for i+1 < len(ms) && ms[i+1] == w {
					p++
					i++
				}
				mp = append(mp, monomialFactor{v: w, p: p})
			}
			idx = len(e.muls)
			e.muls = append(e.muls, mulDef{v: v, monomial: mp})
			prod := N(1)
			for _, f := range mp {
				e.vars[f.v].muls = append(e.vars[f.v].muls, idx)
				prod = prod.Mul(powerOf(e.value(f.v), f.p))
			}
			e.vars[v].defIdx = idx
			e.vars[v].op = opMul
			e.vars[v].value = prod
		}
		e.addArg(lt, coeff, v)
	}
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// mkOp builds a derived operator node and seeds its cached value from the
// operand values.
func (e *Engine) mkOp(k opKind, t, x, y *Term) int {
	v := e.mkVar(t)
	vx := e.mkTerm(x)
	vy := e.mkTerm(y)
	idx := len(e.ops)
	var val Num
	switch k {
	case opMod:
		if e.value(vy).IsZero() {
			val = N(0)
		} else {
			val = emod(e.value(vx), e.value(vy))
		}
	case opRem:
		if e.value(vy).IsZero() {
			val = N(0)
		} else {
			val = rem(e.value(vx), e.value(vy))
		}
	case opIdiv:
		if e.value(vy).IsZero() {
			val = N(0)
		} else {
			val = ediv(e.value(vx), e.value(vy))
		}
	case opDiv:
		if e.value(vy).IsZero() {
			val = N(0)
		} else {
			val = e.value(vx).Div(e.value(vy))
		}
	case opAbs:
		val = e.value(vx).Abs()
	case opPower:
		val = powerValue(e.value(vx), e.value(vy))
	case opToInt:
		val = e.value(vx).Floor()
	case opToReal:
		val = e.value(vx)
	}
	e.ops = append(e.ops, opDef{v: v, kind: k, arg1: vx, arg2: vy})
	e.vars[v].defIdx = idx
	e.vars[v].op = k
	e.vars[v].value = val
	return v
}

// powerValue evaluates x^y, defined as 0 for exponents outside the
// non-negative integers (the repair machinery treats those shapes as
// unsupported anyway).
func powerValue(x, y Num) Num {
	if !y.IsInt() || y.Sign() < 0 {
		return N(0)
	}
	if y.IsZero() {
		return N(1)
	}
	return powerOf(x, uint(y.Int64()))
}

// mkTerm materializes the variable for t, flattening it into a linear sum
// first. When the flattened combination is exactly one variable with unit
// coefficient and zero constant, that variable is returned directly: no
// synthetic wrapper is created, so callers comparing variable identity see
// through trivial sums.
func (e *Engine) mkTerm(t *Term) int {
	if v, ok := e.termVarIdx[t.id]; ok {
		return v
	}
	var lt linearTerm
	e.addArgs(&lt, t, N(1))
	if lt.coeff.IsZero() && len(lt.args) == 1 && lt.args[0].coeff.Equal(N(1)) {
		return lt.args[0].v
	}
	v := e.mkVar(t)
	idx := len(e.adds)
	sum := lt.coeff
	e.adds = append(e.adds, addDef{linearTerm: lt, v: v})
	for _, a := range lt.args {
		e.vars[a.v].adds = append(e.vars[a.v].adds, idx)
		sum = sum.Add(a.coeff.Mul(e.value(a.v)))
	}
	e.vars[v].defIdx = idx
	e.vars[v].op = opAdd
	e.vars[v].value = sum
	return v
}

// evalByDef recomputes a derived variable's value directly from its
// defining operator and current operand values, independent of the cache.
func (e *Engine) evalByDef(v int) (Num, error) {
	vi := &e.vars[v]
	if vi.defIdx == nullIdx {
		return vi.value, nil
	}
	switch vi.op {
	case opAdd:
		ad := &e.adds[vi.defIdx]
		result := ad.coeff
		for _, a := range ad.args {
			result = result.Add(a.coeff.Mul(e.value(a.v)))
		}
		return result, nil
	case opMul:
		md := &e.muls[vi.defIdx]
		result := N(1)
		for _, f := range md.monomial {
			result = result.Mul(powerOf(e.value(f.v), f.p))
		}
		return result, nil
	case opMod:
		od := &e.ops[vi.defIdx]
		if e.value(od.arg2).IsZero() {
			return N(0), nil
		}
		return emod(e.value(od.arg1), e.value(od.arg2)), nil
	case opRem:
		od := &e.ops[vi.defIdx]
		if e.value(od.arg2).IsZero() {
			return N(0), nil
		}
		return rem(e.value(od.arg1), e.value(od.arg2)), nil
	case opIdiv:
		od := &e.ops[vi.defIdx]
		if e.value(od.arg2).IsZero() {
			return N(0), nil
		}
		return ediv(e.value(od.arg1), e.value(od.arg2)), nil
	case opDiv:
		od := &e.ops[vi.defIdx]
		if e.value(od.arg2).IsZero() {
			return N(0), nil
		}
		return e.value(od.arg1).Div(e.value(od.arg2)), nil
	case opAbs:
		od := &e.ops[vi.defIdx]
		return e.value(od.arg1).Abs(), nil
	case opPower:
		od := &e.ops[vi.defIdx]
		y := e.value(od.arg2)
		if !y.IsInt() || y.Sign() < 0 {
			return Num{}, ErrUnsupported
		}
		return powerValue(e.value(od.arg1), y), nil
	case opToInt:
		od := &e.ops[vi.defIdx]
		return e.value(od.arg1).Floor(), nil
	case opToReal:
		od := &e.ops[vi.defIdx]
		return e.value(od.arg1), nil
	}
	return vi.value, nil
}

// flushNewTerms hands terms synthesized during flattening to the host so it
// can track them in its own term universe.
func (e *Engine) flushNewTerms() {
	for _, t := range e.newTerms {
		e.ctx.AddNewTerm(t)
	}
	e.newTerms = e.newTerms[:0]
}

// inBounds reports whether value respects v's lower and upper bound.
func (e *Engine) inBounds(v int, value Num) bool {
	vi := &e.vars[v]
	if vi.lo != nil {
		if value.Cmp(vi.lo.value) < 0 {
			return false
		}
		if vi.lo.strict && value.Cmp(vi.lo.value) <= 0 {
			return false
		}
	}
	if vi.hi != nil {
		if value.Cmp(vi.hi.value) > 0 {
			return false
		}
		if vi.hi.strict && value.Cmp(vi.hi.value) >= 0 {
			return false
		}
	}
	return true
}

// isFixed reports whether v's bounds pin it to its current value.
func (e *Engine) isFixed(v int) bool {
	vi := &e.vars[v]
	return vi.lo != nil && vi.hi != nil &&
		vi.lo.value.Equal(vi.hi.value) && vi.lo.value.Equal(vi.value)
}

func (e *Engine) addLE(v int, n Num) {
	vi := &e.vars[v]
	if vi.hi != nil && vi.hi.value.Cmp(n) <= 0 {
		return
	}
	vi.hi = &bound{strict: false, value: n}
}

func (e *Engine) addGE(v int, n Num) {
	vi := &e.vars[v]
	if vi.lo != nil && vi.lo.value.Cmp(n) >= 0 {
		return
	}
	vi.lo = &bound{strict: false, value: n}
}

func (e *Engine) addLT(v int, n Num) {
	if e.isInt(v) {
		e.addLE(v, n.Sub(N(1)))
	} else {
		e.vars[v].hi = &bound{strict: true, value: n}
	}
}

func (e *Engine) addGT(v int, n Num) {
	if e.isInt(v) {
		e.addGE(v, n.Add(N(1)))
	} else {
		e.vars[v].lo = &bound{strict: true, value: n}
	}
}

// Initialize seeds bounds and finite domains from the host's unit literals
// and input assertions, then derives bounds for composite variables from
// their definitions. Call once after the model has been populated.
func (e *Engine) Initialize() error {
	return catchOverflow(func() {
		for _, lit := range e.ctx.UnitLiterals() {
			e.initializeUnit(lit)
		}
		for _, f := range e.ctx.InputAssertions() {
			e.initializeInputAssertion(f)
		}
		for v := 0; v < len(e.vars); v++ {
			e.initializeDerivedBounds(v)
		}
	})
}

// initializeUnit turns a unit ±x ⊕ c literal into a bound on x.
func (e *Engine) initializeUnit(lit Literal) {
	if err := e.InitBoolVar(lit.Var); err != nil {
		return
	}
	iq := e.ineqs[lit.Var]
	if iq == nil || len(iq.args) != 1 {
		return
	}
	c, v := iq.args[0].coeff, iq.args[0].v
	one, negOne := N(1), N(-1)
	switch iq.kind {
	case ineqLE:
		if lit.Sign {
			if c.Equal(negOne) {
				e.addLE(v, iq.coeff)
			} else if c.Equal(one) {
				e.addGE(v, iq.coeff.Neg())
			}
		} else {
			if c.Equal(negOne) {
				e.addGE(v, iq.coeff)
			} else if c.Equal(one) {
				e.addLE(v, iq.coeff.Neg())
			}
		}
	case ineqEQ:
		if !lit.Sign {
			if c.Equal(negOne) {
				e.addGE(v, iq.coeff)
				e.addLE(v, iq.coeff)
			} else if c.Equal(one) {
				e.addGE(v, iq.coeff.Neg())
				e.addLE(v, iq.coeff.Neg())
			}
		}
	case ineqLT:
		if lit.Sign {
			if c.Equal(negOne) {
				e.addLE(v, iq.coeff)
			} else if c.Equal(one) {
				e.addGE(v, iq.coeff.Neg())
			}
		} else {
			if c.Equal(negOne) {
				e.addGT(v, iq.coeff)
			} else if c.Equal(one) {
				e.addLT(v, iq.coeff.Neg())
			}
		}
	}
}

// initializeInputAssertion recognizes or(x=c1, ..., x=cn) assertions and
// records the constants as x's finite domain.
func (e *Engine) initializeInputAssertion(f *Term) {
	if f.kind != KindOr {
		return
	}
	v := nullIdx
	var values []Num
	for _, arg := range f.args {
		if arg.kind != KindEq {
			return
		}
		x, y := arg.args[0], arg.args[1]
		if y.kind != KindNum {
			return
		}
		w, ok := e.termVarIdx[x.id]
		if !ok || (v != w && v != nullIdx) {
			return
		}
		v = w
		values = append(values, y.num)
	}
	if v != nullIdx {
		e.vars[v].finiteDomain = append(e.vars[v].finiteDomain, values...)
	}
}

// initializeDerivedBounds propagates bounds from a derived variable's
// definition: interval arithmetic over sums, sign-aware products, the hull
// of ite branches, and operator-specific facts (mod range, abs >= 0).
func (e *Engine) initializeDerivedBounds(v int) {
	vi := &e.vars[v]
	if vi.lo != nil || vi.hi != nil {
		return
	}
	if e.isAdd(v) {
		ad := e.getAdd(v)
		lo, hi := ad.coeff, ad.coeff
		loValid, hiValid := true, true
		loStrict, hiStrict := false, false
		for _, a := range ad.args {
			if !loValid && !hiValid {
				break
			}
			wi := &e.vars[a.v]
			if loValid {
				switch {
				case a.coeff.Sign() > 0 && wi.lo != nil:
					lo = lo.Add(a.coeff.Mul(wi.lo.value))
					loStrict = loStrict || wi.lo.strict
				case a.coeff.Sign() < 0 && wi.hi != nil:
					lo = lo.Add(a.coeff.Mul(wi.hi.value))
					loStrict = loStrict || wi.hi.strict
				default:
					loValid = false
				}
			}
			if hiValid {
				switch {
				case a.coeff.Sign() > 0 && wi.hi != nil:
					hi = hi.Add(a.coeff.Mul(wi.hi.value))
					hiStrict = hiStrict || wi.hi.strict
				case a.coeff.Sign() < 0 && wi.lo != nil:
					hi = hi.Add(a.coeff.Mul(wi.lo.value))
					hiStrict = hiStrict || wi.lo.strict
				default:
					hiValid = false
				}
			}
		}
		if loValid {
			if loStrict {
				e.addGT(v, lo)
			} else {
				e.addGE(v, lo)
			}
		}
		if hiValid {
			if hiStrict {
				e.addLT(v, hi)
			} else {
				e.addLE(v, hi)
			}
		}
	}
	if e.isMul(v) {
		md := e.getMul(v)
		lo, hi := N(1), N(1)
		loValid, hiValid := true, true
		for _, f := range md.monomial {
			wi := &e.vars[f.v]
			if wi.lo == nil || wi.lo.strict || wi.lo.value.Sign() < 0 {
				loValid = false
				break
			}
			lo = lo.Mul(powerOf(wi.lo.value, f.p))
		}
		for _, f := range md.monomial {
			if !loValid && !hiValid {
				break
			}
			wi := &e.vars[f.v]
			if wi.hi == nil || wi.hi.strict {
				hiValid = false
				continue
			}
			if err := catchOverflow(func() {
				hi = hi.Mul(powerOf(wi.hi.value, f.p))
			}); err != nil {
				e.log.Debug("overflow while deriving product bound", zap.Int("var", v))
				hiValid = false
			}
		}
		if loValid {
			e.addGE(v, lo)
		}
		if loValid && hiValid {
			e.addLE(v, hi)
		}
	}
	if t := vi.term; t.kind == KindIte {
		vth, okTh := e.termVarIdx[t.args[1].id]
		vel, okEl := e.termVarIdx[t.args[2].id]
		if okTh && okEl {
			ith, iel := &e.vars[vth], &e.vars[vel]
			if ith.lo != nil && iel.lo != nil && !ith.lo.strict && !iel.lo.strict {
				e.addGE(v, minNum(ith.lo.value, iel.lo.value))
			}
			if ith.hi != nil && iel.hi != nil && !ith.hi.strict && !iel.hi.strict {
				e.addLE(v, maxNum(ith.hi.value, iel.hi.value))
			}
		}
	}
	switch vi.op {
	case opMod:
		od := &e.ops[vi.defIdx]
		vi2 := &e.vars[od.arg2]
		if vi2.lo != nil && vi2.hi != nil && vi2.lo.value.Equal(vi2.hi.value) && vi2.lo.value.Sign() > 0 {
			e.addLE(v, vi2.lo.value.Sub(N(1)))
			e.addGE(v, N(0))
		}
	case opAbs:
		e.addGE(v, N(0))
	}
}

func minNum(a, b Num) Num {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func maxNum(a, b Num) Num {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
