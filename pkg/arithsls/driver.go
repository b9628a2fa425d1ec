package arithsls

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"
)

// The global search driver. Instead of reacting to single literals it
// walks the whole formula: unsatisfied root assertions are selected by a
// bandit rule, candidate variables are probed by lookahead over a weighted
// score of all roots, and assertion weights are recalibrated when progress
// stalls.

type tri int8

const (
	triUndef tri = iota
	triFalse
	triTrue
)

// boolInfo caches per-formula driver state: the PAWS weight, the cached
// truth value, the bandit touch count, the last computed score and the
// fixable atoms/variables reachable from the formula.
type boolInfo struct {
	weight       int
	value        tri
	touched      uint64
	score        float64
	fixableAtoms map[BoolVar]bool
	fixableVars  map[int]bool
	fixableExprs []*Term
}

// moveType selects one of the driver's move strategies.
type moveType int

const (
	moveRandomUpdate moveType = iota
	moveHillclimb
	moveRandomIncDec
)

func (t moveType) String() string {
	switch t {
	case moveRandomUpdate:
		return "random-update"
	case moveHillclimb:
		return "hillclimb"
	default:
		return "random-inc-dec"
	}
}

func (e *Engine) getBoolInfo(t *Term) *boolInfo {
	if info, ok := e.boolInfo[t.id]; ok {
		return info
	}
	info := &boolInfo{
		weight:       e.cfg.PawsInit,
		touched:      1,
		fixableAtoms: make(map[BoolVar]bool),
		fixableVars:  make(map[int]bool),
	}
	e.boolInfo[t.id] = info
	return info
}

// getBoolValueRec evaluates a Boolean term from scratch: uninterpreted
// leaves come from the host, connectives recurse through the cache, and
// atoms read their inequality's truth.
func (e *Engine) getBoolValueRec(t *Term) bool {
	if t.kind == KindBool {
		return e.ctx.BoolVal(t)
	}
	isArithEq := (t.kind == KindEq || t.kind == KindDistinct) && len(t.args) > 0 && t.args[0].IsArith()
	if !isArithEq && (isBoolConnective(t) || t.kind == KindTrue || t.kind == KindFalse || t.kind == KindEq) {
		return e.getBasicBoolValue(t)
	}
	if t.kind == KindDistinct && len(t.args) > 0 && t.args[0].IsArith() {
		return e.evalDistinct(t)
	}
	bv := e.ctx.AtomToBoolVar(t)
	if bv == NullBoolVar {
		return false
	}
	iq := e.ineqs[bv]
	if iq == nil {
		return false
	}
	return iq.isTrue()
}

// getBoolValue returns the cached truth of t, evaluating on first use.
func (e *Engine) getBoolValue(t *Term) bool {
	info := e.getBoolInfo(t)
	if info.value != triUndef {
		return info.value == triTrue
	}
	r := e.getBoolValueRec(t)
	e.setBoolValue(t, r)
	return r
}

func (e *Engine) setBoolValue(t *Term, b bool) {
	info := e.getBoolInfo(t)
	if b {
		info.value = triTrue
	} else {
		info.value = triFalse
	}
}

// getBasicBoolValue evaluates a Boolean connective over cached child
// values.
func (e *Engine) getBasicBoolValue(t *Term) bool {
	switch t.kind {
	case KindTrue:
		return true
	case KindFalse:
		return false
	case KindNot:
		return !e.getBoolValue(t.args[0])
	case KindAnd:
		for _, a := range t.args {
			if !e.getBoolValue(a) {
				return false
			}
		}
		return true
	case KindOr:
		for _, a := range t.args {
			if e.getBoolValue(a) {
				return true
			}
		}
		return false
	case KindXor:
		r := false
		for _, a := range t.args {
			r = r != e.getBoolValue(a)
		}
		return r
	case KindImplies:
		return !e.getBoolValue(t.args[0]) || e.getBoolValue(t.args[1])
	case KindIff:
		return e.getBoolValue(t.args[0]) == e.getBoolValue(t.args[1])
	case KindIte:
		if e.getBoolValue(t.args[0]) {
			return e.getBoolValue(t.args[1])
		}
		return e.getBoolValue(t.args[2])
	case KindEq:
		if t.args[0].sort == SortBool {
			return e.getBoolValue(t.args[0]) == e.getBoolValue(t.args[1])
		}
		return e.Value(t.args[0]).Equal(e.Value(t.args[1]))
	}
	return false
}

// newScore scores how close t is to being true: 1 for already true,
// structural min/max over connectives, and for atoms a falloff in the
// squared violation distance, zero beyond distance 1000.
func (e *Engine) newScore(t *Term) float64 {
	return e.newScoreAs(t, true)
}

func (e *Engine) newScoreAs(t *Term, isTrue bool) float64 {
	if e.getBoolValue(t) == isTrue {
		return 1
	}
	switch t.kind {
	case KindBool:
		return 0
	case KindTrue:
		if isTrue {
			return 1
		}
		return 0
	case KindFalse:
		if isTrue {
			return 0
		}
		return 1
	case KindNot:
		return e.newScoreAs(t.args[0], !isTrue)
	case KindAnd, KindOr:
		if (t.kind == KindAnd) == isTrue {
			score := 1.0
			for _, a := range t.args {
				score = math.Min(score, e.newScoreAs(a, isTrue))
			}
			return score
		}
		score := 0.0
		for _, a := range t.args {
			score = math.Max(score, e.newScoreAs(a, isTrue))
		}
		return score
	case KindIff:
		if isTrue == (e.getBoolValue(t.args[0]) == e.getBoolValue(t.args[1])) {
			return 1
		}
		return 0
	case KindIte:
		if e.getBoolValue(t.args[0]) {
			return e.newScoreAs(t.args[1], isTrue)
		}
		return e.newScoreAs(t.args[2], isTrue)
	}

	bv := e.ctx.AtomToBoolVar(t)
	if bv == NullBoolVar {
		return 0
	}
	iq := e.ineqs[bv]
	if iq == nil {
		return 0
	}

	value := iq.argsValue
	switch iq.kind {
	case ineqLE:
		if isTrue {
			if value.Sign() <= 0 {
				return 1
			}
		} else {
			if value.Sign() > 0 {
				return 1
			}
			value = value.Neg().Add(N(1))
		}
	case ineqLT:
		if isTrue {
			if value.Sign() < 0 {
				return 1
			}
		} else {
			if value.Sign() >= 0 {
				return 1
			}
			value = value.Neg()
		}
	case ineqEQ:
		if isTrue {
			if value.IsZero() {
				return 1
			}
			value = value.Abs()
		} else {
			if !value.IsZero() {
				return 1
			}
			return 0
		}
	}

	const maxValue = 1000.0
	d := value.Float64()
	if d > maxValue {
		return 0
	}
	return 1.0 - (d*d)/(maxValue*maxValue)
}

// rescore recomputes every root assertion's score from scratch.
func (e *Engine) rescore() {
	e.topScore = 0
	e.isRoot = make(map[int]bool)
	for _, a := range e.ctx.InputAssertions() {
		score := e.newScore(a)
		e.getBoolInfo(a).score = score
		e.topScore += score
		e.isRoot[a.id] = true
	}
}

// recalibrateWeights applies the PAWS rule: with small probability decay
// satisfied assertions, otherwise bump unsatisfied ones.
func (e *Engine) recalibrateWeights() {
	for _, a := range e.ctx.InputAssertions() {
		if e.ctx.Rand(2047) < e.cfg.PawsSP {
			if e.getBoolValue(a) {
				e.decWeight(a)
			}
		} else if !e.getBoolValue(a) {
			e.incWeight(a)
		}
	}
}

func (e *Engine) incWeight(t *Term) { e.getBoolInfo(t).weight++ }

func (e *Engine) decWeight(t *Term) {
	info := e.getBoolInfo(t)
	if info.weight > e.cfg.PawsInit {
		info.weight--
	}
}

// insertUpdateStack registers t in the depth-ordered update stack.
func (e *Engine) insertUpdateStack(t *Term) {
	for len(e.updateStack) <= t.depth {
		e.updateStack = append(e.updateStack, nil)
	}
	if !e.inUpdateStack[t.id] {
		e.inUpdateStack[t.id] = true
		e.updateStack[t.depth] = append(e.updateStack[t.depth], t)
	}
}

// insertUpdateStackRec seeds the stack with t and closes it under parents,
// so a later sweep visits every affected term in depth order.
func (e *Engine) insertUpdateStackRec(t *Term) {
	e.minDepth, e.maxDepth = t.depth, t.depth
	e.insertUpdateStack(t)
	for depth := t.depth; depth <= e.maxDepth; depth++ {
		if depth >= len(e.updateStack) {
			continue
		}
		for i := 0; i < len(e.updateStack[depth]); i++ {
			for _, p := range e.bank.Parents(e.updateStack[depth][i]) {
				e.insertUpdateStack(p)
				if p.depth > e.maxDepth {
					e.maxDepth = p.depth
				}
			}
		}
	}
}

func (e *Engine) clearUpdateStack() {
	e.inUpdateStack = make(map[int]bool)
	for i := e.minDepth; i <= e.maxDepth && i < len(e.updateStack); i++ {
		e.updateStack[i] = e.updateStack[i][:0]
	}
}

// lookahead sweeps the update stack in depth order, refreshing cached
// Boolean values, and returns the whole-formula score after the sweep. The
// flipped/updated term t itself keeps its forced value.
func (e *Engine) lookahead(t *Term, updateScore bool) float64 {
	score := e.topScore
	for depth := e.minDepth; depth <= e.maxDepth && depth < len(e.updateStack); depth++ {
		for _, a := range e.updateStack[depth] {
			if a != t && a.sort == SortBool {
				e.setBoolValue(a, e.getBoolValueRec(a))
			}
			if e.isRoot[a.id] {
				info := e.getBoolInfo(a)
				nscore := e.newScore(a)
				score += float64(info.weight) * (nscore - info.score)
				if updateScore {
					info.score = nscore
				}
			}
		}
	}
	return score
}

// lookaheadNum probes shifting v by delta: the shadow update is applied,
// the formula rescored, the best candidate recorded, and the value
// reverted.
func (e *Engine) lookaheadNum(v int, delta Num) {
	oldValue := e.value(v)
	t := e.vars[v].term
	if e.lastExpr != t {
		if e.lastExpr != nil {
			e.lookahead(e.lastExpr, false)
		}
		e.clearUpdateStack()
		e.insertUpdateStackRec(t)
		e.lastExpr = t
	} else if e.lastDelta.Equal(delta) {
		return
	}
	e.lastDelta = delta

	var newValue Num
	if err := catchOverflow(func() { newValue = oldValue.Add(delta) }); err != nil {
		return
	}
	if !e.updateNum(v, delta) {
		return
	}
	score := e.lookahead(t, false)
	if score > e.bestScore {
		e.bestScore = score
		e.bestValue = newValue
		e.bestExpr = t
	}
	e.updateArgsValue(v, oldValue)
}

// lookaheadBool probes flipping an uninterpreted Boolean leaf.
func (e *Engine) lookaheadBool(t *Term) {
	b := e.getBoolValue(t)
	e.setBoolValue(t, !b)
	e.clearUpdateStack()
	e.insertUpdateStackRec(t)
	score := e.lookahead(t, false)
	if score > e.bestScore {
		e.bestScore = score
		e.bestExpr = t
	}
	e.setBoolValue(t, b)
	e.lookahead(t, false)
	e.clearUpdateStack()
}

// addLookahead feeds candidate moves for one fixable expression: Boolean
// leaves get a flip probe, arithmetic variables get linear/quadratic moves
// for every fixable atom they occur in.
func (e *Engine) addLookahead(info *boolInfo, t *Term) {
	addAtom := func(bv BoolVar) {
		if !info.fixableAtoms[bv] || e.fixedAtoms[bv] {
			return
		}
		iq := e.ineqs[bv]
		if iq == nil {
			return
		}
		for _, entry := range iq.nonlinear {
			x := entry.x
			if !info.fixableVars[x] || e.isFixed(x) {
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
		e.fixedAtoms[bv] = true
	}

	if t.sort == SortBool {
		bv := e.ctx.AtomToBoolVar(t)
		if bv != NullBoolVar && info.fixableAtoms[bv] {
			e.lookaheadBool(t)
		}
		return
	}
	if !t.IsArith() {
		return
	}
	v := e.mkTerm(t)
	vi := &e.vars[v]
	for _, occ := range vi.linearOccurs {
		addAtom(occ.bv)
	}
	for _, idx := range vi.muls {
		x := e.muls[idx].v
		for _, occ := range e.vars[x].linearOccurs {
			addAtom(occ.bv)
		}
	}
}

// getFixableExprs collects, once per formula, the Boolean leaves and
// arithmetic base variables whose change can flip the formula: the DFS
// descends through connectives into atoms, and through sum and product
// definitions into their leaves.
func (e *Engine) getFixableExprs(t *Term) []*Term {
	info := e.getBoolInfo(t)
	if len(info.fixableExprs) > 0 {
		return info.fixableExprs
	}
	visited := make(map[int]bool)
	todo := []*Term{t}
	for len(todo) > 0 {
		cur := todo[len(todo)-1]
		todo = todo[:len(todo)-1]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		if isBoolConnective(cur) {
			todo = append(todo, cur.args...)
			continue
		}
		bv := e.ctx.AtomToBoolVar(cur)
		if bv == NullBoolVar {
			continue
		}
		if cur.kind == KindBool {
			if !info.fixableAtoms[bv] {
				info.fixableAtoms[bv] = true
				info.fixableExprs = append(info.fixableExprs, cur)
			}
			continue
		}
		iq := e.ineqs[bv]
		if iq == nil {
			continue
		}
		info.fixableAtoms[bv] = true
		var vars []int
		for _, entry := range iq.nonlinear {
			vars = append(vars, entry.x)
		}
		for j := 0; j < len(vars); j++ {
			v := vars[j]
			if info.fixableVars[v] {
				continue
			}
			switch {
			case e.isAdd(v):
				for _, a := range e.getAdd(v).args {
					vars = append(vars, a.v)
				}
			case e.isMul(v):
				for _, f := range e.getMul(v).monomial {
					vars = append(vars, f.v)
				}
			default:
				info.fixableExprs = append(info.fixableExprs, e.vars[v].term)
				info.fixableVars[v] = true
			}
		}
	}
	return info.fixableExprs
}

// applyMove runs one move strategy against the fixable expressions of the
// false formula f and commits the best candidate found. It reports whether
// a candidate was committed.
func (e *Engine) applyMove(f *Term, vars []*Term, mt moveType) bool {
	if len(vars) == 0 {
		return false
	}
	info := e.getBoolInfo(f)
	e.bestExpr = nil
	e.bestScore = e.topScore
	sz := len(vars)
	start := e.ctx.Rand(sz)
	e.updates = e.updates[:0]
	e.fixedAtoms = make(map[BoolVar]bool)

	switch mt {
	case moveRandomUpdate:
		for i := 0; i < sz; i++ {
			e.addLookahead(info, vars[(start+i)%sz])
		}
		if len(e.updates) == 0 {
			return false
		}
		u := e.updates[e.ctx.Rand(len(e.updates))]
		e.bestExpr = e.vars[u.v].term
		if err := catchOverflow(func() {
			e.bestValue = e.value(u.v).Add(u.delta)
		}); err != nil {
			return false
		}

	case moveHillclimb:
		for i := 0; i < sz; i++ {
			e.addLookahead(info, vars[(start+i)%sz])
		}
		if len(e.updates) == 0 {
			return false
		}
		sort.SliceStable(e.updates, func(a, b int) bool {
			ua, ub := e.updates[a], e.updates[b]
			if ua.v != ub.v {
				return ua.v < ub.v
			}
			return ua.delta.Cmp(ub.delta) < 0
		})
		e.lastExpr = nil
		n := len(e.updates)
		for i := 0; i < n; i++ {
			u := e.updates[(start+i)%n]
			e.lookaheadNum(u.v, u.delta)
		}
		if e.lastExpr != nil {
			e.lookahead(e.lastExpr, false)
			e.clearUpdateStack()
		}

	case moveRandomIncDec:
		t := vars[e.ctx.Rand(sz)]
		e.bestExpr = t
		if t.IsArith() {
			v := e.mkTerm(t)
			vi := &e.vars[v]
			switch {
			case len(vi.finiteDomain) > 0:
				e.bestValue = vi.finiteDomain[e.ctx.Rand(len(vi.finiteDomain))]
			case e.ctx.Rand(2) == 0:
				e.bestValue = e.value(v).Add(N(1))
			default:
				e.bestValue = e.value(v).Sub(N(1))
			}
		}
	}

	if e.bestExpr == nil {
		return false
	}
	if e.bestExpr.sort == SortBool {
		e.setBoolValue(e.bestExpr, !e.getBoolValue(e.bestExpr))
	} else {
		v := e.mkTerm(e.bestExpr)
		if !e.updateNum(v, e.bestValue.Sub(e.value(v))) {
			e.log.Debug("move rejected",
				zap.String("move", mt.String()), zap.Int("var", v))
			return false
		}
	}
	e.insertUpdateStackRec(e.bestExpr)
	e.topScore = e.lookahead(e.bestExpr, true)
	e.clearUpdateStack()
	return true
}

// getCandidateUnsat selects an unsatisfied root assertion: by UCB when
// enabled (score plus exploration bonus plus noise), otherwise by uniform
// reservoir sampling.
func (e *Engine) getCandidateUnsat() *Term {
	var chosen *Term
	if e.cfg.UCB {
		max := -1.0
		for _, a := range e.ctx.InputAssertions() {
			if e.getBoolValue(a) {
				continue
			}
			if len(e.getFixableExprs(a)) == 0 {
				continue
			}
			info := e.getBoolInfo(a)
			q := info.score +
				e.cfg.UCBConstant*math.Sqrt(math.Log(float64(e.touched))/float64(info.touched)) +
				e.cfg.UCBNoise*float64(e.ctx.Rand(512))
			if q > max {
				max, chosen = q, a
			}
		}
		if chosen != nil {
			e.touched++
			e.getBoolInfo(chosen).touched++
		}
	} else {
		n := 0
		for _, a := range e.ctx.InputAssertions() {
			if !e.getBoolValue(a) && len(e.getFixableExprs(a)) > 0 {
				n++
				if e.ctx.Rand(n) == 0 {
					chosen = a
				}
			}
		}
	}
	return chosen
}

// checkRestart paces the periodic rescoring and the restart schedule:
// every RestartBase moves the scores are rebuilt; past the restart horizon
// the horizon grows by an alternating schedule.
func (e *Engine) checkRestart() {
	if e.stats.Moves%e.cfg.RestartBase == 0 {
		e.ucbForget()
		e.rescore()
	}
	if e.stats.Moves < e.restartNext {
		return
	}
	e.stats.Restarts++
	if e.restartNext < e.stats.Moves {
		e.restartNext = e.stats.Moves
	}
	if e.stats.Restarts&1 == 1 {
		e.restartNext += e.cfg.RestartBase
	} else {
		e.restartNext += 2 * (e.stats.Restarts >> 1) * e.cfg.RestartBase
	}
	e.log.Debug("restart",
		zap.Uint64("restarts", e.stats.Restarts), zap.Uint64("next", e.restartNext))
	e.rescore()
}

// ucbForget decays the bandit touch counts toward 1.
func (e *Engine) ucbForget() {
	if e.cfg.UCBForget >= 1.0 {
		return
	}
	for _, a := range e.ctx.InputAssertions() {
		info := e.getBoolInfo(a)
		old := info.touched
		next := uint64(float64(old-1)*e.cfg.UCBForget + 1)
		info.touched = next
		e.touched += next - old
	}
}

// initializeBoolAssignment seeds the cached truth of every Boolean subterm
// of the root assertions from a fresh evaluation.
func (e *Engine) initializeBoolAssignment() {
	visited := make(map[int]bool)
	var subterms []*Term
	var walk func(t *Term)
	walk = func(t *Term) {
		if visited[t.id] {
			return
		}
		visited[t.id] = true
		for _, a := range t.args {
			walk(a)
		}
		if t.sort == SortBool {
			subterms = append(subterms, t)
		}
	}
	for _, a := range e.ctx.InputAssertions() {
		walk(a)
	}
	// children first: post-order keeps the cache consistent bottom-up
	for _, t := range subterms {
		e.setBoolValue(t, e.getBoolValueRec(t))
	}
}

// finalizeBoolAssignment pushes the cached truth of every atom back into
// the host's Boolean assignment.
func (e *Engine) finalizeBoolAssignment() {
	for bv := BoolVar(e.ctx.NumBoolVars() - 1); bv >= 0; bv-- {
		a := e.ctx.Atom(bv)
		if a == nil {
			continue
		}
		if e.getBoolValue(a) != e.ctx.IsTrue(Lit(bv, false)) {
			e.ctx.Flip(bv)
		}
	}
}

// GlobalSearch runs the lookahead search until the move budget, the host's
// resource budget, or the context expires. Exhausting the budget grows the
// next invocation's budget.
func (e *Engine) GlobalSearch(sc context.Context) {
	e.initializeBoolAssignment()
	e.rescore()
	if e.restartNext == 0 {
		e.restartNext = e.cfg.RestartBase
	}
	e.maxMoves = e.stats.Moves + e.cfg.MaxMovesBase
	e.log.Debug("lookahead search",
		zap.Uint64("moves", e.stats.Moves), zap.Uint64("max_moves", e.maxMoves))

	for e.ctx.Inc() && e.stats.Moves < e.maxMoves && sc.Err() == nil {
		e.stats.Moves++
		e.checkRestart()

		t := e.getCandidateUnsat()
		if t == nil {
			break
		}
		vars := e.getFixableExprs(t)
		if len(vars) == 0 {
			break
		}
		if e.ctx.Rand(2047) < e.cfg.WP && e.applyMove(t, vars, moveRandomIncDec) {
			continue
		}
		if e.applyMove(t, vars, moveHillclimb) {
			continue
		}
		if e.applyMove(t, vars, moveRandomUpdate) {
			e.recalibrateWeights()
		}
	}
	if e.stats.Moves >= e.maxMoves {
		e.cfg.MaxMovesBase += 100
	}
	e.finalizeBoolAssignment()
}

// StartPropagation is the host's entry point for a propagation round: in
// lookahead mode it runs the global search.
func (e *Engine) StartPropagation(sc context.Context) {
	if e.cfg.UseLookahead {
		e.GlobalSearch(sc)
	}
}
