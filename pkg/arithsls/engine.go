package arithsls

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Context is the capability set the engine consumes from its SAT
// local-search host. The host owns the clause database, the Boolean
// assignment, randomness and the resource budget; the engine only reads
// through this interface and pushes value-change notifications back.
type Context interface {
	// IsTrue reports whether the literal holds under the host's current
	// Boolean assignment.
	IsTrue(l Literal) bool

	// Flip toggles the Boolean variable's truth value.
	Flip(bv BoolVar)

	// Atom returns the term attached to a Boolean variable, or nil.
	Atom(bv BoolVar) *Term

	// AtomToBoolVar returns the Boolean variable attached to an atom, or
	// NullBoolVar.
	AtomToBoolVar(t *Term) BoolVar

	// NumBoolVars returns the host's Boolean variable count.
	NumBoolVars() int

	// Clauses returns the host's clause database.
	Clauses() []Clause

	// GetClause returns the clause with the given index.
	GetClause(idx int) Clause

	// InputAssertions returns the top-level input constraints.
	InputAssertions() []*Term

	// UnitLiterals returns the literals forced at the root level.
	UnitLiterals() []Literal

	// IsUnit reports whether the literal is a root-level unit.
	IsUnit(l Literal) bool

	// Rand returns a uniform value in [0, n). n must be positive.
	Rand(n int) int

	// RandFloat returns a uniform value in [0, 1).
	RandFloat() float64

	// NewValue notifies the host that a term's externally visible value
	// changed.
	NewValue(t *Term)

	// AddNewTerm registers a term synthesized by the engine (from product
	// distribution) with the host's term universe.
	AddNewTerm(t *Term)

	// BoolVal returns the host's assignment of an uninterpreted Boolean
	// leaf.
	BoolVal(t *Term) bool

	// Inc reports whether the resource budget allows continuing.
	Inc() bool
}

// Stats is the engine's statistics snapshot.
type Stats struct {
	// Steps counts accepted variable updates.
	Steps uint64
	// Moves counts global-search iterations.
	Moves uint64
	// Restarts counts restart events of the global search.
	Restarts uint64
}

// Engine is the arithmetic SLS plugin. It owns the algebraic term model
// (variables, sums, monomials, operator nodes), the inequality atoms, and
// the move/repair machinery. All state is single-threaded and mutated only
// from within the engine's own call paths.
type Engine struct {
	ctx  Context
	bank *Bank
	cfg  Config
	log  *zap.Logger

	vars       []varInfo
	muls       []mulDef
	adds       []addDef
	ops        []opDef
	termVarIdx map[int]int
	ineqs      map[BoolVar]*ineq
	newTerms   []*Term

	updates   []update
	probBreak []float64
	inCommit  map[int]bool

	useTabu     bool
	lastVar     int
	lastDelta   Num
	lastLiteral Literal

	stats Stats

	// global search state
	boolInfo      map[int]*boolInfo
	touched       uint64
	topScore      float64
	isRoot        map[int]bool
	updateStack   [][]*Term
	inUpdateStack map[int]bool
	minDepth      int
	maxDepth      int
	lastExpr      *Term
	bestExpr      *Term
	bestScore     float64
	bestValue     Num
	fixedAtoms    map[BoolVar]bool
	maxMoves      uint64
	restartNext   uint64
}

// NewEngine builds an engine over the host context and term bank.
func NewEngine(ctx Context, bank *Bank, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		ctx:           ctx,
		bank:          bank,
		cfg:           cfg,
		log:           cfg.Logger,
		termVarIdx:    make(map[int]int),
		ineqs:         make(map[BoolVar]*ineq),
		inCommit:      make(map[int]bool),
		useTabu:       cfg.UseTabu,
		lastVar:       nullIdx,
		touched:       1,
		boolInfo:      make(map[int]*boolInfo),
		isRoot:        make(map[int]bool),
		inUpdateStack: make(map[int]bool),
		fixedAtoms:    make(map[BoolVar]bool),
	}
}

// Value returns the current value of the variable bound to t, materializing
// the term model for t on first use.
func (e *Engine) Value(t *Term) Num {
	if t.kind == KindNum {
		return t.num
	}
	return e.value(e.mkTerm(t))
}

// GetValue is an alias for Value matching the host-facing surface.
func (e *Engine) GetValue(t *Term) Num { return e.Value(t) }

// SetValue attempts to move the variable bound to t to value n through the
// regular commit protocol. It reports whether the commit succeeded.
func (e *Engine) SetValue(t *Term, n Num) bool {
	if !t.IsArith() {
		return false
	}
	v := e.mkTerm(t)
	if n.Equal(e.value(v)) {
		return true
	}
	ok := e.update(v, n)
	if !ok {
		e.log.Debug("set value failed",
			zap.String("term", t.String()), zap.String("value", n.String()))
	}
	return ok
}

// IsFixed reports whether t's value is pinned by equal bounds, and if so
// returns that value.
func (e *Engine) IsFixed(t *Term) (Num, bool) {
	if !t.IsArith() {
		return Num{}, false
	}
	if t.kind == KindNum {
		return t.num, true
	}
	v := e.mkTerm(t)
	if e.isFixed(v) {
		return e.value(v), true
	}
	return Num{}, false
}

// RegisterTerm makes the engine aware of a host term: atoms get their
// inequality built, and arithmetic arguments of foreign operators get model
// variables.
func (e *Engine) RegisterTerm(t *Term) {
	if bv := e.ctx.AtomToBoolVar(t); bv != NullBoolVar {
		e.InitBoolVar(bv)
	}
	if !t.IsArith() && t.kind != KindEq && t.kind != KindDistinct {
		for _, a := range t.args {
			if a.IsArith() {
				e.mkTerm(a)
			}
		}
	}
	e.flushNewTerms()
}

// InitBoolVarAssignment aligns the host's truth value of bv with the model:
// if the attached inequality's truth disagrees with the Boolean assignment,
// the Boolean variable is flipped.
func (e *Engine) InitBoolVarAssignment(bv BoolVar) {
	if iq := e.ineqs[bv]; iq != nil && iq.isTrue() != e.ctx.IsTrue(Lit(bv, false)) {
		e.ctx.Flip(bv)
	}
	if a := e.ctx.Atom(bv); a != nil && e.isDistinct(a) && e.evalDistinct(a) != e.ctx.IsTrue(Lit(bv, false)) {
		e.ctx.Flip(bv)
	}
}

// PropagateLiteral reacts to lit becoming true in the host: when the
// attached atom is currently violated it attempts a repair.
func (e *Engine) PropagateLiteral(lit Literal) {
	if !e.ctx.IsTrue(lit) {
		return
	}
	a := e.ctx.Atom(lit.Var)
	if a != nil && e.isDistinct(a) && e.evalDistinct(a) != e.ctx.IsTrue(lit) {
		e.repairDistinct(a)
		return
	}
	iq := e.ineqs[lit.Var]
	if iq == nil {
		return
	}
	if iq.isTrue() != lit.Sign {
		return
	}
	e.Repair(lit)
}

// RepairLiteral realigns the Boolean assignment of lit's variable with the
// arithmetic model.
func (e *Engine) RepairLiteral(lit Literal) {
	e.InitBoolVarAssignment(lit.Var)
}

// Repair attempts to make the forced-true literal actually true by moving
// arithmetic variables. It tries nonlinear moves first, then degrades to
// reset moves with tabu disabled. It reports whether some update committed.
func (e *Engine) Repair(lit Literal) bool {
	e.lastLiteral = lit
	if e.findNlMoves(lit) {
		return true
	}
	saved := e.useTabu
	e.useTabu = false
	defer func() { e.useTabu = saved }()
	return e.findResetMoves(lit)
}

// Statistics returns a snapshot of the engine's counters.
func (e *Engine) Statistics() Stats { return e.stats }

// ResetStatistics clears the flip counter.
func (e *Engine) ResetStatistics() { e.stats.Steps = 0 }

// SaveBestValues snapshots the current assignment as the best seen so far
// and verifies atom/assignment agreement.
func (e *Engine) SaveBestValues() error {
	for i := range e.vars {
		e.vars[i].bestValue = e.vars[i].value
	}
	return e.checkIneqs()
}

// BestValue returns the last snapshotted value of the variable bound to t.
func (e *Engine) BestValue(t *Term) Num {
	if t.kind == KindNum {
		return t.num
	}
	return e.vars[e.mkTerm(t)].bestValue
}

// checkIneqs verifies that every registered atom's truth agrees with the
// host's Boolean assignment.
func (e *Engine) checkIneqs() error {
	for bv, iq := range e.ineqs {
		sign := !e.ctx.IsTrue(Lit(bv, false))
		d := e.dtt(sign, iq.argsValue, iq)
		if e.ctx.IsTrue(Lit(bv, sign)) != d.IsZero() {
			return fmt.Errorf("arithsls: invalid assignment for atom b%d: %s", bv, iq)
		}
	}
	return nil
}

// isDistinct reports whether t is a pairwise-disequality atom over
// arithmetic arguments.
func (e *Engine) isDistinct(t *Term) bool {
	return t.kind == KindDistinct && len(t.args) > 0 && t.args[0].IsArith()
}

// evalDistinct evaluates a distinct atom under the current assignment.
func (e *Engine) evalDistinct(t *Term) bool {
	for i := 0; i < len(t.args); i++ {
		for j := i + 1; j < len(t.args); j++ {
			if e.value(e.mkTerm(t.args[i])).Equal(e.value(e.mkTerm(t.args[j]))) {
				return false
			}
		}
	}
	return true
}

// repairDistinct nudges one side of every coinciding pair apart.
func (e *Engine) repairDistinct(t *Term) {
	for i := 0; i < len(t.args); i++ {
		for j := i + 1; j < len(t.args); j++ {
			v1 := e.mkTerm(t.args[i])
			v2 := e.mkTerm(t.args[j])
			if !e.value(v1).Equal(e.value(v2)) {
				continue
			}
			newValue := e.value(v1).Add(N(1))
			if newValue.Equal(e.value(v2)) {
				newValue = newValue.Add(N(1))
			}
			if !e.isFixed(v2) {
				e.update(v2, newValue)
			} else if !e.isFixed(v1) {
				e.update(v1, newValue)
			}
		}
	}
}

// String renders the model state for diagnostics.
func (e *Engine) String() string {
	var sb strings.Builder
	for bv, iq := range e.ineqs {
		fmt.Fprintf(&sb, "b%d: %s\n", bv, iq)
	}
	for v := range e.vars {
		sb.WriteString(e.displayVar(v))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (e *Engine) displayVar(v int) string {
	vi := &e.vars[v]
	var sb strings.Builder
	fmt.Fprintf(&sb, "v%d := %s", v, vi.value)
	if vi.lo != nil || vi.hi != nil {
		sb.WriteByte(' ')
		if vi.lo != nil {
			if vi.lo.strict {
				fmt.Fprintf(&sb, "(%s", vi.lo.value)
			} else {
				fmt.Fprintf(&sb, "[%s", vi.lo.value)
			}
		} else {
			sb.WriteByte('(')
		}
		sb.WriteByte(' ')
		if vi.hi != nil {
			if vi.hi.strict {
				fmt.Fprintf(&sb, "%s)", vi.hi.value)
			} else {
				fmt.Fprintf(&sb, "%s]", vi.hi.value)
			}
		} else {
			sb.WriteByte(')')
		}
	}
	fmt.Fprintf(&sb, " %s", vi.term)
	return sb.String()
}
