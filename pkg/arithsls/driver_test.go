package arithsls

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScore(t *testing.T) {
	h, e := newTestEngine(1)
	b := h.Bank()
	x := b.IntVar("x")
	atom := b.Le(x, b.Int(0))
	registerAtom(t, h, e, atom)
	h.Assert(atom)

	assert.InDelta(t, 1.0, e.newScore(atom), 1e-9)

	require.True(t, e.SetValue(x, N(5)))
	e.boolInfo = make(map[int]*boolInfo) // drop the stale truth cache
	assert.InDelta(t, 1.0-25.0/1e6, e.newScore(atom), 1e-9)

	// far violations score zero
	require.True(t, e.SetValue(x, N(2000)))
	e.boolInfo = make(map[int]*boolInfo)
	assert.InDelta(t, 0.0, e.newScore(atom), 1e-9)
}

func TestNewScoreNegatedAtom(t *testing.T) {
	h, e := newTestEngine(2)
	b := h.Bank()
	x := b.IntVar("x")
	atom := b.Le(x, b.Int(0))
	registerAtom(t, h, e, atom)

	// scoring the negation of a satisfied atom measures the escape distance
	require.True(t, e.SetValue(x, N(-3)))
	score := e.newScoreAs(atom, false)
	// distance 1 - (-3) = 4
	assert.InDelta(t, 1.0-16.0/1e6, score, 1e-9)
}

func TestGetFixableExprs(t *testing.T) {
	h, e := newTestEngine(3)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	p := b.Bool("p")
	atom := b.Le(b.Add(x, y), b.Int(10))
	h.AddAtom(atom)
	h.AddAtom(p)
	e.RegisterTerm(atom)
	f := b.Or(atom, p)
	h.Assert(f)

	exprs := e.getFixableExprs(f)
	ids := make([]int, 0, len(exprs))
	for _, ex := range exprs {
		ids = append(ids, ex.ID())
	}
	assert.ElementsMatch(t, []int{x.ID(), y.ID(), p.ID()}, ids)

	// memoized on second call
	assert.Equal(t, len(exprs), len(e.getFixableExprs(f)))
}

func TestGetFixableExprsDescendsProducts(t *testing.T) {
	h, e := newTestEngine(4)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	atom := b.Eq(b.Mul(x, y), b.Int(6))
	h.AddAtom(atom)
	e.RegisterTerm(atom)

	exprs := e.getFixableExprs(atom)
	ids := make([]int, 0, len(exprs))
	for _, ex := range exprs {
		ids = append(ids, ex.ID())
	}
	assert.ElementsMatch(t, []int{x.ID(), y.ID()}, ids)
}

func TestGetCandidateUnsatReservoir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UCB = false
	bank := NewBank()
	h := NewHarness(bank, 5)
	e := NewEngine(h, bank, cfg)

	x := bank.IntVar("x")
	sat := bank.Le(x, bank.Int(10))
	unsat := bank.Eq(x, bank.Int(3))
	h.AddAtom(sat)
	h.AddAtom(unsat)
	e.RegisterTerm(sat)
	e.RegisterTerm(unsat)
	h.Assert(sat)
	h.Assert(unsat)

	got := e.getCandidateUnsat()
	require.NotNil(t, got)
	assert.Equal(t, unsat.ID(), got.ID())
}

func TestGetCandidateUnsatUCB(t *testing.T) {
	h, e := newTestEngine(6)
	b := h.Bank()
	x := b.IntVar("x")
	unsat := b.Eq(x, b.Int(3))
	h.AddAtom(unsat)
	e.RegisterTerm(unsat)
	h.Assert(unsat)
	e.rescore()

	got := e.getCandidateUnsat()
	require.NotNil(t, got)
	assert.Equal(t, unsat.ID(), got.ID())
	assert.Equal(t, uint64(2), e.getBoolInfo(unsat).touched)
}

func TestRecalibrateWeightsBumpsUnsat(t *testing.T) {
	h, e := newTestEngine(7)
	b := h.Bank()
	x := b.IntVar("x")
	unsat := b.Eq(x, b.Int(3))
	h.AddAtom(unsat)
	e.RegisterTerm(unsat)
	h.Assert(unsat)

	before := e.getBoolInfo(unsat).weight
	for i := 0; i < 64; i++ {
		e.recalibrateWeights()
	}
	assert.Greater(t, e.getBoolInfo(unsat).weight, before)
}

func TestUpdateStackClosesOverParents(t *testing.T) {
	h, e := newTestEngine(8)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	s := b.Add(x, y)
	atom := b.Le(s, b.Int(10))
	h.AddAtom(atom)
	e.RegisterTerm(atom)
	f := b.Or(atom)
	h.Assert(f)

	e.insertUpdateStackRec(x)
	seen := make(map[int]bool)
	for _, level := range e.updateStack {
		for _, tm := range level {
			seen[tm.ID()] = true
		}
	}
	assert.True(t, seen[x.ID()])
	assert.True(t, seen[s.ID()])
	assert.True(t, seen[atom.ID()])
	assert.True(t, seen[f.ID()])
	e.clearUpdateStack()
}

func TestGlobalSearchSolvesLinearSystem(t *testing.T) {
	h, e := newTestEngine(9)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	a1 := b.Eq(y, b.Int(4))
	a2 := b.Eq(b.Add(x, y), b.Int(10))
	h.AddAtom(a1)
	h.AddAtom(a2)
	e.RegisterTerm(a1)
	e.RegisterTerm(a2)
	h.Assert(a1)
	h.Assert(a2)
	require.NoError(t, e.Initialize())

	e.GlobalSearch(context.Background())

	assert.True(t, e.Value(y).Equal(N(4)), "y = %s", e.Value(y))
	assert.True(t, e.Value(x).Equal(N(6)), "x = %s", e.Value(x))
	assert.True(t, e.IsSat())
	require.NoError(t, e.Invariant())
}

func TestGlobalSearchSolvesProduct(t *testing.T) {
	h, e := newTestEngine(10)
	b := h.Bank()
	x := b.IntVar("x")
	a := b.Eq(b.Mul(x, x), b.Int(9))
	h.AddAtom(a)
	e.RegisterTerm(a)
	h.Assert(a)
	require.NoError(t, e.Initialize())

	e.GlobalSearch(context.Background())

	assert.True(t, e.Value(x).Abs().Equal(N(3)), "x = %s", e.Value(x))
	assert.True(t, e.IsSat())
}

func TestGlobalSearchHonorsContext(t *testing.T) {
	h, e := newTestEngine(11)
	b := h.Bank()
	x := b.IntVar("x")
	a := b.Eq(x, b.Int(3))
	h.AddAtom(a)
	e.RegisterTerm(a)
	h.Assert(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.GlobalSearch(ctx)
	assert.Zero(t, e.Statistics().Moves)
}

func TestGlobalSearchHonorsBudget(t *testing.T) {
	h, e := newTestEngine(12)
	b := h.Bank()
	x := b.IntVar("x")
	// x = 3 and x = 5 cannot both hold; the search must stop on its own
	a1 := b.Eq(x, b.Int(3))
	a2 := b.Eq(x, b.Int(5))
	h.AddAtom(a1)
	h.AddAtom(a2)
	e.RegisterTerm(a1)
	e.RegisterTerm(a2)
	h.Assert(a1)
	h.Assert(a2)
	h.SetBudget(500)

	e.GlobalSearch(context.Background())
	assert.False(t, e.IsSat())
	assert.Positive(t, e.Statistics().Moves)
}

func TestStartPropagationGatedByConfig(t *testing.T) {
	h, e := newTestEngine(13)
	b := h.Bank()
	x := b.IntVar("x")
	a := b.Eq(x, b.Int(3))
	h.AddAtom(a)
	e.RegisterTerm(a)
	h.Assert(a)

	e.StartPropagation(context.Background())
	assert.Zero(t, e.Statistics().Moves, "lookahead disabled by default")

	e.cfg.UseLookahead = true
	e.StartPropagation(context.Background())
	assert.Positive(t, e.Statistics().Moves)
}
