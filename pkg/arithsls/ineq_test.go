package arithsls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(seed int64) (*Harness, *Engine) {
	bank := NewBank()
	h := NewHarness(bank, seed)
	return h, NewEngine(h, bank, DefaultConfig())
}

// registerAtom wires an atom into the harness and the engine and returns
// its Boolean variable.
func registerAtom(t *testing.T, h *Harness, e *Engine, atom *Term) BoolVar {
	t.Helper()
	bv := h.AddAtom(atom)
	e.RegisterTerm(atom)
	h.AddClause(Lit(bv, false))
	require.NotNil(t, e.ineqs[bv])
	return bv
}

func TestInitBoolVarClassification(t *testing.T) {
	tests := []struct {
		name     string
		build    func(b *Bank) *Term
		kind     ineqKind
		constant int64
	}{
		{"le", func(b *Bank) *Term { return b.Le(b.IntVar("x"), b.IntVar("y")) }, ineqLE, 0},
		{"ge swaps", func(b *Bank) *Term { return b.Ge(b.IntVar("x"), b.IntVar("y")) }, ineqLE, 0},
		{"int lt widens", func(b *Bank) *Term { return b.Lt(b.IntVar("x"), b.IntVar("y")) }, ineqLE, 1},
		{"int gt widens", func(b *Bank) *Term { return b.Gt(b.IntVar("x"), b.IntVar("y")) }, ineqLE, 1},
		{"real lt stays strict", func(b *Bank) *Term { return b.Lt(b.RealVar("x"), b.RealVar("y")) }, ineqLT, 0},
		{"eq", func(b *Bank) *Term { return b.Eq(b.IntVar("x"), b.IntVar("y")) }, ineqEQ, 0},
		{"le against numeral", func(b *Bank) *Term { return b.Le(b.IntVar("x"), b.Int(5)) }, ineqLE, -5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, e := newTestEngine(1)
			atom := tc.build(h.Bank())
			bv := registerAtom(t, h, e, atom)
			iq := e.ineqs[bv]
			assert.Equal(t, tc.kind, iq.kind)
			assert.True(t, iq.coeff.Equal(N(tc.constant)), "constant %s", iq.coeff)
			assert.True(t, iq.isLinear)
			require.NoError(t, e.invariantIneq(iq))
		})
	}
}

func TestGeSwapsOperandSigns(t *testing.T) {
	h, e := newTestEngine(1)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	bv := registerAtom(t, h, e, b.Ge(x, y))

	iq := e.ineqs[bv]
	vx, vy := e.termVarIdx[x.ID()], e.termVarIdx[y.ID()]
	coeffOf := func(v int) Num {
		for _, a := range iq.args {
			if a.v == v {
				return a.coeff
			}
		}
		t.Fatalf("variable %d missing from %s", v, iq)
		return Num{}
	}
	// x >= y is stored as y - x <= 0
	assert.True(t, coeffOf(vx).Equal(N(-1)))
	assert.True(t, coeffOf(vy).Equal(N(1)))
}

func TestDttCaseTable(t *testing.T) {
	_, e := newTestEngine(1)
	tests := []struct {
		kind  ineqKind
		sign  bool
		value int64
		want  int64
	}{
		{ineqLE, false, 0, 0},
		{ineqLE, false, -2, 0},
		{ineqLE, false, 2, 2},
		{ineqLE, true, 0, 1},
		{ineqLE, true, -2, 3},
		{ineqLE, true, 2, 0},
		{ineqEQ, false, 0, 0},
		{ineqEQ, false, 5, 1},
		{ineqEQ, true, 0, 1},
		{ineqEQ, true, 5, 0},
		{ineqLT, false, -1, 0},
		{ineqLT, false, 0, 1},
		{ineqLT, false, 2, 3},
		{ineqLT, true, -3, 3},
		{ineqLT, true, 0, 0},
	}
	for _, tc := range tests {
		iq := &ineq{kind: tc.kind}
		got := e.dtt(tc.sign, N(tc.value), iq)
		assert.True(t, got.Equal(N(tc.want)),
			"dtt(%v, %d, %s) = %s, want %d", tc.sign, tc.value, tc.kind, got, tc.want)
	}
}

func TestDttVarSubstitution(t *testing.T) {
	h, e := newTestEngine(1)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	// x + 2y <= 5
	bv := registerAtom(t, h, e, b.Le(b.Add(x, b.Mul(b.Int(2), y)), b.Int(5)))
	iq := e.ineqs[bv]
	vx := e.termVarIdx[x.ID()]
	vy := e.termVarIdx[y.ID()]

	// hypothesis x := 7 while y stays 0: value 7 - 5 = 2
	assert.True(t, e.dttVar(false, iq, vx, N(7)).Equal(N(2)))
	// hypothesis y := 3: value 6 - 5 = 1
	assert.True(t, e.dttVar(false, iq, vy, N(3)).Equal(N(1)))
	// hypothesis y := 1 keeps the atom true
	assert.True(t, e.dttVar(false, iq, vy, N(1)).IsZero())

	// a variable not occurring in the atom has distance 1
	z := b.IntVar("z")
	vz := e.mkTerm(z)
	assert.True(t, e.dttVar(false, iq, vz, N(100)).Equal(N(1)))
}

func TestArgsValueMaintainedAcrossCommits(t *testing.T) {
	h, e := newTestEngine(1)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	bv := registerAtom(t, h, e, b.Le(b.Add(x, y), b.Int(0)))

	require.True(t, e.SetValue(x, N(3)))
	require.True(t, e.SetValue(y, N(-5)))
	iq := e.ineqs[bv]
	assert.True(t, iq.argsValue.Equal(N(-2)), "cached %s", iq.argsValue)
	require.NoError(t, e.invariantIneq(iq))
	assert.True(t, iq.isTrue())
}

func TestDuplicateArgsCombine(t *testing.T) {
	h, e := newTestEngine(1)
	b := h.Bank()
	x := b.IntVar("x")
	// x + x <= 4 collapses to one argument with coefficient 2
	bv := registerAtom(t, h, e, b.Le(b.Add(x, x), b.Int(4)))
	iq := e.ineqs[bv]
	require.Len(t, iq.args, 1)
	assert.True(t, iq.args[0].coeff.Equal(N(2)))
}

func TestNonlinearIndex(t *testing.T) {
	h, e := newTestEngine(1)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	// x*y + x <= 8: factor x occurs through the monomial and directly
	bv := registerAtom(t, h, e, b.Le(b.Add(b.Mul(x, y), x), b.Int(8)))
	iq := e.ineqs[bv]
	assert.False(t, iq.isLinear)

	vx := e.termVarIdx[x.ID()]
	vy := e.termVarIdx[y.ID()]
	byVar := make(map[int]int)
	for _, entry := range iq.nonlinear {
		byVar[entry.x] = len(entry.occ)
	}
	assert.Equal(t, 2, byVar[vx])
	assert.Equal(t, 1, byVar[vy])
}

func TestNonlinearOccurrencesKeepExponents(t *testing.T) {
	h, e := newTestEngine(1)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	// x*y + x*x <= 3: factor x occurs with exponent 1 in one monomial and
	// exponent 2 in the other; each occurrence stays tied to its own
	// monomial variable
	bv := registerAtom(t, h, e, b.Le(b.Add(b.Mul(x, y), b.Mul(x, x)), b.Int(3)))
	iq := e.ineqs[bv]

	vx := e.termVarIdx[x.ID()]
	vxy := e.termVarIdx[b.Mul(x, y).ID()]
	vxx := e.termVarIdx[b.Mul(x, x).ID()]
	var entry nonlinEntry
	for _, en := range iq.nonlinear {
		if en.x == vx {
			entry = en
		}
	}
	require.Len(t, entry.occ, 2)
	byMonomial := make(map[int]nonlinCoeff)
	for _, o := range entry.occ {
		byMonomial[o.v] = o
	}
	assert.Equal(t, uint(1), byMonomial[vxy].p)
	assert.Equal(t, uint(2), byMonomial[vxx].p)
	assert.True(t, byMonomial[vxy].coeff.Equal(N(1)))
	assert.True(t, byMonomial[vxx].coeff.Equal(N(1)))

	// with y pinned the atom is quadratic in x: a from x*x, b from x*y
	require.True(t, e.SetValue(y, N(5)))
	a, bc, ok := e.isQuadraticIn(vx, entry.occ)
	require.True(t, ok)
	assert.True(t, a.Equal(N(1)))
	assert.True(t, bc.Equal(N(5)))
}
