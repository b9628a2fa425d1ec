package arithsls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairAddReconcilesSum(t *testing.T) {
	h, e := newTestEngine(1)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	s := b.Add(x, y)
	vs := e.mkTerm(s)

	require.True(t, e.SetValue(x, N(2)))
	require.True(t, e.SetValue(y, N(3)))
	require.True(t, e.value(vs).Equal(N(5)))

	// desynchronize the result and let the repair move a summand
	require.True(t, e.update(vs, N(9)))
	require.True(t, e.RepairDown(s))
	assert.True(t, e.Value(x).Add(e.Value(y)).Equal(e.value(vs)))
	require.NoError(t, e.Invariant())
}

func TestRepairAddExactDeltaTargetsValue(t *testing.T) {
	h, e := newTestEngine(2)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	s := b.Add(x, y)
	vs := e.mkTerm(s)

	require.True(t, e.SetValue(x, N(2)))
	require.True(t, e.SetValue(y, N(3)))
	require.True(t, e.update(vs, N(9)))

	// the exact move shifts one summand by +4, re-deriving the sum as 9
	require.True(t, e.RepairDown(s))
	assert.True(t, e.value(vs).Equal(N(9)), "sum landed at %s", e.value(vs))
}

func TestRepairMulZero(t *testing.T) {
	h, e := newTestEngine(3)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	m := b.Mul(x, y)
	vm := e.mkTerm(m)

	require.True(t, e.SetValue(x, N(3)))
	require.True(t, e.SetValue(y, N(4)))
	require.True(t, e.update(vm, N(0)))

	require.True(t, e.RepairDown(m))
	assert.True(t, e.Value(x).Mul(e.Value(y)).IsZero())
	require.NoError(t, e.Invariant())
}

func TestRepairMulRoot(t *testing.T) {
	h, e := newTestEngine(4)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	m := b.Mul(x, y)
	vm := e.mkTerm(m)
	vy := e.termVarIdx[y.ID()]

	require.True(t, e.SetValue(x, N(3)))
	require.True(t, e.SetValue(y, N(4)))
	// pin y so the repair must move x
	e.addGE(vy, N(4))
	e.addLE(vy, N(4))

	require.True(t, e.update(vm, N(8)))
	require.True(t, e.RepairDown(m))
	assert.True(t, e.Value(x).Equal(N(2)))
	assert.True(t, e.value(vm).Equal(N(8)))
	require.NoError(t, e.Invariant())
}

func TestRepairModShiftsDividend(t *testing.T) {
	h, e := newTestEngine(5)
	b := h.Bank()
	x := b.IntVar("x")
	mt := b.Mod(x, b.Int(7))
	vmod := e.mkTerm(mt)

	require.True(t, e.SetValue(x, N(5)))
	require.True(t, e.update(vmod, N(3)))
	require.True(t, e.RepairDown(mt))
	assert.True(t, emod(e.Value(x), N(7)).Equal(N(3)), "x = %s", e.Value(x))
}

func TestRepairModOutOfRangeResult(t *testing.T) {
	h, e := newTestEngine(6)
	b := h.Bank()
	x := b.IntVar("x")
	mt := b.Mod(x, b.Int(7))
	vmod := e.mkTerm(mt)

	require.True(t, e.SetValue(x, N(5)))
	require.True(t, e.update(vmod, N(11)))
	// 11 is not a legal remainder; the result snaps to mod(5, 7)
	require.True(t, e.RepairDown(mt))
	assert.True(t, e.value(vmod).Equal(N(5)))
}

func TestRepairAbs(t *testing.T) {
	h, e := newTestEngine(7)
	b := h.Bank()
	x := b.IntVar("x")
	at := b.Abs(x)
	vab := e.mkTerm(at)

	require.True(t, e.update(vab, N(4)))
	require.True(t, e.RepairDown(at))
	assert.True(t, e.Value(x).Abs().Equal(N(4)))
	require.NoError(t, e.Invariant())
}

func TestRepairToInt(t *testing.T) {
	h, e := newTestEngine(8)
	b := h.Bank()
	r := b.RealVar("r")
	ti := b.ToInt(r)
	vti := e.mkTerm(ti)

	// consistent floor needs no movement
	require.True(t, e.SetValue(r, Rat(1, 2)))
	require.True(t, e.update(vti, e.Value(r).Floor()))
	require.True(t, e.RepairDown(ti))
	assert.True(t, e.Value(r).Equal(Rat(1, 2)))

	// a stale floor snaps the argument onto the result
	require.True(t, e.update(vti, N(5)))
	require.True(t, e.RepairDown(ti))
	assert.True(t, e.Value(r).Floor().Equal(e.value(vti)))
}

func TestRepairIdiv(t *testing.T) {
	h, e := newTestEngine(9)
	b := h.Bank()
	x := b.IntVar("x")
	q := b.Idiv(x, b.Int(3))
	vq := e.mkTerm(q)

	require.True(t, e.SetValue(x, N(10)))
	require.True(t, e.update(vq, N(99)))
	require.True(t, e.RepairDown(q))
	assert.True(t, e.value(vq).Equal(N(3)))
	require.NoError(t, e.Invariant())
}

func TestRepairPowerUnsupported(t *testing.T) {
	h, e := newTestEngine(10)
	b := h.Bank()
	x := b.IntVar("x")
	p := b.Power(x, b.Int(3))
	vp := e.mkTerm(p)

	require.True(t, e.SetValue(x, N(2)))
	require.True(t, e.update(vp, N(50)))
	// only the 0^0 shape is repairable
	assert.False(t, e.RepairDown(p))
}

func TestRepairUpRealignsAtom(t *testing.T) {
	h, e := newTestEngine(11)
	b := h.Bank()
	x := b.IntVar("x")
	atom := b.Le(x, b.Int(0))
	bv := registerAtom(t, h, e, atom)

	h.Flip(bv)
	require.NotEqual(t, e.ineqs[bv].isTrue(), h.IsTrue(Lit(bv, false)))
	e.RepairUp(atom)
	assert.Equal(t, e.ineqs[bv].isTrue(), h.IsTrue(Lit(bv, false)))
}

func TestRepairUpRecomputesDefinition(t *testing.T) {
	h, e := newTestEngine(12)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	s := b.Add(x, y)
	vs := e.mkTerm(s)

	require.True(t, e.SetValue(x, N(2)))
	e.vars[vs].value = N(99)
	e.RepairUp(s)
	assert.True(t, e.value(vs).Equal(N(2)))
	require.NoError(t, e.Invariant())
}

func TestEvalIsCorrect(t *testing.T) {
	h, e := newTestEngine(13)
	b := h.Bank()
	x, y := b.IntVar("x"), b.IntVar("y")
	s := b.Add(x, y)
	vs := e.mkTerm(s)

	assert.True(t, e.evalIsCorrect(vs))
	e.vars[vs].value = N(1)
	assert.False(t, e.evalIsCorrect(vs))
}
