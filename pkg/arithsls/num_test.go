package arithsls

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var numComparer = cmp.Comparer(func(a, b Num) bool { return a.Equal(b) })

func TestRatNormalization(t *testing.T) {
	tests := []struct {
		name string
		got  Num
		want Num
	}{
		{"lowest terms", Rat(2, 4), Rat(1, 2)},
		{"negative denominator", Rat(1, -2), Rat(-1, 2)},
		{"integer result", Rat(6, 3), N(2)},
		{"zero", Rat(0, 5), N(0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.got.Equal(tc.want), "got %s want %s", tc.got, tc.want)
		})
	}
}

func TestNumArithmetic(t *testing.T) {
	half := Rat(1, 2)
	third := Rat(1, 3)

	assert.True(t, half.Add(third).Equal(Rat(5, 6)))
	assert.True(t, half.Sub(third).Equal(Rat(1, 6)))
	assert.True(t, half.Mul(third).Equal(Rat(1, 6)))
	assert.True(t, half.Div(third).Equal(Rat(3, 2)))
	assert.True(t, N(-3).Abs().Equal(N(3)))
	assert.True(t, N(-3).Neg().Equal(N(3)))
	assert.Equal(t, -1, third.Cmp(half))
	assert.Equal(t, 1, N(1).Sign())
	assert.True(t, half.Floor().Equal(N(0)))
	assert.True(t, half.Ceil().Equal(N(1)))
	assert.True(t, Rat(-7, 2).Floor().Equal(N(-4)))
	assert.True(t, Rat(-7, 2).Ceil().Equal(N(-3)))
	assert.InDelta(t, 0.5, half.Float64(), 1e-12)
	assert.Equal(t, "1/2", half.String())
	assert.Equal(t, "-3", N(-3).String())
}

func TestZeroValueIsZero(t *testing.T) {
	var z Num
	assert.True(t, z.IsZero())
	assert.True(t, z.Add(N(5)).Equal(N(5)))
	assert.True(t, z.IsInt())
}

func TestOverflowSignalling(t *testing.T) {
	err := catchOverflow(func() {
		N(math.MaxInt64).Add(N(1))
	})
	require.ErrorIs(t, err, ErrOverflow)

	err = catchOverflow(func() {
		N(math.MaxInt64 / 2).Mul(N(4))
	})
	require.ErrorIs(t, err, ErrOverflow)

	err = catchOverflow(func() {
		N(math.MinInt64).Neg()
	})
	require.ErrorIs(t, err, ErrOverflow)

	require.NoError(t, catchOverflow(func() {
		N(1 << 30).Mul(N(1 << 30))
	}))
}

func TestEuclideanDivision(t *testing.T) {
	tests := []struct {
		a, b             int64
		ediv, emod, trem int64
	}{
		{7, 2, 3, 1, 1},
		{-7, 2, -4, 1, -1},
		{7, -2, -3, 1, 1},
		{-7, -2, 4, 1, -1},
		{6, 3, 2, 0, 0},
		{0, 5, 0, 0, 0},
	}
	for _, tc := range tests {
		assert.True(t, ediv(N(tc.a), N(tc.b)).Equal(N(tc.ediv)), "ediv(%d,%d)", tc.a, tc.b)
		assert.True(t, emod(N(tc.a), N(tc.b)).Equal(N(tc.emod)), "emod(%d,%d)", tc.a, tc.b)
		assert.True(t, rem(N(tc.a), N(tc.b)).Equal(N(tc.trem)), "rem(%d,%d)", tc.a, tc.b)
	}
}

func TestIsqrt(t *testing.T) {
	tests := []struct{ d, want int64 }{
		{0, 0}, {1, 1}, {2, 1}, {3, 1}, {4, 2}, {8, 2},
		{9, 3}, {15, 3}, {16, 4}, {99, 9}, {100, 10},
		{1_000_000_000_000, 1_000_000},
	}
	for _, tc := range tests {
		assert.True(t, isqrt(N(tc.d)).Equal(N(tc.want)), "isqrt(%d)", tc.d)
	}
}

func TestPowerOf(t *testing.T) {
	assert.True(t, powerOf(N(3), 4).Equal(N(81)))
	assert.True(t, powerOf(N(-2), 3).Equal(N(-8)))
	assert.True(t, powerOf(N(5), 1).Equal(N(5)))
	assert.True(t, powerOf(Rat(1, 2), 2).Equal(Rat(1, 4)))
}

func TestRootOf(t *testing.T) {
	tests := []struct {
		k    uint
		a    int64
		want int64
	}{
		{2, 16, 4},
		{2, 17, 4},
		{3, 27, 3},
		{3, 26, 2},
		{1, 5, 5},
		{2, 1, 1},
		{2, 0, 0},
		{5, 3, 1},
	}
	for _, tc := range tests {
		assert.True(t, rootOf(tc.k, N(tc.a)).Equal(N(tc.want)), "rootOf(%d,%d)", tc.k, tc.a)
	}
}

func TestFactor(t *testing.T) {
	tests := []struct {
		n    int64
		want []Num
	}{
		{60, []Num{N(2), N(2), N(3), N(5)}},
		{7, []Num{N(7)}},
		{1, nil},
		{0, nil},
		{-12, []Num{N(2), N(2), N(3)}},
		{49, []Num{N(7), N(7)}},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, factor(N(tc.n)), numComparer); diff != "" {
			t.Errorf("factor(%d) mismatch (-want +got):\n%s", tc.n, diff)
		}
	}
}
