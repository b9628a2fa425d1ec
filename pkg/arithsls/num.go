package arithsls

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow reports that an arithmetic operation exceeded the representable
// range of the overflow-checked numeric kernel. It is always recoverable: the
// move or evaluation that triggered it is abandoned and committed state is
// left untouched.
var ErrOverflow = errors.New("arithsls: numeric overflow")

// ErrUnsupported reports an operator/shape combination the engine does not
// repair (general power, general division repair). Callers degrade to weaker
// moves instead of fabricating values.
var ErrUnsupported = errors.New("arithsls: unsupported operator shape")

// ErrCycle reports a cycle among derived variables discovered while
// propagating a committed update. The term model is expected to be a DAG;
// detection is an internal-consistency failure and fails the current move.
var ErrCycle = errors.New("arithsls: cycle among derived variables")

// overflowPanic is the internal signal raised by checked arithmetic.
// It never escapes the package: catchOverflow converts it to ErrOverflow
// at each operation boundary.
type overflowPanic struct{}

// catchOverflow runs f and converts an overflowPanic into ErrOverflow.
// Any other panic is re-raised.
func catchOverflow(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(overflowPanic); ok {
				err = ErrOverflow
				return
			}
			panic(r)
		}
	}()
	f()
	return nil
}

func chkAdd(a, b int64) int64 {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		panic(overflowPanic{})
	}
	return a + b
}

func chkMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a == math.MinInt64 || b == math.MinInt64 {
		panic(overflowPanic{})
	}
	c := a * b
	if c/b != a {
		panic(overflowPanic{})
	}
	return c
}

func chkNeg(a int64) int64 {
	if a == math.MinInt64 {
		panic(overflowPanic{})
	}
	return -a
}

func gcd64(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Num is an exact rational with overflow-checked int64 numerator and
// denominator. The zero value is 0. The denominator is always positive and
// the fraction is kept in lowest terms, so (0,0) normalizes to 0/1 on first
// use through num/den accessors.
type Num struct {
	n, d int64
}

// N returns the integer i as a Num.
func N(i int64) Num { return Num{n: i, d: 1} }

// Rat returns the rational n/d. It panics if d is zero.
func Rat(n, d int64) Num {
	if d == 0 {
		panic("arithsls: zero denominator")
	}
	return makeNum(n, d)
}

func makeNum(n, d int64) Num {
	if d < 0 {
		n, d = chkNeg(n), chkNeg(d)
	}
	if g := gcd64(n, d); g > 1 {
		n /= g
		d /= g
	}
	return Num{n: n, d: d}
}

func (a Num) den() int64 {
	if a.d == 0 {
		return 1
	}
	return a.d
}

// Add returns a + b.
func (a Num) Add(b Num) Num {
	ad, bd := a.den(), b.den()
	if ad == bd {
		return makeNum(chkAdd(a.n, b.n), ad)
	}
	return makeNum(chkAdd(chkMul(a.n, bd), chkMul(b.n, ad)), chkMul(ad, bd))
}

// Sub returns a - b.
func (a Num) Sub(b Num) Num { return a.Add(b.Neg()) }

// Mul returns a * b.
func (a Num) Mul(b Num) Num {
	return makeNum(chkMul(a.n, b.n), chkMul(a.den(), b.den()))
}

// Div returns the exact quotient a / b. It panics if b is zero.
func (a Num) Div(b Num) Num {
	if b.n == 0 {
		panic("arithsls: division by zero")
	}
	return makeNum(chkMul(a.n, b.den()), chkMul(a.den(), b.n))
}

// Neg returns -a.
func (a Num) Neg() Num { return Num{n: chkNeg(a.n), d: a.den()} }

// Abs returns |a|.
func (a Num) Abs() Num {
	if a.n < 0 {
		return a.Neg()
	}
	return Num{n: a.n, d: a.den()}
}

// Cmp returns -1, 0 or 1 as a is less than, equal to or greater than b.
func (a Num) Cmp(b Num) int {
	l := chkMul(a.n, b.den())
	r := chkMul(b.n, a.den())
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

// Sign returns -1, 0 or 1 as a is negative, zero or positive.
func (a Num) Sign() int {
	switch {
	case a.n < 0:
		return -1
	case a.n > 0:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether a is 0.
func (a Num) IsZero() bool { return a.n == 0 }

// IsInt reports whether a is an integer.
func (a Num) IsInt() bool { return a.den() == 1 }

// Equal reports whether a and b denote the same rational.
func (a Num) Equal(b Num) bool { return a.n == b.n && a.den() == b.den() }

// Int64 returns the value as an int64. It panics if a is not an integer.
func (a Num) Int64() int64 {
	if !a.IsInt() {
		panic(fmt.Sprintf("arithsls: %s is not an integer", a))
	}
	return a.n
}

// Floor returns the largest integer not greater than a.
func (a Num) Floor() Num {
	d := a.den()
	if d == 1 {
		return a
	}
	q := a.n / d
	if a.n < 0 && a.n%d != 0 {
		q--
	}
	return N(q)
}

// Ceil returns the smallest integer not less than a.
func (a Num) Ceil() Num {
	d := a.den()
	if d == 1 {
		return a
	}
	q := a.n / d
	if a.n > 0 && a.n%d != 0 {
		q++
	}
	return N(q)
}

// Float64 returns a float64 approximation, used only for score arithmetic.
func (a Num) Float64() float64 {
	return float64(a.n) / float64(a.den())
}

// String renders a in decimal or n/d form.
func (a Num) String() string {
	if a.IsInt() {
		return fmt.Sprintf("%d", a.n)
	}
	return fmt.Sprintf("%d/%d", a.n, a.den())
}

// ediv returns the Euclidean quotient of two integers: the unique q with
// a = q*b + r and 0 <= r < |b|.
func ediv(a, b Num) Num {
	x, y := a.Int64(), b.Int64()
	if y == 0 {
		panic("arithsls: division by zero")
	}
	q := x / y
	if x%y < 0 {
		if y > 0 {
			q--
		} else {
			q++
		}
	}
	return N(q)
}

// emod returns the Euclidean remainder: a - ediv(a,b)*b, always in [0, |b|).
func emod(a, b Num) Num {
	x, y := a.Int64(), b.Int64()
	if y == 0 {
		panic("arithsls: division by zero")
	}
	r := x % y
	if r < 0 {
		if y > 0 {
			r += y
		} else {
			r -= y
		}
	}
	return N(r)
}

// rem returns the truncated remainder with the sign of the dividend,
// matching machine remainder semantics.
func rem(a, b Num) Num {
	x, y := a.Int64(), b.Int64()
	if y == 0 {
		panic("arithsls: division by zero")
	}
	return N(x % y)
}

// isqrt returns the integer square root of a non-negative integer d,
// by recursive doubling: isqrt(d) is derived from isqrt(d/4).
func isqrt(d Num) Num {
	if d.Cmp(N(1)) <= 0 {
		return d
	}
	sq := isqrt(ediv(d, N(4))).Mul(N(2)).Add(N(1))
	if sq.Mul(sq).Cmp(d) <= 0 {
		return sq
	}
	return sq.Sub(N(1))
}

// powerOf returns x^k for k >= 1 by binary powering.
func powerOf(x Num, k uint) Num {
	r := N(1)
	for k > 1 {
		if k%2 == 1 {
			r = x.Mul(r)
			k--
		}
		x = x.Mul(x)
		k /= 2
	}
	return x.Mul(r)
}

// rootOf returns an integer approximation of the k'th root of a by Newton
// iteration: x_{i+1} = ((k-1)*x_i + a/x_i^(k-1)) / k.
func rootOf(k uint, a Num) Num {
	if a.Cmp(N(1)) <= 0 {
		return a
	}
	if k == 1 {
		return a
	}
	if a.Cmp(N(int64(k))) <= 0 {
		return N(1)
	}
	x0 := ediv(a, N(int64(k)))
	x1 := ediv(x0.Mul(N(int64(k-1))).Add(ediv(a, powerOf(x0, k-1))), N(int64(k)))
	for x1.Cmp(x0) < 0 {
		x0 = x1
		x1 = ediv(x0.Mul(N(int64(k-1))).Add(ediv(a, powerOf(x0, k-1))), N(int64(k)))
	}
	return x0
}

// factor returns the prime factorization of |n| using trial division with a
// wheel over {2,3,5}, giving up after a few large factors. Used to guide
// divisor-based repair moves.
func factor(n Num) []Num {
	var fs []Num
	if n.IsZero() {
		return fs
	}
	n = n.Abs()
	for _, d := range []int64{2, 3, 5} {
		for emod(n, N(d)).IsZero() {
			fs = append(fs, N(d))
			n = ediv(n, N(d))
		}
	}
	increments := [8]int64{4, 2, 4, 2, 4, 6, 2, 6}
	i, j := 0, 0
	for d := N(7); d.Mul(d).Cmp(n) <= 0 && j < 3; j++ {
		for emod(n, d).IsZero() {
			fs = append(fs, d)
			n = ediv(n, d)
		}
		d = d.Add(N(increments[i]))
		i++
		if i == 8 {
			i = 0
		}
	}
	if n.Cmp(N(1)) > 0 {
		fs = append(fs, n)
	}
	return fs
}
