package arithsls

import "fmt"

// BoolVar identifies a Boolean variable owned by the host's SAT assignment.
type BoolVar int

// NullBoolVar marks the absence of a Boolean variable.
const NullBoolVar BoolVar = -1

// Literal is a possibly negated Boolean variable. Sign true denotes the
// negated occurrence, matching the host's clause encoding.
type Literal struct {
	Var  BoolVar
	Sign bool
}

// Lit builds a literal over v, negated when sign is true.
func Lit(v BoolVar, sign bool) Literal { return Literal{Var: v, Sign: sign} }

// Neg returns the complement literal.
func (l Literal) Neg() Literal { return Literal{Var: l.Var, Sign: !l.Sign} }

// String renders the literal in DIMACS-like form.
func (l Literal) String() string {
	if l.Sign {
		return fmt.Sprintf("-b%d", l.Var)
	}
	return fmt.Sprintf("b%d", l.Var)
}

// Clause is a disjunction of literals owned by the host.
type Clause struct {
	Lits []Literal
}
