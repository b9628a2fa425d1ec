package arithsls

import "math/rand"

// Harness is a self-contained host implementing Context: an atom registry,
// a Boolean assignment, a clause database and a deterministic PRNG. It
// exists so the engine can be driven without a full SAT solver, both in
// tests and in standalone tools.
type Harness struct {
	bank    *Bank
	rng     *rand.Rand
	atoms   []*Term
	atomIdx map[int]BoolVar
	assign  []bool
	clauses []Clause
	units   []Literal
	unitSet map[Literal]bool
	asserts []*Term
	budget  int64

	// NewTerms records terms the engine synthesized during flattening.
	NewTerms []*Term
	// Changed records terms whose value-change notifications arrived.
	Changed []*Term
}

// NewHarness returns a harness over the bank with a deterministic PRNG.
func NewHarness(bank *Bank, seed int64) *Harness {
	return &Harness{
		bank:    bank,
		rng:     rand.New(rand.NewSource(seed)),
		atomIdx: make(map[int]BoolVar),
		unitSet: make(map[Literal]bool),
		budget:  1 << 30,
	}
}

// Bank returns the harness's term bank.
func (h *Harness) Bank() *Bank { return h.bank }

// AddAtom allocates (or returns) the Boolean variable attached to t. Fresh
// variables start assigned true.
func (h *Harness) AddAtom(t *Term) BoolVar {
	if bv, ok := h.atomIdx[t.id]; ok {
		return bv
	}
	bv := BoolVar(len(h.atoms))
	h.atomIdx[t.id] = bv
	h.atoms = append(h.atoms, t)
	h.assign = append(h.assign, true)
	return bv
}

// AddClause appends a clause; atoms referenced through fresh terms must
// already be registered.
func (h *Harness) AddClause(lits ...Literal) {
	h.clauses = append(h.clauses, Clause{Lits: append([]Literal(nil), lits...)})
}

// AddUnit records a root-level unit literal and a corresponding clause.
func (h *Harness) AddUnit(lit Literal) {
	h.units = append(h.units, lit)
	h.unitSet[lit] = true
	h.AddClause(lit)
}

// Assert records a top-level input assertion; atom assertions also get a
// unit clause.
func (h *Harness) Assert(t *Term) {
	h.asserts = append(h.asserts, t)
	if bv, ok := h.atomIdx[t.id]; ok {
		h.AddClause(Lit(bv, false))
	}
}

// SetBudget bounds the number of Inc calls the engine may consume.
func (h *Harness) SetBudget(n int64) { h.budget = n }

func (h *Harness) IsTrue(l Literal) bool { return h.assign[l.Var] != l.Sign }

func (h *Harness) Flip(bv BoolVar) { h.assign[bv] = !h.assign[bv] }

func (h *Harness) Atom(bv BoolVar) *Term {
	if int(bv) >= len(h.atoms) {
		return nil
	}
	return h.atoms[bv]
}

func (h *Harness) AtomToBoolVar(t *Term) BoolVar {
	if bv, ok := h.atomIdx[t.id]; ok {
		return bv
	}
	return NullBoolVar
}

func (h *Harness) NumBoolVars() int { return len(h.atoms) }

func (h *Harness) Clauses() []Clause { return h.clauses }

func (h *Harness) GetClause(idx int) Clause { return h.clauses[idx] }

func (h *Harness) InputAssertions() []*Term { return h.asserts }

func (h *Harness) UnitLiterals() []Literal { return h.units }

func (h *Harness) IsUnit(l Literal) bool { return h.unitSet[l] }

func (h *Harness) Rand(n int) int { return h.rng.Intn(n) }

func (h *Harness) RandFloat() float64 { return h.rng.Float64() }

func (h *Harness) NewValue(t *Term) { h.Changed = append(h.Changed, t) }

func (h *Harness) AddNewTerm(t *Term) { h.NewTerms = append(h.NewTerms, t) }

func (h *Harness) BoolVal(t *Term) bool {
	if bv, ok := h.atomIdx[t.id]; ok {
		return h.assign[bv]
	}
	return false
}

func (h *Harness) Inc() bool {
	h.budget--
	return h.budget > 0
}
