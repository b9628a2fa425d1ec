// Package arithsls implements a stochastic local-search theory engine for
// arithmetic constraints. It is designed to run as a plugin inside a Boolean
// SAT local-search host: the host owns the clause database, the Boolean
// assignment and the random number generator, and calls into this package to
// make arithmetic atoms (linear and nonlinear inequalities and equalities
// over integers and reals) consistent with the Boolean assignment by
// perturbing arithmetic variable values.
//
// The engine is an incomplete, randomized repair heuristic. It is sound when
// it reports success (a repaired atom genuinely holds under the produced
// assignment) but it may fail to repair and degrade to weaker moves.
//
// The main pieces are:
//   - an incremental algebraic term model that flattens expression trees into
//     linear sums, monomials and derived operator nodes with cached values,
//   - move generators that compute exact deltas flipping an inequality's
//     truth value, including quadratic repair via integer square roots,
//   - a tabu and weighted roulette selection scheme over candidate updates,
//   - repair-by-definition for derived terms whose cached value drifted,
//   - a global search driver with lookahead scoring, UCB candidate selection
//     and PAWS weight recalibration.
//
// All numeric computation is exact: values are rationals over
// overflow-checked int64 components. Operations that would exceed the
// representable range abort the current move attempt without mutating
// committed state.
package arithsls
