// Package lp defines the linear-model vocabulary shared by the rule compiler,
// the row formulator and the solver backends.
//
// A model is built from:
//
//   - Var:        a decision variable, continuous (free) or binary (0/1).
//   - Expr:       an affine expression Σ cᵢ·xᵢ + k with a stable term order.
//   - Constraint: "Expr ⋈ 0" with ⋈ ∈ {<=, ==, >=}, plus a name.
//   - Problem:    minimize an objective Expr subject to a list of Constraints.
//
// The package deliberately contains no solving logic. Backends implement the
// Solver interface (objective + constraints in, status + assignment out), so
// any MILP engine can be substituted without touching the code that produces
// models. See package lp/bnb for the built-in branch-and-bound backend.
//
// ExactRat converts a coefficient to the rational its decimal form denotes.
// Backends and record checks that must agree on borderline values (0.6·200
// against 120, say) share it.
//
// Determinism: term order inside an Expr is the order in which variables were
// first added, and Problem.Variables reports variables in first-appearance
// order (objective first, then constraints). Backends use this order for their
// column layout so that repeated solves of the same model pivot identically.
package lp
