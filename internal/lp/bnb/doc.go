// Package bnb is a small mixed-integer solver for lp.Problem models with
// continuous (free) and binary variables.
//
// Arithmetic: coefficients are converted once to rationals (lp.ExactRat) and
// every relaxation is solved in exact arithmetic. Big-M rows such as
// "x - 1e6·e <= 750" therefore carry no round-off, and infeasibility and
// optimality verdicts are exact.
//
// Search: depth-first Branch-and-Bound over the binary variables.
//
//  1. Each node presolves its relaxation: binaries fixed by the branch and
//     rows with a single remaining variable become variable bounds (binary
//     bounds rounded inward), and variables whose bounds meet are
//     substituted out. Rows left with no variable are checked directly.
//  2. The remaining rows go to a two-phase dense simplex using Bland's
//     rule. Equalities stay single rows; finite bounds become shifts and
//     one upper-bound row each.
//  3. Nodes whose relaxation is infeasible, or whose bound is not better
//     than the incumbent by more than Options.Gap, are pruned.
//  4. Branching picks the most fractional binary (lowest column on ties)
//     and explores the side closest to its relaxed value first. A node
//     whose binaries are all exactly 0 or 1 becomes the incumbent.
//
// Budgets: Options.TimeLimit and Options.NodeLimit bound the search. When a
// budget runs out the solver returns lp.StatusLimit with the incumbent, or
// lp.StatusTimeout when no feasible assignment was found. Context
// cancellation aborts the search and returns ctx.Err().
//
// All search state lives in a per-call engine, so a single Solver may serve
// concurrent Solve calls on distinct problems.
package bnb
