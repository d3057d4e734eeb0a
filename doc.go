// Package promptopt is an ensemble prompt-optimization engine. It improves a
// prompt against a starting question and optional training examples by running
// specialized search agents in parallel, fusing their candidates, and stopping
// adaptively when the score trajectory converges or the target is reached.
//
// Key Components:
//
//   - Core: the domain model — jobs and their lifecycle state machine, the
//     fixed prompt-edit action vocabulary with pure ApplyAction semantics,
//     evaluations, iteration records, and fusion/convergence types.
//
//   - Evaluation: scoring oracles behind the core.Evaluator interface:
//     * HeuristicEvaluator: deterministic feature-based scoring for offline
//       runs and tests
//     * AnthropicEvaluator: rubric grading by a Claude model returning
//       per-criterion JSON scores
//     * WithTimeout / WithRetries: evaluator middleware
//
//   - Agents: specialized search agents (clarity, completeness, helpfulness),
//     each running a bounded episode loop that filters and ranks the action
//     vocabulary through its own profile of keyword bonuses and anti-patterns.
//
//   - Ensemble: a coordinator that executes agents concurrently and fuses
//     their results with one of four strategies (weighted_voting, consensus,
//     best_of_breed, hybrid), plus prompt-similarity and diversity metrics.
//
//   - Stopping: a stateless adaptive stopping service evaluating strict
//     priority rules — minimum warmup, budget exhaustion, target achievement,
//     and convergence over a trailing plateau window.
//
//   - Jobs: the job service owning the aggregate — lifecycle transitions,
//     cooperative pause/cancel at iteration boundaries, append-only iteration
//     history (in memory or SQLite), derived analytics, and progress
//     subscriptions over bounded channels.
//
// The promptopt binary under cmd/promptopt wires these together from a YAML
// configuration: choose the evaluator and store, configure the ensemble, and
// run a job to completion with live progress.
package promptopt
