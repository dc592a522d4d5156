// Package workflow defines named multi-step worker topologies and the
// Executor that runs them: sequential chaining, parallel fan-out/fan-in,
// conditional gating and a mandatory synthesis pass that merges the full
// attributed transcript into one final output.
package workflow
