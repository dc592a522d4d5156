// Package lifecycle owns goal status transitions and tier behavior: the
// approval window with its auto-approval timer, the single-active invariant,
// monotonic progress with threshold notifications and completion
// presentation, decomposition of autonomous goals, and workflow delegation
// for user-derived goals. Progress assessment is pluggable through
// ProgressOracle.
package lifecycle
