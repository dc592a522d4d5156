// Package coordinator runs the background heartbeat: a reflection cycle that
// introspects or seeds new goals, a processing cycle that activates queued
// goals and advances the active one, and a tier dispatch cycle that applies
// per-tier behavior to active goals. Cycles run on independent tickers and
// serialize their store writes through the shared operation queue.
package coordinator
