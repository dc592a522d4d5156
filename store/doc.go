// Package store provides goal persistence: a Store interface with in-memory
// and SQLite implementations, plus the OpQueue that serializes mutations
// from the background cycles so concurrent timer firings cannot interleave
// multi-field updates.
package store
