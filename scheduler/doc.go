// Package scheduler maintains the bounded, descending-ordered goal queue.
// Scores derive from priority, age-driven urgency and tier-driven
// importance; an empty queue triggers goal-creation analysis rather than an
// error, and stale entries are skipped silently on dequeue.
package scheduler
