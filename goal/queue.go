package goal

import "time"

// QueueEntry is a derived scheduling view of a goal. Entries are recomputed
// from the store when they fall off the bounded queue, never assumed gone.
type QueueEntry struct {
	GoalID        string `json:"goal_id"`
	PriorityScore int    `json:"priority_score"`

	UrgencyFactor    float64 `json:"urgency_factor"`
	ImportanceFactor float64 `json:"importance_factor"`

	// UserValueFactor and CerebrumPriorityBoost are tracked on the entry but
	// are not part of PriorityScore; consumers of the snapshot read them
	// directly.
	UserValueFactor       float64 `json:"user_value_factor"`
	CerebrumPriorityBoost float64 `json:"cerebrum_priority_boost"`

	ResourceRequirements []string      `json:"resource_requirements,omitempty"`
	EstimatedTime        time.Duration `json:"estimated_time"`
	DependenciesMet      bool          `json:"dependencies_met"`

	ScoredAt time.Time `json:"scored_at"`
}
