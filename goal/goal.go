package goal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type categorizes the expected shape and horizon of a goal.
type Type string

const (
	// TypeShortTerm marks goals expected to complete within hours.
	TypeShortTerm Type = "short_term"
	// TypeLongTerm marks open-ended goals tracked over days or weeks.
	TypeLongTerm Type = "long_term"
	// TypeMicroTask marks small single-step goals.
	TypeMicroTask Type = "micro_task"
	// TypeProjectBased marks goals composed of multiple sub-goals.
	TypeProjectBased Type = "project_based"
)

// Status is the lifecycle state of a goal. Transitions are validated by
// CanTransition; terminal states are final.
type Status string

const (
	// StatusAnalysis is the initial state where a goal is being evaluated.
	StatusAnalysis Status = "analysis"
	// StatusWaitingApproval holds goals whose tier requires user approval.
	StatusWaitingApproval Status = "waiting_approval"
	// StatusActive is the single system-wide in-progress state.
	StatusActive Status = "active"
	// StatusPaused holds goals preempted by another activation.
	StatusPaused Status = "paused"
	// StatusCompleted marks successful terminal completion.
	StatusCompleted Status = "completed"
	// StatusFailed marks unsuccessful terminal completion.
	StatusFailed Status = "failed"
	// StatusCancelled marks explicit terminal cancellation.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// transitions enumerates the allowed non-terminal state machine edges.
// Any non-terminal state may additionally move to cancelled or failed.
var transitions = map[Status][]Status{
	StatusAnalysis:        {StatusWaitingApproval, StatusActive},
	StatusWaitingApproval: {StatusActive},
	StatusActive:          {StatusPaused, StatusCompleted},
	StatusPaused:          {StatusActive},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled || to == StatusFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OriginSource identifies how a goal came into existence.
type OriginSource string

const (
	// OriginExplicitRequest marks goals created from a direct user request.
	OriginExplicitRequest OriginSource = "explicit_request"
	// OriginInferredPattern marks goals derived from observed behavior patterns.
	OriginInferredPattern OriginSource = "inferred_pattern"
	// OriginSystemGenerated marks goals the system created for itself.
	OriginSystemGenerated OriginSource = "system_generated"
)

// Origin records provenance for a goal together with how sure the system is
// about it and which observations support it.
type Origin struct {
	Source     OriginSource `json:"source" yaml:"source"`
	Confidence float64      `json:"confidence" yaml:"confidence"`
	Evidence   []string     `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// SuccessCriteria describes what finishing the goal means.
type SuccessCriteria struct {
	Description          string   `json:"description" yaml:"description"`
	MeasurableOutcomes   []string `json:"measurable_outcomes,omitempty" yaml:"measurable_outcomes,omitempty"`
	CompletionConditions []string `json:"completion_conditions,omitempty" yaml:"completion_conditions,omitempty"`
	Deliverables         []string `json:"deliverables,omitempty" yaml:"deliverables,omitempty"`
}

// Reflection is an append-only introspective note attached to a goal.
type Reflection struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Trigger   string    `json:"trigger,omitempty"`
}

// Thought is an append-only reasoning trace attached to a goal.
type Thought struct {
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
}

// Action is an append-only record of something done toward a goal.
type Action struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Outcome     string    `json:"outcome,omitempty"`
}

// AgentInteraction records one worker or workflow touchpoint for a goal.
type AgentInteraction struct {
	Timestamp  time.Time `json:"timestamp"`
	WorkerID   string    `json:"worker_id,omitempty"`
	WorkflowID string    `json:"workflow_id,omitempty"`
	Summary    string    `json:"summary"`
}

// Goal is a trackable unit of intent carrying priority, status and tier.
// Goals are only soft-terminated (cancelled/failed); there is no hard
// deletion in normal operation.
type Goal struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        Type   `json:"type"`
	Tier        Tier   `json:"tier"`
	Origin      Origin `json:"origin"`
	Status      Status `json:"status"`

	// Priority is the caller-assigned base priority in [1,10]; the scheduler
	// derives the queue ranking from it.
	Priority int `json:"priority"`

	// Progress is 0-100 and monotonically non-decreasing in normal operation.
	Progress int `json:"progress"`

	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	TargetCompletion *time.Time `json:"target_completion,omitempty"`
	ActualCompletion *time.Time `json:"actual_completion,omitempty"`

	ParentGoalID    string   `json:"parent_goal_id,omitempty"`
	SubGoalIDs      []string `json:"sub_goal_ids,omitempty"`
	RelatedGoalIDs  []string `json:"related_goal_ids,omitempty"`
	BlockingGoalIDs []string `json:"blocking_goal_ids,omitempty"`

	SuccessCriteria SuccessCriteria `json:"success_criteria"`

	Reflections  []Reflection       `json:"reflections,omitempty"`
	Thoughts     []Thought          `json:"thoughts,omitempty"`
	Actions      []Action           `json:"actions,omitempty"`
	Interactions []AgentInteraction `json:"interactions,omitempty"`
}

// New constructs a goal in the analysis state with a generated id and
// clamped priority.
func New(title, description string, typ Type, tier Tier, origin Origin, priority int) *Goal {
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	now := time.Now().UTC()
	return &Goal{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Type:        typ,
		Tier:        tier,
		Origin:      origin,
		Status:      StatusAnalysis,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks field ranges and referential basics.
func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("goal id is required")
	}
	if g.Title == "" {
		return fmt.Errorf("goal title is required")
	}
	if _, ok := tierCapabilities[g.Tier]; !ok {
		return fmt.Errorf("unknown tier %q", g.Tier)
	}
	if g.Priority < 1 || g.Priority > 10 {
		return fmt.Errorf("priority %d outside [1,10]", g.Priority)
	}
	if g.Progress < 0 || g.Progress > 100 {
		return fmt.Errorf("progress %d outside [0,100]", g.Progress)
	}
	return nil
}

// Capabilities returns the autonomy bundle for the goal's tier.
func (g *Goal) Capabilities() Capabilities { return g.Tier.Capabilities() }

// Clone returns a deep copy so callers can hand goals across store
// boundaries without aliasing internal state.
func (g *Goal) Clone() *Goal {
	if g == nil {
		return nil
	}
	cp := *g
	if g.TargetCompletion != nil {
		t := *g.TargetCompletion
		cp.TargetCompletion = &t
	}
	if g.ActualCompletion != nil {
		t := *g.ActualCompletion
		cp.ActualCompletion = &t
	}
	cp.SubGoalIDs = append([]string(nil), g.SubGoalIDs...)
	cp.RelatedGoalIDs = append([]string(nil), g.RelatedGoalIDs...)
	cp.BlockingGoalIDs = append([]string(nil), g.BlockingGoalIDs...)
	cp.Origin.Evidence = append([]string(nil), g.Origin.Evidence...)
	cp.SuccessCriteria.MeasurableOutcomes = append([]string(nil), g.SuccessCriteria.MeasurableOutcomes...)
	cp.SuccessCriteria.CompletionConditions = append([]string(nil), g.SuccessCriteria.CompletionConditions...)
	cp.SuccessCriteria.Deliverables = append([]string(nil), g.SuccessCriteria.Deliverables...)
	cp.Reflections = append([]Reflection(nil), g.Reflections...)
	cp.Thoughts = append([]Thought(nil), g.Thoughts...)
	cp.Actions = append([]Action(nil), g.Actions...)
	cp.Interactions = append([]AgentInteraction(nil), g.Interactions...)
	return &cp
}
