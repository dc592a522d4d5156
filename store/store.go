package store

import (
	"context"
	"errors"
	"time"

	"github.com/cerebrumd/cerebrum/goal"
)

var (
	// ErrGoalNotFound is returned when a goal id does not exist in the store.
	ErrGoalNotFound = errors.New("goal not found")
	// ErrGoalExists is returned when creating a goal whose id is taken.
	ErrGoalExists = errors.New("goal already exists")
	// ErrProgressRegression is returned when an update would lower progress.
	ErrProgressRegression = errors.New("progress may not decrease")
)

// GoalUpdate is a partial, atomic update. Nil fields are left untouched;
// Add* slices append. Multi-field updates apply as one unit.
type GoalUpdate struct {
	Title            *string
	Description      *string
	Status           *goal.Status
	Priority         *int
	Progress         *int
	TargetCompletion *time.Time
	ActualCompletion *time.Time
	SuccessCriteria  *goal.SuccessCriteria

	AddSubGoalIDs      []string
	AddRelatedGoalIDs  []string
	AddBlockingGoalIDs []string
}

// apply mutates g in place and returns an error if the update violates
// field invariants. Status transitions are the lifecycle controller's
// responsibility; the store only guards monotonic progress.
func (u GoalUpdate) apply(g *goal.Goal, now time.Time) error {
	if u.Progress != nil {
		if *u.Progress < g.Progress {
			return ErrProgressRegression
		}
		if *u.Progress > 100 {
			*u.Progress = 100
		}
		g.Progress = *u.Progress
	}
	if u.Title != nil {
		g.Title = *u.Title
	}
	if u.Description != nil {
		g.Description = *u.Description
	}
	if u.Status != nil {
		g.Status = *u.Status
	}
	if u.Priority != nil {
		g.Priority = *u.Priority
	}
	if u.TargetCompletion != nil {
		t := *u.TargetCompletion
		g.TargetCompletion = &t
	}
	if u.ActualCompletion != nil {
		t := *u.ActualCompletion
		g.ActualCompletion = &t
	}
	if u.SuccessCriteria != nil {
		g.SuccessCriteria = *u.SuccessCriteria
	}
	g.SubGoalIDs = append(g.SubGoalIDs, u.AddSubGoalIDs...)
	g.RelatedGoalIDs = append(g.RelatedGoalIDs, u.AddRelatedGoalIDs...)
	g.BlockingGoalIDs = append(g.BlockingGoalIDs, u.AddBlockingGoalIDs...)
	g.UpdatedAt = now
	return nil
}

// Store is the persistent goal store collaborator. Goals are soft-terminated
// via status transitions; nothing is hard-deleted. The reflection, thought,
// action and interaction logs are append-only.
type Store interface {
	CreateGoal(ctx context.Context, g *goal.Goal) error
	GetGoal(ctx context.Context, id string) (*goal.Goal, error)
	UpdateGoal(ctx context.Context, id string, upd GoalUpdate) (*goal.Goal, error)

	ActiveGoals(ctx context.Context) ([]*goal.Goal, error)
	GoalsByStatus(ctx context.Context, status goal.Status) ([]*goal.Goal, error)
	GoalsByTier(ctx context.Context, tier goal.Tier) ([]*goal.Goal, error)
	AllGoals(ctx context.Context) ([]*goal.Goal, error)

	AddReflection(ctx context.Context, id string, r goal.Reflection) error
	AddThought(ctx context.Context, id string, th goal.Thought) error
	AddAction(ctx context.Context, id string, a goal.Action) error
	AddInteraction(ctx context.Context, id string, ia goal.AgentInteraction) error

	PriorityQueue(ctx context.Context) ([]goal.QueueEntry, error)
	UpdatePriorityQueue(ctx context.Context, entries []goal.QueueEntry) error
}
