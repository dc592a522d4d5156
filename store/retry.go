package store

import (
	"context"
	"errors"

	"github.com/cerebrumd/cerebrum/goal"
	"github.com/cerebrumd/cerebrum/logging"
)

// RetryStoreOptions configures a RetryStore.
type RetryStoreOptions struct {
	// Logger records retried and abandoned calls.
	Logger logging.Logger
}

// RetryStore wraps a Store and retries each failed call exactly once. The
// retry happens at the individual call boundary, so a composite operation
// that failed halfway resumes from the failed call instead of re-running
// earlier, already-applied writes. Domain sentinels are deterministic and
// never retried.
type RetryStore struct {
	inner  Store
	logger logging.Logger
}

// NewRetryStore wraps the given store.
func NewRetryStore(inner Store, optFns ...func(o *RetryStoreOptions)) *RetryStore {
	opts := RetryStoreOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RetryStore{inner: inner, logger: opts.Logger}
}

// permanent reports whether the error is a deterministic domain answer that
// a second attempt cannot change.
func permanent(err error) bool {
	return errors.Is(err, ErrGoalNotFound) ||
		errors.Is(err, ErrGoalExists) ||
		errors.Is(err, ErrProgressRegression)
}

func (s *RetryStore) retry(name string, fn func() error) error {
	err := fn()
	if err == nil || permanent(err) {
		return err
	}
	s.logger.Warn("store call failed, retrying once", "op", name, "error", err)
	if err = fn(); err != nil {
		s.logger.Error("store call failed after retry", "op", name, "error", err)
	}
	return err
}

func (s *RetryStore) CreateGoal(ctx context.Context, g *goal.Goal) error {
	return s.retry("create_goal", func() error { return s.inner.CreateGoal(ctx, g) })
}

func (s *RetryStore) GetGoal(ctx context.Context, id string) (*goal.Goal, error) {
	var g *goal.Goal
	err := s.retry("get_goal", func() (err error) {
		g, err = s.inner.GetGoal(ctx, id)
		return err
	})
	return g, err
}

func (s *RetryStore) UpdateGoal(ctx context.Context, id string, upd GoalUpdate) (*goal.Goal, error) {
	var g *goal.Goal
	err := s.retry("update_goal", func() (err error) {
		g, err = s.inner.UpdateGoal(ctx, id, upd)
		return err
	})
	return g, err
}

func (s *RetryStore) ActiveGoals(ctx context.Context) ([]*goal.Goal, error) {
	var goals []*goal.Goal
	err := s.retry("active_goals", func() (err error) {
		goals, err = s.inner.ActiveGoals(ctx)
		return err
	})
	return goals, err
}

func (s *RetryStore) GoalsByStatus(ctx context.Context, status goal.Status) ([]*goal.Goal, error) {
	var goals []*goal.Goal
	err := s.retry("goals_by_status", func() (err error) {
		goals, err = s.inner.GoalsByStatus(ctx, status)
		return err
	})
	return goals, err
}

func (s *RetryStore) GoalsByTier(ctx context.Context, tier goal.Tier) ([]*goal.Goal, error) {
	var goals []*goal.Goal
	err := s.retry("goals_by_tier", func() (err error) {
		goals, err = s.inner.GoalsByTier(ctx, tier)
		return err
	})
	return goals, err
}

func (s *RetryStore) AllGoals(ctx context.Context) ([]*goal.Goal, error) {
	var goals []*goal.Goal
	err := s.retry("all_goals", func() (err error) {
		goals, err = s.inner.AllGoals(ctx)
		return err
	})
	return goals, err
}

func (s *RetryStore) AddReflection(ctx context.Context, id string, r goal.Reflection) error {
	return s.retry("add_reflection", func() error { return s.inner.AddReflection(ctx, id, r) })
}

func (s *RetryStore) AddThought(ctx context.Context, id string, th goal.Thought) error {
	return s.retry("add_thought", func() error { return s.inner.AddThought(ctx, id, th) })
}

func (s *RetryStore) AddAction(ctx context.Context, id string, a goal.Action) error {
	return s.retry("add_action", func() error { return s.inner.AddAction(ctx, id, a) })
}

func (s *RetryStore) AddInteraction(ctx context.Context, id string, ia goal.AgentInteraction) error {
	return s.retry("add_interaction", func() error { return s.inner.AddInteraction(ctx, id, ia) })
}

func (s *RetryStore) PriorityQueue(ctx context.Context) ([]goal.QueueEntry, error) {
	var entries []goal.QueueEntry
	err := s.retry("priority_queue", func() (err error) {
		entries, err = s.inner.PriorityQueue(ctx)
		return err
	})
	return entries, err
}

func (s *RetryStore) UpdatePriorityQueue(ctx context.Context, entries []goal.QueueEntry) error {
	return s.retry("update_priority_queue", func() error { return s.inner.UpdatePriorityQueue(ctx, entries) })
}
