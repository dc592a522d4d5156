package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerebrumd/cerebrum/goal"
)

func newTestGoal(title string) *goal.Goal {
	return goal.New(title, "test goal", goal.TypeShortTerm, goal.TierUserDerived,
		goal.Origin{Source: goal.OriginExplicitRequest, Confidence: 1}, 5)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	g := newTestGoal("round trip")
	g.SuccessCriteria = goal.SuccessCriteria{
		Description:  "done when summarized",
		Deliverables: []string{"summary.md"},
	}
	require.NoError(t, s.CreateGoal(ctx, g))

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g, got)
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetGoal(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrGoalNotFound)
}

func TestMemoryStoreDuplicateCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	g := newTestGoal("dup")
	require.NoError(t, s.CreateGoal(ctx, g))
	assert.ErrorIs(t, s.CreateGoal(ctx, g), ErrGoalExists)
}

func TestMemoryStorePartialUpdateIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	g := newTestGoal("update me")
	require.NoError(t, s.CreateGoal(ctx, g))

	status := goal.StatusActive
	progress := 40
	updated, err := s.UpdateGoal(ctx, g.ID, GoalUpdate{Status: &status, Progress: &progress})
	require.NoError(t, err)
	assert.Equal(t, goal.StatusActive, updated.Status)
	assert.Equal(t, 40, updated.Progress)
	assert.True(t, updated.UpdatedAt.After(g.UpdatedAt) || updated.UpdatedAt.Equal(g.UpdatedAt))

	// A rejected update must leave every field untouched.
	lower := 10
	title := "should not land"
	_, err = s.UpdateGoal(ctx, g.ID, GoalUpdate{Progress: &lower, Title: &title})
	assert.ErrorIs(t, err, ErrProgressRegression)

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "update me", got.Title)
	assert.Equal(t, 40, got.Progress)
}

func TestMemoryStoreProgressClampsAt100(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	g := newTestGoal("clamp")
	require.NoError(t, s.CreateGoal(ctx, g))

	progress := 130
	updated, err := s.UpdateGoal(ctx, g.ID, GoalUpdate{Progress: &progress})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.Progress)
}

func TestMemoryStoreAppendOnlyLogs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	g := newTestGoal("logs")
	require.NoError(t, s.CreateGoal(ctx, g))

	now := time.Now().UTC()
	require.NoError(t, s.AddReflection(ctx, g.ID, goal.Reflection{Timestamp: now, Content: "r1"}))
	require.NoError(t, s.AddThought(ctx, g.ID, goal.Thought{Timestamp: now, Content: "t1"}))
	require.NoError(t, s.AddAction(ctx, g.ID, goal.Action{Timestamp: now, Description: "a1"}))
	require.NoError(t, s.AddInteraction(ctx, g.ID, goal.AgentInteraction{Timestamp: now, WorkerID: "w1", Summary: "done"}))

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Len(t, got.Reflections, 1)
	assert.Len(t, got.Thoughts, 1)
	assert.Len(t, got.Actions, 1)
	assert.Len(t, got.Interactions, 1)

	assert.ErrorIs(t, s.AddReflection(ctx, "missing", goal.Reflection{}), ErrGoalNotFound)
}

func TestMemoryStoreQueueSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	entries, err := s.PriorityQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	snapshot := []goal.QueueEntry{
		{GoalID: "g1", PriorityScore: 136},
		{GoalID: "g2", PriorityScore: 90},
	}
	require.NoError(t, s.UpdatePriorityQueue(ctx, snapshot))

	entries, err = s.PriorityQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, snapshot, entries)
}

func TestMemoryStoreClonesOnRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	g := newTestGoal("isolation")
	require.NoError(t, s.CreateGoal(ctx, g))

	got, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	got.Title = "mutated"
	got.SubGoalIDs = append(got.SubGoalIDs, "x")

	again, err := s.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "isolation", again.Title)
	assert.Empty(t, again.SubGoalIDs)
}
