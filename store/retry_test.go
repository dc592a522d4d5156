package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerebrumd/cerebrum/goal"
)

// flakyStore fails each named call a scripted number of times before
// delegating to the wrapped store.
type flakyStore struct {
	Store
	failures map[string]int
	calls    map[string]int
}

func newFlakyStore(failures map[string]int) *flakyStore {
	return &flakyStore{Store: NewMemoryStore(), failures: failures, calls: map[string]int{}}
}

func (s *flakyStore) fail(op string) error {
	s.calls[op]++
	if s.calls[op] <= s.failures[op] {
		return fmt.Errorf("database locked")
	}
	return nil
}

func (s *flakyStore) AddAction(ctx context.Context, id string, a goal.Action) error {
	if err := s.fail("add_action"); err != nil {
		return err
	}
	return s.Store.AddAction(ctx, id, a)
}

func (s *flakyStore) UpdateGoal(ctx context.Context, id string, upd GoalUpdate) (*goal.Goal, error) {
	if err := s.fail("update_goal"); err != nil {
		return nil, err
	}
	return s.Store.UpdateGoal(ctx, id, upd)
}

func retryGoal() *goal.Goal {
	return goal.New("retry target", "", goal.TypeShortTerm, goal.TierInternalSystem,
		goal.Origin{Source: goal.OriginSystemGenerated, Confidence: 0.6}, 5)
}

func TestRetryStoreRetriesTransientFailureOnce(t *testing.T) {
	flaky := newFlakyStore(map[string]int{"add_action": 1})
	st := NewRetryStore(flaky)
	ctx := context.Background()

	g := retryGoal()
	require.NoError(t, st.CreateGoal(ctx, g))
	require.NoError(t, st.AddAction(ctx, g.ID, goal.Action{Description: "did the thing"}))

	assert.Equal(t, 2, flaky.calls["add_action"], "one failure, one successful retry")

	stored, err := st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, stored.Actions, 1)
}

func TestRetryStoreSurfacesPersistentFailure(t *testing.T) {
	flaky := newFlakyStore(map[string]int{"update_goal": 10})
	st := NewRetryStore(flaky)
	ctx := context.Background()

	g := retryGoal()
	require.NoError(t, st.CreateGoal(ctx, g))

	p := 50
	_, err := st.UpdateGoal(ctx, g.ID, GoalUpdate{Progress: &p})
	assert.Error(t, err)
	assert.Equal(t, 2, flaky.calls["update_goal"], "exactly one retry")
}

func TestRetryStoreDoesNotRetryDomainSentinels(t *testing.T) {
	flaky := newFlakyStore(nil)
	st := NewRetryStore(flaky)
	ctx := context.Background()

	_, err := st.GetGoal(ctx, "ghost")
	assert.ErrorIs(t, err, ErrGoalNotFound)

	g := retryGoal()
	require.NoError(t, st.CreateGoal(ctx, g))

	p := 60
	_, err = st.UpdateGoal(ctx, g.ID, GoalUpdate{Progress: &p})
	require.NoError(t, err)
	assert.Equal(t, 1, flaky.calls["update_goal"])

	lower := 10
	_, err = st.UpdateGoal(ctx, g.ID, GoalUpdate{Progress: &lower})
	assert.ErrorIs(t, err, ErrProgressRegression)
	assert.Equal(t, 2, flaky.calls["update_goal"], "a deterministic rejection is not retried")
}
