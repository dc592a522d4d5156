package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerebrumd/cerebrum/goal"
	"github.com/cerebrumd/cerebrum/model"
	"github.com/cerebrumd/cerebrum/scheduler"
	"github.com/cerebrumd/cerebrum/store"
	"github.com/cerebrumd/cerebrum/worker"
	"github.com/cerebrumd/cerebrum/workflow"
)

type captureNotifier struct {
	mu sync.Mutex
	ns []Notification
}

func (c *captureNotifier) Notify(n Notification) {
	c.mu.Lock()
	c.ns = append(c.ns, n)
	c.mu.Unlock()
}

func (c *captureNotifier) byKind(kind NotificationKind) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Notification
	for _, n := range c.ns {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type fixture struct {
	st       store.Store
	sched    *scheduler.Scheduler
	notifier *captureNotifier
	ctrl     *Controller
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	sched := scheduler.New(st)
	notifier := &captureNotifier{}
	all := append([]func(o *Options){func(o *Options) {
		o.ApprovalTimeout = 0
		o.Notifier = notifier
	}}, optFns...)
	ctrl := New(st, sched, all...)
	t.Cleanup(ctrl.Close)
	return &fixture{st: st, sched: sched, notifier: notifier, ctrl: ctrl}
}

func newTierGoal(tier goal.Tier) *goal.Goal {
	return goal.New("write a summary", "summarize recent notes", goal.TypeShortTerm, tier,
		goal.Origin{Source: goal.OriginExplicitRequest, Confidence: 0.8}, 6)
}

func TestCreateUserDerivedGoalWaitsForApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusWaitingApproval, stored.Status)
	assert.Zero(t, f.sched.Len(), "approval-gated goals are not scheduled")

	requests := f.notifier.byKind(NoticeApprovalRequest)
	require.Len(t, requests, 1)
	assert.Equal(t, g.ID, requests[0].GoalID)
}

func TestCreateInternalGoalEnqueuesDirectly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusAnalysis, stored.Status)
	assert.Equal(t, 1, f.sched.Len())
	assert.Empty(t, f.notifier.byKind(NoticeApprovalRequest))
}

func TestApproveActivatesImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Approve(ctx, g.ID))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusActive, stored.Status)
}

func TestActivationPausesPreviousActiveGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, first))
	require.NoError(t, f.ctrl.Activate(ctx, first.ID))

	second := newTierGoal(goal.TierUserDerived)
	require.NoError(t, f.ctrl.CreateGoal(ctx, second))
	require.NoError(t, f.ctrl.Approve(ctx, second.ID))

	g1, err := f.st.GetGoal(ctx, first.ID)
	require.NoError(t, err)
	g2, err := f.st.GetGoal(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusPaused, g1.Status)
	assert.Equal(t, goal.StatusActive, g2.Status)

	active, err := f.st.ActiveGoals(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1, "at most one active goal system-wide")
}

func TestReactivatingActiveGoalIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Activate(ctx, g.ID))

	before, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	require.NoError(t, f.ctrl.Activate(ctx, g.ID))

	after, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestRejectCancelsPendingGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Reject(ctx, g.ID))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusCancelled, stored.Status)

	assert.ErrorIs(t, f.ctrl.Approve(ctx, g.ID), ErrApprovalNotPending)
}

// onceFailingStore rejects the first AddAction call with a transient error.
type onceFailingStore struct {
	store.Store
	mu     sync.Mutex
	failed bool
}

func (s *onceFailingStore) AddAction(ctx context.Context, id string, a goal.Action) error {
	s.mu.Lock()
	first := !s.failed
	s.failed = true
	s.mu.Unlock()
	if first {
		return fmt.Errorf("database locked")
	}
	return s.Store.AddAction(ctx, id, a)
}

func TestRejectSurvivesTransientStoreFailure(t *testing.T) {
	flaky := &onceFailingStore{Store: store.NewMemoryStore()}
	st := store.NewRetryStore(flaky)
	sched := scheduler.New(st)
	ctrl := New(st, sched, func(o *Options) { o.ApprovalTimeout = 0 })
	t.Cleanup(ctrl.Close)
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	require.NoError(t, ctrl.CreateGoal(ctx, g))
	require.NoError(t, ctrl.Reject(ctx, g.ID), "a transient write failure must not abort the rejection")

	stored, err := st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusCancelled, stored.Status)
	require.NotEmpty(t, stored.Actions, "the rejection action is retried and recorded")
	assert.Equal(t, "approval rejected by user", stored.Actions[len(stored.Actions)-1].Description)
}

func TestApproveNonPendingGoalFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))

	assert.ErrorIs(t, f.ctrl.Approve(ctx, g.ID), ErrApprovalNotPending)
}

func TestAutoApproveAfterTimeout(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ApprovalTimeout = 30 * time.Millisecond })
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))

	require.Eventually(t, func() bool {
		stored, err := f.st.GetGoal(ctx, g.ID)
		return err == nil && stored.Status == goal.StatusActive
	}, time.Second, 5*time.Millisecond)

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	var autoApproved bool
	for _, a := range stored.Actions {
		if a.Description == "auto-approved after approval timeout" {
			autoApproved = true
		}
	}
	assert.True(t, autoApproved)
}

func TestRejectBeforeTimeoutWins(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ApprovalTimeout = 50 * time.Millisecond })
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Reject(ctx, g.ID))

	time.Sleep(120 * time.Millisecond)

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusCancelled, stored.Status, "a cancelled timer must not fire")
}

func TestProgressThresholdNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Approve(ctx, g.ID))

	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 10))
	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 30))
	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 40))
	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 80))

	notices := f.notifier.byKind(NoticeProgressUpdate)
	require.Len(t, notices, 3, "one notice per crossed threshold, even across a jump")
	assert.Equal(t, 25, notices[0].Progress)
	assert.Equal(t, 50, notices[1].Progress)
	assert.Equal(t, 75, notices[2].Progress)
}

func TestProgressJumpAnnouncesEachThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Approve(ctx, g.ID))

	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 10))
	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 80))

	notices := f.notifier.byKind(NoticeProgressUpdate)
	require.Len(t, notices, 3)
	for i, want := range []int{25, 50, 75} {
		assert.Equal(t, want, notices[i].Progress)
		assert.Contains(t, notices[i].Message, fmt.Sprintf("%d%%", want))
	}
}

func TestProgressRegressionRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 50))

	assert.ErrorIs(t, f.ctrl.UpdateProgress(ctx, g.ID, 30), store.ErrProgressRegression)

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Progress)
}

func TestCompletionPresentsDeliverables(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	g.SuccessCriteria.Deliverables = []string{"summary document"}
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Approve(ctx, g.ID))
	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 100))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusCompleted, stored.Status)
	require.NotNil(t, stored.ActualCompletion)

	completions := f.notifier.byKind(NoticeCompletion)
	require.Len(t, completions, 1)
	assert.Contains(t, completions[0].Message, "summary document")
}

func TestInternalCompletionIsSilent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 100))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusCompleted, stored.Status)
	assert.Empty(t, f.notifier.byKind(NoticeCompletion))
}

func TestUpdateProgressOnTerminalGoalFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 100))

	assert.ErrorIs(t, f.ctrl.UpdateProgress(ctx, g.ID, 100), ErrGoalTerminal)
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Activate(ctx, g.ID))
	require.NoError(t, f.ctrl.Cancel(ctx, g.ID))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusCancelled, stored.Status)

	assert.ErrorIs(t, f.ctrl.Cancel(ctx, g.ID), ErrGoalTerminal)
}

func TestFailRecordsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Fail(ctx, g.ID, "worker unavailable"))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusFailed, stored.Status)
	require.NotEmpty(t, stored.Actions)
	assert.Equal(t, "worker unavailable", stored.Actions[len(stored.Actions)-1].Outcome)
}

func TestDispatchDelegatesUserDerivedGoalOnce(t *testing.T) {
	m := model.NewMockModel("mock", "mock")
	registry := worker.NewRegistry(m)
	d := worker.NewDescriptor("helper", "assistant", "general work")
	require.NoError(t, registry.Add(d))

	executor := workflow.NewExecutor(registry)
	wf := workflow.New("delegate", workflow.Step{
		Name: "work", Type: workflow.StepSequential, WorkerIDs: []string{d.ID},
	})
	require.NoError(t, executor.Add(wf))

	f := newFixture(t, func(o *Options) {
		o.Executor = executor
		o.DelegationWorkflowID = wf.ID
	})
	ctx := context.Background()

	g := newTierGoal(goal.TierUserDerived)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Approve(ctx, g.ID))

	require.NoError(t, f.ctrl.DispatchTiers(ctx))
	require.NoError(t, f.ctrl.DispatchTiers(ctx))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, stored.Interactions, 1, "delegation runs once per goal")
	assert.Equal(t, wf.ID, stored.Interactions[0].WorkflowID)
	assert.NotEmpty(t, stored.Interactions[0].Summary)
}

func TestDispatchDecomposesAutonomousGoal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g := goal.New("Research idle patterns", "find recurring idle-time tasks",
		goal.TypeProjectBased, goal.TierCerebrumAutonomous,
		goal.Origin{Source: goal.OriginInferredPattern, Confidence: 0.7}, 7)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Approve(ctx, g.ID))

	require.NoError(t, f.ctrl.DispatchTiers(ctx))

	parent, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	require.NotEmpty(t, parent.SubGoalIDs)

	for _, childID := range parent.SubGoalIDs {
		child, err := f.st.GetGoal(ctx, childID)
		require.NoError(t, err)
		assert.Equal(t, g.ID, child.ParentGoalID)
		assert.Equal(t, goal.TierInternalSystem, child.Tier)
	}
	assert.Equal(t, len(parent.SubGoalIDs), f.sched.Len(), "sub-goals are scheduled")

	// A second dispatch must not spawn duplicates.
	require.NoError(t, f.ctrl.DispatchTiers(ctx))
	again, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, len(parent.SubGoalIDs), len(again.SubGoalIDs))
}

func TestAnalyzeAndCreateGoalOnlyWhenIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.ctrl.AnalyzeAndCreateGoal(ctx)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, goal.TierInternalSystem, created.Tier)
	assert.Equal(t, goal.OriginSystemGenerated, created.Origin.Source)
	assert.Equal(t, 1, f.sched.Len())

	// A non-terminal goal now exists, so analysis stays quiet.
	again, err := f.ctrl.AnalyzeAndCreateGoal(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestMutationsSerializeThroughOpQueue(t *testing.T) {
	q := store.NewOpQueue()
	t.Cleanup(q.Close)

	f := newFixture(t, func(o *Options) { o.Queue = q })
	ctx := context.Background()

	g := newTierGoal(goal.TierInternalSystem)
	require.NoError(t, f.ctrl.CreateGoal(ctx, g))
	require.NoError(t, f.ctrl.Activate(ctx, g.ID))
	require.NoError(t, f.ctrl.UpdateProgress(ctx, g.ID, 100))

	stored, err := f.st.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, goal.StatusCompleted, stored.Status)
}
