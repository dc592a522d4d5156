package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cerebrumd/cerebrum/goal"
	"github.com/cerebrumd/cerebrum/logging"
	"github.com/cerebrumd/cerebrum/scheduler"
	"github.com/cerebrumd/cerebrum/store"
	"github.com/cerebrumd/cerebrum/workflow"
)

var (
	// ErrApprovalNotPending is returned by Approve and Reject when the goal
	// is not waiting for approval.
	ErrApprovalNotPending = errors.New("goal is not waiting for approval")
	// ErrInvalidTransition is returned for illegal status moves.
	ErrInvalidTransition = errors.New("illegal status transition")
	// ErrGoalTerminal is returned when mutating a terminally finished goal.
	ErrGoalTerminal = errors.New("goal is in a terminal state")
)

// DefaultApprovalTimeout is how long a goal waits for approval before being
// auto-approved. Zero disables the timer and the goal waits indefinitely.
const DefaultApprovalTimeout = 60 * time.Second

// progressNoticeStep is the threshold granularity for proactive updates.
const progressNoticeStep = 25

// Options configures a Controller.
type Options struct {
	// ApprovalTimeout is the auto-approval delay; 0 disables auto-approval.
	ApprovalTimeout time.Duration
	// Notifier receives approval requests, progress updates and completion
	// presentations. Nil discards them.
	Notifier Notifier
	// Rules is the decomposition catalogue for autonomous goals.
	Rules *RuleTable
	// Executor runs delegation workflows for goals whose tier allows it.
	Executor *workflow.Executor
	// DelegationWorkflowID names the workflow to delegate active
	// user-derived goals to. Empty disables delegation.
	DelegationWorkflowID string
	// Queue serializes store writes with the background cycles. Nil runs
	// operations inline.
	Queue *store.OpQueue
	// Now is injectable for deterministic tests.
	Now func() time.Time
	// Logger records transitions and handler activity.
	Logger logging.Logger
}

// Controller owns goal lifecycle transitions: tier-gated creation, the
// approval window, the single-active invariant, monotonic progress with
// threshold notifications, and the per-tier active handlers.
type Controller struct {
	st    store.Store
	sched *scheduler.Scheduler
	exec  *workflow.Executor
	queue *store.OpQueue

	notifier        Notifier
	rules           *RuleTable
	now             func() time.Time
	logger          logging.Logger
	approvalTimeout time.Duration
	delegationWF    string

	mu             sync.Mutex
	approvalTimers map[string]*time.Timer
	noticedBand    map[string]int
}

// New constructs a Controller over the store and scheduler.
func New(st store.Store, sched *scheduler.Scheduler, optFns ...func(o *Options)) *Controller {
	opts := Options{
		ApprovalTimeout: DefaultApprovalTimeout,
		Rules:           DefaultRules(),
		Now:             time.Now,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Controller{
		st:              st,
		sched:           sched,
		exec:            opts.Executor,
		queue:           opts.Queue,
		notifier:        opts.Notifier,
		rules:           opts.Rules,
		now:             opts.Now,
		logger:          opts.Logger,
		approvalTimeout: opts.ApprovalTimeout,
		delegationWF:    opts.DelegationWorkflowID,
		approvalTimers:  map[string]*time.Timer{},
		noticedBand:     map[string]int{},
	}
}

func (c *Controller) notify(n Notification) {
	if c.notifier == nil {
		return
	}
	if n.At.IsZero() {
		n.At = c.now()
	}
	c.notifier.Notify(n)
}

// submit routes a mutation through the shared operation queue when one is
// configured, otherwise runs it inline.
func (c *Controller) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if c.queue != nil {
		return c.queue.Submit(ctx, name, fn)
	}
	return fn(ctx)
}

// CreateGoal validates and stores a goal, then routes it by tier: tiers
// requiring approval move to waiting_approval, get an approval request
// notification and an auto-approval timer; the rest are enqueued for
// scheduling directly.
func (c *Controller) CreateGoal(ctx context.Context, g *goal.Goal) error {
	return c.submit(ctx, "create_goal", func(ctx context.Context) error {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("create goal: %w", err)
		}
		if err := c.st.CreateGoal(ctx, g); err != nil {
			return err
		}
		if !g.Capabilities().RequiresUserApproval {
			return c.sched.Enqueue(ctx, g)
		}

		status := goal.StatusWaitingApproval
		updated, err := c.st.UpdateGoal(ctx, g.ID, store.GoalUpdate{Status: &status})
		if err != nil {
			return err
		}
		c.notify(Notification{
			Kind:    NoticeApprovalRequest,
			GoalID:  updated.ID,
			Title:   updated.Title,
			Message: fmt.Sprintf("Goal %q needs approval: %s", updated.Title, updated.Description),
		})
		c.startApprovalTimer(updated.ID)
		c.logger.Info("goal awaiting approval", "goal_id", updated.ID, "tier", updated.Tier)
		return nil
	})
}

// Approve grants a pending approval: the timer is cancelled and the goal
// activates immediately, preempting any currently active goal.
func (c *Controller) Approve(ctx context.Context, id string) error {
	return c.submit(ctx, "approve_goal", func(ctx context.Context) error {
		return c.approve(ctx, id, false)
	})
}

// Reject denies a pending approval: the timer is cancelled and the goal is
// cancelled.
func (c *Controller) Reject(ctx context.Context, id string) error {
	return c.submit(ctx, "reject_goal", func(ctx context.Context) error {
		c.cancelApprovalTimer(id)
		g, err := c.st.GetGoal(ctx, id)
		if err != nil {
			return err
		}
		if g.Status != goal.StatusWaitingApproval {
			return ErrApprovalNotPending
		}
		status := goal.StatusCancelled
		if _, err := c.st.UpdateGoal(ctx, id, store.GoalUpdate{Status: &status}); err != nil {
			return err
		}
		c.logger.Info("goal rejected", "goal_id", id)
		return c.st.AddAction(ctx, id, goal.Action{
			Timestamp:   c.now(),
			Description: "approval rejected by user",
			Outcome:     "goal cancelled",
		})
	})
}

func (c *Controller) approve(ctx context.Context, id string, auto bool) error {
	c.cancelApprovalTimer(id)
	g, err := c.st.GetGoal(ctx, id)
	if err != nil {
		return err
	}
	if g.Status != goal.StatusWaitingApproval {
		if auto {
			// The user answered while the timer was firing; their call won.
			return nil
		}
		return ErrApprovalNotPending
	}
	desc := "approved by user"
	if auto {
		desc = "auto-approved after approval timeout"
	}
	if err := c.st.AddAction(ctx, id, goal.Action{Timestamp: c.now(), Description: desc}); err != nil {
		return err
	}
	return c.activate(ctx, id)
}

func (c *Controller) startApprovalTimer(id string) {
	if c.approvalTimeout <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.approvalTimers[id]; ok {
		t.Stop()
	}
	c.approvalTimers[id] = time.AfterFunc(c.approvalTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := c.submit(ctx, "auto_approve_goal", func(ctx context.Context) error {
			return c.approve(ctx, id, true)
		})
		if err != nil {
			c.logger.Warn("auto-approval failed", "goal_id", id, "error", err)
		}
	})
}

func (c *Controller) cancelApprovalTimer(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.approvalTimers[id]; ok {
		t.Stop()
		delete(c.approvalTimers, id)
	}
}

// Activate makes the goal the single active goal, pausing any other active
// goal first. Re-activating the already active goal is a no-op.
func (c *Controller) Activate(ctx context.Context, id string) error {
	return c.submit(ctx, "activate_goal", func(ctx context.Context) error {
		return c.activate(ctx, id)
	})
}

func (c *Controller) activate(ctx context.Context, id string) error {
	g, err := c.st.GetGoal(ctx, id)
	if err != nil {
		return err
	}
	if g.Status == goal.StatusActive {
		return nil
	}
	if !goal.CanTransition(g.Status, goal.StatusActive) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, goal.StatusActive)
	}

	active, err := c.st.ActiveGoals(ctx)
	if err != nil {
		return err
	}
	paused := goal.StatusPaused
	for _, other := range active {
		if _, err := c.st.UpdateGoal(ctx, other.ID, store.GoalUpdate{Status: &paused}); err != nil {
			return err
		}
		c.logger.Info("goal paused by activation", "goal_id", other.ID, "activated_goal_id", id)
	}

	status := goal.StatusActive
	if _, err := c.st.UpdateGoal(ctx, id, store.GoalUpdate{Status: &status}); err != nil {
		return err
	}
	c.logger.Info("goal activated", "goal_id", id, "from", string(g.Status))
	return nil
}

// Pause moves the active goal to paused.
func (c *Controller) Pause(ctx context.Context, id string) error {
	return c.submit(ctx, "pause_goal", func(ctx context.Context) error {
		return c.transition(ctx, id, goal.StatusPaused)
	})
}

// Cancel soft-terminates a goal from any non-terminal state.
func (c *Controller) Cancel(ctx context.Context, id string) error {
	return c.submit(ctx, "cancel_goal", func(ctx context.Context) error {
		c.cancelApprovalTimer(id)
		return c.transition(ctx, id, goal.StatusCancelled)
	})
}

// Fail soft-terminates a goal as failed and records the reason.
func (c *Controller) Fail(ctx context.Context, id, reason string) error {
	return c.submit(ctx, "fail_goal", func(ctx context.Context) error {
		c.cancelApprovalTimer(id)
		if err := c.transition(ctx, id, goal.StatusFailed); err != nil {
			return err
		}
		return c.st.AddAction(ctx, id, goal.Action{
			Timestamp:   c.now(),
			Description: "goal failed",
			Outcome:     reason,
		})
	})
}

func (c *Controller) transition(ctx context.Context, id string, to goal.Status) error {
	g, err := c.st.GetGoal(ctx, id)
	if err != nil {
		return err
	}
	if g.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrGoalTerminal, g.Status)
	}
	if !goal.CanTransition(g.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, g.Status, to)
	}
	if _, err := c.st.UpdateGoal(ctx, id, store.GoalUpdate{Status: &to}); err != nil {
		return err
	}
	c.logger.Info("goal transition", "goal_id", id, "from", string(g.Status), "to", string(to))
	return nil
}

// UpdateProgress applies a monotonic progress update. Crossing a 25%
// threshold emits a progress notification for tiers with proactive updates;
// reaching 100 completes the goal, stamps ActualCompletion and, when the
// tier allows, presents the completion with its deliverables.
func (c *Controller) UpdateProgress(ctx context.Context, id string, progress int) error {
	return c.submit(ctx, "update_progress", func(ctx context.Context) error {
		return c.updateProgress(ctx, id, progress)
	})
}

func (c *Controller) updateProgress(ctx context.Context, id string, progress int) error {
	g, err := c.st.GetGoal(ctx, id)
	if err != nil {
		return err
	}
	if g.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrGoalTerminal, g.Status)
	}

	updated, err := c.st.UpdateGoal(ctx, id, store.GoalUpdate{Progress: &progress})
	if err != nil {
		return err
	}

	caps := updated.Capabilities()
	if updated.Progress >= 100 {
		return c.complete(ctx, updated, caps.CompletionPresentation)
	}

	if caps.ProactiveUpdates {
		band := updated.Progress / progressNoticeStep
		c.mu.Lock()
		last := c.noticedBand[id]
		if band > last {
			c.noticedBand[id] = band
		}
		c.mu.Unlock()
		// A jump spanning several thresholds announces each one, so the
		// user sees 25, 50 and 75 even when progress moves 10 to 80.
		for b := last + 1; b <= band; b++ {
			c.notify(Notification{
				Kind:     NoticeProgressUpdate,
				GoalID:   updated.ID,
				Title:    updated.Title,
				Message:  fmt.Sprintf("Goal %q reached %d%%", updated.Title, b*progressNoticeStep),
				Progress: b * progressNoticeStep,
				At:       c.now(),
			})
		}
	}
	return nil
}

func (c *Controller) complete(ctx context.Context, g *goal.Goal, present bool) error {
	now := c.now()
	status := goal.StatusCompleted
	updated, err := c.st.UpdateGoal(ctx, g.ID, store.GoalUpdate{
		Status:           &status,
		ActualCompletion: &now,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.noticedBand, g.ID)
	c.mu.Unlock()
	c.logger.Info("goal completed", "goal_id", g.ID, "title", g.Title)

	if present {
		msg := fmt.Sprintf("Goal %q completed", updated.Title)
		for _, d := range updated.SuccessCriteria.Deliverables {
			msg += "\n- " + d
		}
		c.notify(Notification{
			Kind:     NoticeCompletion,
			GoalID:   updated.ID,
			Title:    updated.Title,
			Message:  msg,
			Progress: 100,
			At:       now,
		})
	}
	return nil
}

// DispatchTiers runs the per-tier handler for every active goal. Individual
// handler failures are logged and skipped so one bad goal cannot stall the
// rest of the cycle.
func (c *Controller) DispatchTiers(ctx context.Context) error {
	return c.submit(ctx, "tier_dispatch", func(ctx context.Context) error {
		active, err := c.st.ActiveGoals(ctx)
		if err != nil {
			return err
		}
		for _, g := range active {
			var err error
			switch g.Tier {
			case goal.TierUserDerived:
				err = c.handleUserDerived(ctx, g)
			case goal.TierInternalSystem:
				err = c.handleInternalSystem(ctx, g)
			case goal.TierCerebrumAutonomous:
				err = c.handleAutonomous(ctx, g)
			}
			if err != nil {
				c.logger.Warn("tier handler failed", "goal_id", g.ID, "tier", g.Tier, "error", err)
			}
		}
		return nil
	})
}

// handleUserDerived delegates the goal to the configured workflow once and
// records the interaction. Subsequent dispatches leave it to progress
// updates.
func (c *Controller) handleUserDerived(ctx context.Context, g *goal.Goal) error {
	if c.exec == nil || c.delegationWF == "" || !g.Capabilities().CanDelegateToAgents {
		return nil
	}
	if len(g.Interactions) > 0 {
		return nil
	}
	input := fmt.Sprintf("Work on the goal %q: %s", g.Title, g.Description)
	exec, err := c.exec.Execute(ctx, c.delegationWF, input, map[string]string{
		"goal_id":    g.ID,
		"goal_title": g.Title,
	})
	if err != nil {
		return fmt.Errorf("delegate goal %s: %w", g.ID, err)
	}
	if err := c.st.AddInteraction(ctx, g.ID, goal.AgentInteraction{
		Timestamp:  c.now(),
		WorkflowID: c.delegationWF,
		Summary:    exec.FinalOutput,
	}); err != nil {
		return err
	}
	return c.st.AddAction(ctx, g.ID, goal.Action{
		Timestamp:   c.now(),
		Description: "delegated to workflow",
		Outcome:     fmt.Sprintf("%d worker responses", len(exec.Responses)),
	})
}

// handleInternalSystem records an autonomous execution step; progress itself
// advances through the processing cycle's oracle.
func (c *Controller) handleInternalSystem(ctx context.Context, g *goal.Goal) error {
	return c.st.AddThought(ctx, g.ID, goal.Thought{
		Timestamp: c.now(),
		Content:   fmt.Sprintf("autonomous execution step for %q", g.Title),
	})
}

// handleAutonomous decomposes the goal once via the rule table, spawning and
// enqueueing the matching sub-goal templates.
func (c *Controller) handleAutonomous(ctx context.Context, g *goal.Goal) error {
	if !g.Capabilities().CanCreateSubgoals || len(g.SubGoalIDs) > 0 || c.rules == nil {
		return nil
	}
	templates := c.rules.TemplatesFor(g)
	if len(templates) == 0 {
		return nil
	}

	childIDs := make([]string, 0, len(templates))
	for _, tpl := range templates {
		child := goal.New(tpl.Title, tpl.Description, tpl.Type, goal.TierInternalSystem, goal.Origin{
			Source:     goal.OriginSystemGenerated,
			Confidence: g.Origin.Confidence,
			Evidence:   []string{"decomposed from " + g.ID},
		}, tpl.Priority)
		child.ParentGoalID = g.ID
		if err := c.st.CreateGoal(ctx, child); err != nil {
			return err
		}
		if err := c.sched.Enqueue(ctx, child); err != nil {
			return err
		}
		childIDs = append(childIDs, child.ID)
	}

	if _, err := c.st.UpdateGoal(ctx, g.ID, store.GoalUpdate{AddSubGoalIDs: childIDs}); err != nil {
		return err
	}
	c.logger.Info("goal decomposed", "goal_id", g.ID, "sub_goals", len(childIDs))
	return c.st.AddThought(ctx, g.ID, goal.Thought{
		Timestamp: c.now(),
		Content:   fmt.Sprintf("decomposed into %d sub-goals", len(childIDs)),
	})
}

// AnalyzeAndCreateGoal creates a system-generated maintenance goal when the
// system has nothing at all to work on. It returns the created goal, or nil
// when any non-terminal goal already exists.
func (c *Controller) AnalyzeAndCreateGoal(ctx context.Context) (*goal.Goal, error) {
	all, err := c.st.AllGoals(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range all {
		if !g.Status.Terminal() {
			return nil, nil
		}
	}

	g := goal.New(
		"Review recent goal activity",
		"Inspect completed and failed goals for follow-up opportunities",
		goal.TypeMicroTask,
		goal.TierInternalSystem,
		goal.Origin{Source: goal.OriginSystemGenerated, Confidence: 0.6},
		3,
	)
	if err := c.st.CreateGoal(ctx, g); err != nil {
		return nil, err
	}
	if err := c.sched.Enqueue(ctx, g); err != nil {
		return nil, err
	}
	c.logger.Info("created maintenance goal from empty-queue analysis", "goal_id", g.ID)
	return g, nil
}

// Close stops all pending approval timers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, t := range c.approvalTimers {
		t.Stop()
		delete(c.approvalTimers, id)
	}
}
