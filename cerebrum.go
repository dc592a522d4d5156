// Package cerebrum provides a high-level façade over the goal store,
// priority scheduler, lifecycle controller, worker registry, workflow
// executor and background coordinator. Most applications interact with this
// package by:
//  1. Creating a Cerebrum via New() (optionally overriding the store, the
//     completion model and the cycle intervals)
//  2. Registering workers and workflows (or loading them from a definitions
//     file)
//  3. Creating goals and starting the background cycles
//
// All defaults are safe for local development and testing; production
// deployments typically supply the SQLite store, a real completion model and
// a structured logger.
package cerebrum

import (
	"context"
	"time"

	"github.com/cerebrumd/cerebrum/coordinator"
	"github.com/cerebrumd/cerebrum/goal"
	"github.com/cerebrumd/cerebrum/lifecycle"
	"github.com/cerebrumd/cerebrum/logging"
	"github.com/cerebrumd/cerebrum/model"
	"github.com/cerebrumd/cerebrum/scheduler"
	"github.com/cerebrumd/cerebrum/store"
	"github.com/cerebrumd/cerebrum/worker"
	"github.com/cerebrumd/cerebrum/workflow"
)

// Options configures a Cerebrum instance.
type Options struct {
	// Store holds goals and the priority queue snapshot. Defaults to the
	// in-memory store.
	Store store.Store
	// Model answers worker completions. Defaults to a mock model.
	Model model.CompletionModel

	// WorkerPersister receives the full worker set after every management
	// mutation. Nil disables persistence.
	WorkerPersister worker.Persister
	// WorkflowPersister receives the full workflow set after every
	// management mutation. Nil disables persistence.
	WorkflowPersister workflow.Persister

	// Notifier receives approval requests, progress updates and completion
	// presentations.
	Notifier lifecycle.Notifier
	// ApprovalTimeout is the auto-approval delay; 0 disables auto-approval.
	ApprovalTimeout time.Duration
	// DelegationWorkflowID names the workflow active user-derived goals are
	// delegated to. Empty disables delegation.
	DelegationWorkflowID string
	// Rules is the decomposition catalogue for autonomous goals.
	Rules *lifecycle.RuleTable
	// Oracle assesses active-goal progress each processing cycle.
	Oracle lifecycle.ProgressOracle

	// Cycle intervals for the background coordinator.
	ReflectionInterval time.Duration
	ProcessingInterval time.Duration
	DispatchInterval   time.Duration

	// InvokeTimeout bounds a single worker completion call.
	InvokeTimeout time.Duration

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Cerebrum is the high-level façade aggregating the underlying services.
type Cerebrum struct {
	store     store.Store
	queue     *store.OpQueue
	scheduler *scheduler.Scheduler
	registry  *worker.Registry
	executor  *workflow.Executor
	ctrl      *lifecycle.Controller
	coord     *coordinator.Coordinator
	logger    logging.Logger
}

// New creates a Cerebrum instance with optional overrides. Any unset service
// is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Cerebrum {
	opts := Options{
		Store:              store.NewMemoryStore(),
		Model:              model.NewMockModel("mock", "mock"),
		ApprovalTimeout:    lifecycle.DefaultApprovalTimeout,
		Rules:              lifecycle.DefaultRules(),
		Oracle:             lifecycle.NewRandomWalkOracle(),
		ReflectionInterval: coordinator.DefaultReflectionInterval,
		ProcessingInterval: coordinator.DefaultProcessingInterval,
		DispatchInterval:   coordinator.DefaultDispatchInterval,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	queue := store.NewOpQueue(func(o *store.OpQueueOptions) {
		o.Logger = opts.Logger
	})

	// Retry-once for transient store failures lives at the individual call
	// boundary so composite lifecycle operations resume from the failed call.
	st := store.NewRetryStore(opts.Store, func(o *store.RetryStoreOptions) {
		o.Logger = opts.Logger
	})

	registry := worker.NewRegistry(opts.Model, func(o *worker.RegistryOptions) {
		o.Logger = opts.Logger
		o.Persister = opts.WorkerPersister
		if opts.InvokeTimeout > 0 {
			o.InvokeTimeout = opts.InvokeTimeout
		}
	})
	executor := workflow.NewExecutor(registry, func(o *workflow.ExecutorOptions) {
		o.Logger = opts.Logger
		o.Persister = opts.WorkflowPersister
	})

	// The scheduler's empty-queue hook points at the controller, which in
	// turn needs the scheduler; the closure resolves the cycle.
	var ctrl *lifecycle.Controller
	sched := scheduler.New(st, func(o *scheduler.Options) {
		o.Logger = opts.Logger
		o.OnEmptyQueue = func(ctx context.Context) {
			if ctrl == nil {
				return
			}
			if _, err := ctrl.AnalyzeAndCreateGoal(ctx); err != nil {
				opts.Logger.Warn("empty-queue analysis failed", "error", err)
			}
		}
	})
	ctrl = lifecycle.New(st, sched, func(o *lifecycle.Options) {
		o.ApprovalTimeout = opts.ApprovalTimeout
		o.Notifier = opts.Notifier
		o.Rules = opts.Rules
		o.Executor = executor
		o.DelegationWorkflowID = opts.DelegationWorkflowID
		o.Queue = queue
		o.Logger = opts.Logger
	})

	coord := coordinator.New(st, sched, ctrl, func(o *coordinator.Options) {
		o.ReflectionInterval = opts.ReflectionInterval
		o.ProcessingInterval = opts.ProcessingInterval
		o.DispatchInterval = opts.DispatchInterval
		o.Oracle = opts.Oracle
		o.Queue = queue
		o.Logger = opts.Logger
	})

	return &Cerebrum{
		store:     st,
		queue:     queue,
		scheduler: sched,
		registry:  registry,
		executor:  executor,
		ctrl:      ctrl,
		coord:     coord,
		logger:    opts.Logger,
	}
}

// Start launches the background cycles.
func (c *Cerebrum) Start(ctx context.Context) error { return c.coord.Start(ctx) }

// Stop halts the background cycles, pending approval timers and the
// operation queue.
func (c *Cerebrum) Stop() {
	c.coord.Stop()
	c.ctrl.Close()
	c.queue.Close()
}

// CreateGoal validates, stores and routes a goal by tier.
func (c *Cerebrum) CreateGoal(ctx context.Context, g *goal.Goal) error {
	return c.ctrl.CreateGoal(ctx, g)
}

// ApproveGoal grants a pending approval and activates the goal.
func (c *Cerebrum) ApproveGoal(ctx context.Context, id string) error {
	return c.ctrl.Approve(ctx, id)
}

// RejectGoal denies a pending approval and cancels the goal.
func (c *Cerebrum) RejectGoal(ctx context.Context, id string) error {
	return c.ctrl.Reject(ctx, id)
}

// CancelGoal soft-terminates a goal from any non-terminal state.
func (c *Cerebrum) CancelGoal(ctx context.Context, id string) error {
	return c.ctrl.Cancel(ctx, id)
}

// ReportProgress applies a monotonic progress update to a goal.
func (c *Cerebrum) ReportProgress(ctx context.Context, id string, progress int) error {
	return c.ctrl.UpdateProgress(ctx, id, progress)
}

// Goal returns one goal by id.
func (c *Cerebrum) Goal(ctx context.Context, id string) (*goal.Goal, error) {
	return c.store.GetGoal(ctx, id)
}

// Goals returns all goals.
func (c *Cerebrum) Goals(ctx context.Context) ([]*goal.Goal, error) {
	return c.store.AllGoals(ctx)
}

// QueueEntries returns the current priority queue snapshot.
func (c *Cerebrum) QueueEntries() []goal.QueueEntry { return c.scheduler.Entries() }

// RegisterWorker adds a worker to the registry.
func (c *Cerebrum) RegisterWorker(d worker.Descriptor) error { return c.registry.Add(d) }

// RegisterWorkflow adds a workflow to the executor.
func (c *Cerebrum) RegisterWorkflow(wf workflow.Workflow) error { return c.executor.Add(wf) }

// Workers lists the registered worker descriptors.
func (c *Cerebrum) Workers() []worker.Descriptor { return c.registry.List() }

// Workflows lists the registered workflows.
func (c *Cerebrum) Workflows() []workflow.Workflow { return c.executor.List() }

// RunWorkflow executes a workflow synchronously against the given input.
func (c *Cerebrum) RunWorkflow(ctx context.Context, workflowID, input string, runContext map[string]string) (*workflow.Execution, error) {
	return c.executor.Execute(ctx, workflowID, input, runContext)
}
