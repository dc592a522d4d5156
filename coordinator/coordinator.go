package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cerebrumd/cerebrum/goal"
	"github.com/cerebrumd/cerebrum/lifecycle"
	"github.com/cerebrumd/cerebrum/logging"
	"github.com/cerebrumd/cerebrum/scheduler"
	"github.com/cerebrumd/cerebrum/store"
)

// ErrAlreadyRunning is returned by Start when the coordinator is running.
var ErrAlreadyRunning = errors.New("coordinator already running")

// Default cycle intervals.
const (
	DefaultReflectionInterval = 5 * time.Minute
	DefaultProcessingInterval = 30 * time.Second
	DefaultDispatchInterval   = 30 * time.Second
)

// Options configures a Coordinator.
type Options struct {
	// ReflectionInterval paces the reflection cycle.
	ReflectionInterval time.Duration
	// ProcessingInterval paces the goal processing cycle.
	ProcessingInterval time.Duration
	// DispatchInterval paces the tier dispatch cycle.
	DispatchInterval time.Duration
	// Oracle assesses progress for the active goal each processing cycle.
	Oracle lifecycle.ProgressOracle
	// Queue serializes the coordinator's direct store writes with the
	// controller's. Nil writes inline.
	Queue *store.OpQueue
	// Now is injectable for deterministic tests.
	Now func() time.Time
	// Logger records cycle activity.
	Logger logging.Logger
}

// Coordinator runs the three background cycles: reflection, goal processing
// and tier dispatch. Each cycle fires on its own ticker; a failed firing is
// logged and the next firing proceeds normally.
type Coordinator struct {
	st     store.Store
	sched  *scheduler.Scheduler
	ctrl   *lifecycle.Controller
	queue  *store.OpQueue
	oracle lifecycle.ProgressOracle
	now    func() time.Time
	logger logging.Logger

	reflectionInterval time.Duration
	processingInterval time.Duration
	dispatchInterval   time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Coordinator over the store, scheduler and controller.
func New(st store.Store, sched *scheduler.Scheduler, ctrl *lifecycle.Controller, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		ReflectionInterval: DefaultReflectionInterval,
		ProcessingInterval: DefaultProcessingInterval,
		DispatchInterval:   DefaultDispatchInterval,
		Oracle:             lifecycle.NewRandomWalkOracle(),
		Now:                time.Now,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{
		st:                 st,
		sched:              sched,
		ctrl:               ctrl,
		queue:              opts.Queue,
		oracle:             opts.Oracle,
		now:                opts.Now,
		logger:             opts.Logger,
		reflectionInterval: opts.ReflectionInterval,
		processingInterval: opts.ProcessingInterval,
		dispatchInterval:   opts.DispatchInterval,
	}
}

// Start restores the persisted priority queue and launches the three cycle
// goroutines. It returns ErrAlreadyRunning on a second call without Stop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.sched.Restore(ctx); err != nil {
		c.logger.Warn("priority queue restore failed, starting empty", "error", err)
	}

	c.wg.Add(3)
	go c.loop(runCtx, "reflection", c.reflectionInterval, c.runReflection)
	go c.loop(runCtx, "processing", c.processingInterval, c.runProcessing)
	go c.loop(runCtx, "tier_dispatch", c.dispatchInterval, c.runDispatch)

	c.logger.Info("coordinator started",
		"reflection_interval", c.reflectionInterval,
		"processing_interval", c.processingInterval,
		"dispatch_interval", c.dispatchInterval)
	return nil
}

// Stop halts the cycles and waits for in-flight firings to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.logger.Info("coordinator stopped")
}

func (c *Coordinator) loop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := c.now()
			if err := fn(ctx); err != nil {
				c.logger.Warn("cycle firing failed", "cycle", name, "error", err, "duration", time.Since(start))
				continue
			}
			c.logger.Debug("cycle firing completed", "cycle", name, "duration", time.Since(start))
		}
	}
}

// submit routes a direct store write through the shared operation queue.
func (c *Coordinator) submit(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if c.queue != nil {
		return c.queue.Submit(ctx, name, fn)
	}
	return fn(ctx)
}

// runReflection records a context reflection on the active goal, or triggers
// goal-creation analysis when nothing is active.
func (c *Coordinator) runReflection(ctx context.Context) error {
	active, err := c.st.ActiveGoals(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return c.submit(ctx, "reflection_analysis", func(ctx context.Context) error {
			_, err := c.ctrl.AnalyzeAndCreateGoal(ctx)
			return err
		})
	}

	g := active[0]
	return c.submit(ctx, "reflection_note", func(ctx context.Context) error {
		return c.st.AddReflection(ctx, g.ID, goal.Reflection{
			Timestamp: c.now(),
			Content:   fmt.Sprintf("working on %q, progress %d%%, %d actions recorded", g.Title, g.Progress, len(g.Actions)),
			Trigger:   "reflection_cycle",
		})
	})
}

// runProcessing activates the next queued goal when nothing is active,
// otherwise asks the oracle whether the active goal advanced.
func (c *Coordinator) runProcessing(ctx context.Context) error {
	active, err := c.st.ActiveGoals(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		next, err := c.sched.DequeueNext(ctx)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return c.ctrl.Activate(ctx, next.ID)
	}

	g := active[0]
	if c.oracle == nil {
		return nil
	}
	p, ok := c.oracle.Assess(ctx, g)
	if !ok || p <= g.Progress {
		return nil
	}
	return c.ctrl.UpdateProgress(ctx, g.ID, p)
}

// runDispatch runs the per-tier handlers over the active goals.
func (c *Coordinator) runDispatch(ctx context.Context) error {
	return c.ctrl.DispatchTiers(ctx)
}
