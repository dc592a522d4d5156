package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cerebrumd/cerebrum/logging"
	"github.com/cerebrumd/cerebrum/worker"
)

var (
	// ErrUnknownWorkflow is returned when a workflow id is not registered.
	ErrUnknownWorkflow = errors.New("unknown workflow")
	// ErrWorkflowDisabled is returned when executing a disabled workflow.
	ErrWorkflowDisabled = errors.New("workflow disabled")
)

// Persister is notified with the full workflow set after every management
// mutation so definitions can be rewritten in full.
type Persister interface {
	PersistWorkflows(workflows []Workflow) error
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Persister receives the full workflow set after every mutation. Nil
	// disables persistence.
	Persister Persister
	// Logger records execution outcomes.
	Logger logging.Logger
}

// Executor runs named workflows across the worker pool: it iterates steps in
// order carrying a running input, fans parallel steps out concurrently, and
// synthesizes one coherent final output from the full attributed transcript.
type Executor struct {
	mu        sync.RWMutex
	workflows map[string]Workflow

	registry  *worker.Registry
	persister Persister
	logger    logging.Logger
}

// NewExecutor constructs an Executor over the given worker registry.
func NewExecutor(registry *worker.Registry, optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{
		workflows: make(map[string]Workflow),
		registry:  registry,
		persister: opts.Persister,
		logger:    opts.Logger,
	}
}

// Add registers a workflow, replacing any previous one with the same id.
func (e *Executor) Add(wf Workflow) error {
	if wf.ID == "" {
		return fmt.Errorf("workflow id is required")
	}
	e.mu.Lock()
	e.workflows[wf.ID] = wf
	e.mu.Unlock()
	return e.persist()
}

// Remove deletes a workflow.
func (e *Executor) Remove(id string) error {
	e.mu.Lock()
	if _, ok := e.workflows[id]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, id)
	}
	delete(e.workflows, id)
	e.mu.Unlock()
	return e.persist()
}

// SetEnabled flips a workflow's enabled flag.
func (e *Executor) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	wf, ok := e.workflows[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, id)
	}
	wf.Enabled = enabled
	e.workflows[id] = wf
	e.mu.Unlock()
	return e.persist()
}

// Get returns a workflow by id.
func (e *Executor) Get(id string) (Workflow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	wf, ok := e.workflows[id]
	if !ok {
		return Workflow{}, fmt.Errorf("%w: %s", ErrUnknownWorkflow, id)
	}
	return wf, nil
}

// List returns all workflows sorted by name.
func (e *Executor) List() []Workflow {
	e.mu.RLock()
	defer e.mu.RUnlock()
	res := make([]Workflow, 0, len(e.workflows))
	for _, wf := range e.workflows {
		res = append(res, wf)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func (e *Executor) persist() error {
	if e.persister == nil {
		return nil
	}
	return e.persister.PersistWorkflows(e.List())
}

// Execute runs one workflow against an input. Unknown or disabled workflows
// fail before any execution object is created. A failure inside one step
// never aborts the whole run; only an error outside step execution fails the
// execution, with a human-readable final output.
func (e *Executor) Execute(ctx context.Context, workflowID, input string, runContext map[string]string) (*Execution, error) {
	wf, err := e.Get(workflowID)
	if err != nil {
		return nil, err
	}
	if !wf.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowDisabled, workflowID)
	}

	exec := newExecution(wf.ID)
	exec.Status = ExecutionRunning
	start := time.Now()

	currentInput := input
	for _, step := range wf.Steps {
		responses := e.runStep(ctx, step, currentInput, runContext)
		for _, resp := range responses {
			exec.recordResponse(resp)
		}
		currentInput = nextInput(currentInput, responses)
	}

	final := e.synthesize(ctx, wf, exec, runContext)
	exec.finish(ExecutionCompleted, final)

	e.logger.Info("workflow execution completed",
		"workflow_id", wf.ID, "execution_id", exec.ID,
		"steps", len(wf.Steps), "responses", len(exec.Responses),
		"duration", time.Since(start))

	return exec.snapshot(), nil
}

// runStep dispatches on step topology. Every returned slice may mix
// successful and degraded responses; callers never see an error from inside
// a step.
func (e *Executor) runStep(ctx context.Context, step Step, input string, runContext map[string]string) []worker.Response {
	switch step.Type {
	case StepParallel:
		return e.runParallel(ctx, step, input, runContext)
	case StepConditional:
		if step.Condition == nil || !step.Condition.Evaluate(input) {
			e.logger.Debug("conditional step skipped", "step", step.Name)
			return nil
		}
		return e.runSequential(ctx, step, input, runContext)
	default:
		return e.runSequential(ctx, step, input, runContext)
	}
}

// unavailableResponse records a worker that could not be invoked at all, so
// the transcript and synthesis see the gap instead of a silent drop.
func (e *Executor) unavailableResponse(id string, err error) worker.Response {
	name := id
	if d, derr := e.registry.Get(id); derr == nil {
		name = d.Name
	}
	return worker.Response{
		WorkerID:   id,
		WorkerName: name,
		Failed:     true,
		Error:      err.Error(),
	}
}

// runSequential invokes workers one at a time, chaining each worker's output
// into the next worker's input. Order is significant. A degraded response
// contributes no text, so the chain carries the prior input forward.
func (e *Executor) runSequential(ctx context.Context, step Step, input string, runContext map[string]string) []worker.Response {
	var responses []worker.Response
	currentInput := input
	for _, id := range step.WorkerIDs {
		resp, err := e.registry.Invoke(ctx, id, currentInput, runContext)
		if err != nil {
			e.logger.Warn("step worker unavailable", "step", step.Name, "worker_id", id, "error", err)
			resp = e.unavailableResponse(id, err)
		}
		responses = append(responses, resp)
		if !resp.Failed {
			currentInput = resp.Text
		}
	}
	return responses
}

// runParallel starts every worker before requiring any result and does not
// finish until all have returned or failed. A single worker's failure does
// not abort the step.
func (e *Executor) runParallel(ctx context.Context, step Step, input string, runContext map[string]string) []worker.Response {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		responses []worker.Response
	)
	for _, id := range step.WorkerIDs {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := e.registry.Invoke(ctx, id, input, runContext)
			if err != nil {
				e.logger.Warn("step worker unavailable", "step", step.Name, "worker_id", id, "error", err)
				resp = e.unavailableResponse(id, err)
			}
			mu.Lock()
			responses = append(responses, resp)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Collection order is nondeterministic; fix it to the step's declared
	// worker order so downstream attribution is stable.
	order := make(map[string]int, len(step.WorkerIDs))
	for i, id := range step.WorkerIDs {
		order[id] = i
	}
	sort.SliceStable(responses, func(i, j int) bool {
		return order[responses[i].WorkerID] < order[responses[j].WorkerID]
	})
	return responses
}

// nextInput derives the next step's input: a single response verbatim,
// multiple responses concatenated with worker-name attribution so downstream
// consumers can disambiguate authorship.
func nextInput(currentInput string, responses []worker.Response) string {
	usable := make([]worker.Response, 0, len(responses))
	for _, r := range responses {
		if !r.Failed {
			usable = append(usable, r)
		}
	}
	switch len(usable) {
	case 0:
		return currentInput
	case 1:
		return usable[0].Text
	default:
		var sb strings.Builder
		for i, r := range usable {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			fmt.Fprintf(&sb, "[%s]: %s", r.WorkerName, r.Text)
		}
		return sb.String()
	}
}

// synthesize assembles an attributed transcript of every response across the
// run and invokes the designated synthesis worker. If no synthesis worker is
// configured or it degrades, the transcript itself is the final output so an
// explicit user request never gets a silently empty result.
func (e *Executor) synthesize(ctx context.Context, wf Workflow, exec *Execution, runContext map[string]string) string {
	transcript := Transcript(exec.Responses)
	if len(exec.Responses) == 0 {
		return fmt.Sprintf("workflow %q produced no worker responses", wf.Name)
	}
	if wf.SynthesisWorkerID == "" {
		return transcript
	}

	prompt := fmt.Sprintf("Synthesize the following worker outputs into one coherent result:\n\n%s", transcript)
	resp, err := e.registry.Invoke(ctx, wf.SynthesisWorkerID, prompt, runContext)
	if err != nil || resp.Failed {
		e.logger.Warn("synthesis worker degraded, falling back to transcript", "workflow_id", wf.ID)
		return transcript
	}
	exec.recordResponse(resp)
	return resp.Text
}

// Transcript renders responses as an attributed transcript. Degraded
// responses are marked so the synthesis worker can weigh them.
func Transcript(responses []worker.Response) string {
	var sb strings.Builder
	for i, r := range responses {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if r.Failed {
			fmt.Fprintf(&sb, "[%s] (failed: %s)", r.WorkerName, r.Error)
			continue
		}
		fmt.Fprintf(&sb, "[%s]: %s", r.WorkerName, r.Text)
	}
	return sb.String()
}
