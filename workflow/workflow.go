package workflow

import (
	"strings"

	"github.com/google/uuid"
)

// StepType names the execution topology of one workflow step.
type StepType string

const (
	// StepSequential invokes the step's workers one at a time, chaining
	// each output into the next input.
	StepSequential StepType = "sequential"
	// StepParallel invokes all workers concurrently against the same input.
	StepParallel StepType = "parallel"
	// StepConditional runs its workers only when the predicate holds.
	StepConditional StepType = "conditional"
)

// ConditionKind names the supported predicate forms.
type ConditionKind string

const (
	// ConditionAlways is the literal true predicate.
	ConditionAlways ConditionKind = "always"
	// ConditionNever is the literal false predicate.
	ConditionNever ConditionKind = "never"
	// ConditionContains holds when the current input contains Value.
	ConditionContains ConditionKind = "contains"
)

// Condition is a minimal step predicate evaluated against the current input.
type Condition struct {
	Kind  ConditionKind `json:"kind" yaml:"kind"`
	Value string        `json:"value,omitempty" yaml:"value,omitempty"`
}

// Evaluate applies the predicate to the running input.
func (c Condition) Evaluate(currentInput string) bool {
	switch c.Kind {
	case ConditionAlways:
		return true
	case ConditionNever:
		return false
	case ConditionContains:
		return strings.Contains(currentInput, c.Value)
	default:
		return false
	}
}

// Step is one typed unit of a workflow naming the workers it fans across.
type Step struct {
	Name      string     `json:"name" yaml:"name"`
	Type      StepType   `json:"type" yaml:"type"`
	WorkerIDs []string   `json:"worker_ids" yaml:"worker_ids"`
	Condition *Condition `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Workflow is a named ordered list of steps describing how work fans across
// workers, ending in a mandatory synthesis pass.
type Workflow struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step `json:"steps" yaml:"steps"`

	// SynthesisWorkerID designates the worker that merges the attributed
	// transcript into the final output.
	SynthesisWorkerID string `json:"synthesis_worker_id" yaml:"synthesis_worker_id"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// New constructs an enabled workflow with a generated id.
func New(name string, steps ...Step) Workflow {
	return Workflow{
		ID:      uuid.NewString(),
		Name:    name,
		Steps:   steps,
		Enabled: true,
	}
}
