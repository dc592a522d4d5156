package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/cerebrumd/cerebrum/worker"
)

// ExecutionStatus is the run-state of one workflow execution.
type ExecutionStatus string

const (
	// ExecutionPending marks a created but not yet started execution.
	ExecutionPending ExecutionStatus = "pending"
	// ExecutionRunning marks an in-flight execution.
	ExecutionRunning ExecutionStatus = "running"
	// ExecutionCompleted marks a successful terminal execution.
	ExecutionCompleted ExecutionStatus = "completed"
	// ExecutionFailed marks an unsuccessful terminal execution. Failed
	// executions are not resumable.
	ExecutionFailed ExecutionStatus = "failed"
)

// Execution is one terminal run instance of a workflow. Once it reaches a
// terminal status the object is immutable; its responses are owned
// exclusively by this execution and never mutated afterward.
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID string          `json:"workflow_id"`
	Status     ExecutionStatus `json:"status"`

	Responses       []worker.Response `json:"responses"`
	FinalOutput     string            `json:"final_output"`
	WorkersInvolved []string          `json:"workers_involved"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newExecution(workflowID string) *Execution {
	return &Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     ExecutionPending,
		StartedAt:  time.Now().UTC(),
	}
}

func (e *Execution) finish(status ExecutionStatus, finalOutput string) {
	now := time.Now().UTC()
	e.Status = status
	e.FinalOutput = finalOutput
	e.CompletedAt = &now
}

func (e *Execution) recordResponse(resp worker.Response) {
	e.Responses = append(e.Responses, resp)
	for _, id := range e.WorkersInvolved {
		if id == resp.WorkerID {
			return
		}
	}
	e.WorkersInvolved = append(e.WorkersInvolved, resp.WorkerID)
}

// snapshot returns a defensive copy so callers cannot mutate a terminal
// execution through the returned pointer.
func (e *Execution) snapshot() *Execution {
	cp := *e
	cp.Responses = append([]worker.Response(nil), e.Responses...)
	cp.WorkersInvolved = append([]string(nil), e.WorkersInvolved...)
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
