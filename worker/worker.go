package worker

import (
	"time"

	"github.com/google/uuid"
)

// Descriptor describes one capability-tagged worker. Descriptors are
// immutable during a workflow run; management operations on the Registry are
// the only mutation path.
type Descriptor struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Role           string   `json:"role" yaml:"role"`
	Specialization string   `json:"specialization" yaml:"specialization"`
	Traits         []string `json:"traits,omitempty" yaml:"traits,omitempty"`
	Capabilities   []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`

	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	Enabled bool `json:"enabled" yaml:"enabled"`
}

// NewDescriptor constructs an enabled descriptor with a generated id.
func NewDescriptor(name, role, specialization string) Descriptor {
	return Descriptor{
		ID:             uuid.NewString(),
		Name:           name,
		Role:           role,
		Specialization: specialization,
		Temperature:    0.7,
		Enabled:        true,
	}
}

// Response is one worker's answer to an invocation. It is owned exclusively
// by the workflow execution that produced it and never mutated afterward.
type Response struct {
	WorkerID   string            `json:"worker_id"`
	WorkerName string            `json:"worker_name"`
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Latency    time.Duration     `json:"latency"`
	Failed     bool              `json:"failed"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
