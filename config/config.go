// Package config loads and persists the worker and workflow definitions as
// one YAML document. The File type implements both persister interfaces, so
// every management mutation rewrites the full definitions file and a restart
// reloads exactly what was last saved.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cerebrumd/cerebrum/worker"
	"github.com/cerebrumd/cerebrum/workflow"
)

// Definitions is the on-disk document holding all workers and workflows.
type Definitions struct {
	Workers   []worker.Descriptor `yaml:"workers"`
	Workflows []workflow.Workflow `yaml:"workflows"`
}

// Validate checks id uniqueness and that every worker referenced by a
// workflow step or synthesis slot is defined.
func (d *Definitions) Validate() error {
	workers := map[string]bool{}
	for _, w := range d.Workers {
		if w.ID == "" {
			return fmt.Errorf("worker %q has no id", w.Name)
		}
		if w.Name == "" {
			return fmt.Errorf("worker %s has no name", w.ID)
		}
		if workers[w.ID] {
			return fmt.Errorf("duplicate worker id %s", w.ID)
		}
		workers[w.ID] = true
	}

	workflows := map[string]bool{}
	for _, wf := range d.Workflows {
		if wf.ID == "" {
			return fmt.Errorf("workflow %q has no id", wf.Name)
		}
		if workflows[wf.ID] {
			return fmt.Errorf("duplicate workflow id %s", wf.ID)
		}
		workflows[wf.ID] = true

		for _, step := range wf.Steps {
			switch step.Type {
			case workflow.StepSequential, workflow.StepParallel:
			case workflow.StepConditional:
				if step.Condition == nil {
					return fmt.Errorf("workflow %q step %q is conditional without a condition", wf.Name, step.Name)
				}
			default:
				return fmt.Errorf("workflow %q step %q has unknown type %q", wf.Name, step.Name, step.Type)
			}
			for _, id := range step.WorkerIDs {
				if !workers[id] {
					return fmt.Errorf("workflow %q step %q references unknown worker %s", wf.Name, step.Name, id)
				}
			}
		}
		if wf.SynthesisWorkerID != "" && !workers[wf.SynthesisWorkerID] {
			return fmt.Errorf("workflow %q synthesis worker %s is not defined", wf.Name, wf.SynthesisWorkerID)
		}
	}
	return nil
}

// File persists definitions to one YAML file. Saves are atomic via a
// temp-file rename.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile constructs a File over the given path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

// Load reads and validates the definitions. A missing file yields empty
// definitions, not an error, so first runs start clean.
func (f *File) Load() (*Definitions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Definitions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}
	if err := defs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}
	return &defs, nil
}

// Save validates and rewrites the full definitions file.
func (f *File) Save(defs *Definitions) error {
	if err := defs.Validate(); err != nil {
		return fmt.Errorf("invalid definitions: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(defs)
}

func (f *File) write(defs *Definitions) error {
	raw, err := yaml.Marshal(defs)
	if err != nil {
		return fmt.Errorf("encode definitions: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// PersistWorkers replaces the worker section and rewrites the file.
func (f *File) PersistWorkers(workers []worker.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	defs, err := f.loadLocked()
	if err != nil {
		return err
	}
	defs.Workers = workers
	return f.write(defs)
}

// PersistWorkflows replaces the workflow section and rewrites the file.
func (f *File) PersistWorkflows(workflows []workflow.Workflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	defs, err := f.loadLocked()
	if err != nil {
		return err
	}
	defs.Workflows = workflows
	return f.write(defs)
}

func (f *File) loadLocked() (*Definitions, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Definitions{}, nil
	}
	if err != nil {
		return nil, err
	}
	var defs Definitions
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, err
	}
	return &defs, nil
}

// DefaultDefinitions seeds a first run with a small general-purpose crew and
// one delegation workflow.
func DefaultDefinitions() *Definitions {
	analyst := worker.NewDescriptor("analyst", "analyst", "breaking problems into concrete steps")
	writer := worker.NewDescriptor("writer", "writer", "clear prose and summaries")
	reviewer := worker.NewDescriptor("reviewer", "critic", "finding gaps and errors")

	wf := workflow.New("analyze-draft-review",
		workflow.Step{Name: "analyze", Type: workflow.StepSequential, WorkerIDs: []string{analyst.ID}},
		workflow.Step{Name: "draft", Type: workflow.StepSequential, WorkerIDs: []string{writer.ID}},
		workflow.Step{Name: "review", Type: workflow.StepParallel, WorkerIDs: []string{reviewer.ID}},
	)
	wf.Description = "analyze the request, draft a response, then review it"
	wf.SynthesisWorkerID = writer.ID

	return &Definitions{
		Workers:   []worker.Descriptor{analyst, writer, reviewer},
		Workflows: []workflow.Workflow{wf},
	}
}
