package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cerebrumd/cerebrum/logging"
	"github.com/cerebrumd/cerebrum/model"
)

var (
	// ErrUnknownWorker is returned when a worker id is not registered.
	ErrUnknownWorker = errors.New("unknown worker")
	// ErrWorkerDisabled is returned when invoking a disabled worker.
	ErrWorkerDisabled = errors.New("worker disabled")
)

// Persister is notified with the full descriptor set after every management
// mutation so definitions can be rewritten in full.
type Persister interface {
	PersistWorkers(workers []Descriptor) error
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// InvokeTimeout bounds a single completion call; on expiry the
	// invocation degrades to a failed Response instead of blocking.
	InvokeTimeout time.Duration
	// Persister receives the full worker set after every mutation. Nil
	// disables persistence.
	Persister Persister
	// Logger records invocation outcomes.
	Logger logging.Logger
}

// Registry holds capability-tagged worker descriptors and invokes them
// against the completion collaborator. Descriptors are only mutable through
// the explicit management operations.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Descriptor

	completion model.CompletionModel
	timeout    time.Duration
	persister  Persister
	logger     logging.Logger
}

// NewRegistry constructs a Registry backed by the given completion model.
func NewRegistry(completion model.CompletionModel, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		InvokeTimeout: 60 * time.Second,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		workers:    make(map[string]Descriptor),
		completion: completion,
		timeout:    opts.InvokeTimeout,
		persister:  opts.Persister,
		logger:     opts.Logger,
	}
}

// Add registers a descriptor, replacing any previous one with the same id.
func (r *Registry) Add(d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("worker id is required")
	}
	r.mu.Lock()
	r.workers[d.ID] = d
	r.mu.Unlock()
	return r.persist()
}

// Update replaces an existing descriptor. Unlike Add it refuses ids that are
// not already registered.
func (r *Registry) Update(d Descriptor) error {
	r.mu.Lock()
	if _, ok := r.workers[d.ID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorker, d.ID)
	}
	r.workers[d.ID] = d
	r.mu.Unlock()
	return r.persist()
}

// Remove deletes a descriptor.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	if _, ok := r.workers[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	delete(r.workers, id)
	r.mu.Unlock()
	return r.persist()
}

// SetEnabled flips a worker's enabled flag.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	d, ok := r.workers[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	d.Enabled = enabled
	r.workers[id] = d
	r.mu.Unlock()
	return r.persist()
}

// Get returns a descriptor by id.
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.workers[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	return d, nil
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Descriptor, 0, len(r.workers))
	for _, d := range r.workers {
		res = append(res, d)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func (r *Registry) persist() error {
	if r.persister == nil {
		return nil
	}
	return r.persister.PersistWorkers(r.List())
}

// Invoke runs one worker against an input and context. Unknown or disabled
// workers are caller errors; transient completion failures and timeouts
// degrade to a failed Response with confidence 0 so a parallel step can
// still use the remaining responses.
func (r *Registry) Invoke(ctx context.Context, workerID, input string, runContext map[string]string) (Response, error) {
	d, err := r.Get(workerID)
	if err != nil {
		return Response{}, err
	}
	if !d.Enabled {
		return Response{}, fmt.Errorf("%w: %s", ErrWorkerDisabled, workerID)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	text, err := r.completion.Complete(callCtx, model.Request{
		Prompt:      buildPrompt(d, input, runContext),
		Model:       d.Model,
		Temperature: d.Temperature,
	})
	latency := time.Since(start)

	resp := Response{
		WorkerID:   d.ID,
		WorkerName: d.Name,
		Latency:    latency,
		Metadata:   map[string]string{"role": d.Role, "specialization": d.Specialization},
	}
	if err != nil {
		resp.Failed = true
		resp.Error = err.Error()
		r.logger.Warn("worker invocation degraded", "worker_id", d.ID, "error", err)
		return resp, nil
	}
	resp.Text = text
	resp.Confidence = Confidence(text, d)
	r.logger.Debug("worker invocation completed", "worker_id", d.ID, "latency", latency, "confidence", resp.Confidence)
	return resp, nil
}

// buildPrompt frames the input with the worker's identity. Full prompt
// engineering lives outside this core; this is the minimal framing the
// invoker owns.
func buildPrompt(d Descriptor, input string, runContext map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, a %s specialized in %s.\n", d.Name, d.Role, d.Specialization)
	if len(runContext) > 0 {
		keys := make([]string, 0, len(runContext))
		for k := range runContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, runContext[k])
		}
	}
	sb.WriteString("\n")
	sb.WriteString(input)
	return sb.String()
}
