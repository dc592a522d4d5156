package model

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Request captures one normalized completion call. Model and Temperature are
// optional; implementations fall back to their configured defaults.
type Request struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Info contains metadata about a completion model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// CompletionModel is the minimal interface the scheduler core needs from the
// external text-completion collaborator.
type CompletionModel interface {
	Complete(ctx context.Context, req Request) (string, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory CompletionModel useful for tests.
// Responses can be canned per prompt, per-call failures scripted, and an
// artificial latency injected to exercise timeout paths.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	failures  map[string]error
	delay     time.Duration
	calls     []Request
}

// NewMockModel constructs an empty MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
		failures:  make(map[string]error),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailOn makes completions for the given prompt return err.
func (m *MockModel) FailOn(prompt string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[prompt] = err
}

// SetDelay injects an artificial latency before every completion.
func (m *MockModel) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns a copy of every request seen so far.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// Complete implements CompletionModel.
func (m *MockModel) Complete(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	delay := m.delay
	err := m.failures[req.Prompt]
	resp, ok := m.responses[req.Prompt]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ok {
		resp = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}
	return resp, nil
}

// Info implements CompletionModel.
func (m *MockModel) Info() Info { return m.info }
