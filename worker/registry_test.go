package worker

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerebrumd/cerebrum/model"
)

type capturePersister struct {
	sets [][]Descriptor
}

func (p *capturePersister) PersistWorkers(workers []Descriptor) error {
	p.sets = append(p.sets, workers)
	return nil
}

func newTestRegistry(optFns ...func(o *RegistryOptions)) (*Registry, *model.MockModel) {
	m := model.NewMockModel("mock", "mock")
	return NewRegistry(m, optFns...), m
}

func addWorker(t *testing.T, r *Registry, name string, caps ...string) Descriptor {
	t.Helper()
	d := NewDescriptor(name, "analyst", "testing")
	d.Capabilities = caps
	require.NoError(t, r.Add(d))
	return d
}

func TestInvokeUnknownWorker(t *testing.T) {
	r, _ := newTestRegistry()
	_, err := r.Invoke(context.Background(), "nope", "hi", nil)
	assert.ErrorIs(t, err, ErrUnknownWorker)
}

func TestInvokeDisabledWorker(t *testing.T) {
	r, _ := newTestRegistry()
	d := addWorker(t, r, "sleepy")
	require.NoError(t, r.SetEnabled(d.ID, false))

	_, err := r.Invoke(context.Background(), d.ID, "hi", nil)
	assert.ErrorIs(t, err, ErrWorkerDisabled)
}

func TestInvokeReturnsScoredResponse(t *testing.T) {
	r, m := newTestRegistry()
	d := addWorker(t, r, "researcher", "research")

	m.AddResponse(buildPrompt(d, "find sources", nil), "research complete: three sources located")

	resp, err := r.Invoke(context.Background(), d.ID, "find sources", nil)
	require.NoError(t, err)
	assert.Equal(t, d.ID, resp.WorkerID)
	assert.Equal(t, "researcher", resp.WorkerName)
	assert.False(t, resp.Failed)
	assert.Equal(t, "research complete: three sources located", resp.Text)
	assert.InDelta(t, 0.55, resp.Confidence, 0.001)
	assert.GreaterOrEqual(t, resp.Latency, time.Duration(0))
}

func TestInvokeDegradesOnCompletionFailure(t *testing.T) {
	r, m := newTestRegistry()
	d := addWorker(t, r, "flaky")
	m.FailOn(buildPrompt(d, "do it", nil), fmt.Errorf("upstream 500"))

	resp, err := r.Invoke(context.Background(), d.ID, "do it", nil)
	require.NoError(t, err, "transient failures must not surface as errors")
	assert.True(t, resp.Failed)
	assert.Zero(t, resp.Confidence)
	assert.Contains(t, resp.Error, "upstream 500")
}

func TestInvokeDegradesOnTimeout(t *testing.T) {
	r, m := newTestRegistry(func(o *RegistryOptions) { o.InvokeTimeout = 20 * time.Millisecond })
	d := addWorker(t, r, "slow")
	m.SetDelay(200 * time.Millisecond)

	start := time.Now()
	resp, err := r.Invoke(context.Background(), d.ID, "take your time", nil)
	require.NoError(t, err)
	assert.True(t, resp.Failed)
	assert.Zero(t, resp.Confidence)
	assert.Less(t, time.Since(start), 150*time.Millisecond, "timeout must cut the call short")
}

func TestInvokePassesModelParameters(t *testing.T) {
	r, m := newTestRegistry()
	d := NewDescriptor("tuned", "writer", "prose")
	d.Model = "special-model"
	d.Temperature = 0.2
	require.NoError(t, r.Add(d))

	_, err := r.Invoke(context.Background(), d.ID, "write", nil)
	require.NoError(t, err)

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "special-model", calls[0].Model)
	assert.InDelta(t, 0.2, calls[0].Temperature, 0.001)
}

func TestBuildPromptIncludesContextSorted(t *testing.T) {
	d := NewDescriptor("ctx", "analyst", "testing")
	p := buildPrompt(d, "input text", map[string]string{"b_key": "2", "a_key": "1"})

	assert.Contains(t, p, "You are ctx")
	assert.Contains(t, p, "input text")
	assert.Less(t, strings.Index(p, "a_key"), strings.Index(p, "b_key"))
}

func TestManagementOpsPersistFullSet(t *testing.T) {
	p := &capturePersister{}
	r, _ := newTestRegistry(func(o *RegistryOptions) { o.Persister = p })

	d1 := addWorker(t, r, "alpha")
	d2 := addWorker(t, r, "beta")
	require.NoError(t, r.SetEnabled(d1.ID, false))
	require.NoError(t, r.Remove(d2.ID))

	require.Len(t, p.sets, 4, "every mutation rewrites the full set")
	last := p.sets[len(p.sets)-1]
	require.Len(t, last, 1)
	assert.Equal(t, d1.ID, last[0].ID)
	assert.False(t, last[0].Enabled)
}

func TestUpdateRequiresExistingWorker(t *testing.T) {
	r, _ := newTestRegistry()
	d := addWorker(t, r, "editable")

	d.Specialization = "revised focus"
	require.NoError(t, r.Update(d))

	got, err := r.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "revised focus", got.Specialization)

	ghost := NewDescriptor("ghost", "analyst", "testing")
	assert.ErrorIs(t, r.Update(ghost), ErrUnknownWorker)
}

func TestRegistryListSortedByName(t *testing.T) {
	r, _ := newTestRegistry()
	addWorker(t, r, "zeta")
	addWorker(t, r, "alpha")
	addWorker(t, r, "mid")

	names := []string{}
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestRemoveUnknownWorker(t *testing.T) {
	r, _ := newTestRegistry()
	assert.ErrorIs(t, r.Remove("ghost"), ErrUnknownWorker)
	assert.ErrorIs(t, r.SetEnabled("ghost", true), ErrUnknownWorker)
}
