package store

import (
	"context"
	"sync"
	"time"

	"github.com/cerebrumd/cerebrum/goal"
)

// MemoryStore is a volatile Store implementation keeping goals in a process
// local map. It is safe for concurrent access and best suited for tests or
// ephemeral setups. Every goal crossing the boundary is cloned to prevent
// external mutation of internal state.
type MemoryStore struct {
	mu    sync.RWMutex
	goals map[string]*goal.Goal
	queue []goal.QueueEntry
}

// NewMemoryStore constructs an empty in-memory goal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{goals: make(map[string]*goal.Goal)}
}

// CreateGoal stores a clone of the goal.
func (s *MemoryStore) CreateGoal(_ context.Context, g *goal.Goal) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[g.ID]; ok {
		return ErrGoalExists
	}
	s.goals[g.ID] = g.Clone()
	return nil
}

// GetGoal returns a clone of the stored goal or ErrGoalNotFound.
func (s *MemoryStore) GetGoal(_ context.Context, id string) (*goal.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, ErrGoalNotFound
	}
	return g.Clone(), nil
}

// UpdateGoal applies a partial update atomically and returns the result.
func (s *MemoryStore) UpdateGoal(_ context.Context, id string, upd GoalUpdate) (*goal.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return nil, ErrGoalNotFound
	}
	// Apply to a clone first so a rejected update leaves the record intact.
	next := g.Clone()
	if err := upd.apply(next, time.Now().UTC()); err != nil {
		return nil, err
	}
	s.goals[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) filter(keep func(*goal.Goal) bool) []*goal.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []*goal.Goal
	for _, g := range s.goals {
		if keep(g) {
			res = append(res, g.Clone())
		}
	}
	return res
}

// ActiveGoals returns every goal with status active.
func (s *MemoryStore) ActiveGoals(ctx context.Context) ([]*goal.Goal, error) {
	return s.GoalsByStatus(ctx, goal.StatusActive)
}

// GoalsByStatus returns every goal in the given status.
func (s *MemoryStore) GoalsByStatus(_ context.Context, status goal.Status) ([]*goal.Goal, error) {
	return s.filter(func(g *goal.Goal) bool { return g.Status == status }), nil
}

// GoalsByTier returns every goal in the given tier.
func (s *MemoryStore) GoalsByTier(_ context.Context, tier goal.Tier) ([]*goal.Goal, error) {
	return s.filter(func(g *goal.Goal) bool { return g.Tier == tier }), nil
}

// AllGoals returns every stored goal.
func (s *MemoryStore) AllGoals(_ context.Context) ([]*goal.Goal, error) {
	return s.filter(func(*goal.Goal) bool { return true }), nil
}

func (s *MemoryStore) appendLog(id string, fn func(g *goal.Goal)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return ErrGoalNotFound
	}
	fn(g)
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// AddReflection appends a reflection to the goal's log.
func (s *MemoryStore) AddReflection(_ context.Context, id string, r goal.Reflection) error {
	return s.appendLog(id, func(g *goal.Goal) { g.Reflections = append(g.Reflections, r) })
}

// AddThought appends a thought to the goal's log.
func (s *MemoryStore) AddThought(_ context.Context, id string, th goal.Thought) error {
	return s.appendLog(id, func(g *goal.Goal) { g.Thoughts = append(g.Thoughts, th) })
}

// AddAction appends an action to the goal's log.
func (s *MemoryStore) AddAction(_ context.Context, id string, a goal.Action) error {
	return s.appendLog(id, func(g *goal.Goal) { g.Actions = append(g.Actions, a) })
}

// AddInteraction appends an agent interaction to the goal's log.
func (s *MemoryStore) AddInteraction(_ context.Context, id string, ia goal.AgentInteraction) error {
	return s.appendLog(id, func(g *goal.Goal) { g.Interactions = append(g.Interactions, ia) })
}

// PriorityQueue returns the last persisted queue snapshot.
func (s *MemoryStore) PriorityQueue(_ context.Context) ([]goal.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]goal.QueueEntry(nil), s.queue...), nil
}

// UpdatePriorityQueue replaces the queue snapshot.
func (s *MemoryStore) UpdatePriorityQueue(_ context.Context, entries []goal.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append([]goal.QueueEntry(nil), entries...)
	return nil
}
