package scheduler

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cerebrumd/cerebrum/goal"
	"github.com/cerebrumd/cerebrum/logging"
	"github.com/cerebrumd/cerebrum/store"
)

// MaxQueueSize bounds the in-memory priority queue. Goals falling off the
// end are recomputed from the store on later passes, not dropped forever.
const MaxQueueSize = 20

// Scoring constants for the urgency and importance factors.
const (
	shortTermUrgencyBonus = 0.5
	urgencyPerHour        = 0.1
	urgencyAgeCap         = 2.0

	cerebrumImportanceBoost = 0.3
	internalImportanceBoost = 0.1
)

// AnalysisFunc is invoked when the queue runs empty so goal creation can be
// triggered; an empty queue is a normal condition, not an error.
type AnalysisFunc func(ctx context.Context)

// Options configures a Scheduler.
type Options struct {
	// OnEmptyQueue runs when DequeueNext finds nothing. Nil disables.
	OnEmptyQueue AnalysisFunc
	// Now is injectable for deterministic scoring tests.
	Now func() time.Time
	// Logger records queue maintenance.
	Logger logging.Logger
}

// Scheduler computes and maintains the bounded, descending-ordered goal
// queue and selects the next goal to activate.
type Scheduler struct {
	mu      sync.Mutex
	entries []goal.QueueEntry

	st           store.Store
	onEmptyQueue AnalysisFunc
	now          func() time.Time
	logger       logging.Logger
}

// New constructs a Scheduler over the given store.
func New(st store.Store, optFns ...func(o *Options)) *Scheduler {
	opts := Options{Now: time.Now, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scheduler{
		st:           st,
		onEmptyQueue: opts.OnEmptyQueue,
		now:          opts.Now,
		logger:       opts.Logger,
	}
}

// Score derives a queue entry from a goal.
//
// priority_score = round(priority * 10 * urgency * importance). The urgency
// factor starts at 1, gains 0.5 for short-term goals and 0.1 per elapsed
// hour since creation capped at 2. The importance factor starts at 1 and
// gains a tier boost. UserValueFactor and CerebrumPriorityBoost are carried
// on the entry without entering the score; snapshot consumers read them
// directly.
func (s *Scheduler) Score(g *goal.Goal) goal.QueueEntry {
	now := s.now()

	urgency := 1.0
	if g.Type == goal.TypeShortTerm {
		urgency += shortTermUrgencyBonus
	}
	age := now.Sub(g.CreatedAt).Hours() * urgencyPerHour
	if age > urgencyAgeCap {
		age = urgencyAgeCap
	}
	if age > 0 {
		urgency += age
	}

	importance := 1.0
	switch g.Tier {
	case goal.TierCerebrumAutonomous:
		importance += cerebrumImportanceBoost
	case goal.TierInternalSystem:
		importance += internalImportanceBoost
	}

	userValue := g.Origin.Confidence
	cerebrumBoost := 0.0
	if g.Tier == goal.TierCerebrumAutonomous {
		cerebrumBoost = float64(g.Capabilities().AuthorityLevel) / 10
	}

	return goal.QueueEntry{
		GoalID:                g.ID,
		PriorityScore:         int(math.Round(float64(g.Priority) * 10 * urgency * importance)),
		UrgencyFactor:         urgency,
		ImportanceFactor:      importance,
		UserValueFactor:       userValue,
		CerebrumPriorityBoost: cerebrumBoost,
		DependenciesMet:       len(g.BlockingGoalIDs) == 0,
		ScoredAt:              now,
	}
}

// Enqueue scores a goal, inserts it, re-sorts descending and truncates to
// the queue bound, then persists the snapshot. Persisting happens under the
// lock so concurrent mutations cannot write snapshots out of order.
func (s *Scheduler) Enqueue(ctx context.Context, g *goal.Goal) error {
	entry := s.Score(g)

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.GoalID != g.ID {
			kept = append(kept, e)
		}
	}
	s.entries = append(kept, entry)
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].PriorityScore > s.entries[j].PriorityScore
	})
	if len(s.entries) > MaxQueueSize {
		s.entries = s.entries[:MaxQueueSize]
	}
	return s.st.UpdatePriorityQueue(ctx, append([]goal.QueueEntry(nil), s.entries...))
}

// Entries returns the current queue snapshot, highest score first.
func (s *Scheduler) Entries() []goal.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]goal.QueueEntry(nil), s.entries...)
}

// Len returns the current queue length.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Restore replaces the in-memory queue from the persisted snapshot.
func (s *Scheduler) Restore(ctx context.Context) error {
	entries, err := s.st.PriorityQueue(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	return nil
}

// DequeueNext pops the top entry and resolves it to a goal. Entries whose
// goal no longer exists are queue staleness: they are discarded silently and
// the next entry is tried. An empty queue triggers exactly one goal-creation
// analysis call and returns (nil, nil).
func (s *Scheduler) DequeueNext(ctx context.Context) (*goal.Goal, error) {
	for {
		s.mu.Lock()
		if len(s.entries) == 0 {
			s.mu.Unlock()
			if s.onEmptyQueue != nil {
				s.onEmptyQueue(ctx)
			}
			return nil, nil
		}
		entry := s.entries[0]
		s.entries = s.entries[1:]
		// Persist under the lock, matching Enqueue, so the stored snapshot
		// always reflects the latest in-memory queue.
		err := s.st.UpdatePriorityQueue(ctx, append([]goal.QueueEntry(nil), s.entries...))
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}

		g, err := s.st.GetGoal(ctx, entry.GoalID)
		if err == nil {
			return g, nil
		}
		if errors.Is(err, store.ErrGoalNotFound) {
			s.logger.Debug("discarding stale queue entry", "goal_id", entry.GoalID)
			continue
		}
		return nil, err
	}
}
