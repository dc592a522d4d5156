package lifecycle

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cerebrumd/cerebrum/goal"
)

// ProgressOracle proposes a new progress value for a goal. Implementations
// cover the different ways progress becomes known: explicit reports,
// deliverable inspection, or probabilistic advancement during background
// processing. An oracle without an opinion returns ok=false and the goal is
// left alone that cycle.
type ProgressOracle interface {
	Assess(ctx context.Context, g *goal.Goal) (progress int, ok bool)
}

// ManualOracle only reflects progress that was explicitly reported.
type ManualOracle struct {
	mu       sync.Mutex
	reported map[string]int
}

// NewManualOracle constructs an empty manual oracle.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{reported: map[string]int{}}
}

// Report records an explicit progress value for a goal.
func (o *ManualOracle) Report(goalID string, progress int) {
	o.mu.Lock()
	o.reported[goalID] = progress
	o.mu.Unlock()
}

// Assess returns the last reported value, if any.
func (o *ManualOracle) Assess(_ context.Context, g *goal.Goal) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.reported[g.ID]
	return p, ok
}

// DeliverableOracle derives progress from how many declared deliverables
// already appear in the goal's action log.
type DeliverableOracle struct{}

// Assess returns the fraction of deliverables with a matching recorded
// action, as a percentage. Goals without deliverables yield no opinion.
func (DeliverableOracle) Assess(_ context.Context, g *goal.Goal) (int, bool) {
	total := len(g.SuccessCriteria.Deliverables)
	if total == 0 {
		return 0, false
	}
	matched := 0
	for _, d := range g.SuccessCriteria.Deliverables {
		needle := strings.ToLower(d)
		for _, a := range g.Actions {
			if strings.Contains(strings.ToLower(a.Description), needle) ||
				strings.Contains(strings.ToLower(a.Outcome), needle) {
				matched++
				break
			}
		}
	}
	return matched * 100 / total, true
}

// RandomWalkOracle advances active goals by a bounded random increment with
// a fixed per-cycle chance. It stands in for worker-reported completion when
// no richer signal exists.
type RandomWalkOracle struct {
	// Rand is injectable for deterministic tests.
	Rand *rand.Rand
	// Chance is the per-assessment probability of advancing, in [0,1].
	Chance float64
	// MaxStep bounds a single advancement.
	MaxStep int
}

// NewRandomWalkOracle constructs an oracle with a 30% chance of advancing by
// 1-15 points per assessment.
func NewRandomWalkOracle() *RandomWalkOracle {
	return &RandomWalkOracle{
		Rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		Chance:  0.3,
		MaxStep: 15,
	}
}

// Assess proposes g.Progress plus a bounded random step, capped at 100.
func (o *RandomWalkOracle) Assess(_ context.Context, g *goal.Goal) (int, bool) {
	if o.Rand.Float64() >= o.Chance {
		return 0, false
	}
	step := 1 + o.Rand.Intn(o.MaxStep)
	next := g.Progress + step
	if next > 100 {
		next = 100
	}
	return next, true
}
