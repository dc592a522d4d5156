package goal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGoalDefaults(t *testing.T) {
	g := New("Summarize inbox", "Condense unread mail", TypeShortTerm, TierUserDerived, Origin{Source: OriginExplicitRequest, Confidence: 0.9}, 8)

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, StatusAnalysis, g.Status)
	assert.Equal(t, 8, g.Priority)
	assert.Equal(t, 0, g.Progress)
	assert.False(t, g.CreatedAt.IsZero())
	assert.NoError(t, g.Validate())
}

func TestNewGoalClampsPriority(t *testing.T) {
	assert.Equal(t, 1, New("a", "", TypeMicroTask, TierInternalSystem, Origin{}, -3).Priority)
	assert.Equal(t, 10, New("b", "", TypeMicroTask, TierInternalSystem, Origin{}, 42).Priority)
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusAnalysis, StatusWaitingApproval, true},
		{StatusAnalysis, StatusActive, true},
		{StatusWaitingApproval, StatusActive, true},
		{StatusActive, StatusPaused, true},
		{StatusPaused, StatusActive, true},
		{StatusActive, StatusCompleted, true},
		{StatusAnalysis, StatusCancelled, true},
		{StatusPaused, StatusFailed, true},
		{StatusWaitingApproval, StatusPaused, false},
		{StatusAnalysis, StatusCompleted, false},
		{StatusCompleted, StatusActive, false},
		{StatusCancelled, StatusActive, false},
		{StatusFailed, StatusCancelled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatusesAreFinal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		require.True(t, s.Terminal())
		for _, to := range []Status{StatusAnalysis, StatusWaitingApproval, StatusActive, StatusPaused, StatusCancelled} {
			assert.False(t, CanTransition(s, to), "%s must not leave terminal state", s)
		}
	}
}

func TestTierCapabilities(t *testing.T) {
	ud := TierUserDerived.Capabilities()
	assert.True(t, ud.RequiresUserApproval)
	assert.True(t, ud.CompletionPresentation)
	assert.False(t, ud.AutonomousExecution)

	is := TierInternalSystem.Capabilities()
	assert.True(t, is.AutonomousExecution)
	assert.False(t, is.RequiresUserApproval)
	assert.False(t, is.CanCreateSubgoals)

	ca := TierCerebrumAutonomous.Capabilities()
	assert.True(t, ca.CanCreateSubgoals)
	assert.True(t, ca.CanDelegateToAgents)
	assert.Greater(t, ca.AuthorityLevel, is.AuthorityLevel)
	assert.Greater(t, is.AuthorityLevel, ud.AuthorityLevel)
}

func TestUnknownTierDeniesEverything(t *testing.T) {
	caps := Tier("made_up").Capabilities()
	assert.Equal(t, Capabilities{}, caps)
	assert.False(t, Tier("made_up").Valid())
}

func TestValidateRejectsBadFields(t *testing.T) {
	g := New("ok", "", TypeShortTerm, TierUserDerived, Origin{}, 5)

	g.Progress = 120
	assert.Error(t, g.Validate())
	g.Progress = 50

	g.Tier = "nope"
	assert.Error(t, g.Validate())
	g.Tier = TierUserDerived

	g.Title = ""
	assert.Error(t, g.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	g := New("original", "", TypeLongTerm, TierCerebrumAutonomous, Origin{Evidence: []string{"e1"}}, 5)
	g.SubGoalIDs = []string{"child-1"}
	g.Thoughts = []Thought{{Timestamp: time.Now(), Content: "first"}}
	done := time.Now()
	g.ActualCompletion = &done

	cp := g.Clone()
	cp.SubGoalIDs[0] = "mutated"
	cp.Thoughts[0].Content = "mutated"
	cp.Origin.Evidence[0] = "mutated"
	*cp.ActualCompletion = cp.ActualCompletion.Add(time.Hour)

	assert.Equal(t, "child-1", g.SubGoalIDs[0])
	assert.Equal(t, "first", g.Thoughts[0].Content)
	assert.Equal(t, "e1", g.Origin.Evidence[0])
	assert.Equal(t, done, *g.ActualCompletion)
}
