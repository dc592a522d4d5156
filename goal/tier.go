package goal

// Tier attaches a fixed bundle of autonomy permissions to a goal's category.
type Tier string

const (
	// TierUserDerived covers goals created from explicit user intent. They
	// run only after approval and surface proactive progress updates.
	TierUserDerived Tier = "user_derived"
	// TierInternalSystem covers maintenance goals the system runs for
	// itself without gating.
	TierInternalSystem Tier = "internal_system"
	// TierCerebrumAutonomous covers self-directed goals with the highest
	// authority, allowed to spawn sub-goals and delegate to workers.
	TierCerebrumAutonomous Tier = "cerebrum_autonomous"
)

// Capabilities is the fixed permission bundle attached to a tier.
type Capabilities struct {
	AutonomousExecution    bool `json:"autonomous_execution"`
	RequiresUserApproval   bool `json:"requires_user_approval"`
	CanCreateSubgoals      bool `json:"can_create_subgoals"`
	CanDelegateToAgents    bool `json:"can_delegate_to_agents"`
	ProactiveUpdates       bool `json:"proactive_updates"`
	CompletionPresentation bool `json:"completion_presentation"`

	// AuthorityLevel ranks tiers 1-10; higher means more latitude.
	AuthorityLevel int `json:"authority_level"`
}

// tierCapabilities is the fixed tier table. Tiers are capability bundles,
// not per-goal switches, so this is intentionally not configurable.
var tierCapabilities = map[Tier]Capabilities{
	TierUserDerived: {
		AutonomousExecution:    false,
		RequiresUserApproval:   true,
		CanCreateSubgoals:      false,
		CanDelegateToAgents:    true,
		ProactiveUpdates:       true,
		CompletionPresentation: true,
		AuthorityLevel:         4,
	},
	TierInternalSystem: {
		AutonomousExecution:    true,
		RequiresUserApproval:   false,
		CanCreateSubgoals:      false,
		CanDelegateToAgents:    false,
		ProactiveUpdates:       false,
		CompletionPresentation: false,
		AuthorityLevel:         6,
	},
	TierCerebrumAutonomous: {
		AutonomousExecution:    true,
		RequiresUserApproval:   true,
		CanCreateSubgoals:      true,
		CanDelegateToAgents:    true,
		ProactiveUpdates:       true,
		CompletionPresentation: true,
		AuthorityLevel:         9,
	},
}

// Capabilities returns the permission bundle for the tier. Unknown tiers get
// a zero bundle, which denies everything.
func (t Tier) Capabilities() Capabilities { return tierCapabilities[t] }

// Valid reports whether the tier is one of the known bundles.
func (t Tier) Valid() bool {
	_, ok := tierCapabilities[t]
	return ok
}

// Tiers lists the known tiers in ascending authority order.
func Tiers() []Tier {
	return []Tier{TierUserDerived, TierInternalSystem, TierCerebrumAutonomous}
}
