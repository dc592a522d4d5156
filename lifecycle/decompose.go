package lifecycle

import (
	"strings"

	"github.com/cerebrumd/cerebrum/goal"
)

// SubGoalTemplate describes one child goal a decomposition rule produces.
type SubGoalTemplate struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description"`
	Type        goal.Type `yaml:"type"`
	Priority    int       `yaml:"priority"`
}

// Rule pairs a predicate with the sub-goal templates to spawn when it
// matches. Rules are registered, not hard-coded, so new domains plug in
// without touching controller logic.
type Rule struct {
	Name      string
	Match     func(g *goal.Goal) bool
	Templates []SubGoalTemplate
}

// KeywordRule builds a rule matching when the goal title contains any of the
// keywords, case-insensitively.
func KeywordRule(name string, keywords []string, templates ...SubGoalTemplate) Rule {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return Rule{
		Name: name,
		Match: func(g *goal.Goal) bool {
			title := strings.ToLower(g.Title)
			for _, k := range lowered {
				if strings.Contains(title, k) {
					return true
				}
			}
			return false
		},
		Templates: templates,
	}
}

// RuleTable is the registered catalogue of decomposition rules.
type RuleTable struct {
	rules []Rule
}

// NewRuleTable constructs a table from the given rules.
func NewRuleTable(rules ...Rule) *RuleTable {
	return &RuleTable{rules: rules}
}

// Register appends a rule to the table.
func (t *RuleTable) Register(r Rule) { t.rules = append(t.rules, r) }

// TemplatesFor returns the templates of the first matching rule, or nil.
func (t *RuleTable) TemplatesFor(g *goal.Goal) []SubGoalTemplate {
	for _, r := range t.rules {
		if r.Match != nil && r.Match(g) {
			return r.Templates
		}
	}
	return nil
}

// DefaultRules is the built-in decomposition catalogue for autonomous goals.
func DefaultRules() *RuleTable {
	return NewRuleTable(
		KeywordRule("research", []string{"research", "investigate", "explore"},
			SubGoalTemplate{Title: "Gather sources", Description: "Collect relevant material for the parent goal", Type: goal.TypeMicroTask, Priority: 6},
			SubGoalTemplate{Title: "Summarize findings", Description: "Condense gathered material into key findings", Type: goal.TypeShortTerm, Priority: 5},
		),
		KeywordRule("organize", []string{"organize", "clean up", "structure"},
			SubGoalTemplate{Title: "Inventory current state", Description: "List what exists before reorganizing", Type: goal.TypeMicroTask, Priority: 5},
			SubGoalTemplate{Title: "Apply new structure", Description: "Reorganize according to the inventory", Type: goal.TypeShortTerm, Priority: 4},
		),
		KeywordRule("monitor", []string{"monitor", "watch", "track"},
			SubGoalTemplate{Title: "Establish baseline", Description: "Record the current readings to compare against", Type: goal.TypeMicroTask, Priority: 5},
			SubGoalTemplate{Title: "Schedule periodic checks", Description: "Define the cadence and thresholds for alerts", Type: goal.TypeShortTerm, Priority: 4},
		),
		KeywordRule("learn", []string{"learn", "study", "understand"},
			SubGoalTemplate{Title: "Collect learning material", Description: "Find resources covering the topic", Type: goal.TypeMicroTask, Priority: 5},
			SubGoalTemplate{Title: "Draft study notes", Description: "Write condensed notes from the material", Type: goal.TypeShortTerm, Priority: 4},
		),
	)
}
