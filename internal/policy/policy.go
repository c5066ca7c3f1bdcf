// Package policy defines the rule configuration document: the schema operators
// commit to their repository to declare merge-gating rules, plus parsing,
// validation, and a cached loader.
package policy

// CheckType names one of the five evaluation algorithms. The set is closed;
// validation rejects anything else.
type CheckType string

const (
	CheckFilePresence   CheckType = "file_presence"
	CheckFilePair       CheckType = "file_pair"
	CheckExternalStatus CheckType = "external_status"
	CheckBranchAge      CheckType = "branch_age"
	CheckApprovalGate   CheckType = "approval_gate"
)

// MaxRules bounds the number of rules in one document.
const MaxRules = 20

// DefaultExternalStatusTimeoutMinutes applies when an external_status rule
// does not set timeout_minutes.
const DefaultExternalStatusTimeoutMinutes = 60

// Document is the top-level configuration document.
type Document struct {
	Rules []Rule `yaml:"rules"`
}

// Rule is one named policy unit.
type Rule struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	CheckType   CheckType `yaml:"check_type"`
	On          Trigger   `yaml:"on"`
	Config      RuleConfig `yaml:"config"`

	// FailureMessage overrides the reported title and/or summary, but only
	// when the rule concludes failure. Success output is never overridden.
	FailureMessage *FailureMessage `yaml:"failure_message"`

	// Notify opts the rule out of the sticky failure comment when false.
	// Unset means true.
	Notify *bool `yaml:"notify"`
}

// Notifiable reports whether the rule participates in failure notifications.
func (r Rule) Notifiable() bool {
	return r.Notify == nil || *r.Notify
}

// Trigger scopes a rule to base branches and changed paths.
type Trigger struct {
	Branches []string   `yaml:"branches"`
	Paths    PathFilter `yaml:"paths"`
}

// PathFilter is a glob include/exclude pair over changed file paths.
type PathFilter struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// FailureMessage carries the per-rule failure text override.
type FailureMessage struct {
	Title   string `yaml:"title"`
	Summary string `yaml:"summary"`
}

// RuleConfig holds the type-specific parameters. Only the fields belonging to
// the rule's check_type may be set; Validate enforces the pairing so the
// orchestrator never dispatches a rule to a mismatched implementation.
type RuleConfig struct {
	// file_pair
	Companions []string `yaml:"companions"`

	// file_pair and approval_gate: "any" (default) or "all".
	Mode string `yaml:"mode"`

	// external_status
	Checks         []string `yaml:"checks"`
	TimeoutMinutes int      `yaml:"timeout_minutes"`

	// branch_age
	MaxAgeDays int `yaml:"max_age_days"`

	// approval_gate
	Users            []string `yaml:"users"`
	Teams            []string `yaml:"teams"`
	RequestReviewers bool     `yaml:"request_reviewers"`
}

// ExternalStatusTimeoutMinutes returns the configured timeout with the
// default applied.
func (c RuleConfig) ExternalStatusTimeoutMinutes() int {
	if c.TimeoutMinutes > 0 {
		return c.TimeoutMinutes
	}
	return DefaultExternalStatusTimeoutMinutes
}

// AppliesToBranch reports whether the rule targets the given base branch.
func (r Rule) AppliesToBranch(base string) bool {
	for _, b := range r.On.Branches {
		if b == base {
			return true
		}
	}
	return false
}

// RuleByName returns the named rule, if present.
func (d *Document) RuleByName(name string) (Rule, bool) {
	if d == nil {
		return Rule{}, false
	}
	for _, r := range d.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return Rule{}, false
}
