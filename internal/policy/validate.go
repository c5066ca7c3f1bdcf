package policy

import (
	"fmt"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

var ruleNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Validate checks the document against the schema. It returns every violation
// found, as plain strings suitable for the dedicated "config" status check;
// an empty slice means the document is usable.
func Validate(doc *Document) []string {
	var errs []string

	if doc == nil || len(doc.Rules) == 0 {
		return append(errs, "rules: at least one rule is required")
	}
	if len(doc.Rules) > MaxRules {
		errs = append(errs, fmt.Sprintf("rules: at most %d rules are allowed (got %d)", MaxRules, len(doc.Rules)))
	}

	seen := make(map[string]bool, len(doc.Rules))
	for i, r := range doc.Rules {
		at := func(format string, args ...any) {
			errs = append(errs, fmt.Sprintf("rules[%d] (%s): %s", i, r.Name, fmt.Sprintf(format, args...)))
		}

		if !ruleNameRe.MatchString(r.Name) {
			at("name must be lowercase alphanumeric/hyphen")
		}
		if r.Name == "config" {
			at("name \"config\" is reserved")
		}
		if seen[r.Name] {
			at("duplicate rule name")
		}
		seen[r.Name] = true

		if len(r.On.Branches) == 0 {
			at("on.branches must not be empty")
		}
		for _, p := range append(append([]string{}, r.On.Paths.Include...), r.On.Paths.Exclude...) {
			if !doublestar.ValidatePattern(p) {
				at("invalid glob pattern %q", p)
			}
		}

		errs = append(errs, validateConfig(i, r)...)
	}

	return errs
}

func validateConfig(i int, r Rule) []string {
	var errs []string
	at := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("rules[%d] (%s): %s", i, r.Name, fmt.Sprintf(format, args...)))
	}

	c := r.Config
	mode := c.Mode
	if mode != "" && mode != "any" && mode != "all" {
		at("config.mode must be any or all (got %q)", mode)
	}

	// Reject parameters that belong to a different check_type. The schema is
	// a closed pairing; a mismatched shape must never reach dispatch.
	switch r.CheckType {
	case CheckFilePresence:
		if len(c.Companions) > 0 || len(c.Checks) > 0 || c.MaxAgeDays != 0 || len(c.Users) > 0 || len(c.Teams) > 0 {
			at("config has parameters not valid for file_presence")
		}
	case CheckFilePair:
		if len(c.Companions) == 0 {
			at("config.companions must not be empty for file_pair")
		}
		if len(c.Checks) > 0 || c.MaxAgeDays != 0 || len(c.Users) > 0 || len(c.Teams) > 0 {
			at("config has parameters not valid for file_pair")
		}
	case CheckExternalStatus:
		if len(c.Checks) == 0 {
			at("config.checks must not be empty for external_status")
		}
		if c.TimeoutMinutes < 0 {
			at("config.timeout_minutes must be positive")
		}
		if len(c.Companions) > 0 || c.MaxAgeDays != 0 || len(c.Users) > 0 || len(c.Teams) > 0 {
			at("config has parameters not valid for external_status")
		}
	case CheckBranchAge:
		if c.MaxAgeDays <= 0 {
			at("config.max_age_days must be positive for branch_age")
		}
		if len(c.Companions) > 0 || len(c.Checks) > 0 || len(c.Users) > 0 || len(c.Teams) > 0 {
			at("config has parameters not valid for branch_age")
		}
	case CheckApprovalGate:
		if len(c.Users) == 0 && len(c.Teams) == 0 {
			at("config.users or config.teams must be set for approval_gate")
		}
		if len(c.Companions) > 0 || len(c.Checks) > 0 || c.MaxAgeDays != 0 {
			at("config has parameters not valid for approval_gate")
		}
	case "":
		at("check_type is required")
	default:
		at("unknown check_type %q", r.CheckType)
	}

	return errs
}
