// Package allowlist extracts "permit this specific deletion" directives from
// pull request description text.
//
// Directives live in delimited blocks so they survive editing around them:
//
//	<!-- mergegate:allow
//	schema-sync: db/old_table.sql (replaced by v2 schema)
//	schema-sync: db/legacy.sql
//	-->
//
// Each content line is "rule-name: file-path (optional reason)". Malformed
// lines are ignored; multiple blocks and multiple lines per rule accumulate.
package allowlist

import (
	"regexp"
	"strings"
)

const (
	// OpenToken starts a directive block in a PR description.
	OpenToken = "<!-- mergegate:allow"
	// CloseToken ends a directive block.
	CloseToken = "-->"
)

// Entry is one parsed directive.
type Entry struct {
	Rule   string
	Path   string
	Reason string
}

var lineRe = regexp.MustCompile(`^([a-z0-9][a-z0-9-]*)\s*:\s*(\S+)\s*(?:\((.*)\))?$`)

// Parse scans description text for directive blocks and returns every
// well-formed entry, in document order. It never fails: unparseable content
// is simply skipped.
func Parse(description string) []Entry {
	var entries []Entry
	rest := description
	for {
		start := strings.Index(rest, OpenToken)
		if start < 0 {
			return entries
		}
		rest = rest[start+len(OpenToken):]

		end := strings.Index(rest, CloseToken)
		if end < 0 {
			return entries
		}
		block := rest[:end]
		rest = rest[end+len(CloseToken):]

		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			m := lineRe.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			entries = append(entries, Entry{
				Rule:   m[1],
				Path:   m[2],
				Reason: strings.TrimSpace(m[3]),
			})
		}
	}
}

// ForRule collapses entries scoped to one rule into a path -> reason map.
// Entries for other rules are dropped; a repeated path keeps the last reason.
func ForRule(entries []Entry, rule string) map[string]string {
	out := make(map[string]string)
	for _, e := range entries {
		if e.Rule == rule {
			out[e.Path] = e.Reason
		}
	}
	return out
}
