// Package match selects changed file paths using include/exclude glob sets.
package match

import "github.com/bmatcuk/doublestar/v4"

// Files returns the subset of paths that match at least one include pattern
// and no exclude pattern. An empty include list selects every path, so a rule
// with no path filter applies to the whole diff. Pattern matching follows
// doublestar semantics: `**` crosses directory boundaries and dotfiles are
// matchable, so patterns like `.github/**` behave as written.
func Files(paths, include, exclude []string) []string {
	var out []string
	for _, p := range paths {
		if included(p, include) && !matchesAny(p, exclude) {
			out = append(out, p)
		}
	}
	return out
}

// Any reports whether at least one path survives the include/exclude filter.
func Any(paths, include, exclude []string) bool {
	for _, p := range paths {
		if included(p, include) && !matchesAny(p, exclude) {
			return true
		}
	}
	return false
}

func included(path string, include []string) bool {
	if len(include) == 0 {
		return true
	}
	return matchesAny(path, include)
}

func matchesAny(path string, patterns []string) bool {
	for _, pattern := range patterns {
		// Invalid patterns are rejected by policy validation before rules are
		// dispatched, so a bad-pattern error here is treated as a non-match.
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}
