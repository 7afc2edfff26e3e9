package nlu

import "strings"

// Filter restricts which entity or intent names a recognizer searches for.
// An exclude list, when present, overrides the include list: the search runs
// over the complement of Exclude.
type Filter struct {
	Include []string
	Exclude []string
}

// Allows reports whether a name passes the filter.
func (f Filter) Allows(name string) bool {
	if len(f.Exclude) > 0 {
		return !contains(f.Exclude, name)
	}
	if len(f.Include) > 0 {
		return contains(f.Include, name)
	}
	return true
}

// Empty reports whether the filter places no restriction at all.
func (f Filter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// SplitNames parses a comma-separated name list, trimming whitespace and
// dropping empty items.
func SplitNames(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}
