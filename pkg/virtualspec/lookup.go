package virtualspec

import "strings"

// LookupSeparator joins the segments of a lookup path, mirroring relation
// traversal: "directors.awards" requires the awards declaration of the
// directors child.
const LookupSeparator = "."

// OneLevelLookup truncates a lookup path to its first segment.
func OneLevelLookup(lookup string) string {
	if idx := strings.Index(lookup, LookupSeparator); idx >= 0 {
		return lookup[:idx]
	}
	return lookup
}

// OneLevelLookupList truncates every path to its first segment, preserving
// first-seen order and dropping duplicates.
func OneLevelLookupList(lookupList []string) []string {
	out := make([]string, 0, len(lookupList))
	seen := make(map[string]struct{}, len(lookupList))
	for _, lookup := range lookupList {
		k := OneLevelLookup(lookup)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// NestedLookupList returns the suffixes of every path that descends into the
// given child, e.g. ("directors", ["directors", "directors.awards", "name"])
// yields ["awards"].
func NestedLookupList(child string, lookupList []string) []string {
	prefix := child + LookupSeparator
	var out []string
	for _, lookup := range lookupList {
		if strings.HasPrefix(lookup, prefix) {
			out = append(out, strings.TrimPrefix(lookup, prefix))
		}
	}
	return out
}

// uniqueKeepOrder deduplicates while preserving first-seen order. Lookup lists
// must be deterministic for reproducible diagnostics.
func uniqueKeepOrder(lookups []string) []string {
	out := make([]string, 0, len(lookups))
	seen := make(map[string]struct{}, len(lookups))
	for _, lookup := range lookups {
		if _, ok := seen[lookup]; ok {
			continue
		}
		seen[lookup] = struct{}{}
		out = append(out, lookup)
	}
	return out
}
