// Package strings provides string slice helpers shared by declarations and stores.
package strings

import "strings"

// Dedupe trims each element and drops blanks and repeats, keeping first-seen
// order. The result is never nil.
//
//	Dedupe([]string{" GLBA", "OFAC", "GLBA", ""}) // []string{"GLBA", "OFAC"}
func Dedupe(values []string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
