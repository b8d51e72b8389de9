package query

import "strings"

// Entity-name matching policy: names match when they are equal after
// lower-casing and trimming surrounding whitespace. The store compares with
// LOWER(TRIM(...)), so Normalize must stay in lockstep with that SQL.

// Normalize canonicalizes a name for matching.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matches reports whether two names are the same under the policy.
func Matches(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
