// internal/jsoncompare/options.go
package jsoncompare

import "regexp"

// Options controls what counts as a structural difference.
type Options struct {
	// EquateEmpty treats null, {} and [] as equal to a missing value of the same kind.
	EquateEmpty bool
	// IgnoreArrayOrder compares arrays as multisets.
	IgnoreArrayOrder bool
	// IgnoreKeys drops object members whose key matches any pattern, at any depth.
	IgnoreKeys []*regexp.Regexp
}

// DefaultOptions treats absent and empty members alike and keeps array order.
func DefaultOptions() Options {
	return Options{EquateEmpty: true}
}

// Result is the outcome of a comparison.
type Result struct {
	AreEquivalent bool
	// Diff is a human-readable description of the difference, empty when equivalent.
	Diff   string
	IsJSON bool
}
