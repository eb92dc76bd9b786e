// Package validation defines the result and error types for required-field
// checks. A check yields an explicit Result rather than an ambiguous
// "true or a list" value, so callers distinguish success from failure without
// relying on truthiness.
package validation

import "sort"

// Result reports the outcome of a required-field check
type Result struct {
	// Missing holds the names of required fields that are currently unset,
	// in field declaration order. Empty on success.
	Missing []string
}

// OK returns true if no required field is missing
func (r *Result) OK() bool {
	return len(r.Missing) == 0
}

// Err returns nil on success, otherwise an *Errors describing every missing
// field
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	errs := NewErrors()
	for _, field := range r.Missing {
		errs.Add(field, "is required")
	}
	return errs
}

// MissingSorted returns the missing field names in lexical order
func (r *Result) MissingSorted() []string {
	names := append([]string(nil), r.Missing...)
	sort.Strings(names)
	return names
}
