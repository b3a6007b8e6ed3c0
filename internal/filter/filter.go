// Package filter selects the subset of call records every aggregate is
// computed from.
package filter

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
)

// State holds the active filter predicates for one loaded dataset
type State struct {
	// Disposition is an exact, case-sensitive match. Empty means any.
	Disposition string `json:"disposition"`
	// Source is a case-insensitive substring of src. Empty means any.
	Source string `json:"source"`
	// MinDuration is an inclusive lower bound on duration in seconds
	MinDuration int `json:"minDuration"`
	// Destinations restricts to the listed destinations. Empty means any.
	Destinations []string `json:"destinations"`
}

// Normalized returns a copy with the substring lower-cased and
// destinations de-duplicated in first-seen order. MinDuration is kept as
// given, negative floors included.
func (s State) Normalized() State {
	out := State{
		Disposition: s.Disposition,
		Source:      strings.ToLower(s.Source),
		MinDuration: s.MinDuration,
	}

	seen := make(map[string]bool, len(s.Destinations))
	out.Destinations = make([]string, 0, len(s.Destinations))
	for _, d := range s.Destinations {
		if seen[d] {
			continue
		}
		seen[d] = true
		out.Destinations = append(out.Destinations, d)
	}
	return out
}

// IsZero reports whether no predicate is active
func (s State) IsZero() bool {
	return s.Disposition == "" && s.Source == "" && s.MinDuration == 0 && len(s.Destinations) == 0
}

// Apply returns the records that satisfy every active predicate, in input
// order. It does not modify records.
//
// A MinDuration of 0 is no predicate at all. Any other floor, negative
// ones included, drops records whose duration is not numeric.
func Apply(records []cdr.Record, st State) []cdr.Record {
	st = st.Normalized()

	var dests map[string]struct{}
	if len(st.Destinations) > 0 {
		dests = make(map[string]struct{}, len(st.Destinations))
		for _, d := range st.Destinations {
			dests[d] = struct{}{}
		}
	}

	out := make([]cdr.Record, 0, len(records))
	for _, rec := range records {
		if st.Disposition != "" && rec.Disposition != st.Disposition {
			continue
		}
		if dests != nil {
			if _, ok := dests[rec.Destination]; !ok || !rec.Has(cdr.FieldDestination) {
				continue
			}
		}
		if st.Source != "" && !strings.Contains(strings.ToLower(rec.Source), st.Source) {
			continue
		}
		if !meetsMinDuration(rec, st.MinDuration) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func meetsMinDuration(rec cdr.Record, floor int) bool {
	if floor == 0 {
		return true
	}
	d, ok := cdr.ParseInt(rec.Duration)
	return ok && d >= floor
}

// DestinationOptions lists the distinct non-empty destinations of a
// dataset. Numeric values sort numerically and ahead of the rest.
func DestinationOptions(records []cdr.Record) []string {
	seen := make(map[string]bool)
	var opts []string
	for _, rec := range records {
		if rec.Destination == "" || seen[rec.Destination] {
			continue
		}
		seen[rec.Destination] = true
		opts = append(opts, rec.Destination)
	}

	slices.SortStableFunc(opts, func(a, b string) int {
		fa, errA := strconv.ParseFloat(a, 64)
		fb, errB := strconv.ParseFloat(b, 64)
		switch {
		case errA == nil && errB == nil:
			return cmp.Compare(fa, fb)
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		}
		return strings.Compare(a, b)
	})
	if opts == nil {
		opts = []string{}
	}
	return opts
}
