// Package scheduling computes offerable time slots and validates bookings.
package scheduling

import (
	"sort"
	"time"
)

// Interval is a half-open time interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the interval covers no time.
func (iv Interval) Empty() bool {
	return !iv.End.After(iv.Start)
}

// overlaps reports whether two half-open intervals intersect.
func (iv Interval) overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// mergeIntervals sorts and coalesces overlapping or touching intervals.
func mergeIntervals(ivs []Interval) []Interval {
	var kept []Interval
	for _, iv := range ivs {
		if !iv.Empty() {
			kept = append(kept, iv)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start.Before(kept[j].Start) })

	merged := []Interval{kept[0]}
	for _, iv := range kept[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// subtractIntervals removes every cut from base. Both inputs may be unsorted;
// the result is sorted and non-overlapping.
func subtractIntervals(base, cuts []Interval) []Interval {
	remaining := mergeIntervals(base)
	for _, cut := range mergeIntervals(cuts) {
		var next []Interval
		for _, iv := range remaining {
			if !iv.overlaps(cut) {
				next = append(next, iv)
				continue
			}
			if cut.Start.After(iv.Start) {
				next = append(next, Interval{Start: iv.Start, End: cut.Start})
			}
			if cut.End.Before(iv.End) {
				next = append(next, Interval{Start: cut.End, End: iv.End})
			}
		}
		remaining = next
	}
	return remaining
}
