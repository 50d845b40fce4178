package scheduling

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 9, 7, h, m, 0, 0, time.UTC)
}

func TestMergeIntervals(t *testing.T) {
	got := mergeIntervals([]Interval{
		{Start: at(11, 0), End: at(12, 0)},
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(9, 30), End: at(10, 30)},
		{Start: at(10, 30), End: at(11, 0)}, // touching, coalesces
		{Start: at(14, 0), End: at(14, 0)}, // empty, dropped
	})
	want := []Interval{
		{Start: at(9, 0), End: at(12, 0)},
	}
	if len(got) != len(want) {
		t.Fatalf("mergeIntervals returned %d intervals, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("interval %d = %v-%v, want %v-%v", i, got[i].Start, got[i].End, want[i].Start, want[i].End)
		}
	}
}

func TestSubtractIntervals(t *testing.T) {
	base := []Interval{{Start: at(9, 0), End: at(12, 0)}}
	cuts := []Interval{
		{Start: at(10, 0), End: at(10, 30)},
		{Start: at(11, 30), End: at(13, 0)}, // spills past the base end
	}
	got := subtractIntervals(base, cuts)
	want := []Interval{
		{Start: at(9, 0), End: at(10, 0)},
		{Start: at(10, 30), End: at(11, 30)},
	}
	if len(got) != len(want) {
		t.Fatalf("subtractIntervals returned %d intervals, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if !got[i].Start.Equal(want[i].Start) || !got[i].End.Equal(want[i].End) {
			t.Errorf("interval %d = %v-%v, want %v-%v", i, got[i].Start, got[i].End, want[i].Start, want[i].End)
		}
	}
}

func TestSubtractIntervalsFullCover(t *testing.T) {
	base := []Interval{{Start: at(9, 0), End: at(10, 0)}}
	got := subtractIntervals(base, []Interval{{Start: at(8, 0), End: at(11, 0)}})
	if len(got) != 0 {
		t.Errorf("subtractIntervals = %v, want empty", got)
	}
}

func TestIntervalOverlapsHalfOpen(t *testing.T) {
	a := Interval{Start: at(9, 0), End: at(10, 0)}
	b := Interval{Start: at(10, 0), End: at(11, 0)}
	if a.overlaps(b) {
		t.Error("touching intervals reported as overlapping")
	}
	c := Interval{Start: at(9, 59), End: at(10, 30)}
	if !a.overlaps(c) {
		t.Error("intersecting intervals reported as disjoint")
	}
}
