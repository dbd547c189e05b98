package timerange

import (
	"fmt"
	"sort"
	"time"
)

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds a validated TimeRange.
func New(start, end time.Time) (TimeRange, error) {
	r := TimeRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return TimeRange{}, err
	}
	return r, nil
}

// Validate checks that Start is strictly before End.
func (r TimeRange) Validate() error {
	if !r.Start.Before(r.End) {
		return fmt.Errorf("invalid time range: start %s is not before end %s", r.Start, r.End)
	}
	return nil
}

/// Overlaps reports whether the two half-open intervals intersect:
// startA < endB && startB < endA.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains reports whether other lies entirely within r.
func (r TimeRange) Contains(other TimeRange) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Merge collapses overlapping or touching ranges into a minimal sorted set.
// The input is not modified.
func Merge(ranges []TimeRange) []TimeRange {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]TimeRange, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []TimeRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if r.Start.After(last.End) {
			merged = append(merged, r)
			continue
		}
		if r.End.After(last.End) {
			last.End = r.End
		}
	}
	return merged
}

// OverlapsAny reports whether r intersects any range in the set.
// The set is expected to be sorted by start time (as returned by Merge);
// the scan stops once ranges start at or after r.End.
func OverlapsAny(r TimeRange, set []TimeRange) bool {
	for _, b := range set {
		if !b.Start.Before(r.End) {
			return false
		}
		if r.Overlaps(b) {
			return true
		}
	}
	return false
}
