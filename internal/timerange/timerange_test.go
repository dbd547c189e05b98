package timerange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRange(t *testing.T, startHour, endHour int) TimeRange {
	t.Helper()
	base := time.Date(2026, 2, 8, 0, 0, 0, 0, time.UTC)
	r, err := New(base.Add(time.Duration(startHour)*time.Hour), base.Add(time.Duration(endHour)*time.Hour))
	require.NoError(t, err)
	return r
}

func TestNewRejectsInvertedRange(t *testing.T) {
	now := time.Now()

	_, err := New(now, now)
	assert.Error(t, err)

	_, err = New(now.Add(time.Hour), now)
	assert.Error(t, err)
}

func TestOverlapsHalfOpenSemantics(t *testing.T) {
	tests := []struct {
		name string
		a, b TimeRange
		want bool
	}{
		{"disjoint", mustRange(t, 9, 10), mustRange(t, 11, 12), false},
		{"touching endpoints do not overlap", mustRange(t, 9, 10), mustRange(t, 10, 11), false},
		{"partial overlap", mustRange(t, 9, 11), mustRange(t, 10, 12), true},
		{"contained", mustRange(t, 9, 18), mustRange(t, 10, 11), true},
		{"identical", mustRange(t, 9, 10), mustRange(t, 9, 10), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a))
		})
	}
}

func TestMergeCollapsesOverlaps(t *testing.T) {
	got := Merge([]TimeRange{
		mustRange(t, 13, 14),
		mustRange(t, 9, 11),
		mustRange(t, 10, 12),
		mustRange(t, 12, 13),
	})

	want := []TimeRange{mustRange(t, 9, 14)}
	assert.Equal(t, want, got)
}

func TestMergeKeepsDisjointRanges(t *testing.T) {
	got := Merge([]TimeRange{
		mustRange(t, 15, 16),
		mustRange(t, 9, 10),
	})

	require.Len(t, got, 2)
	assert.Equal(t, mustRange(t, 9, 10), got[0])
	assert.Equal(t, mustRange(t, 15, 16), got[1])
}

func TestMergeDoesNotModifyInput(t *testing.T) {
	in := []TimeRange{mustRange(t, 12, 13), mustRange(t, 9, 10)}
	_ = Merge(in)
	assert.Equal(t, mustRange(t, 12, 13), in[0])
}

func TestOverlapsAny(t *testing.T) {
	busy := Merge([]TimeRange{mustRange(t, 9, 10), mustRange(t, 12, 14)})

	assert.True(t, OverlapsAny(mustRange(t, 13, 15), busy))
	assert.False(t, OverlapsAny(mustRange(t, 10, 12), busy))
	assert.False(t, OverlapsAny(mustRange(t, 15, 16), busy))
}
