package common

import (
	"sort"
	"time"
)

// MedianDuration returns the median of a window of durations, or 0 for an
// empty window. The input is not modified.
func MedianDuration(window []time.Duration) time.Duration {
	s := make([]time.Duration, len(window))
	copy(s, window)
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })

	l := len(s)
	switch {
	case l == 0:
		return 0
	case l%2 == 0:
		return (s[l/2-1] + s[l/2]) / 2
	default:
		return s[l/2]
	}
}

// DurationWindow keeps the last Size observed durations.
type DurationWindow struct {
	Size   int
	values []time.Duration
	next   int
}

// Add records d, evicting the oldest value once the window is full.
func (w *DurationWindow) Add(d time.Duration) {
	if w.Size <= 0 {
		return
	}
	if len(w.values) < w.Size {
		w.values = append(w.values, d)
		return
	}
	w.values[w.next] = d
	w.next = (w.next + 1) % w.Size
}

// Median returns the median of the window.
func (w *DurationWindow) Median() time.Duration {
	return MedianDuration(w.values)
}

// Len ...
func (w *DurationWindow) Len() int {
	return len(w.values)
}
