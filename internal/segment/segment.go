package segment

import (
	"fmt"
	"slices"
)

// Segment is a half-open interval [Start, End) of usable data.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Covers reports whether [start, end) fits inside s. The upper bound is
// strict so that a window ending exactly at s.End is not covered.
func (s Segment) Covers(start, end float64) bool {
	return start >= s.Start && end < s.End
}

func (s Segment) String() string {
	return fmt.Sprintf("[%g, %g)", s.Start, s.End)
}

// List is an ordered list of segments for one instrument.
type List []Segment

// Coalesce returns a sorted copy of l with overlapping or touching segments
// merged and empty segments dropped. IDs are renumbered from zero.
func (l List) Coalesce() List {
	sorted := make(List, 0, len(l))
	for _, s := range l {
		if s.End > s.Start {
			sorted = append(sorted, s)
		}
	}
	slices.SortFunc(sorted, func(a, b Segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	var out List
	for _, s := range sorted {
		if n := len(out); n > 0 && s.Start <= out[n-1].End {
			if s.End > out[n-1].End {
				out[n-1].End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	for i := range out {
		out[i].ID = i
	}
	return out
}

// Subtract removes every interval of veto from l. Both lists are coalesced
// first; the result is coalesced.
func (l List) Subtract(veto List) List {
	src := l.Coalesce()
	cut := veto.Coalesce()
	if len(cut) == 0 {
		return src
	}

	var out List
	for _, s := range src {
		start := s.Start
		for _, v := range cut {
			if v.End <= start || v.Start >= s.End {
				continue
			}
			if v.Start > start {
				out = append(out, Segment{Start: start, End: v.Start})
			}
			if v.End > start {
				start = v.End
			}
			if start >= s.End {
				break
			}
		}
		if start < s.End {
			out = append(out, Segment{Start: start, End: s.End})
		}
	}
	return out.Coalesce()
}

// Covering returns the segment of l covering [start, end), if any.
func (l List) Covering(start, end float64) (Segment, bool) {
	for _, s := range l {
		if s.Covers(start, end) {
			return s, true
		}
	}
	return Segment{}, false
}

// Span returns the earliest start and latest end of a non-empty list.
func (l List) Span() (float64, float64, bool) {
	if len(l) == 0 {
		return 0, 0, false
	}
	start, end := l[0].Start, l[0].End
	for _, s := range l[1:] {
		start = min(start, s.Start)
		end = max(end, s.End)
	}
	return start, end, true
}
