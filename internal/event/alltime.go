package event

import (
	"context"
	"fmt"

	"github.com/WuShichao/lalsuite/internal/job"
)

// AllTime divides [Start, End) into consecutive analysis chunks of
// SegLen - Overlap seconds, one event per chunk.
type AllTime struct {
	Start, End float64
	SegLen     float64
	// Overlap defaults to 32 when zero.
	Overlap float64
	IDs     *IDs
}

// DefaultOverlap is the segment overlap used when none is configured.
const DefaultOverlap = 32.0

// Events implements Source. Each event carries segment-start, time-min
// and time-max engine options bounding its chunk.
func (s AllTime) Events(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	overlap := s.Overlap
	if overlap == 0 {
		overlap = DefaultOverlap
	}
	if overlap > s.SegLen {
		return nil, fmt.Errorf("segment-overlap %g is greater than seglen %g", overlap, s.SegLen)
	}
	if overlap == s.SegLen {
		return nil, fmt.Errorf("segment-overlap %g leaves no chunk length", overlap)
	}
	if s.End <= s.Start {
		return nil, fmt.Errorf("empty time range [%g, %g)", s.Start, s.End)
	}

	var out []Event
	for t := s.Start; t < s.End; {
		ev := NewEvent(s.IDs.Next(), t+s.SegLen-2)
		tMax := min(t+s.SegLen-overlap, s.End)
		opts := []struct {
			key string
			val float64
		}{
			{"segment-start", t - overlap},
			{"time-min", t},
			{"time-max", tMax},
		}
		for _, o := range opts {
			if err := ev.SetEngineOption(o.key, job.FormatFloat(o.val)); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
		t = tMax
	}
	return out, nil
}
