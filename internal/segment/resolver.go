package segment

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoData is returned by Resolve when no requested instrument has a
// Science Segment covering the event's window.
var ErrNoData = errors.New("no instrument has science data covering the event")

// Request describes one event's resolution inputs.
type Request struct {
	TrigTime  float64
	SegLen    float64
	Padding   float64
	MaxLength float64

	// PSDLength and PSDStart, when set, replace the computed values.
	PSDLength *float64
	PSDStart  *float64

	IFOs   []string
	Slides map[string]float64
}

// Resolution is the outcome of resolving one event.
type Resolution struct {
	TrigTime float64 `json:"trig_time"`
	Padding  float64 `json:"padding"`

	// WindowStart and WindowEnd bound the nominal un-shifted analysis
	// window [trig+2-seglen, trig+2).
	WindowStart float64 `json:"window_start"`
	WindowEnd   float64 `json:"window_end"`

	// IFOs lists the contributing instruments in request order.
	IFOs         []string           `json:"ifos"`
	Contributing map[string]Segment `json:"contributing"`
	Slides       map[string]float64 `json:"slides"`

	CommonStart float64 `json:"common_start"`
	CommonEnd   float64 `json:"common_end"`

	PSDStart  float64 `json:"psd_start"`
	PSDLength float64 `json:"psd_length"`

	// StartOverridden is set when Request.PSDStart replaced the computed
	// start. OverrideOutside additionally reports that the override lies
	// outside [CommonStart, CommonEnd).
	StartOverridden bool `json:"start_overridden"`
	OverrideOutside bool `json:"override_outside"`
}

// Slide returns the time slide applied to ifo, zero when absent.
func (r *Resolution) Slide(ifo string) float64 {
	return r.Slides[ifo]
}

// DataSpan returns the interval the engine reads for ifo: from the PSD
// start to the later of the PSD end and the window end, shifted by the
// instrument's slide, padded, and clipped to its covering segment. The
// bounds are rounded outward to whole seconds.
func (r *Resolution) DataSpan(ifo string) (float64, float64, bool) {
	seg, ok := r.Contributing[ifo]
	if !ok {
		return 0, 0, false
	}
	slide := r.Slide(ifo)
	start := r.PSDStart + slide - r.Padding
	end := max(r.PSDStart+r.PSDLength, r.WindowEnd) + slide + r.Padding
	start = math.Floor(max(start, seg.Start))
	end = math.Ceil(min(end, seg.End))
	return start, end, end > start
}

// Resolver resolves events against preloaded per-instrument segment lists.
// It performs no I/O.
type Resolver struct {
	Segments map[string]List
}

// NewResolver returns a Resolver over segs. Every list is coalesced.
func NewResolver(segs map[string]List) *Resolver {
	r := &Resolver{Segments: make(map[string]List, len(segs))}
	for ifo, list := range segs {
		r.Segments[ifo] = list.Coalesce()
	}
	return r
}

// Resolve computes the contributing instruments, the common window and the
// PSD start and length for req.
//
// The nominal analysis window is [trig+2-seglen, trig+2). An instrument
// contributes when one of its segments covers the window shifted by its
// time slide; instruments without a covering segment are dropped and
// ErrNoData is returned when none remain. Each contributing segment is
// shifted back by its slide and the common window is their intersection.
//
// The PSD start is the common start, advanced in steps of MaxLength/2
// while a MaxLength block starting there would end before both the trigger
// and the common end. Request.PSDStart replaces it, even outside the
// common window; Resolution.OverrideOutside reports that case. The PSD
// length is what remains of the common window after two paddings, one
// seglen and one second, capped at MaxLength, unless Request.PSDLength sets
// it.
//
// A non-positive SegLen is an error. Resolve does not modify req.
func (r *Resolver) Resolve(req Request) (*Resolution, error) {
	if req.SegLen <= 0 {
		return nil, fmt.Errorf("seglen must be positive, got %g", req.SegLen)
	}

	res := &Resolution{
		TrigTime:     req.TrigTime,
		Padding:      req.Padding,
		WindowStart:  req.TrigTime + 2 - req.SegLen,
		WindowEnd:    req.TrigTime + 2,
		Contributing: make(map[string]Segment),
		Slides:       make(map[string]float64),
	}

	first := true
	for _, ifo := range req.IFOs {
		slide := req.Slides[ifo]
		seg, ok := r.Segments[ifo].Covering(res.WindowStart+slide, res.WindowEnd+slide)
		if !ok {
			continue
		}
		res.IFOs = append(res.IFOs, ifo)
		res.Contributing[ifo] = seg
		res.Slides[ifo] = slide

		start, end := seg.Start-slide, seg.End-slide
		if first {
			res.CommonStart, res.CommonEnd = start, end
			first = false
			continue
		}
		res.CommonStart = max(res.CommonStart, start)
		res.CommonEnd = min(res.CommonEnd, end)
	}
	if len(res.IFOs) == 0 {
		return nil, ErrNoData
	}

	start := res.CommonStart
	if req.MaxLength > 0 && res.CommonEnd-start > req.MaxLength {
		for start+req.MaxLength < req.TrigTime && start+req.MaxLength < res.CommonEnd {
			start += req.MaxLength / 2
		}
	}
	if req.PSDStart != nil {
		start = *req.PSDStart
		res.StartOverridden = true
		res.OverrideOutside = start < res.CommonStart || start >= res.CommonEnd
	}
	res.PSDStart = start

	if req.PSDLength != nil {
		res.PSDLength = *req.PSDLength
	} else {
		res.PSDLength = res.CommonEnd - start - 2*req.Padding - req.SegLen - 1
		if req.MaxLength > 0 && res.PSDLength > req.MaxLength {
			res.PSDLength = req.MaxLength
		}
	}
	return res, nil
}
