package event

import (
	"context"
	"fmt"
	"strconv"

	"github.com/WuShichao/lalsuite/internal/job"
)

// Event is one analysis target.
type Event struct {
	ID int64 `json:"id" yaml:"id"`
	// TrigTime is nil for events without a trigger time.
	TrigTime *float64 `json:"trig_time,omitempty" yaml:"trig_time,omitempty"`
	// IFOs restricts the instruments; empty means the run-wide default.
	IFOs     []string `json:"ifos,omitempty" yaml:"ifos,omitempty"`
	Duration float64  `json:"duration,omitempty" yaml:"duration,omitempty"`
	SRate    float64  `json:"srate,omitempty" yaml:"srate,omitempty"`
	TrigSNR  float64  `json:"trig_snr,omitempty" yaml:"trig_snr,omitempty"`
	FHigh    float64  `json:"fhigh,omitempty" yaml:"fhigh,omitempty"`
	// TimeSlides holds the per-instrument time shift; absent means zero.
	TimeSlides map[string]float64 `json:"timeslides,omitempty" yaml:"timeslides,omitempty"`
	GID        string             `json:"gid,omitempty" yaml:"gid,omitempty"`

	EngineOpts job.Options `json:"-" yaml:"-"`
}

// NewEvent returns an event at trig with the given id.
func NewEvent(id int64, trig float64) Event {
	return Event{ID: id, TrigTime: &trig}
}

// TimeSlide returns the shift for ifo, zero when absent.
func (e *Event) TimeSlide(ifo string) float64 {
	return e.TimeSlides[ifo]
}

// SetEngineOption records an event-specific engine option. The key is
// checked against the engine vocabulary.
func (e *Event) SetEngineOption(key, value string) error {
	if err := job.CheckOption(job.KindEngine, key); err != nil {
		return fmt.Errorf("event %d: %w", e.ID, err)
	}
	return e.EngineOpts.Set(key, value)
}

// Time returns the trigger time and whether it is set.
func (e *Event) Time() (float64, bool) {
	if e.TrigTime == nil {
		return 0, false
	}
	return *e.TrigTime, true
}

// Label returns "<trig>-<id>", or "<id>" without a trigger time. It names
// the event's report and posterior files.
func (e *Event) Label() string {
	id := strconv.FormatInt(e.ID, 10)
	if e.TrigTime == nil {
		return id
	}
	return job.FormatFloat(*e.TrigTime) + "-" + id
}

// IDs hands out event ids for sources that do not supply their own. It is
// owned by one run.
type IDs struct {
	next int64
}

// Next returns the next id, starting at zero.
func (c *IDs) Next() int64 {
	id := c.next
	c.next++
	return id
}

// Source produces the events of one input.
type Source interface {
	Events(ctx context.Context) ([]Event, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Event, error)

// Events implements Source.
func (f SourceFunc) Events(ctx context.Context) ([]Event, error) {
	return f(ctx)
}
