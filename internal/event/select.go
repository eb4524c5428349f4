package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ParseSelection parses an event selection such as "0,1,5:10". Ranges are
// inclusive and may be written high:low.
func ParseSelection(s string) ([]int, error) {
	s = strings.NewReplacer("[", "", "]", "").Replace(s)
	var out []int
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, ":") {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("event selection %q: %w", raw, err)
			}
			out = append(out, v)
			continue
		}
		limits := strings.Split(raw, ":")
		if len(limits) != 2 {
			return nil, fmt.Errorf("event selection %q: ':' must separate two numbers", raw)
		}
		low, err := strconv.Atoi(strings.TrimSpace(limits[0]))
		if err != nil {
			return nil, fmt.Errorf("event selection %q: %w", raw, err)
		}
		high, err := strconv.Atoi(strings.TrimSpace(limits[1]))
		if err != nil {
			return nil, fmt.Errorf("event selection %q: %w", raw, err)
		}
		if low > high {
			low, high = high, low
		}
		for i := low; i <= high; i++ {
			out = append(out, i)
		}
	}
	return out, nil
}

// FilterRange drops events whose trigger time lies outside [start, end].
// Nil bounds are open; events without a trigger time are kept.
func FilterRange(events []Event, start, end *float64) []Event {
	out := events[:0:0]
	for _, ev := range events {
		t, ok := ev.Time()
		if ok && start != nil && t < *start {
			continue
		}
		if ok && end != nil && t > *end {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Loader reads the active source and applies selection and range
// filtering.
type Loader struct {
	Source Source
	// Selection is nil to keep every event. Selected events take their
	// index as id.
	Selection  []int
	Start, End *float64
	Logger     *slog.Logger
}

// Load returns the run's events in selection order.
func (l *Loader) Load(ctx context.Context) ([]Event, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events, err := l.Source.Events(ctx)
	if err != nil {
		return nil, err
	}
	logger.Debug("events read", "count", len(events))

	if l.Selection != nil {
		selected := make([]Event, 0, len(l.Selection))
		for _, i := range l.Selection {
			if i < 0 || i >= len(events) {
				return nil, fmt.Errorf("selected event %d out of range (have %d events)", i, len(events))
			}
			ev := events[i]
			ev.ID = int64(i)
			selected = append(selected, ev)
		}
		events = selected
	}

	events = FilterRange(events, l.Start, l.End)

	seen := make(map[int64]bool, len(events))
	for _, ev := range events {
		if seen[ev.ID] {
			return nil, fmt.Errorf("duplicate event id %d", ev.ID)
		}
		seen[ev.ID] = true
	}
	logger.Info("events loaded", "count", len(events))
	return events, nil
}
