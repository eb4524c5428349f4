package harness

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/WuShichao/lalsuite/internal/builder"
	"github.com/WuShichao/lalsuite/internal/config"
	"github.com/WuShichao/lalsuite/internal/event"
	"github.com/WuShichao/lalsuite/internal/segment"
	"github.com/WuShichao/lalsuite/internal/testutil"
)

// Run builds the scenario's graph and evaluates its assertions. Errors
// are returned for scenarios that cannot be built at all; failed
// assertions are reported in the Result.
func Run(s *Scenario) (*Result, error) {
	cfg, err := loadConfig(s)
	if err != nil {
		return nil, err
	}

	b := builder.New(cfg, s.segments(), builder.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Seeds:  testutil.NewSeedSequence(),
		RunIDs: testutil.NewFixedRunID(s.RunID),
	})
	g, sum, err := b.Build(s.events())
	if err != nil {
		return nil, fmt.Errorf("scenario %s: build: %w", s.Name, err)
	}

	result := NewResult()
	result.Graph = g
	result.Summary = sum
	for i, a := range s.Assertions {
		if err := evaluate(result, a); err != nil {
			result.AddError(fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}
	return result, nil
}

func loadConfig(s *Scenario) (*config.Config, error) {
	if s.ConfigFile != "" {
		cfg, err := config.Load(s.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		return cfg, nil
	}
	cfg, err := config.Parse(s.Name+".cue", []byte(s.Config))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return cfg, nil
}

func (s *Scenario) events() []event.Event {
	out := make([]event.Event, len(s.Events))
	for i, es := range s.Events {
		ev := event.Event{ID: int64(i), IFOs: es.IFOs, TimeSlides: es.Slides}
		if es.Time != nil {
			t := *es.Time
			ev.TrigTime = &t
		}
		out[i] = ev
	}
	return out
}

func (s *Scenario) segments() map[string]segment.List {
	out := make(map[string]segment.List, len(s.Segments))
	for ifo, segs := range s.Segments {
		list := make(segment.List, 0, len(segs))
		for i, seg := range segs {
			list = append(list, segment.Segment{ID: i, Start: seg[0], End: seg[1]})
		}
		out[ifo] = list.Coalesce()
	}
	return out
}

// RunFile loads and runs the scenario at path.
func RunFile(path string) (*Scenario, *Result, error) {
	s, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := Run(s)
	return s, r, err
}

// ScenarioFiles lists the scenario files in dir.
func ScenarioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
