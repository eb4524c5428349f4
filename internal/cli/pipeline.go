package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/WuShichao/lalsuite/internal/alert"
	"github.com/WuShichao/lalsuite/internal/config"
	"github.com/WuShichao/lalsuite/internal/datafind"
	"github.com/WuShichao/lalsuite/internal/event"
	"github.com/WuShichao/lalsuite/internal/segment"
	"github.com/WuShichao/lalsuite/internal/triggerdb"
)

// eventSource returns the configured event source. Validation guarantees
// exactly one is set, or analyse-all-time.
func eventSource(cfg *config.Config, logger *slog.Logger) (event.Source, error) {
	in := cfg.Input
	ids := &event.IDs{}

	var slides []map[string]float64
	if in.TimeSlides && in.TimeSlideFile != "" {
		var err error
		if slides, err = event.ReadTimeSlides(in.TimeSlideFile, cfg.Analysis.IFOs); err != nil {
			return nil, err
		}
	}

	switch {
	case in.AnalyseAllTime:
		overlap := event.DefaultOverlap
		if in.SegmentOverlap != nil {
			overlap = *in.SegmentOverlap
		}
		return event.AllTime{
			Start:   *in.GPSStart,
			End:     *in.GPSEnd,
			SegLen:  cfg.SegLen(),
			Overlap: overlap,
			IDs:     ids,
		}, nil

	case in.GPSTimeFile != "":
		src := event.TimeFile{Path: in.GPSTimeFile, IDs: ids, Logger: logger}
		if slides == nil {
			return src, nil
		}
		return event.SourceFunc(func(ctx context.Context) ([]event.Event, error) {
			events, err := src.Events(ctx)
			if err != nil {
				return nil, err
			}
			if len(slides) != len(events) {
				return nil, fmt.Errorf("%d timeslide rows for %d times in %s", len(slides), len(events), in.GPSTimeFile)
			}
			for i := range events {
				events[i].TimeSlides = slides[i]
			}
			return events, nil
		}), nil

	case in.InjectionFile != "":
		return event.Catalogue{Path: in.InjectionFile, Kind: event.CatalogueInjection, IDs: ids, Slides: slides}, nil

	case in.SnglInspiralFile != "":
		return event.Catalogue{Path: in.SnglInspiralFile, Kind: event.CatalogueSngl, IDs: ids}, nil

	case in.CoincInspiralFile != "":
		return event.Catalogue{Path: in.CoincInspiralFile, Kind: event.CatalogueCoinc, IDs: ids}, nil

	case in.PipedownDB != "":
		return triggerdb.Source{
			DSN:        in.PipedownDB,
			TimeSlides: in.TimeSlides,
			Query:      triggerdb.Query{Start: in.GPSStart, End: in.GPSEnd, MaxCFAR: in.MaxCFAR},
			DumpPath:   in.TimeSlideDump,
			Logger:     logger,
		}, nil

	case in.GID != "":
		src := alert.Source{
			Fetcher: alert.CommandFetcher{Client: cfg.Condor.GraceDB, Dir: cfg.Paths.BaseDir, Logger: logger},
			GID:     in.GID,
		}
		return event.SourceFunc(func(ctx context.Context) ([]event.Event, error) {
			if err := os.MkdirAll(cfg.Paths.BaseDir, 0o755); err != nil {
				return nil, err
			}
			return src.Events(ctx)
		}), nil
	}
	return nil, fmt.Errorf("no event source configured")
}

// loadEvents reads, selects and range-filters the run's events. All-time
// chunks are neither selected nor filtered.
func loadEvents(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]event.Event, error) {
	src, err := eventSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Input.AnalyseAllTime {
		return (&event.Loader{Source: src, Logger: logger}).Load(ctx)
	}
	loader := &event.Loader{
		Source: src,
		Start:  cfg.Input.GPSStart,
		End:    cfg.Input.GPSEnd,
		Logger: logger,
	}
	if s := cfg.Input.Events; s != "" && s != "all" {
		if loader.Selection, err = event.ParseSelection(s); err != nil {
			return nil, err
		}
	}
	return loader.Load(ctx)
}

// eventTimes returns the trigger times of events that have one.
func eventTimes(events []event.Event) []float64 {
	var out []float64
	for i := range events {
		if t, ok := events[i].Time(); ok {
			out = append(out, t)
		}
	}
	return out
}

// findSegments returns the science segments of every instrument within
// [start, end).
func findSegments(ctx context.Context, cfg *config.Config, start, end int64) (map[string]segment.List, error) {
	var finder segment.Finder
	if cfg.Input.IgnoreScienceSegments || cfg.FakeData() {
		finder = segment.SpanFinder{Start: float64(start), End: float64(end)}
	} else {
		finder = &segment.FileFinder{Science: cfg.Datafind.SegmentFiles, Vetoes: cfg.VetoFiles()}
	}
	return segment.FindAll(ctx, finder, cfg.Analysis.IFOs, cfg.Datafind.VetoCategories)
}

// locator returns an LFN locator when frame lists are configured, else nil
// so the builder uses the plain cache locator.
func locator(cfg *config.Config) (datafind.Locator, error) {
	if len(cfg.Datafind.LFNFiles) == 0 {
		return nil, nil
	}
	files := make(map[string][]string, len(cfg.Datafind.LFNFiles))
	for ifo, path := range cfg.Datafind.LFNFiles {
		list, err := datafind.ReadFrameList(path)
		if err != nil {
			return nil, fmt.Errorf("frame list for %s: %w", ifo, err)
		}
		files[ifo] = list
	}
	return datafind.NewLFNLocator(cfg.CacheDir(), files)
}
