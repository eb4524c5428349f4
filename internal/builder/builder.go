package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/WuShichao/lalsuite/internal/config"
	"github.com/WuShichao/lalsuite/internal/datafind"
	"github.com/WuShichao/lalsuite/internal/event"
	"github.com/WuShichao/lalsuite/internal/graph"
	"github.com/WuShichao/lalsuite/internal/job"
	"github.com/WuShichao/lalsuite/internal/segment"
)

// Options carries the builder's collaborators. Nil fields get defaults.
type Options struct {
	Logger *slog.Logger
	// Seeds defaults to a PCG stream seeded from analysis.random-seed.
	Seeds SeedSource
	// Locator defaults to a CacheLocator over the configured cache dir.
	Locator datafind.Locator
	RunIDs  RunIDGenerator
	// InjectionFile is the injection catalogue the events were read from.
	// Engines and reports are pointed at the event's entry in it.
	InjectionFile string
	// CoincFile is attached to every report as the trigger catalogue.
	CoincFile string
}

// Skip records an event that produced no nodes.
type Skip struct {
	EventID int64  `json:"event_id"`
	Reason  string `json:"reason"`
}

// Summary reports what Build did with each event.
type Summary struct {
	Built   []int64         `json:"built"`
	Skipped []Skip          `json:"skipped"`
	Phases  map[int64]Phase `json:"-"`
}

// Builder assembles one run's graph. A Builder is single-use and not
// safe for concurrent use.
//
// DataPrep nodes are shared between events whose data spans coincide; the
// ROQ group of an event is created at most once. Seeds and run ids come
// from Options so tests can fix them.
type Builder struct {
	cfg      *config.Config
	resolver *segment.Resolver
	opts     Options
	logger   *slog.Logger

	g       *graph.Graph
	nodes   int
	engines int
	ranks   ranks

	// preps indexes DataPrep nodes by key so events sharing a span reuse
	// one lookup.
	preps map[job.Key]*prep
	// roq holds the ROQ group of each event, created at most once.
	roq map[int64]*roqGroup

	weightMemory int
}

type prep struct {
	node *job.Node
	loc  datafind.Location
}

type roqGroup struct {
	node    *job.Node
	weights map[string]*job.Node
	dir     string
	fresh   bool
}

// New returns a builder for cfg over the per-instrument science segments.
func New(cfg *config.Config, segs map[string]segment.List, opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Seeds == nil {
		opts.Seeds = defaultSeeds(cfg.Analysis.RandomSeed)
	}
	if opts.Locator == nil {
		opts.Locator = datafind.CacheLocator{Dir: cfg.CacheDir()}
	}
	if opts.RunIDs == nil {
		opts.RunIDs = UUIDv7Generator{}
	}
	b := &Builder{
		cfg:      cfg,
		resolver: segment.NewResolver(segs),
		opts:     opts,
		logger:   opts.Logger,
		preps:    make(map[job.Key]*prep),
		roq:      make(map[int64]*roqGroup),
	}
	return b
}

// Build processes events in order and returns the verified graph.
//
// Each event is resolved against the science segments, its data is located,
// and its nodes are created, wired and inserted. An event that cannot be
// analysed (no trigger time, no science data, a failed lookup) is skipped
// and reported in Summary.Skipped; it never leaves nodes behind. Skips are
// not errors: the returned error is reserved for a misconfigured run, such
// as an unreadable ROQ basis, and for graph defects, which indicate a bug.
//
// The graph is named lalinference_<start>-<end> after the run bounds
// computed by Bounds. Build may be called once per Builder.
func (b *Builder) Build(events []event.Event) (*graph.Graph, *Summary, error) {
	if b.g != nil {
		return nil, nil, errors.New("builder already used")
	}
	if b.cfg.LALInference.ROQ {
		// The weight job holds four copies of the basis in memory.
		fi, err := os.Stat(b.cfg.Paths.ROMBMatrix)
		if err != nil {
			return nil, nil, fmt.Errorf("roq basis paths.rom_b_matrix: %w", err)
		}
		b.weightMemory = int(math.Ceil(4 * float64(fi.Size()) / 1e6))
	}
	var times []float64
	for i := range events {
		if t, ok := events[i].Time(); ok {
			times = append(times, t)
		}
	}
	start, end := Bounds(b.cfg, times)
	runID := b.opts.RunIDs.Generate()
	b.g = graph.New(graph.Metadata{
		Name:    fmt.Sprintf("lalinference_%d-%d", start, end),
		RunID:   runID,
		Start:   float64(start),
		End:     float64(end),
		BaseDir: b.cfg.Paths.BaseDir,
		LogFile: filepath.Join(b.cfg.DAGLogDir(), "lalinference_pipeline-"+runID+".log"),
	})
	b.ranks = newRanks(times)

	sum := &Summary{Built: []int64{}, Skipped: []Skip{}, Phases: make(map[int64]Phase, len(events))}
	for i := range events {
		if err := b.addEvent(&events[i], sum); err != nil {
			return nil, nil, err
		}
	}
	if err := b.g.Verify(); err != nil {
		return nil, nil, err
	}
	b.logger.Info("graph built",
		"nodes", b.g.Len(), "events", len(sum.Built), "skipped", len(sum.Skipped))
	return b.g, sum, nil
}

func (b *Builder) addEvent(ev *event.Event, sum *Summary) error {
	tr := &tracker{event: ev.ID}
	defer func() { sum.Phases[ev.ID] = tr.phase }()

	skip := func(reason string) error {
		b.logger.Warn("skipping event", "event", ev.ID, "reason", reason)
		sum.Skipped = append(sum.Skipped, Skip{EventID: ev.ID, Reason: reason})
		return tr.advance(PhaseSkipped)
	}

	trig, ok := ev.Time()
	if !ok {
		return skip("event has no trigger time")
	}
	ifos := ev.IFOs
	if len(ifos) == 0 {
		ifos = b.cfg.Analysis.IFOs
	}
	res, err := b.resolver.Resolve(segment.Request{
		TrigTime:  trig,
		SegLen:    b.cfg.SegLen(),
		Padding:   b.cfg.Input.Padding,
		MaxLength: b.cfg.Input.MaxPSDLength,
		PSDLength: b.cfg.Input.PSDLength,
		PSDStart:  b.cfg.Input.PSDStart,
		IFOs:      ifos,
		Slides:    ev.TimeSlides,
	})
	if errors.Is(err, segment.ErrNoData) {
		return skip(fmt.Sprintf("no science data for %s at %s", strings.Join(ifos, ","), job.FormatFloat(trig)))
	}
	if err != nil {
		return fmt.Errorf("event %d: %w", ev.ID, err)
	}
	if res.OverrideOutside {
		b.logger.Warn("psd-start-time lies outside the common segment",
			"event", ev.ID, "psdstart", res.PSDStart, "start", res.CommonStart, "end", res.CommonEnd)
	}
	e := &eventBuild{b: b, ev: ev, res: res, trig: trig, label: ev.Label()}
	if err := e.locate(); err != nil {
		return skip(fmt.Sprintf("data lookup failed: %v", err))
	}
	if err := tr.advance(PhaseSegmentsResolved); err != nil {
		return err
	}
	if err := e.create(); err != nil {
		return fmt.Errorf("event %d: %w", ev.ID, err)
	}
	if err := tr.advance(PhaseNodesCreated); err != nil {
		return err
	}
	e.wire()
	if err := tr.advance(PhaseEdgesWired); err != nil {
		return err
	}
	for _, n := range e.pending {
		if err := b.g.Insert(n); err != nil {
			return fmt.Errorf("event %d: %w", ev.ID, err)
		}
		b.logger.Debug("inserted node", "event", ev.ID, "node", n.Name(), "kind", n.Kind())
	}
	if err := tr.advance(PhaseFinalized); err != nil {
		return err
	}
	sum.Built = append(sum.Built, ev.ID)
	b.logger.Info("event built", "event", ev.ID, "ifos", strings.Join(res.IFOs, ","), "nodes", len(e.pending))
	return nil
}

// name returns the next run-unique node name for kind.
func (b *Builder) name(kind job.Kind) string {
	b.nodes++
	return fmt.Sprintf("%s-%d", kind, b.nodes)
}
