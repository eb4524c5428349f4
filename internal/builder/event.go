package builder

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/WuShichao/lalsuite/internal/config"
	"github.com/WuShichao/lalsuite/internal/datafind"
	"github.com/WuShichao/lalsuite/internal/event"
	"github.com/WuShichao/lalsuite/internal/job"
	"github.com/WuShichao/lalsuite/internal/segment"
)

// eventBuild holds one event's nodes between creation and insertion.
type eventBuild struct {
	b     *Builder
	ev    *event.Event
	res   *segment.Resolution
	trig  float64
	label string

	preps map[string]*prep
	roq   *roqGroup
	seed0 int64

	full      *chain
	singles   []*chain
	coherence *job.Node
	publish   *job.Node

	// pending lists the nodes to insert, parents first.
	pending []*job.Node
}

// chain is one instrument combination's engines, merge and report.
type chain struct {
	ifos    []string
	data    *job.DataBlock
	engines []*job.Node
	merge   *job.Node
	report  *job.Node
}

// locate finds or creates the DataPrep node of every contributing
// instrument. Failed lookups skip the event.
func (e *eventBuild) locate() error {
	b := e.b
	e.preps = make(map[string]*prep, len(e.res.IFOs))
	if b.cfg.FakeData() {
		return nil
	}
	fresh := make(map[job.Key]*prep)
	for _, ifo := range e.res.IFOs {
		lo, hi, ok := e.res.DataSpan(ifo)
		if !ok {
			return fmt.Errorf("empty data span for %s", ifo)
		}
		start, end := int64(lo), int64(hi)
		frameType := b.cfg.Datafind.Types[ifo]
		key := job.Key{
			Kind:  job.KindDataPrep,
			Event: job.NoEvent,
			Combo: ifo,
			Span:  fmt.Sprintf("%s:%d-%d", frameType, start, end),
		}
		if p, ok := b.preps[key]; ok {
			e.preps[ifo] = p
			continue
		}
		if p, ok := fresh[key]; ok {
			e.preps[ifo] = p
			continue
		}
		loc, err := b.opts.Locator.Locate(ifo, frameType, start, end)
		if err != nil {
			return err
		}
		p := &prep{loc: loc, node: job.NewDataPrep(job.DataPrepParams{
			Name:       b.name(job.KindDataPrep),
			Key:        key,
			Executable: b.cfg.Condor.Datafind,
			IFO:        ifo,
			FrameType:  frameType,
			URLType:    b.cfg.Datafind.URLType,
			Start:      start,
			End:        end,
			Location:   loc,
		})}
		fresh[key] = p
		e.preps[ifo] = p
		e.pending = append(e.pending, p.node)
	}
	// Shared only once every lookup of the event succeeded.
	for k, p := range fresh {
		b.preps[k] = p
	}
	return nil
}

// create builds every node of the event without wiring edges.
func (e *eventBuild) create() error {
	b := e.b
	cfg := b.cfg
	e.seed0 = b.opts.Seeds.Seed()

	if cfg.LALInference.ROQ {
		e.createROQ()
	}

	var err error
	if e.full, err = e.createChain(e.res.IFOs, true); err != nil {
		return err
	}
	mergeable := cfg.EngineKind.Behaviour().Mergeable
	if cfg.Analysis.CoherenceTest && mergeable && len(e.res.IFOs) > 1 {
		for _, ifo := range e.res.IFOs {
			c, err := e.createChain([]string{ifo}, false)
			if err != nil {
				return err
			}
			e.singles = append(e.singles, c)
		}
		combo := job.Combo(e.res.IFOs)
		e.coherence = job.NewCoherenceTest(job.CoherenceParams{
			Name:       b.name(job.KindCoherenceTest),
			Key:        job.Key{Kind: job.KindCoherenceTest, Event: e.ev.ID, Combo: combo},
			Executable: cfg.Condor.CoherenceTest,
			OutFile: filepath.Join(cfg.Paths.BaseDir, "coherence_test",
				"coherence_test_"+combo+"_"+e.label+".dat"),
			Incoherent: len(e.res.IFOs),
		})
		e.pending = append(e.pending, e.coherence)
	}
	// The combined report goes last so it can depend on the coherence test.
	e.pending = append(e.pending, e.full.report)

	if e.ev.GID != "" && cfg.Analysis.UploadToGraceDB {
		e.publish = job.NewPublish(job.PublishParams{
			Name:       b.name(job.KindPublish),
			Key:        job.Key{Kind: job.KindPublish, Event: e.ev.ID, Combo: job.Combo(e.res.IFOs)},
			Executable: cfg.Condor.GraceDB,
			GID:        e.ev.GID,
			WebDir:     cfg.Paths.WebDir,
			BaseURL:    cfg.Paths.BaseURL,
		})
		e.pending = append(e.pending, e.publish)
	}

	prio := b.ranks.priority(e.trig)
	for _, n := range e.pending {
		if n.Kind() != job.KindDataPrep {
			n.SetPriority(prio)
		}
	}
	return nil
}

// createROQ builds the event's conditioning and weight nodes once.
func (e *eventBuild) createROQ() {
	b := e.b
	cfg := b.cfg
	if g, ok := b.roq[e.ev.ID]; ok {
		e.roq = g
		return
	}
	dir := filepath.Join(cfg.Paths.BaseDir, "ROQdata", strconv.FormatInt(e.ev.ID, 10))
	exe := cfg.Condor.LALInferenceMCMC
	if exe == "" {
		exe = cfg.EngineExecutable()
	}
	g := &roqGroup{dir: dir, weights: make(map[string]*job.Node, len(e.res.IFOs)), fresh: true}
	g.node = job.NewROQConditioning(job.ROQParams{
		Name:       b.name(job.KindROQConditioning),
		Key:        job.Key{Kind: job.KindROQConditioning, Event: e.ev.ID, Combo: job.Combo(e.res.IFOs)},
		Executable: exe,
		DumpDir:    dir,
		Injection:  b.opts.InjectionFile != "",
		Data:       e.dataBlock(e.res.IFOs),
	})
	e.engineControl(g.node, e.seed0)
	e.pending = append(e.pending, g.node)

	dt, _ := cfg.Engine.Options.Get("dt")
	step, _ := cfg.Engine.Options.Get("time_step")
	for _, ifo := range e.res.IFOs {
		w := job.NewWeightCompute(job.WeightParams{
			Name:       b.name(job.KindWeightCompute),
			Key:        job.Key{Kind: job.KindWeightCompute, Event: e.ev.ID, Combo: ifo},
			Executable: cfg.Condor.ROMWeights,
			IFO:        ifo,
			SegLen:     cfg.SegLen(),
			FLow:       cfg.LALInference.FLow[ifo],
			BMatrix:    cfg.Paths.ROMBMatrix,
			DT:         dt,
			TimeStep:   step,
			OutDir:     dir,
			MemoryMB:   b.weightMemory,
		})
		g.weights[ifo] = w
		e.pending = append(e.pending, w)
	}
	b.roq[e.ev.ID] = g
	e.roq = g
}

// createChain builds N engine replicas over ifos with their merge and
// report. The first replica of the full chain reuses the event seed.
func (e *eventBuild) createChain(ifos []string, full bool) (*chain, error) {
	b := e.b
	cfg := b.cfg
	beh := cfg.EngineKind.Behaviour()
	combo := job.Combo(ifos)
	c := &chain{ifos: ifos, data: e.dataBlock(ifos)}

	var mpi *job.MPI
	if cfg.MPI != nil {
		mpi = &job.MPI{Runner: cfg.Condor.MPIRun, MachineCount: cfg.MPI.MachineCount, MachineMemory: cfg.MPI.MachineMemory}
	}
	opts := cfg.Engine.Options.Merge(e.ev.EngineOpts)
	npar := max(cfg.Analysis.NParallel, 1)
	for i := range npar {
		seed := e.seed0
		if !full || i > 0 {
			seed = b.opts.Seeds.Seed()
		}
		b.engines++
		root := filepath.Join(cfg.Paths.BaseDir, "engine",
			fmt.Sprintf("%s-%d-%s-%s-%d", cfg.EngineKind, e.ev.ID, combo, job.FormatFloat(e.trig), b.engines))
		n := job.NewEngine(job.EngineParams{
			Name:       b.name(job.KindEngine),
			Key:        job.Key{Kind: job.KindEngine, Event: e.ev.ID, Combo: combo, Replica: i},
			Engine:     cfg.EngineKind,
			Executable: cfg.EngineExecutable(),
			MPI:        mpi,
			OutputRoot: root,
			Data:       c.data,
			ROQ:        cfg.LALInference.ROQ,
		})
		e.engineControl(n, seed)
		if cfg.Analysis.DataSeed != nil {
			n.AddOption("dataseed", strconv.FormatInt(*cfg.Analysis.DataSeed+e.ev.ID, 10))
		}
		if err := n.AttachOptions(opts); err != nil {
			return nil, err
		}
		if b.opts.InjectionFile != "" {
			snr := "/dev/null"
			if i == 0 {
				snr = filepath.Join(cfg.Paths.BaseDir, "SNR",
					fmt.Sprintf("snr_%s_%.3f.dat", combo, e.trig))
			}
			job.SetSNRPath(n, snr)
		}
		c.engines = append(c.engines, n)
		e.pending = append(e.pending, n)
	}

	if beh.Mergeable {
		var npos string
		if cfg.Merge.NPos != nil {
			npos = strconv.Itoa(*cfg.Merge.NPos)
		}
		c.merge = job.NewMerge(job.MergeParams{
			Name:       b.name(job.KindMerge),
			Key:        job.Key{Kind: job.KindMerge, Event: e.ev.ID, Combo: combo},
			Executable: cfg.Condor.MergeScript,
			PosFile: filepath.Join(cfg.Paths.BaseDir, "posterior_samples",
				"posterior_"+combo+"_"+e.label+".dat"),
			Nlive:    cfg.Nlive(),
			Npos:     npos,
			Replicas: npar,
		})
		e.pending = append(e.pending, c.merge)
	}

	out := filepath.Join(cfg.Paths.WebDir, e.label, job.Combo(e.res.IFOs))
	if !full {
		out = filepath.Join(out, combo)
	}
	report, err := job.NewReport(job.ReportParams{
		Name:       b.name(job.KindReport),
		Key:        job.Key{Kind: job.KindReport, Event: e.ev.ID, Combo: combo},
		Executable: cfg.Condor.ResultsPage,
		OutPath:    out,
		Options:    cfg.ReportOptions(),
	})
	if err != nil {
		return nil, err
	}
	c.report = report
	if !full {
		e.pending = append(e.pending, report)
	}
	return c, nil
}

// engineControl sets the arguments shared by engines and the ROQ
// conditioning run.
func (e *eventBuild) engineControl(n *job.Node, seed int64) {
	cfg := e.b.cfg
	n.AddOption("trigtime", job.FormatFloat(e.trig))
	n.AddOption("randomseed", strconv.FormatInt(seed, 10))
	srate := e.ev.SRate
	if cfg.LALInference.SRate != nil {
		srate = *cfg.LALInference.SRate
	}
	if srate > 0 {
		n.AddOption("srate", job.FormatFloat(srate))
	}
	if e.ev.TrigSNR > 0 {
		n.AddOption("trigSNR", job.FormatFloat(e.ev.TrigSNR))
	}
	if inj := e.b.opts.InjectionFile; inj != "" {
		n.AddFileArgument("--inj", inj, false)
		n.AddOption("event", strconv.FormatInt(e.ev.ID, 10))
	}
}

// dataBlock describes the data ifos read for this event.
func (e *eventBuild) dataBlock(ifos []string) *job.DataBlock {
	cfg := e.b.cfg
	d := &job.DataBlock{
		TrigTime:  e.trig,
		SegLen:    cfg.SegLen(),
		PSDStart:  e.res.PSDStart,
		PSDLength: e.res.PSDLength,
		IFOs:      ifos,
		Channels:  cfg.Data.Channels,
		Caches:    make(map[string]string, len(ifos)),
		Fake:      cfg.FakeData(),
		Flows:     pick(cfg.LALInference.FLow, ifos),
		FHighs:    fhighs(cfg, e.ev, ifos),
		PSDs:      pick(cfg.LALInference.PSDFiles, ifos),
		Slides:    make(map[string]float64, len(ifos)),
	}
	for _, ifo := range ifos {
		d.Slides[ifo] = e.res.Slide(ifo)
		if d.Fake {
			d.Caches[ifo] = cfg.LALInference.FakeCache[ifo]
			continue
		}
		loc := e.preps[ifo].loc
		d.Caches[ifo] = loc.Cache
		if len(loc.Frames) > 0 {
			if d.Frames == nil {
				d.Frames = make(map[string][]datafind.Frame, len(ifos))
			}
			d.Frames[ifo] = loc.Frames
		}
	}
	return d
}

// wire attaches every edge of the event.
func (e *eventBuild) wire() {
	cfg := e.b.cfg
	if g := e.roq; g != nil && g.fresh {
		for _, ifo := range e.res.IFOs {
			if p := e.preps[ifo]; p != nil {
				g.node.AddParent(p.node)
			}
			g.weights[ifo].AddParent(g.node)
		}
		g.fresh = false
	}

	for _, c := range append([]*chain{e.full}, e.singles...) {
		for _, n := range c.engines {
			for _, ifo := range c.ifos {
				if p := e.preps[ifo]; p != nil {
					n.AddParent(p.node)
				}
			}
			if e.roq != nil {
				for _, ifo := range c.ifos {
					w := e.roq.weights[ifo]
					n.AddParent(w)
					n.AddFileArgument("--"+ifo+"-roqweights", w.Output(job.RoleWeights), false)
				}
				n.AddFileArgument("--roqtime_steps", filepath.Join(e.roq.dir, "roq_sizes.dat"), false)
				n.AddFileArgument("--roqnodes", cfg.Paths.ROMNodes, false)
			}
			if c.merge != nil {
				job.AddMergeInput(c.merge, n)
			}
		}
		e.wireReport(c)
	}

	if e.coherence != nil {
		job.SetCoherentParent(e.coherence, e.full.merge)
		for _, c := range e.singles {
			job.AddIncoherentParent(e.coherence, c.merge)
		}
		e.full.report.AddParent(e.coherence)
		job.SetReportFile(e.full.report, "bci", e.coherence.Output(job.RoleBayes))
	}
	if e.publish != nil {
		e.publish.AddParent(e.full.report)
	}
}

func (e *eventBuild) wireReport(c *chain) {
	r := c.report
	first := c.engines[0]
	if c.merge != nil {
		job.AddReportInput(r, c.merge)
		job.SetReportFile(r, "bsn", c.merge.Output(job.RoleEvidence))
		if snr := first.Output(job.RoleSNR); snr != "" && snr != "/dev/null" {
			job.SetReportFile(r, "snr", snr)
		}
	} else {
		for _, n := range c.engines {
			job.AddReportInput(r, n)
		}
		if bsn := first.Output(job.RoleEvidence); bsn != "" {
			job.SetReportFile(r, "bsn", bsn)
		}
	}
	if h := first.Output(job.RoleHeader); h != "" {
		job.SetReportFile(r, "header", h)
	}
	if inj := e.b.opts.InjectionFile; inj != "" {
		job.SetReportInjection(r, inj, e.ev.ID)
	}
	if coinc := e.b.opts.CoincFile; coinc != "" {
		job.SetReportFile(r, "trig", coinc)
	}
}

// pick restricts m to ifos; nil when nothing remains.
func pick[V any](m map[string]V, ifos []string) map[string]V {
	var out map[string]V
	for _, ifo := range ifos {
		if v, ok := m[ifo]; ok {
			if out == nil {
				out = make(map[string]V, len(ifos))
			}
			out[ifo] = v
		}
	}
	return out
}

// fhighs applies the event's cutoff to every instrument, then the
// configured per-instrument cutoffs on top.
func fhighs(cfg *config.Config, ev *event.Event, ifos []string) map[string]float64 {
	out := pick(cfg.LALInference.FHigh, ifos)
	if ev.FHigh <= 0 {
		return out
	}
	if out == nil {
		out = make(map[string]float64, len(ifos))
	}
	for _, ifo := range ifos {
		if _, ok := out[ifo]; !ok {
			out[ifo] = ev.FHigh
		}
	}
	return out
}
