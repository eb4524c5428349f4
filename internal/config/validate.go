package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/WuShichao/lalsuite/internal/event"
	"github.com/WuShichao/lalsuite/internal/job"
)

// Validate runs the cross-section rules. It returns every violation,
// joined, each as an *Error.
func (c *Config) Validate() error {
	v := &validator{c: c}
	v.instruments()
	v.sources()
	v.engine()
	v.roq()
	v.allTime()
	v.executables()
	v.segments()
	v.options()
	return errors.Join(v.errs...)
}

type validator struct {
	c    *Config
	errs []error
}

func (v *validator) fail(msg string, path ...string) {
	v.errs = append(v.errs, &Error{
		Field:   strings.Join(path, "."),
		Message: msg,
		Pos:     v.c.pos(path...),
	})
}

func (v *validator) instruments() {
	c := v.c
	if len(c.Analysis.IFOs) == 0 {
		v.fail("at least one instrument is required", "analysis", "ifos")
		return
	}
	seen := make(map[string]bool)
	for _, ifo := range c.Analysis.IFOs {
		if seen[ifo] {
			v.fail(fmt.Sprintf("instrument %s listed twice", ifo), "analysis", "ifos")
		}
		seen[ifo] = true
		if len(c.LALInference.FakeCache) > 0 {
			if !c.Fake(ifo) {
				v.fail("missing synthetic data source for "+ifo, "lalinference", "fake-cache")
			}
			continue
		}
		if c.Data.Channels[ifo] == "" {
			v.fail("missing channel for "+ifo, "data", "channels")
		}
		if c.Datafind.Types[ifo] == "" {
			v.fail("missing frame type for "+ifo, "datafind", "types")
		}
	}
}

func (v *validator) sources() {
	c := v.c
	in := c.Input
	srcs := c.EventSources()
	switch {
	case len(srcs) > 1:
		v.fail("more than one event source: "+strings.Join(srcs, ", "), "input")
	case len(srcs) == 1 && in.AnalyseAllTime:
		v.fail("cannot be combined with input."+srcs[0], "input", "analyse-all-time")
	case len(srcs) == 0 && !in.AnalyseAllTime:
		v.fail("no event source; set one of "+strings.Join(sourceKeys, ", ")+" or analyse-all-time", "input")
	}
	if in.TimeSlides && in.TimeSlideFile == "" && (in.InjectionFile != "" || in.GPSTimeFile != "") {
		v.fail("required when input.timeslides is set", "input", "timeslide-file")
	}
	if in.GPSStart != nil && in.GPSEnd != nil && *in.GPSStart >= *in.GPSEnd {
		v.fail("must be after input.gps-start-time", "input", "gps-end-time")
	}
	if in.Events != "" && in.Events != "all" {
		if _, err := event.ParseSelection(in.Events); err != nil {
			v.fail(err.Error(), "input", "events")
		}
	}
}

var sourceKeys = []string{"gps-time-file", "injection-file", "sngl-inspiral-file", "coinc-inspiral-file", "pipedown-db", "gid"}

func (v *validator) engine() {
	c := v.c
	b := c.EngineKind.Behaviour()
	if c.Analysis.NParallel > 1 && !b.Mergeable {
		v.fail(fmt.Sprintf("must be 1 for %s, which produces no mergeable evidence", b.Name), "analysis", "nparallel")
	}
	if c.Analysis.CoherenceTest && !b.Mergeable {
		v.fail(fmt.Sprintf("not supported for %s", b.Name), "analysis", "coherence-test")
	}
	if b.MPI && c.MPI == nil {
		v.fail(fmt.Sprintf("%s needs machine-count and machine-memory", b.Name), "mpi")
	}
	if c.Analysis.UploadToGraceDB && c.Paths.BaseURL == "" {
		v.fail("required when analysis.upload-to-gracedb is set", "paths", "baseurl")
	}
}

func (v *validator) roq() {
	c := v.c
	if !c.LALInference.ROQ {
		return
	}
	if c.Paths.ROMNodes == "" {
		v.fail("required when lalinference.roq is set", "paths", "rom_nodes")
	}
	if c.Paths.ROMBMatrix == "" {
		v.fail("required when lalinference.roq is set", "paths", "rom_b_matrix")
	}
	for _, ifo := range c.Analysis.IFOs {
		if _, ok := c.LALInference.FLow[ifo]; !ok {
			v.fail("missing low frequency cutoff for "+ifo, "lalinference", "flow")
		}
	}
}

func (v *validator) allTime() {
	c := v.c
	in := c.Input
	if !in.AnalyseAllTime {
		return
	}
	if in.GPSStart == nil || in.GPSEnd == nil {
		v.fail("needs both input.gps-start-time and input.gps-end-time", "input", "analyse-all-time")
	}
	overlap := float64(event.DefaultOverlap)
	if in.SegmentOverlap != nil {
		overlap = *in.SegmentOverlap
	}
	if overlap >= c.SegLen() {
		v.fail(fmt.Sprintf("%s must be less than seglen %s", job.FormatFloat(overlap), job.FormatFloat(c.SegLen())), "input", "segment-overlap")
	}
}

func (v *validator) executables() {
	c := v.c
	need := func(exe, key string) {
		if exe == "" {
			v.fail("executable is required", "condor", key)
		}
	}
	b := c.EngineKind.Behaviour()
	need(c.EngineExecutable(), b.Binary)
	need(c.Condor.ResultsPage, "resultspage")
	if b.Mergeable {
		need(c.Condor.MergeScript, "mergescript")
	}
	if b.MPI {
		need(c.Condor.MPIRun, "mpirun")
	}
	if !c.FakeData() {
		need(c.Condor.Datafind, "datafind")
	}
	if c.Analysis.CoherenceTest && len(c.Analysis.IFOs) > 1 {
		need(c.Condor.CoherenceTest, "coherencetest")
	}
	if c.Analysis.UploadToGraceDB || c.Input.GID != "" {
		need(c.Condor.GraceDB, "gracedb")
	}
	if c.LALInference.ROQ {
		need(c.Condor.ROMWeights, "romweights")
	}
}

func (v *validator) segments() {
	c := v.c
	df := c.Datafind
	if !c.Input.IgnoreScienceSegments {
		for _, ifo := range c.Analysis.IFOs {
			if df.SegmentFiles[ifo] == "" {
				v.fail("missing science segments for "+ifo+" (or set input.ignore-science-segments)", "datafind", "segment-files")
			}
		}
	}
	for _, cat := range df.VetoCategories {
		if _, ok := df.VetoFiles[strconv.Itoa(cat)]; !ok {
			v.fail(fmt.Sprintf("category %d has no datafind.veto-files entry", cat), "datafind", "veto-categories")
		}
	}
	if len(df.LFNFiles) > 0 {
		for _, ifo := range c.Analysis.IFOs {
			if !c.Fake(ifo) && df.LFNFiles[ifo] == "" {
				v.fail("missing frame list for "+ifo, "datafind", "lfn-files")
			}
		}
	}
}

func (v *validator) options() {
	c := v.c
	for _, k := range c.Engine.Options.Keys() {
		if err := job.CheckOption(job.KindEngine, k); err != nil {
			v.fail(err.Error(), "engine", k)
		}
	}
	for _, k := range c.ResultsPage.Keys() {
		if err := job.CheckOption(job.KindReport, k); err != nil {
			v.fail(err.Error(), "resultspage", k)
		}
	}
}
