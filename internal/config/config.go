package config

import (
	"path/filepath"
	"strconv"

	"cuelang.org/go/cue"

	"github.com/WuShichao/lalsuite/internal/job"
)

// Config is a decoded, validated pipeline configuration.
type Config struct {
	Analysis     Analysis     `json:"analysis"`
	Paths        Paths        `json:"paths"`
	Input        Input        `json:"input"`
	Datafind     Datafind     `json:"datafind"`
	Data         Data         `json:"data"`
	LALInference LALInference `json:"lalinference"`
	Condor       Condor       `json:"condor"`
	MPI          *MPI         `json:"mpi,omitempty"`
	Merge        Merge        `json:"merge"`
	Results      Results      `json:"results"`

	// Engine holds the engine section; it is extracted by field walking
	// because its keys are open.
	Engine EngineSection `json:"-"`
	// ResultsPage holds the open resultspage section as report options.
	ResultsPage job.Options `json:"-"`

	// EngineKind is the parsed analysis.engine.
	EngineKind job.EngineKind `json:"-"`

	// Path is the file the configuration was loaded from.
	Path string `json:"-"`

	value cue.Value
}

// Analysis is the [analysis] section.
type Analysis struct {
	IFOs            []string `json:"ifos"`
	Engine          string   `json:"engine"`
	NParallel       int      `json:"nparallel"`
	CoherenceTest   bool     `json:"coherence-test"`
	UploadToGraceDB bool     `json:"upload-to-gracedb"`
	DataSeed        *int64   `json:"dataseed,omitempty"`
	RandomSeed      *int64   `json:"random-seed,omitempty"`
}

// Paths is the [paths] section.
type Paths struct {
	BaseDir    string `json:"basedir"`
	WebDir     string `json:"webdir"`
	BaseURL    string `json:"baseurl,omitempty"`
	CacheDir   string `json:"cachedir,omitempty"`
	LogDir     string `json:"logdir,omitempty"`
	DAGLogDir  string `json:"daglogdir,omitempty"`
	ROMNodes   string `json:"rom_nodes,omitempty"`
	ROMBMatrix string `json:"rom_b_matrix,omitempty"`
}

// Input is the [input] section.
type Input struct {
	MaxPSDLength float64 `json:"max-psd-length"`
	Padding      float64 `json:"padding"`

	GPSStart *float64 `json:"gps-start-time,omitempty"`
	GPSEnd   *float64 `json:"gps-end-time,omitempty"`

	GPSTimeFile       string `json:"gps-time-file,omitempty"`
	InjectionFile     string `json:"injection-file,omitempty"`
	SnglInspiralFile  string `json:"sngl-inspiral-file,omitempty"`
	CoincInspiralFile string `json:"coinc-inspiral-file,omitempty"`
	PipedownDB        string `json:"pipedown-db,omitempty"`
	GID               string `json:"gid,omitempty"`

	TimeSlides    bool     `json:"timeslides"`
	TimeSlideFile string   `json:"timeslide-file,omitempty"`
	TimeSlideDump string   `json:"time-slide-dump,omitempty"`
	MaxCFAR       *float64 `json:"max-cfar,omitempty"`
	Events        string   `json:"events,omitempty"`

	AnalyseAllTime bool     `json:"analyse-all-time"`
	SegmentOverlap *float64 `json:"segment-overlap,omitempty"`

	IgnoreScienceSegments bool     `json:"ignore-science-segments"`
	PSDLength             *float64 `json:"psd-length,omitempty"`
	PSDStart              *float64 `json:"psd-start-time,omitempty"`
	CoincFile             string   `json:"coinc-file,omitempty"`
}

// Datafind is the [datafind] section.
type Datafind struct {
	Types          map[string]string            `json:"types"`
	URLType        string                       `json:"url-type"`
	SegmentFiles   map[string]string            `json:"segment-files,omitempty"`
	VetoFiles      map[string]map[string]string `json:"veto-files,omitempty"`
	VetoCategories []int                        `json:"veto-categories,omitempty"`
	LFNFiles       map[string]string            `json:"lfn-files,omitempty"`
}

// Data is the [data] section.
type Data struct {
	Channels map[string]string `json:"channels"`
}

// LALInference is the [lalinference] section.
type LALInference struct {
	ROQ       bool               `json:"roq"`
	FakeCache map[string]string  `json:"fake-cache,omitempty"`
	FLow      map[string]float64 `json:"flow,omitempty"`
	FHigh     map[string]float64 `json:"fhigh,omitempty"`
	SRate     *float64           `json:"srate,omitempty"`
	SegLen    *float64           `json:"seglen,omitempty"`
	PSDFiles  map[string]string  `json:"psd-files,omitempty"`
}

// Condor is the [condor] section of executables.
type Condor struct {
	Datafind          string `json:"datafind,omitempty"`
	LALInferenceNest  string `json:"lalinferencenest,omitempty"`
	LALInferenceMCMC  string `json:"lalinferencemcmc,omitempty"`
	LALInferenceBAMBI string `json:"lalinferencebambi,omitempty"`
	MergeScript       string `json:"mergescript,omitempty"`
	ResultsPage       string `json:"resultspage,omitempty"`
	CoherenceTest     string `json:"coherencetest,omitempty"`
	GraceDB           string `json:"gracedb,omitempty"`
	ROMWeights        string `json:"romweights,omitempty"`
	MPIRun            string `json:"mpirun,omitempty"`
	Queue             string `json:"queue,omitempty"`
}

// MPI is the [mpi] section.
type MPI struct {
	MachineCount  int `json:"machine-count"`
	MachineMemory int `json:"machine-memory"`
}

// Merge is the [merge] section.
type Merge struct {
	NPos *int `json:"npos,omitempty"`
}

// Results is the [results] section.
type Results struct {
	SkyRes *float64 `json:"skyres,omitempty"`
}

// EngineSection is the open [engine] section.
type EngineSection struct {
	SegLen float64
	// Options are every key except seglen, in file order, rendered as
	// option values.
	Options job.Options
}

// SegLen returns the analysis segment length: lalinference.seglen when
// set, else engine.seglen.
func (c *Config) SegLen() float64 {
	if c.LALInference.SegLen != nil {
		return *c.LALInference.SegLen
	}
	return c.Engine.SegLen
}

// CacheDir returns paths.cachedir, defaulting to <basedir>/caches.
func (c *Config) CacheDir() string {
	if c.Paths.CacheDir != "" {
		return c.Paths.CacheDir
	}
	return filepath.Join(c.Paths.BaseDir, "caches")
}

// LogDir returns paths.logdir, defaulting to <basedir>/log.
func (c *Config) LogDir() string {
	if c.Paths.LogDir != "" {
		return c.Paths.LogDir
	}
	return filepath.Join(c.Paths.BaseDir, "log")
}

// DAGLogDir returns paths.daglogdir, defaulting to the base directory.
func (c *Config) DAGLogDir() string {
	if c.Paths.DAGLogDir != "" {
		return c.Paths.DAGLogDir
	}
	return c.Paths.BaseDir
}

// Fake reports whether ifo reads from a synthetic data source.
func (c *Config) Fake(ifo string) bool {
	_, ok := c.LALInference.FakeCache[ifo]
	return ok
}

// FakeData reports whether the run reads synthetic data. A fake-cache
// section must then cover every instrument.
func (c *Config) FakeData() bool {
	return len(c.LALInference.FakeCache) > 0
}

// EngineExecutable returns the binary of the selected engine.
func (c *Config) EngineExecutable() string {
	switch c.EngineKind.Behaviour().Binary {
	case "lalinferencenest":
		return c.Condor.LALInferenceNest
	case "lalinferencemcmc":
		return c.Condor.LALInferenceMCMC
	default:
		return c.Condor.LALInferenceBAMBI
	}
}

// Nlive returns engine.nlive (or engine.Nlive) for the merge job.
func (c *Config) Nlive() string {
	if v, ok := c.Engine.Options.Get("nlive"); ok {
		return v
	}
	v, _ := c.Engine.Options.Get("Nlive")
	return v
}

// ReportOptions returns the resultspage options plus results.skyres.
func (c *Config) ReportOptions() job.Options {
	opts := c.ResultsPage.Clone()
	if c.Results.SkyRes != nil {
		// skyres was range-checked by the schema.
		_ = opts.Set("skyres", job.FormatFloat(*c.Results.SkyRes))
	}
	return opts
}

// VetoFiles returns datafind.veto-files keyed by integer category.
func (c *Config) VetoFiles() map[int]map[string]string {
	out := make(map[int]map[string]string, len(c.Datafind.VetoFiles))
	for cat, files := range c.Datafind.VetoFiles {
		// Keys match ^[0-9]+$ in the schema.
		n, _ := strconv.Atoi(cat)
		out[n] = files
	}
	return out
}

// EventSources lists the input keys naming an event source, in schema
// order.
func (c *Config) EventSources() []string {
	var out []string
	for _, s := range []struct {
		key string
		set bool
	}{
		{"gps-time-file", c.Input.GPSTimeFile != ""},
		{"injection-file", c.Input.InjectionFile != ""},
		{"sngl-inspiral-file", c.Input.SnglInspiralFile != ""},
		{"coinc-inspiral-file", c.Input.CoincInspiralFile != ""},
		{"pipedown-db", c.Input.PipedownDB != ""},
		{"gid", c.Input.GID != ""},
	} {
		if s.set {
			out = append(out, s.key)
		}
	}
	return out
}
