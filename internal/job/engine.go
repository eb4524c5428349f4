package job

import (
	"fmt"
	"strconv"

	"github.com/WuShichao/lalsuite/internal/datafind"
)

// EngineKind selects the inference engine. It is chosen once, when the
// configuration is parsed.
type EngineKind int

const (
	EngineNest EngineKind = iota + 1
	EngineMCMC
	EngineBAMBI
	EngineBAMBIMPI
)

// EngineBehaviour is the per-variant behaviour table entry.
type EngineBehaviour struct {
	// Name is the configuration value selecting the variant.
	Name string
	// Binary is the executable key in the condor section.
	Binary string
	// Mergeable variants emit per-replica evidence files, so N replicas
	// can be merged.
	Mergeable bool
	// MPI variants are launched through the MPI runner.
	MPI bool
	// Universe is the default scheduler universe.
	Universe string
}

var engineTable = map[EngineKind]EngineBehaviour{
	EngineNest:     {Name: "lalinferencenest", Binary: "lalinferencenest", Mergeable: true, Universe: "standard"},
	EngineMCMC:     {Name: "lalinferencemcmc", Binary: "lalinferencemcmc", MPI: true, Universe: "vanilla"},
	EngineBAMBI:    {Name: "lalinferencebambi", Binary: "lalinferencebambi", Universe: "vanilla"},
	EngineBAMBIMPI: {Name: "lalinferencebambimpi", Binary: "lalinferencebambi", MPI: true, Universe: "vanilla"},
}

// ParseEngineKind maps a configuration value to its EngineKind.
func ParseEngineKind(name string) (EngineKind, error) {
	for k, b := range engineTable {
		if b.Name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown engine %q (want lalinferencenest, lalinferencemcmc, lalinferencebambi or lalinferencebambimpi)", name)
}

// Behaviour returns the table entry for e.
func (e EngineKind) Behaviour() EngineBehaviour {
	return engineTable[e]
}

func (e EngineKind) String() string {
	if b, ok := engineTable[e]; ok {
		return b.Name
	}
	return "engine(" + strconv.Itoa(int(e)) + ")"
}

// MPI describes the multi-process launch wrapper.
type MPI struct {
	Runner        string
	MachineCount  int
	MachineMemory int
}

// DataBlock is the per-instrument data description shared by engine and
// ROQ conditioning nodes. Its arguments are rendered at finalize time.
type DataBlock struct {
	TrigTime  float64
	SegLen    float64
	PSDStart  float64
	PSDLength float64

	IFOs     []string
	Channels map[string]string
	Caches   map[string]string
	// Fake caches name synthetic data sources and are not input files.
	Fake bool
	// Frames, when set, replace cache files with frame inputs.
	Frames map[string][]datafind.Frame

	Flows  map[string]float64
	FHighs map[string]float64
	PSDs   map[string]string
	Slides map[string]float64
}

// Combo returns the concatenated instrument names, e.g. "H1L1".
func (b *DataBlock) Combo() string {
	return Combo(b.IFOs)
}

// Combo concatenates instrument names.
func Combo(ifos []string) string {
	s := ""
	for _, ifo := range ifos {
		s += ifo
	}
	return s
}

func (b *DataBlock) slid() bool {
	for _, ifo := range b.IFOs {
		if b.Slides[ifo] != 0 {
			return true
		}
	}
	return false
}

// render appends the data arguments to n.
func (b *DataBlock) render(n *Node) {
	slid := b.slid()
	for _, ifo := range b.IFOs {
		n.appendArgument("--ifo", ifo)
		switch {
		case len(b.Frames) > 0:
		case b.Fake:
			n.AddOption(ifo+"-cache", b.Caches[ifo])
		default:
			n.AddFileArgument("--"+ifo+"-cache", b.Caches[ifo], false)
		}
		if ch := b.Channels[ifo]; ch != "" {
			n.AddOption(ifo+"-channel", ch)
		}
		if v, ok := b.Flows[ifo]; ok {
			n.AddOption(ifo+"-flow", FormatFloat(v))
		}
		if v, ok := b.FHighs[ifo]; ok {
			n.AddOption(ifo+"-fhigh", FormatFloat(v))
		}
		if v, ok := b.PSDs[ifo]; ok {
			n.AddFileArgument("--"+ifo+"-psd", v, false)
		}
		if slid {
			n.AddOption(ifo+"-timeslide", FormatFloat(b.Slides[ifo]))
		}
	}
	n.AddOption("psdstart", FormatFloat(b.PSDStart))
	n.AddOption("psdlength", FormatFloat(b.PSDLength))
	n.AddOption("seglen", FormatFloat(b.SegLen))

	if len(b.Frames) == 0 {
		return
	}
	n.AddFlag("glob-frame-data")
	dataEnd := max(b.PSDStart+b.PSDLength, b.TrigTime+2)
	for _, ifo := range b.IFOs {
		slide := b.Slides[ifo]
		for _, f := range b.Frames[ifo] {
			if f.Overlaps(b.PSDStart+slide, dataEnd+slide) {
				n.AddInputArtifact(f.Path)
			}
		}
	}
}

// appendArgument adds flag even when it is already present.
func (n *Node) appendArgument(flag, value string) {
	if n.mutable("add argument " + flag) {
		n.args = append(n.args, Arg{Flag: flag, Value: value})
	}
}

// FormatFloat renders v in the shortest exact decimal form.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// EngineParams configures an inference engine node.
type EngineParams struct {
	Name       string
	Key        Key
	Engine     EngineKind
	Executable string
	// MPI is required for MPI variants and ignored otherwise.
	MPI *MPI
	// Universe overrides the variant's default universe.
	Universe string
	// OutputRoot is the output path without the variant's suffixes.
	OutputRoot string
	Data       *DataBlock
	// ROQ requires one WeightCompute parent per instrument.
	ROQ bool
}

// NewEngine builds an inference engine node. The data block is rendered
// when the node is finalized, so PSD start and length may still change.
func NewEngine(p EngineParams) *Node {
	b := p.Engine.Behaviour()
	res := Resources{Universe: b.Universe}
	if p.Universe != "" {
		res.Universe = p.Universe
	}
	exe := p.Executable
	n := newNode(p.Name, p.Key, exe, res)
	if b.MPI {
		if p.MPI == nil {
			n.fail(invariant(ErrCodeNotReady, p.Name, "%s requires an MPI runner", p.Engine))
		} else {
			n.executable = p.MPI.Runner
			n.resources = Resources{
				Universe: "vanilla",
				CPUs:     p.MPI.MachineCount,
				MemoryMB: p.MPI.MachineCount * p.MPI.MachineMemory,
			}
			n.AddArgument("-np", strconv.Itoa(p.MPI.MachineCount))
			n.AddPositional(exe)
		}
	}

	root := p.OutputRoot
	switch p.Engine {
	case EngineNest:
		ns := root + ".dat"
		n.AddFileArgument("--outfile", ns, true)
		n.AddOutputArtifact(ns + "_B.txt")
		n.AddOutputArtifact(ns + "_params.txt")
		n.setRole(RolePosterior, ns)
		n.setRole(RoleEvidence, ns+"_B.txt")
		n.setRole(RoleHeader, ns+"_params.txt")
	case EngineMCMC:
		n.AddFileArgument("--outfile", root, true)
		n.AddOutputArtifact(root + ".00")
		n.setRole(RolePosterior, root+".00")
	case EngineBAMBI, EngineBAMBIMPI:
		fileroot := root + "_"
		n.AddOption("outfile", fileroot)
		n.AddOutputArtifact(fileroot + "post_equal_weights.dat")
		n.AddOutputArtifact(fileroot + "params.txt")
		n.AddOutputArtifact(fileroot + "evidence.dat")
		n.setRole(RolePosterior, fileroot+"post_equal_weights.dat")
		n.setRole(RoleEvidence, fileroot+"evidence.dat")
		n.setRole(RoleHeader, fileroot+"params.txt")
	}

	data := p.Data
	n.ready = func(n *Node) error {
		if data == nil || len(data.IFOs) == 0 {
			return invariant(ErrCodeNotReady, n.name, "engine has no instrument data")
		}
		if want := len(data.IFOs); !data.Fake && countKind(n.parents, KindDataPrep) != want {
			return invariant(ErrCodeNotReady, n.name, "engine needs %d DataPrep parents, has %d",
				want, countKind(n.parents, KindDataPrep))
		}
		if want := len(data.IFOs); p.ROQ && countKind(n.parents, KindWeightCompute) != want {
			return invariant(ErrCodeNotReady, n.name, "engine needs %d WeightCompute parents, has %d",
				want, countKind(n.parents, KindWeightCompute))
		}
		return nil
	}
	n.complete = func(n *Node) { data.render(n) }
	return n
}

// SetSNRPath declares the file the engine writes the injected SNR to.
// "/dev/null" is passed through and not declared as an output.
func SetSNRPath(n *Node, path string) {
	if path == "/dev/null" {
		n.AddOption("snrpath", path)
	} else {
		n.AddFileArgument("--snrpath", path, true)
	}
	n.setRole(RoleSNR, path)
}

// ROQParams configures the reduced-order-model conditioning node.
type ROQParams struct {
	Name       string
	Key        Key
	Executable string
	// DumpDir receives the frequency-domain data and spectra.
	DumpDir string
	// Injection selects the freqDataWithInjection file names.
	Injection bool
	Data      *DataBlock
}

// NewROQConditioning builds the ROQ conditioning node. It runs the MCMC
// engine for a single iteration and dumps per-instrument frequency data
// and spectra into DumpDir.
func NewROQConditioning(p ROQParams) *Node {
	n := newNode(p.Name, p.Key, p.Executable, Resources{Universe: "vanilla"})
	n.AddOption("Niter", "1")
	n.AddOption("data-dump", p.DumpDir)

	suffix := "-freqData.dat"
	if p.Injection {
		suffix = "-freqDataWithInjection.dat"
	}
	for _, ifo := range p.Data.IFOs {
		freq := p.DumpDir + "/" + ifo + suffix
		psd := p.DumpDir + "/" + ifo + "-PSD.dat"
		n.AddOutputArtifact(freq)
		n.AddOutputArtifact(psd)
		n.setRole(RoleFreqData.ForIFO(ifo), freq)
		n.setRole(RolePSD.ForIFO(ifo), psd)
	}
	n.AddOutputArtifact(p.DumpDir + "/roq_sizes.dat")

	data := p.Data
	n.ready = func(n *Node) error {
		if !data.Fake && countKind(n.parents, KindDataPrep) != len(data.IFOs) {
			return invariant(ErrCodeNotReady, n.name, "ROQ conditioning needs %d DataPrep parents", len(data.IFOs))
		}
		return nil
	}
	n.complete = func(n *Node) { data.render(n) }
	return n
}
