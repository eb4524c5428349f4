package job

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/WuShichao/lalsuite/internal/datafind"
)

// DataPrepParams configures a data-location job.
type DataPrepParams struct {
	Name       string
	Key        Key
	Executable string
	IFO        string
	FrameType  string
	URLType    string
	Start, End int64
	Location   datafind.Location
}

// NewDataPrep builds a data-location node. It has no parents and declares
// the cache file as its only output.
func NewDataPrep(p DataPrepParams) *Node {
	n := newNode(p.Name, p.Key, p.Executable, Resources{Universe: "local"})
	urlType := p.URLType
	if urlType == "" {
		urlType = "file"
	}
	n.AddOption("observatory", datafind.Observatory(p.IFO))
	n.AddOption("url-type", urlType)
	n.AddOption("gps-start-time", strconv.FormatInt(p.Start, 10))
	n.AddOption("gps-end-time", strconv.FormatInt(p.End, 10))
	n.AddFlag("lal-cache")
	n.AddOption("type", p.FrameType)
	n.AddFileArgument("--output", p.Location.Cache, true)
	n.setRole(RoleCache, p.Location.Cache)
	n.ready = func(n *Node) error {
		if len(n.parents) != 0 {
			return invariant(ErrCodeNotReady, n.name, "DataPrep nodes have no parents")
		}
		return nil
	}
	return n
}

// WeightParams configures a ROQ weight computation for one instrument.
type WeightParams struct {
	Name       string
	Key        Key
	Executable string
	IFO        string
	SegLen     float64
	FLow       float64
	BMatrix    string
	DT         string
	TimeStep   string
	OutDir     string
	// MemoryMB is the memory request, four times the basis size.
	MemoryMB int
}

// NewWeightCompute builds a weight node. Its inputs come from the ROQ
// conditioning parent, attached with AddParent before Finalize.
func NewWeightCompute(p WeightParams) *Node {
	n := newNode(p.Name, p.Key, p.Executable, Resources{Universe: "vanilla", MemoryMB: p.MemoryMB})
	dt, step := p.DT, p.TimeStep
	if dt == "" {
		dt = "0.1"
	}
	if step == "" {
		step = "0.0001"
	}
	n.AddFileArgument("-B", p.BMatrix, false)
	n.AddArgument("-t", dt)
	n.AddArgument("-T", step)
	n.AddArgument("-s", FormatFloat(p.SegLen))
	n.AddArgument("-f", FormatFloat(p.FLow))
	n.AddArgument("-i", p.IFO)

	weights := filepath.Join(p.OutDir, "weights_"+p.IFO+".dat")
	n.AddOutputArtifact(weights)
	n.setRole(RoleWeights, weights)

	ifo := p.IFO
	n.ready = func(n *Node) error {
		if roqParent(n) == nil {
			return invariant(ErrCodeNotReady, n.name, "weight computation needs its ROQ conditioning parent")
		}
		return nil
	}
	n.complete = func(n *Node) {
		roq := roqParent(n)
		n.AddFileArgument("-d", roq.Output(RoleFreqData.ForIFO(ifo)), false)
		n.AddFileArgument("-p", roq.Output(RolePSD.ForIFO(ifo)), false)
		n.AddArgument("-o", p.OutDir)
	}
	return n
}

func roqParent(n *Node) *Node {
	for _, p := range n.parents {
		if p.Kind() == KindROQConditioning {
			return p
		}
	}
	return nil
}

// MergeParams configures the nested-sampling merge job.
type MergeParams struct {
	Name       string
	Key        Key
	Executable string
	// PosFile is the merged posterior; the merged evidence goes to
	// PosFile + "_B.txt".
	PosFile string
	Nlive   string
	Npos    string
	// Replicas is the number of engine replicas the merge combines. Zero
	// means one.
	Replicas int
}

// NewMerge builds a merge node. Engine replicas are attached with
// AddMergeInput; Finalize fails until all Replicas of them are.
func NewMerge(p MergeParams) *Node {
	n := newNode(p.Name, p.Key, p.Executable, Resources{Universe: "vanilla"})
	if p.Nlive != "" {
		n.AddOption("Nlive", p.Nlive)
	}
	if p.Npos != "" {
		n.AddOption("npos", p.Npos)
	}
	n.AddFileArgument("--pos", p.PosFile, true)
	n.AddOutputArtifact(p.PosFile + "_B.txt")
	n.setRole(RolePosterior, p.PosFile)
	n.setRole(RoleEvidence, p.PosFile+"_B.txt")
	replicas := max(p.Replicas, 1)
	n.ready = func(n *Node) error {
		if got := countKind(n.parents, KindEngine); got != replicas {
			return invariant(ErrCodeNotReady, n.name, "merge needs %d engine parents, has %d", replicas, got)
		}
		return nil
	}
	return n
}

// AddMergeInput attaches an engine replica to a merge node.
func AddMergeInput(merge, engine *Node) {
	merge.AddParent(engine)
	merge.AddPositionalFile(engine.Output(RolePosterior), false)
	merge.AddFileArgument("--headers", engine.Output(RoleHeader), false)
	merge.AddInputArtifact(engine.Output(RoleEvidence))
}

// ReportParams configures a results-page job.
type ReportParams struct {
	Name       string
	Key        Key
	Executable string
	OutPath    string
	Options    Options
}

// NewReport builds a results-page node writing to OutPath.
func NewReport(p ReportParams) (*Node, error) {
	n := newNode(p.Name, p.Key, p.Executable, Resources{Universe: "local", MemoryMB: 2000})
	if err := n.AttachOptions(p.Options); err != nil {
		return nil, err
	}
	n.AddOption("outpath", p.OutPath)
	n.AddOutputArtifact(p.OutPath)
	n.setRole(RoleWebDir, p.OutPath)
	n.setRole(RolePosterior, filepath.Join(p.OutPath, "posterior_samples.dat"))
	n.ready = func(n *Node) error {
		if countKind(n.parents, KindEngine)+countKind(n.parents, KindMerge) == 0 {
			return invariant(ErrCodeNotReady, n.name, "report has no posterior parent")
		}
		return nil
	}
	return n, nil
}

// AddReportInput attaches a posterior-producing parent, either a merge or
// an engine replica, to a report node.
func AddReportInput(report, parent *Node) {
	report.AddParent(parent)
	report.AddPositionalFile(parent.Output(RolePosterior), false)
	if parent.Kind() != KindEngine {
		return
	}
	if snr := parent.Output(RoleSNR); snr != "" && snr != "/dev/null" {
		SetReportFile(report, "snr", snr)
	}
	if strings.HasSuffix(parent.Output(RolePosterior), ".00") {
		report.AddFlag("lalinfmcmc")
	}
}

// SetReportFile sets one of the report's file options (snr, bsn, bci, trig,
// inj). "/dev/null" is passed without declaring an input.
func SetReportFile(report *Node, key, path string) {
	if path == "/dev/null" {
		report.AddOption(key, path)
		return
	}
	report.AddFileArgument("--"+key, path, false)
}

// SetReportInjection points the report at the injection catalogue entry.
func SetReportInjection(report *Node, file string, event int64) {
	SetReportFile(report, "inj", file)
	report.AddOption("eventnum", strconv.FormatInt(event, 10))
}

// CoherenceParams configures a coherence test.
type CoherenceParams struct {
	Name       string
	Key        Key
	Executable string
	OutFile    string
	// Incoherent is the number of single-instrument merges expected.
	Incoherent int
}

// NewCoherenceTest builds a coherence-test node. Finalize fails until the
// coherent parent and every incoherent parent are attached.
func NewCoherenceTest(p CoherenceParams) *Node {
	n := newNode(p.Name, p.Key, p.Executable, Resources{Universe: "vanilla"})
	n.AddFlag("coherent-incoherent")
	n.AddFileArgument("--outfile", p.OutFile, true)
	n.setRole(RoleBayes, p.OutFile)

	n.ready = func(n *Node) error {
		incoherent := len(n.parents)
		if n.coherent != nil {
			incoherent--
		}
		if n.coherent == nil || incoherent != p.Incoherent {
			return invariant(ErrCodeNotReady, n.name, "coherence test needs 1 coherent and %d incoherent parents, has %d",
				p.Incoherent, len(n.parents))
		}
		return nil
	}
	n.complete = func(n *Node) {
		n.AddPositionalFile(n.coherent.Output(RoleEvidence), false)
		for _, inco := range n.parents {
			if inco != n.coherent {
				n.AddPositionalFile(inco.Output(RoleEvidence), false)
			}
		}
	}
	return n
}

// SetCoherentParent attaches the multi-instrument merge to a coherence test.
func SetCoherentParent(test, merge *Node) {
	if test.mutable("set coherent parent") {
		test.coherent = merge
		test.AddParent(merge)
	}
}

// AddIncoherentParent attaches a single-instrument merge to a coherence test.
func AddIncoherentParent(test, merge *Node) {
	test.AddParent(merge)
}

// PublishParams configures the alert-service upload.
type PublishParams struct {
	Name       string
	Key        Key
	Executable string
	GID        string
	// WebDir and BaseURL map the report's local path to its public URL.
	WebDir  string
	BaseURL string
}

// NewPublish builds the node that posts the report link to the alert
// service. The report is attached with AddParent.
func NewPublish(p PublishParams) *Node {
	n := newNode(p.Name, p.Key, p.Executable, Resources{Universe: "scheduler"})
	n.ready = func(n *Node) error {
		if countKind(n.parents, KindReport) != 1 {
			return invariant(ErrCodeNotReady, n.name, "publish needs exactly one report parent")
		}
		return nil
	}
	n.complete = func(n *Node) {
		var webpath string
		for _, parent := range n.parents {
			if parent.Kind() == KindReport {
				webpath = parent.Output(RoleWebDir)
			}
		}
		url := PublicURL(webpath, p.WebDir, p.BaseURL)
		n.AddPositional("upload")
		n.AddPositional(p.GID)
		n.AddPositional(webpath + "/posterior_samples.dat Parameter estimation finished. " + url + "/posplots.html")
	}
	return n
}

// PublicURL substitutes the local web directory prefix of path with the
// public base URL.
func PublicURL(path, webdir, baseurl string) string {
	if webdir == "" {
		return path
	}
	return strings.Replace(path, webdir, baseurl, 1)
}
