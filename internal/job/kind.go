package job

import (
	"fmt"
	"strconv"
)

// Kind identifies what a node does.
type Kind int

const (
	KindDataPrep Kind = iota + 1
	KindROQConditioning
	KindWeightCompute
	KindEngine
	KindMerge
	KindReport
	KindCoherenceTest
	KindPublish
)

// Kinds lists every kind in pipeline order.
var Kinds = []Kind{
	KindDataPrep,
	KindROQConditioning,
	KindWeightCompute,
	KindEngine,
	KindMerge,
	KindReport,
	KindCoherenceTest,
	KindPublish,
}

var kindNames = map[Kind]string{
	KindDataPrep:        "datafind",
	KindROQConditioning: "prelalinference",
	KindWeightCompute:   "romweights",
	KindEngine:          "engine",
	KindMerge:           "merge",
	KindReport:          "resultspage",
	KindCoherenceTest:   "coherencetest",
	KindPublish:         "gracedb",
}

// String returns the short tag used in node names and submit files.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("unknown kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// State is a node's lifecycle state.
type State int

const (
	StateOpen State = iota
	StateFinalized
)

func (s State) String() string {
	if s == StateFinalized {
		return "finalized"
	}
	return "open"
}

// NoEvent is the Key.Event of nodes shared between events.
const NoEvent int64 = -1

// Key identifies a node within a graph. Two nodes with the same key are a
// duplicate-creation defect.
type Key struct {
	Kind    Kind   `json:"kind"`
	Event   int64  `json:"event"`
	Combo   string `json:"combo,omitempty"`
	Replica int    `json:"replica"`
	Span    string `json:"span,omitempty"`
}

func (k Key) String() string {
	s := fmt.Sprintf("%s/%d/%s/%d", k.Kind, k.Event, k.Combo, k.Replica)
	if k.Span != "" {
		s += "/" + k.Span
	}
	return s
}

// Role names an output artifact that downstream nodes consume.
type Role string

const (
	RolePosterior Role = "posterior"
	RoleEvidence  Role = "evidence"
	RoleHeader    Role = "header"
	RoleSNR       Role = "snr"
	RoleCache     Role = "cache"
	RoleWeights   Role = "weights"
	RoleBayes     Role = "bayes"
	RoleWebDir    Role = "webdir"
)

// Resources describes the scheduling footprint of a node.
type Resources struct {
	Universe string `json:"universe"`
	CPUs     int    `json:"cpus,omitempty"`
	MemoryMB int    `json:"memory_mb,omitempty"`
}

const (
	RoleFreqData Role = "freqdata"
	RolePSD      Role = "psd"
)

// ForIFO qualifies a role with an instrument, for kinds that emit one
// artifact per instrument.
func (r Role) ForIFO(ifo string) Role {
	return r + Role(":"+ifo)
}
