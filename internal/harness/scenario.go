package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is one pipeline build with expectations.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Config is an inline CUE configuration. ConfigFile names one instead,
	// relative to the scenario file.
	Config     string `yaml:"config,omitempty"`
	ConfigFile string `yaml:"config_file,omitempty"`

	Events []EventSpec `yaml:"events"`

	// Segments maps instrument to [start, end] science segments.
	Segments map[string][][2]float64 `yaml:"segments"`

	// RunID fixes the run id, "test-run" when empty.
	RunID string `yaml:"run_id,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// EventSpec is one event of a scenario. Events take their index as id.
type EventSpec struct {
	// Time is the trigger time; nil builds an event without one.
	Time *float64 `yaml:"time"`
	// IFOs restricts the event's instruments.
	IFOs []string `yaml:"ifos,omitempty"`
	// Slides holds per-instrument time shifts.
	Slides map[string]float64 `yaml:"slides,omitempty"`
}

// Assertion checks one property of the built graph.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind is the node kind (node_count, ancestors).
	Kind string `yaml:"kind,omitempty"`
	// Count is the expected number of nodes (node_count, ancestors).
	Count int `yaml:"count"`

	// Node names the subject node (parents, children, argument, ancestors).
	Node string `yaml:"node,omitempty"`
	// Parents are the expected parent names in order (parents).
	Parents []string `yaml:"parents,omitempty"`
	// Children are the expected dependent names in insertion order
	// (children). An empty list asserts a leaf.
	Children []string `yaml:"children,omitempty"`

	// Flag and Value give the expected argument (argument). An empty Value
	// only requires the flag.
	Flag  string `yaml:"flag,omitempty"`
	Value string `yaml:"value,omitempty"`

	// Events are the expected event ids (built, skipped).
	Events []int64 `yaml:"events,omitempty"`
}

// Assertion types.
const (
	AssertNodeCount = "node_count"
	AssertBuilt     = "built"
	AssertSkipped   = "skipped"
	AssertParents   = "parents"
	AssertChildren  = "children"
	AssertArgument  = "argument"
	AssertAncestors = "ancestors"
)

var assertionTypes = []string{AssertNodeCount, AssertBuilt, AssertSkipped, AssertParents, AssertChildren, AssertArgument, AssertAncestors}

// LoadScenario reads a scenario file. Unknown fields are rejected and a
// relative config_file is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.ConfigFile != "" && !filepath.IsAbs(s.ConfigFile) {
		s.ConfigFile = filepath.Join(filepath.Dir(path), s.ConfigFile)
	}
	if s.ConfigFile != "" {
		if _, err := os.Stat(s.ConfigFile); err != nil {
			return nil, fmt.Errorf("invalid scenario: config file: %w", err)
		}
	}
	return s, nil
}

// ParseScenario decodes and checks an in-memory scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Config == "") == (s.ConfigFile == "") {
		return fmt.Errorf("exactly one of config and config_file is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	for ifo, segs := range s.Segments {
		for i, seg := range segs {
			if seg[1] <= seg[0] {
				return fmt.Errorf("segments.%s[%d]: end %g is not after start %g", ifo, i, seg[1], seg[0])
			}
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertNodeCount:
		if a.Kind == "" {
			return fmt.Errorf("node_count needs a kind")
		}
	case AssertAncestors:
		if a.Node == "" || a.Kind == "" {
			return fmt.Errorf("ancestors needs a node and a kind")
		}
	case AssertParents, AssertChildren:
		if a.Node == "" {
			return fmt.Errorf("%s needs a node", a.Type)
		}
	case AssertArgument:
		if a.Node == "" || a.Flag == "" {
			return fmt.Errorf("argument needs a node and a flag")
		}
	case AssertBuilt, AssertSkipped:
	default:
		return fmt.Errorf("unknown assertion type %q (want one of %v)", a.Type, assertionTypes)
	}
	return nil
}
