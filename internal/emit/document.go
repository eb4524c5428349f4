package emit

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/WuShichao/lalsuite/internal/graph"
	"github.com/WuShichao/lalsuite/internal/job"
)

// Document is the graph as plain data.
type Document struct {
	Meta        graph.Metadata `json:"meta" yaml:"meta"`
	Fingerprint string         `json:"fingerprint" yaml:"fingerprint"`
	Nodes       []NodeDoc      `json:"nodes" yaml:"nodes"`
}

// NodeDoc is one node of a Document.
type NodeDoc struct {
	Name       string   `json:"name" yaml:"name"`
	Kind       string   `json:"kind" yaml:"kind"`
	Key        string   `json:"key" yaml:"key"`
	Executable string   `json:"executable" yaml:"executable"`
	Args       []string `json:"args" yaml:"args"`
	Inputs     []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Parents    []string `json:"parents,omitempty" yaml:"parents,omitempty"`
	Priority   int      `json:"priority,omitempty" yaml:"priority,omitempty"`
	Universe   string   `json:"universe" yaml:"universe"`
	CPUs       int      `json:"cpus,omitempty" yaml:"cpus,omitempty"`
	MemoryMB   int      `json:"memory_mb,omitempty" yaml:"memory_mb,omitempty"`
}

// NewDocument converts g.
func NewDocument(g *graph.Graph) (*Document, error) {
	fp, err := g.Fingerprint()
	if err != nil {
		return nil, err
	}
	doc := &Document{Meta: g.Meta, Fingerprint: fp, Nodes: make([]NodeDoc, 0, g.Len())}
	for _, n := range g.Nodes() {
		doc.Nodes = append(doc.Nodes, nodeDoc(n))
	}
	return doc, nil
}

func nodeDoc(n *job.Node) NodeDoc {
	res := n.Resources()
	d := NodeDoc{
		Name:       n.Name(),
		Kind:       n.Kind().String(),
		Key:        n.Key().String(),
		Executable: n.Executable(),
		Args:       n.CommandLine(),
		Inputs:     n.Inputs(),
		Outputs:    n.Outputs(),
		Priority:   n.Priority(),
		Universe:   res.Universe,
		CPUs:       res.CPUs,
		MemoryMB:   res.MemoryMB,
	}
	for _, p := range n.Parents() {
		d.Parents = append(d.Parents, p.Name())
	}
	if d.Args == nil {
		d.Args = []string{}
	}
	return d
}

// WriteJSON writes g as an indented JSON Document.
func WriteJSON(w io.Writer, g *graph.Graph) error {
	doc, err := NewDocument(g)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return nil
}

// WriteYAML writes g as a YAML Document.
func WriteYAML(w io.Writer, g *graph.Graph) error {
	doc, err := NewDocument(g)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return enc.Close()
}
