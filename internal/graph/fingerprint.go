package graph

import (
	"github.com/WuShichao/lalsuite/internal/canonical"
	"github.com/WuShichao/lalsuite/internal/job"
)

// Fingerprint returns a content hash of the graph: node names, kinds,
// executables, command lines, artifacts, parents and priorities in
// insertion order. Run metadata other than the name is excluded, so two
// builds of the same configuration with the same seeds agree.
func (g *Graph) Fingerprint() (string, error) {
	nodes := make([]any, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, nodeDoc(n))
	}
	return canonical.Hash(canonical.DomainGraph, map[string]any{
		"name":  g.Meta.Name,
		"nodes": nodes,
	})
}

func nodeDoc(n *job.Node) map[string]any {
	res := n.Resources()
	return map[string]any{
		"name":       n.Name(),
		"kind":       n.Kind().String(),
		"executable": n.Executable(),
		"args":       n.CommandLine(),
		"inputs":     n.Inputs(),
		"outputs":    n.Outputs(),
		"parents":    parentNames(n),
		"priority":   n.Priority(),
		"universe":   res.Universe,
		"cpus":       res.CPUs,
		"memory_mb":  res.MemoryMB,
	}
}

func parentNames(n *job.Node) []string {
	ps := n.Parents()
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name())
	}
	return out
}
