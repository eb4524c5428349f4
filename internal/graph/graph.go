package graph

import (
	"github.com/WuShichao/lalsuite/internal/job"
)

// Metadata describes the run the graph belongs to.
type Metadata struct {
	// Name is the DAG file stem, lalinference_<start>-<end>.
	Name    string  `json:"name" yaml:"name"`
	RunID   string  `json:"run_id" yaml:"run_id"`
	Start   float64 `json:"start" yaml:"start"`
	End     float64 `json:"end" yaml:"end"`
	BaseDir string  `json:"basedir" yaml:"basedir"`
	LogFile string  `json:"log_file" yaml:"log_file"`
}

// Graph is the ordered node set of one run. It is not safe for concurrent
// mutation.
type Graph struct {
	Meta Metadata

	nodes  []*job.Node
	byKey  map[job.Key]*job.Node
	byName map[string]*job.Node
	index  map[*job.Node]int
}

// New returns an empty graph.
func New(meta Metadata) *Graph {
	return &Graph{
		Meta:   meta,
		byKey:  make(map[job.Key]*job.Node),
		byName: make(map[string]*job.Node),
		index:  make(map[*job.Node]int),
	}
}

// Insert finalizes n and appends it. It fails with DUPLICATE_NODE when the
// key or name is taken, MISSING_PARENT when a parent has not been inserted,
// or the node's own finalize error.
func (g *Graph) Insert(n *job.Node) error {
	if n == nil {
		return &job.InvariantError{Code: job.ErrCodeMissingParent, Message: "insert of nil node"}
	}
	if _, ok := g.index[n]; ok {
		return &job.InvariantError{Code: job.ErrCodeDuplicateNode, Node: n.Name(), Message: "node inserted twice"}
	}
	if prev, ok := g.byKey[n.Key()]; ok {
		return &job.InvariantError{
			Code:    job.ErrCodeDuplicateNode,
			Node:    n.Name(),
			Message: "key " + n.Key().String() + " already used by " + prev.Name(),
		}
	}
	if _, ok := g.byName[n.Name()]; ok {
		return &job.InvariantError{Code: job.ErrCodeDuplicateNode, Node: n.Name(), Message: "name already used"}
	}
	for _, p := range n.Parents() {
		if _, ok := g.index[p]; !ok {
			return &job.InvariantError{
				Code:    job.ErrCodeMissingParent,
				Node:    n.Name(),
				Message: "parent " + p.Name() + " is not in the graph",
			}
		}
	}
	if err := n.Finalize(); err != nil {
		return err
	}

	g.index[n] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.byKey[n.Key()] = n
	g.byName[n.Name()] = n
	return nil
}

// Lookup returns the node with key k.
func (g *Graph) Lookup(k job.Key) (*job.Node, bool) {
	n, ok := g.byKey[k]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*job.Node {
	out := make([]*job.Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Count returns the number of nodes of kind.
func (g *Graph) Count(kind job.Kind) int {
	c := 0
	for _, n := range g.nodes {
		if n.Kind() == kind {
			c++
		}
	}
	return c
}

// CountByKind returns node counts for every kind present.
func (g *Graph) CountByKind() map[job.Kind]int {
	out := make(map[job.Kind]int)
	for _, n := range g.nodes {
		out[n.Kind()]++
	}
	return out
}

// Children returns the nodes that list n as a parent, in insertion order.
// A node that is not in the graph has no children.
func (g *Graph) Children(n *job.Node) []*job.Node {
	i, ok := g.index[n]
	if !ok {
		return nil
	}
	var out []*job.Node
	for _, c := range g.nodes[i+1:] {
		for _, p := range c.Parents() {
			if p == n {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Ancestors returns every node n transitively depends on, in insertion
// order.
func (g *Graph) Ancestors(n *job.Node) []*job.Node {
	seen := make(map[*job.Node]bool)
	var walk func(*job.Node)
	walk = func(x *job.Node) {
		for _, p := range x.Parents() {
			if !seen[p] {
				seen[p] = true
				walk(p)
			}
		}
	}
	walk(n)

	var out []*job.Node
	for _, x := range g.nodes {
		if seen[x] {
			out = append(out, x)
		}
	}
	return out
}
