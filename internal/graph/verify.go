package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/WuShichao/lalsuite/internal/job"
)

// Verify checks every node for a recorded error, the finalized state and
// parents inserted before children, then searches the parent relation for
// cycles.
func (g *Graph) Verify() error {
	for i, n := range g.nodes {
		if err := n.Err(); err != nil {
			return err
		}
		if n.State() != job.StateFinalized {
			return &job.InvariantError{Code: job.ErrCodeNotReady, Node: n.Name(), Message: "node is not finalized"}
		}
		for _, p := range n.Parents() {
			pi, ok := g.index[p]
			if !ok {
				return &job.InvariantError{Code: job.ErrCodeMissingParent, Node: n.Name(), Message: "parent " + p.Name() + " is not in the graph"}
			}
			if pi >= i {
				return &job.InvariantError{Code: job.ErrCodeMissingParent, Node: n.Name(), Message: "parent " + p.Name() + " inserted after child"}
			}
		}
	}

	for _, scc := range tarjanSCC(g.edges()) {
		if len(scc) > 1 {
			return &job.InvariantError{
				Code:    job.ErrCodeCycle,
				Message: "dependency cycle: " + strings.Join(scc, " -> "),
			}
		}
	}
	return nil
}

// edges maps each node name to the names of its parents.
func (g *Graph) edges() map[string][]string {
	out := make(map[string][]string, len(g.nodes))
	for _, n := range g.nodes {
		ps := n.Parents()
		names := make([]string, 0, len(ps))
		for _, p := range ps {
			names = append(names, p.Name())
		}
		out[n.Name()] = names
	}
	return out
}

// tarjanSCC returns the strongly connected components of a name graph.
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// Root of a component: pop it.
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, v := range sortedNames(graph) {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

func sortedNames(graph map[string][]string) []string {
	names := make([]string, 0, len(graph))
	for v := range graph {
		names = append(names, v)
	}
	slices.Sort(names)
	return names
}

// Levels groups nodes into waves that can run in parallel: every node's
// parents are in earlier waves. Within a wave nodes keep insertion order.
func (g *Graph) Levels() ([][]*job.Node, error) {
	inDeg := make(map[*job.Node]int, len(g.nodes))
	children := make(map[*job.Node][]*job.Node, len(g.nodes))
	for _, n := range g.nodes {
		for _, p := range n.Parents() {
			inDeg[n]++
			children[p] = append(children[p], n)
		}
	}

	var queue []*job.Node
	for _, n := range g.nodes {
		if inDeg[n] == 0 {
			queue = append(queue, n)
		}
	}

	var levels [][]*job.Node
	processed := 0
	for len(queue) > 0 {
		var next []*job.Node
		for _, n := range queue {
			processed++
			for _, c := range children[n] {
				inDeg[c]--
				if inDeg[c] == 0 {
					next = append(next, c)
				}
			}
		}
		levels = append(levels, queue)
		queue = g.inOrder(next)
	}

	if processed != len(g.nodes) {
		return nil, fmt.Errorf("cycle detected: processed %d of %d nodes", processed, len(g.nodes))
	}
	return levels, nil
}

func (g *Graph) inOrder(ns []*job.Node) []*job.Node {
	slices.SortFunc(ns, func(a, b *job.Node) int {
		return g.index[a] - g.index[b]
	})
	return ns
}
