package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/WuShichao/lalsuite/internal/graph"
	"github.com/WuShichao/lalsuite/internal/job"
)

// AssertionError is a failed assertion with the graph's node list for
// context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Nodes    []string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Nodes) > 0 {
		fmt.Fprintf(&buf, "\nNodes:\n")
		for _, n := range e.Nodes {
			fmt.Fprintf(&buf, "  %s\n", n)
		}
	}
	return buf.String()
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertNodeCount:
		return assertNodeCount(r.Graph, a)
	case AssertBuilt:
		return assertEvents(a.Type, a.Events, r.Summary.Built)
	case AssertSkipped:
		ids := make([]int64, len(r.Summary.Skipped))
		for i, s := range r.Summary.Skipped {
			ids[i] = s.EventID
		}
		return assertEvents(a.Type, a.Events, ids)
	case AssertParents:
		return assertParents(r.Graph, a)
	case AssertChildren:
		return assertChildren(r.Graph, a)
	case AssertArgument:
		return assertArgument(r.Graph, a)
	case AssertAncestors:
		return assertAncestors(r.Graph, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func nodeNames(g *graph.Graph) []string {
	out := make([]string, 0, g.Len())
	for _, n := range g.Nodes() {
		out = append(out, n.Name())
	}
	return out
}

func findNode(g *graph.Graph, name string) (*job.Node, error) {
	for _, n := range g.Nodes() {
		if n.Name() == name {
			return n, nil
		}
	}
	return nil, &AssertionError{
		Type:     "node",
		Expected: "node " + name,
		Actual:   "not in graph",
		Nodes:    nodeNames(g),
	}
}

func parseKind(s string) (job.Kind, error) {
	for _, k := range job.Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown node kind %q", s)
}

func assertNodeCount(g *graph.Graph, a Assertion) error {
	kind, err := parseKind(a.Kind)
	if err != nil {
		return err
	}
	if got := g.Count(kind); got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s nodes", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d", got),
			Nodes:    nodeNames(g),
		}
	}
	return nil
}

func assertEvents(typ string, want, got []int64) error {
	if want == nil {
		want = []int64{}
	}
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("events %v", want),
			Actual:   fmt.Sprintf("events %v", got),
		}
	}
	return nil
}

func assertParents(g *graph.Graph, a Assertion) error {
	n, err := findNode(g, a.Node)
	if err != nil {
		return err
	}
	var got []string
	for _, p := range n.Parents() {
		got = append(got, p.Name())
	}
	if !slices.Equal(a.Parents, got) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s parents %v", a.Node, a.Parents),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertChildren(g *graph.Graph, a Assertion) error {
	n, err := findNode(g, a.Node)
	if err != nil {
		return err
	}
	got := names(g.Children(n))
	want := a.Children
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s children %v", a.Node, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func assertArgument(g *graph.Graph, a Assertion) error {
	n, err := findNode(g, a.Node)
	if err != nil {
		return err
	}
	for _, arg := range n.Args() {
		if arg.Flag != a.Flag {
			continue
		}
		if a.Value == "" || arg.Value == a.Value {
			return nil
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s %s %q", a.Node, a.Flag, a.Value),
			Actual:   fmt.Sprintf("%q", arg.Value),
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s has %s", a.Node, a.Flag),
		Actual:   "flag not set: " + strings.Join(n.CommandLine(), " "),
	}
}

func assertAncestors(g *graph.Graph, a Assertion) error {
	kind, err := parseKind(a.Kind)
	if err != nil {
		return err
	}
	n, err := findNode(g, a.Node)
	if err != nil {
		return err
	}
	got := 0
	for _, anc := range g.Ancestors(n) {
		if anc.Kind() == kind {
			got++
		}
	}
	if got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s ancestors of %s", a.Count, a.Kind, a.Node),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}
