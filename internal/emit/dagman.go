package emit

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/WuShichao/lalsuite/internal/graph"
	"github.com/WuShichao/lalsuite/internal/job"
)

// SubmitOptions configures the per-kind submit files.
type SubmitOptions struct {
	// Dir holds the submit files, <Dir>/<kind>.sub.
	Dir string
	// LogDir receives each job's stdout and stderr.
	LogDir string
	// Queue, when set, restricts jobs to machines advertising it.
	Queue string
}

// SubmitPath returns the submit file of kind.
func (o SubmitOptions) SubmitPath(kind job.Kind) string {
	return filepath.Join(o.Dir, kind.String()+".sub")
}

// WriteDAGMan writes g in DAGMan syntax. Nodes appear in insertion order,
// followed by one PARENT line per node with parents.
func WriteDAGMan(w io.Writer, g *graph.Graph, opts SubmitOptions) error {
	bw := bufio.NewWriter(w)
	for _, n := range g.Nodes() {
		fmt.Fprintf(bw, "JOB %s %s\n", n.Name(), opts.SubmitPath(n.Kind()))
		fmt.Fprintf(bw, "VARS %s macroarguments=\"%s\"\n", n.Name(), escapeVar(MacroArguments(n)))
		if p := n.Priority(); p != 0 {
			fmt.Fprintf(bw, "PRIORITY %s %d\n", n.Name(), p)
		}
	}
	for _, n := range g.Nodes() {
		parents := n.Parents()
		if len(parents) == 0 {
			continue
		}
		names := make([]string, len(parents))
		for i, p := range parents {
			names[i] = p.Name()
		}
		fmt.Fprintf(bw, "PARENT %s CHILD %s\n", strings.Join(names, " "), n.Name())
	}
	return bw.Flush()
}

// MacroArguments renders the node's command line in the scheduler's
// argument syntax: tokens containing spaces or quotes are single-quoted
// with embedded single quotes doubled.
func MacroArguments(n *job.Node) string {
	tokens := n.CommandLine()
	for i, t := range tokens {
		if t == "" || strings.ContainsAny(t, " \t'") {
			tokens[i] = "'" + strings.ReplaceAll(t, "'", "''") + "'"
		}
	}
	return strings.Join(tokens, " ")
}

func escapeVar(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// SubmitKinds returns the first node of every kind present in g, in
// pipeline order. Nodes of one kind share a submit file.
func SubmitKinds(g *graph.Graph) []*job.Node {
	first := make(map[job.Kind]*job.Node)
	for _, n := range g.Nodes() {
		if _, ok := first[n.Kind()]; !ok {
			first[n.Kind()] = n
		}
	}
	var out []*job.Node
	for _, k := range job.Kinds {
		if n, ok := first[k]; ok {
			out = append(out, n)
		}
	}
	return out
}

// WriteSubmit writes the submit file shared by nodes of n's kind.
func WriteSubmit(w io.Writer, g *graph.Graph, n *job.Node, opts SubmitOptions) error {
	res := n.Resources()
	kind := n.Kind().String()
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "universe = %s\n", res.Universe)
	fmt.Fprintf(bw, "executable = %s\n", n.Executable())
	fmt.Fprintln(bw, `arguments = "$(macroarguments)"`)
	if res.CPUs > 0 {
		fmt.Fprintf(bw, "request_cpus = %d\n", res.CPUs)
	}
	if res.MemoryMB > 0 {
		fmt.Fprintf(bw, "request_memory = %d\n", res.MemoryMB)
	}
	if opts.Queue != "" {
		fmt.Fprintf(bw, "+%s = True\n", opts.Queue)
		fmt.Fprintf(bw, "requirements = (TARGET.%s =?= True)\n", opts.Queue)
	}
	fmt.Fprintf(bw, "log = %s\n", g.Meta.LogFile)
	fmt.Fprintf(bw, "output = %s\n", filepath.Join(opts.LogDir, kind+"-$(cluster)-$(process).out"))
	fmt.Fprintf(bw, "error = %s\n", filepath.Join(opts.LogDir, kind+"-$(cluster)-$(process).err"))
	fmt.Fprintln(bw, "getenv = True")
	fmt.Fprintln(bw, "notification = never")
	fmt.Fprintln(bw, "queue 1")
	return bw.Flush()
}
