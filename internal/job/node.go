package job

import (
	"slices"
)

// Arg is one command-line token group. An empty Flag marks a positional
// argument; an empty Value with a Flag marks a bare flag.
type Arg struct {
	Flag  string `json:"flag,omitempty"`
	Value string `json:"value,omitempty"`
}

// Tokens returns the argument as command-line tokens.
func (a Arg) Tokens() []string {
	switch {
	case a.Flag == "":
		return []string{a.Value}
	case a.Value == "":
		return []string{a.Flag}
	default:
		return []string{a.Flag, a.Value}
	}
}

// Node is one job in the graph. The zero value is not usable; nodes are
// built by the kind constructors (NewDataPrep, NewEngine, NewMerge, ...).
//
// A node moves through two states:
//   - Open: arguments, files and parents may be added. The builder wires
//     parents with the kind-specific helpers (AddMergeInput,
//     AddReportInput, SetCoherentParent) rather than AddParent alone,
//     since those also copy the parent's outputs into this node's inputs
//     and arguments.
//   - Finalized: the command line is complete and every mutator is
//     rejected with ErrCodeFinalized, recorded as a sticky error that
//     Finalize and graph.Verify return.
//
// Each kind installs a readiness check, run by Finalize, that rejects a
// node whose required parents are not all attached (ErrCodeNotReady). A
// node is never partially finalized.
//
// Nodes are not safe for concurrent use.
type Node struct {
	name       string
	key        Key
	executable string
	resources  Resources
	priority   int

	args    []Arg
	inputs  []string
	outputs []string
	parents []*Node
	roles   map[Role]string

	// coherent is the coherent parent of a coherence test.
	coherent *Node

	state State
	err   error

	// ready is checked by Finalize before complete runs.
	ready func(*Node) error
	// complete appends the arguments derived from accumulated state.
	complete func(*Node)
}

func newNode(name string, key Key, executable string, res Resources) *Node {
	return &Node{
		name:       name,
		key:        key,
		executable: executable,
		resources:  res,
		roles:      make(map[Role]string),
	}
}

// Name returns the node's unique name.
func (n *Node) Name() string { return n.name }

// Key returns the node's identity.
func (n *Node) Key() Key { return n.key }

// Kind returns the node's kind.
func (n *Node) Kind() Kind { return n.key.Kind }

// Executable returns the program the node runs.
func (n *Node) Executable() string { return n.executable }

// Resources returns the scheduling footprint.
func (n *Node) Resources() Resources { return n.resources }

// Priority returns the advisory scheduling priority.
func (n *Node) Priority() int { return n.priority }

// State returns the lifecycle state.
func (n *Node) State() State { return n.state }

// Err returns the first error recorded against the node.
func (n *Node) Err() error { return n.err }

// Args returns a copy of the argument list.
func (n *Node) Args() []Arg { return slices.Clone(n.args) }

// CommandLine returns the argument list flattened into tokens.
func (n *Node) CommandLine() []string {
	var out []string
	for _, a := range n.args {
		out = append(out, a.Tokens()...)
	}
	return out
}

// Inputs returns the declared input artifacts in insertion order.
func (n *Node) Inputs() []string { return slices.Clone(n.inputs) }

// Outputs returns the declared output artifacts in insertion order.
func (n *Node) Outputs() []string { return slices.Clone(n.outputs) }

// Parents returns the parent nodes in the order they were added.
func (n *Node) Parents() []*Node { return slices.Clone(n.parents) }

// Output returns the artifact recorded for role, or "" when absent.
func (n *Node) Output(role Role) string { return n.roles[role] }

// mutable records a FINALIZED error and reports false once the node is
// finalized.
func (n *Node) mutable(op string) bool {
	if n.state == StateOpen {
		return true
	}
	if n.err == nil {
		n.err = invariant(ErrCodeFinalized, n.name, "%s after finalize", op)
	}
	return false
}

func (n *Node) fail(err error) {
	if n.err == nil {
		n.err = err
	}
}

// SetPriority sets the scheduling priority.
func (n *Node) SetPriority(p int) {
	if n.mutable("set priority") {
		n.priority = p
	}
}

// AddParent records a dependency on p. Adding the same parent twice is a
// no-op; a node cannot be its own parent.
func (n *Node) AddParent(p *Node) {
	if !n.mutable("add parent") {
		return
	}
	if p == nil {
		n.fail(invariant(ErrCodeMissingParent, n.name, "nil parent"))
		return
	}
	if p == n {
		n.fail(invariant(ErrCodeCycle, n.name, "node cannot be its own parent"))
		return
	}
	if !slices.Contains(n.parents, p) {
		n.parents = append(n.parents, p)
	}
}

// AddInputArtifact declares path as consumed by the node.
func (n *Node) AddInputArtifact(path string) {
	if n.mutable("add input") && !slices.Contains(n.inputs, path) {
		n.inputs = append(n.inputs, path)
	}
}

// AddOutputArtifact declares path as produced by the node.
func (n *Node) AddOutputArtifact(path string) {
	if n.mutable("add output") && !slices.Contains(n.outputs, path) {
		n.outputs = append(n.outputs, path)
	}
}

// AddArgument sets flag to value. A flag that is already present keeps its
// position and takes the new value. flag carries its own dashes.
func (n *Node) AddArgument(flag, value string) {
	if !n.mutable("add argument " + flag) {
		return
	}
	for i := range n.args {
		if n.args[i].Flag == flag {
			n.args[i].Value = value
			return
		}
	}
	n.args = append(n.args, Arg{Flag: flag, Value: value})
}

// AddOption sets the long option "--key".
func (n *Node) AddOption(key, value string) {
	n.AddArgument("--"+key, value)
}

// AddFlag sets a long option without a value.
func (n *Node) AddFlag(key string) {
	n.AddArgument("--"+key, "")
}

// AddFileArgument sets flag to path and declares path as an input, or as
// an output when output is true.
func (n *Node) AddFileArgument(flag, path string, output bool) {
	n.AddArgument(flag, path)
	n.declare(path, output)
}

// AddPositional appends a positional argument.
func (n *Node) AddPositional(value string) {
	if n.mutable("add positional") {
		n.args = append(n.args, Arg{Value: value})
	}
}

// AddPositionalFile appends path as a positional argument and declares it.
func (n *Node) AddPositionalFile(path string, output bool) {
	n.AddPositional(path)
	n.declare(path, output)
}

// AttachOptions applies opts as long options after checking them against
// the kind's vocabulary. A rejected key is recorded as a BAD_OPTION error.
func (n *Node) AttachOptions(opts Options) error {
	for _, k := range opts.keys {
		if err := CheckOption(n.Kind(), k); err != nil {
			ie := invariant(ErrCodeBadOption, n.name, "%v", err)
			n.fail(ie)
			return ie
		}
	}
	for _, k := range opts.keys {
		n.AddOption(k, opts.vals[k])
	}
	return n.err
}

func (n *Node) declare(path string, output bool) {
	if output {
		n.AddOutputArtifact(path)
		return
	}
	n.AddInputArtifact(path)
}

func (n *Node) setRole(role Role, path string) {
	if n.mutable("set output role") {
		n.roles[role] = path
	}
}

// Finalize completes the node's command line and moves it to the
// Finalized state. It is idempotent: later calls return the recorded
// error, if any, without touching the arguments.
func (n *Node) Finalize() error {
	if n.state == StateFinalized || n.err != nil {
		return n.err
	}
	if n.ready != nil {
		if err := n.ready(n); err != nil {
			n.fail(err)
			return err
		}
	}
	if n.complete != nil {
		n.complete(n)
	}
	if n.err != nil {
		return n.err
	}
	n.state = StateFinalized
	return nil
}

func countKind(parents []*Node, kind Kind) int {
	c := 0
	for _, p := range parents {
		if p.Kind() == kind {
			c++
		}
	}
	return c
}
