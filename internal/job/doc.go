// Package job defines the batch-job nodes that make up a pipeline graph.
//
// A Node is a typed unit of work: a Kind, an executable, an ordered argument
// list, ordered input and output artifact sets and ordered parents. Nodes
// follow a two-state lifecycle. While Open they accumulate arguments and
// edges; Finalize runs the kind's readiness check and completion hook, after
// which the node is Finalized and any further mutation is recorded as a
// sticky FINALIZED error.
//
// Kind constructors (NewDataPrep, NewEngine, NewMerge, ...) build nodes with
// the command-line conventions of the LALInference tools. Engine variants
// are a closed enumeration (EngineKind) with a behaviour table describing
// parallelism and output-file conventions.
package job
