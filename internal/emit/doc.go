// Package emit serializes a verified graph for the external executor.
//
// The DAGMan form is what a scheduler runs: one JOB and VARS line per node,
// PARENT/CHILD edges, and one submit file per node kind whose arguments
// come from the node's macroarguments. The JSON and YAML forms carry the
// same nodes as a document for inspection and tooling.
package emit
