// Package graph holds the assembled pipeline: an insertion-ordered set of
// finalized job nodes plus run metadata.
//
// Insert enforces the construction contract. A node is finalized on
// insertion, its key must be new, and every parent must already be in the
// graph, so insertion order is always a topological order. Verify re-checks
// the whole graph, including a strongly-connected-component search for
// cycles, before the graph is handed to a serializer.
package graph
