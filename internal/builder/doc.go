// Package builder turns events into the job graph.
//
// Build walks the events in order. For each one it resolves the science
// segments, creates the nodes the configuration calls for, wires their
// dependencies and inserts them into the graph parents first:
//
//	DataPrep -> [ROQConditioning -> WeightCompute] -> Engine x Npar
//	         -> Merge -> [coherence branch -> CoherenceTest] -> Report -> [Publish]
//
// An event with no contributing instrument is skipped and reported in the
// Summary. Invariant violations abort the build.
package builder
