// Package harness runs pipeline scenarios.
//
// A scenario is a YAML file holding a configuration, the events to analyse
// and each instrument's science segments. Run builds the graph with fixed
// seeds and run id, then evaluates the scenario's assertions against it.
// RunWithGolden additionally compares a structural snapshot of the graph
// with testdata/golden/<name>.golden. Outside tests, WriteGolden and
// MatchGolden do the same against any directory; the test command of
// lalinference-pipe uses them.
//
// Scenario files are decoded strictly: unknown keys are errors.
//
//	name: two-events
//	description: one chain per event
//	config: |
//	  analysis: {ifos: ["H1"], engine: "lalinferencenest", nparallel: 2}
//	  ...
//	events:
//	  - time: 1000
//	segments:
//	  H1: [[0, 4000]]
//	assertions:
//	  - type: node_count
//	    kind: engine
//	    count: 2
package harness
