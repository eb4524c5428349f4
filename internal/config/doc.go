// Package config loads the pipeline configuration.
//
// Configuration is written in CUE. Load compiles the file, unifies it with
// the embedded #Config schema (schema.cue), checks that the result is
// concrete and decodes it. Semantic rules that span sections, such as "an
// MPI engine needs an mpi section" or "exactly one event source", are
// checked afterwards. Every failure is an *Error naming the dotted key and,
// when known, its source position.
//
// A minimal configuration:
//
//	analysis: {engine: "lalinferencenest", ifos: ["H1"]}
//	paths: {basedir: "/home/pe/run", webdir: "/home/pe/public_html/run"}
//	input: {"max-psd-length": 1024, padding: 16, "gps-time-file": "times.txt"}
//	datafind: {types: {H1: "H1_HOFT_C00"}, "segment-files": {H1: "H1.seg"}}
//	data: channels: {H1: "H1:GDS-CALIB_STRAIN"}
//	engine: {seglen: 8, nlive: 1024}
//	condor: {datafind: "/usr/bin/gw_data_find", lalinferencenest: "/usr/bin/lalinference_nest", mergescript: "/usr/bin/lalapps_nest2pos", resultspage: "/usr/bin/cbcBayesPostProc.py"}
package config
