package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	files, err := ScenarioFiles(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		t.Run(s.Name, func(t *testing.T) {
			r, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, r.Pass, "errors: %v", r.Errors)
		})
	}
}

const minimal = `
name: minimal
description: one event
config: |
  analysis: {ifos: ["H1"], engine: "lalinferencenest", nparallel: 1}
  paths: {basedir: "/run", webdir: "/www"}
  input: {"max-psd-length": 1024, padding: 16, "gps-time-file": "t.txt"}
  datafind: {types: {H1: "H1_HOFT"}, "segment-files": {H1: "H1.seg"}}
  data: channels: {H1: "H1:STRAIN"}
  engine: {seglen: 8, nlive: 500}
  condor: {datafind: "/bin/df", lalinferencenest: "/bin/nest", mergescript: "/bin/merge", resultspage: "/bin/pp"}
events:
  - time: 1000
segments:
  H1: [[0, 4000]]
`

func TestRunReportsFailedAssertions(t *testing.T) {
	s, err := ParseScenario([]byte(minimal + `
assertions:
  - type: node_count
    kind: engine
    count: 3
  - type: parents
    node: merge-3
    parents: [engine-2]
  - type: argument
    node: engine-2
    flag: --nlive
    value: "1000"
  - type: argument
    node: engine-9
    flag: --nlive
  - type: children
    node: engine-2
    children: [resultspage-4]
`))
	require.NoError(t, err)

	r, err := Run(s)
	require.NoError(t, err)
	assert.False(t, r.Pass)
	require.Len(t, r.Errors, 4)
	assert.Contains(t, r.Errors[0], "3 engine nodes")
	assert.Contains(t, r.Errors[1], `engine-2 --nlive "1000"`)
	assert.Contains(t, r.Errors[2], "node engine-9")
	assert.Contains(t, r.Errors[3], "[merge-3]")
}

func TestRunPasses(t *testing.T) {
	s, err := ParseScenario([]byte(minimal + `
run_id: fixed
assertions:
  - type: built
    events: [0]
  - type: skipped
  - type: argument
    node: engine-2
    flag: --nlive
    value: "500"
  - type: children
    node: datafind-1
    children: [engine-2]
  - type: children
    node: resultspage-4
`))
	require.NoError(t, err)

	r, err := Run(s)
	require.NoError(t, err)
	assert.True(t, r.Pass, "errors: %v", r.Errors)
	assert.Equal(t, "fixed", r.Graph.Meta.RunID)
	assert.Equal(t, 4, r.Graph.Len())
}

func TestRunInvalidConfig(t *testing.T) {
	s, err := ParseScenario([]byte(strings.Replace(minimal, `nparallel: 1`, `nparallel: 0`, 1)))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario minimal")
}

func TestParseScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown field", minimal + "asertions: []\n", "field asertions not found"},
		{"no name", strings.Replace(minimal, "name: minimal", "", 1), "name is required"},
		{"no events", strings.Replace(minimal, "  - time: 1000\n", "", 1), "events list is required"},
		{"bad segment", strings.Replace(minimal, "[[0, 4000]]", "[[4000, 0]]", 1), "segments.H1[0]"},
		{"both configs", minimal + "config_file: x.cue\n", "exactly one of config and config_file"},
		{"assertion type", minimal + "assertions:\n  - type: trace_order\n", `unknown assertion type "trace_order"`},
		{"assertion fields", minimal + "assertions:\n  - type: parents\n", "parents needs a node"},
		{"children fields", minimal + "assertions:\n  - type: children\n", "children needs a node"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenarioMissingConfigFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "scenarios", "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestSnapshot(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)
	r, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, `scenario: minimal
built: 0
datafind-1 datafind
engine-2 engine <- datafind-1
merge-3 merge <- engine-2
resultspage-4 resultspage <- merge-3
`, string(Snapshot("minimal", r)))
}

func TestWriteAndMatchGolden(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)
	r, err := Run(s)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "golden")
	_, found, err := MatchGolden(dir, s, r)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, WriteGolden(dir, s, r))
	data, err := os.ReadFile(filepath.Join(dir, "minimal.golden"))
	require.NoError(t, err)
	assert.Equal(t, Snapshot("minimal", r), data)

	match, found, err := MatchGolden(dir, s, r)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, match)

	require.NoError(t, os.WriteFile(GoldenFile(dir, "minimal"), []byte("scenario: other\n"), 0o644))
	match, _, err = MatchGolden(dir, s, r)
	require.NoError(t, err)
	assert.False(t, match)
}
