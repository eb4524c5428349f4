package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WuShichao/lalsuite/internal/config"
)

// workspace holds a run directory with a time file and science segments.
type workspace struct {
	dir string
}

func newWorkspace(t *testing.T, times string, segs string) *workspace {
	t.Helper()
	w := &workspace{dir: t.TempDir()}
	w.write(t, "times.txt", times)
	w.write(t, "H1.seg", segs)
	return w
}

func (w *workspace) path(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *workspace) write(t *testing.T, name, content string) string {
	t.Helper()
	p := w.path(name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// config writes a single-instrument nest configuration. Extra lines are
// appended verbatim; input lines are added to the input section.
func (w *workspace) config(t *testing.T, input string, extra ...string) string {
	t.Helper()
	src := fmt.Sprintf(`
analysis: {ifos: ["H1"], engine: "lalinferencenest", nparallel: 2}
paths: {basedir: %q, webdir: %q}
input: {
	"max-psd-length": 1024
	padding: 16
	%s
}
datafind: {
	types: {H1: "H1_HOFT"}
	"segment-files": {H1: %q}
}
data: channels: {H1: "H1:STRAIN"}
engine: {seglen: 8, nlive: 1000}
condor: {
	datafind: "/bin/datafind"
	lalinferencenest: "/bin/nest"
	mergescript: "/bin/merge"
	resultspage: "/bin/pp"
}
`, w.path("run"), w.path("www"), input, w.path("H1.seg"))
	for _, e := range extra {
		src += "\n" + e
	}
	return w.write(t, "run.cue", src)
}

func (w *workspace) timeFileInput() string {
	return fmt.Sprintf(`"gps-time-file": %q`, w.path("times.txt"))
}

// execute runs the root command and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, out string) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

func TestValidate(t *testing.T) {
	w := newWorkspace(t, "1000\n", "0 4000\n")
	cfg := w.config(t, w.timeFileInput())

	out, err := execute(t, "validate", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid")
	assert.Contains(t, out, "lalinferencenest")
	assert.Contains(t, out, "gps-time-file")
}

func TestValidateReportsEveryIssue(t *testing.T) {
	w := newWorkspace(t, "1000\n", "0 4000\n")
	cfg := w.config(t, `"events": "1:x"`, `analysis: "upload-to-gracedb": true`)

	out, err := execute(t, "--format", "json", "validate", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	r := decode(t, out)
	assert.Equal(t, "error", r.Status)
	require.NotNil(t, r.Error)
	assert.Equal(t, ErrCodeConfig, r.Error.Code)

	var issues []ConfigIssue
	require.NoError(t, json.Unmarshal(r.Error.Details, &issues))
	var fields []string
	for _, i := range issues {
		fields = append(fields, i.Field)
	}
	assert.Contains(t, fields, "input")
	assert.Contains(t, fields, "input.events")
	assert.Contains(t, fields, "paths.baseurl")
}

func TestValidateMissingFile(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E101]")
}

func TestEvents(t *testing.T) {
	w := newWorkspace(t, "1000\n2000\n2000\n3000\n", "0 4000\n")
	cfg := w.config(t, w.timeFileInput()+"\n\tevents: \"0,2\"")

	out, err := execute(t, "--format", "json", "events", cfg)
	require.NoError(t, err)

	r := decode(t, out)
	var list struct {
		Events []struct {
			ID       int64   `json:"id"`
			TrigTime float64 `json:"trig_time"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &list))
	require.Len(t, list.Events, 2)
	assert.Equal(t, int64(0), list.Events[0].ID)
	assert.Equal(t, 1000.0, list.Events[0].TrigTime)
	assert.Equal(t, int64(2), list.Events[1].ID)
	assert.Equal(t, 3000.0, list.Events[1].TrigTime)
}

func TestEventsText(t *testing.T) {
	w := newWorkspace(t, "1000.5\n", "0 4000\n")
	cfg := w.config(t, w.timeFileInput())

	out, err := execute(t, "events", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "1 events")
	assert.Contains(t, out, "1000.5")
}

func TestBuildDAGMan(t *testing.T) {
	w := newWorkspace(t, "1000\n2000\n3000\n", "0 4000\n")
	cfg := w.config(t, w.timeFileInput())

	out, err := execute(t, "--format", "json", "build", "--mkdirs", cfg)
	require.NoError(t, err, out)

	var res BuildResult
	require.NoError(t, json.Unmarshal(decode(t, out).Data, &res))
	assert.Equal(t, "lalinference_722-3018", res.Name)
	assert.Equal(t, 15, res.Nodes)
	assert.Equal(t, 4, res.Waves)
	assert.Equal(t, map[string]int{"datafind": 3, "engine": 6, "merge": 3, "resultspage": 3}, res.ByKind)
	assert.Equal(t, []int64{0, 1, 2}, res.Built)
	assert.Empty(t, res.Skipped)
	assert.NotEmpty(t, res.Fingerprint)

	dag := filepath.Join(w.path("run"), "lalinference_722-3018.dag")
	assert.Equal(t, []string{
		dag,
		filepath.Join(w.path("run"), "datafind.sub"),
		filepath.Join(w.path("run"), "engine.sub"),
		filepath.Join(w.path("run"), "merge.sub"),
		filepath.Join(w.path("run"), "resultspage.sub"),
	}, res.Files)

	data, err := os.ReadFile(dag)
	require.NoError(t, err)
	assert.Equal(t, 15, strings.Count(string(data), "JOB "))
	assert.DirExists(t, filepath.Join(w.path("run"), "log"))
	assert.DirExists(t, filepath.Join(w.path("run"), "posterior_samples"))
}

func TestBuildJSONGraph(t *testing.T) {
	w := newWorkspace(t, "1000\n", "0 4000\n")
	cfg := w.config(t, w.timeFileInput())
	out := filepath.Join(w.dir, "graph.json")

	_, err := execute(t, "build", "--mkdirs", "--dag-format", "json", "-o", out, cfg)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc struct {
		Nodes []struct {
			Name string `json:"name"`
		} `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Len(t, doc.Nodes, 5)
	assert.NoFileExists(t, filepath.Join(w.dir, "engine.sub"))
}

func TestBuildSkipsUncoveredEvents(t *testing.T) {
	w := newWorkspace(t, "1000\n2000\n3000\n", "0 2500\n")
	cfg := w.config(t, w.timeFileInput())

	out, err := execute(t, "build", "--mkdirs", cfg)
	require.NoError(t, err, out)
	assert.Contains(t, out, "built 2 events [0 1]")
	assert.Contains(t, out, "skipped event 2")
}

func TestBuildNothingToBuild(t *testing.T) {
	w := newWorkspace(t, "3000\n", "0 2500\n")
	cfg := w.config(t, w.timeFileInput())

	out, err := execute(t, "build", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E040]")
}

func TestBuildBadFormat(t *testing.T) {
	w := newWorkspace(t, "1000\n", "0 4000\n")
	cfg := w.config(t, w.timeFileInput())

	_, err := execute(t, "build", "--dag-format", "xml", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBuildMissingSegments(t *testing.T) {
	w := newWorkspace(t, "1000\n", "0 4000\n")
	cfg := w.config(t, w.timeFileInput())
	require.NoError(t, os.Remove(w.path("H1.seg")))

	out, err := execute(t, "build", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E030]")
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "validate", "x.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadWorkspaceConfig(t *testing.T, path string) *config.Config {
	t.Helper()
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestTimeFileWithSlides(t *testing.T) {
	w := newWorkspace(t, "1000\n2000\n", "0 4000\n")
	slides := w.write(t, "slides.txt", "H1\n0\n5\n")
	cfg := loadWorkspaceConfig(t, w.config(t,
		w.timeFileInput()+fmt.Sprintf("\n\ttimeslides: true\n\t\"timeslide-file\": %q", slides)))

	events, err := loadEvents(context.Background(), cfg, discard())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 0.0, events[0].TimeSlide("H1"))
	assert.Equal(t, 5.0, events[1].TimeSlide("H1"))
}

func TestTimeFileSlideCountMismatch(t *testing.T) {
	w := newWorkspace(t, "1000\n2000\n", "0 4000\n")
	slides := w.write(t, "slides.txt", "H1\n0\n")
	cfg := loadWorkspaceConfig(t, w.config(t,
		w.timeFileInput()+fmt.Sprintf("\n\ttimeslides: true\n\t\"timeslide-file\": %q", slides)))

	_, err := loadEvents(context.Background(), cfg, discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 timeslide rows for 2 times")
}

func TestAllTimeEvents(t *testing.T) {
	w := newWorkspace(t, "", "0 4000\n")
	cfg := loadWorkspaceConfig(t, w.config(t,
		`"analyse-all-time": true, "gps-start-time": 1000, "gps-end-time": 1100, "segment-overlap": 4`))

	events, err := loadEvents(context.Background(), cfg, discard())
	require.NoError(t, err)
	// Chunks of seglen - overlap = 4 seconds.
	assert.Len(t, events, 25)
}

func TestSegmentsIgnoreScience(t *testing.T) {
	w := newWorkspace(t, "1000\n", "0 4000\n")
	cfg := loadWorkspaceConfig(t, w.config(t, w.timeFileInput()+"\n\t\"ignore-science-segments\": true"))

	segs, err := findSegments(context.Background(), cfg, 700, 1100)
	require.NoError(t, err)
	require.Len(t, segs["H1"], 1)
	assert.Equal(t, 700.0, segs["H1"][0].Start)
	assert.Equal(t, 1100.0, segs["H1"][0].End)
}

func TestLocator(t *testing.T) {
	w := newWorkspace(t, "1000\n", "0 4000\n")
	cfg := loadWorkspaceConfig(t, w.config(t, w.timeFileInput()))
	loc, err := locator(cfg)
	require.NoError(t, err)
	assert.Nil(t, loc)

	frames := w.write(t, "H1.frames", "# frames\n/frames/H-H1_HOFT-900-100.gwf\n/frames/H-H1_HOFT-1000-100.gwf\n")
	cfg = loadWorkspaceConfig(t, w.config(t, w.timeFileInput(), fmt.Sprintf(`datafind: "lfn-files": {H1: %q}`, frames)))
	loc, err = locator(cfg)
	require.NoError(t, err)
	require.NotNil(t, loc)

	got, err := loc.Locate("H1", "H1_HOFT", 950, 990)
	require.NoError(t, err)
	require.Len(t, got.Frames, 1)
	assert.Equal(t, int64(900), got.Frames[0].Start)
}

const scenario = `
name: %s
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
assertions:
  - type: node_count
    kind: engine
    count: %d
`

func writeScenario(t *testing.T, dir, name string, engines int) {
	t.Helper()
	src := fmt.Sprintf(scenario, name, engines)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(src), 0o644))
}

func harnessResult(t *testing.T, out string) HarnessResult {
	t.Helper()
	r := decode(t, out)
	var res HarnessResult
	data := r.Data
	if r.Error != nil {
		data = r.Error.Details
	}
	require.NoError(t, json.Unmarshal(data, &res), out)
	return res
}

func TestHarnessUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "single", 1)

	out, err := execute(t, "--format", "json", "test", "--update", dir)
	require.NoError(t, err, out)
	res := harnessResult(t, out)
	require.Len(t, res.Scenarios, 1)
	assert.True(t, res.Scenarios[0].Updated)

	golden := filepath.Join(dir, "golden", "single.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), "engine-2 engine <- datafind-1")

	out, err = execute(t, "--format", "json", "test", dir)
	require.NoError(t, err, out)
	res = harnessResult(t, out)
	assert.Equal(t, 1, res.Passed)
	assert.False(t, res.Scenarios[0].Updated)

	require.NoError(t, os.WriteFile(golden, []byte("scenario: single\n"), 0o644))
	out, err = execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	r := decode(t, out)
	require.NotNil(t, r.Error)
	assert.Equal(t, ErrCodeScenario, r.Error.Code)
	res = harnessResult(t, out)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Scenarios[0].Errors[0], "does not match golden file")
}

func TestHarnessFailedAssertion(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "pass", 1)
	writeScenario(t, dir, "fail", 3)

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ pass")
	assert.Contains(t, out, "✗ fail")
	assert.Contains(t, out, "3 engine nodes")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestHarnessFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "alpha", 1)
	writeScenario(t, dir, "beta", 3)

	out, err := execute(t, "--format", "json", "test", "--filter", "al*", dir)
	require.NoError(t, err, out)
	res := harnessResult(t, out)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, "alpha", res.Scenarios[0].Name)

	_, err = execute(t, "test", "--filter", "[", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHarnessMissingDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestHarnessPackagedScenarios(t *testing.T) {
	testdata := filepath.Join("..", "harness", "testdata")
	out, err := execute(t, "--format", "json", "test",
		"--golden-dir", filepath.Join(testdata, "golden"),
		filepath.Join(testdata, "scenarios"))
	require.NoError(t, err, out)
	res := harnessResult(t, out)
	assert.Equal(t, 2, res.Passed)
	assert.Zero(t, res.Failed)
}
