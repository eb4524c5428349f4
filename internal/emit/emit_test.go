package emit

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/WuShichao/lalsuite/internal/datafind"
	"github.com/WuShichao/lalsuite/internal/graph"
	"github.com/WuShichao/lalsuite/internal/job"
)

// pipeline builds a single-event chain under root: data lookup, one
// engine, merge, report and publish.
func pipeline(t *testing.T, root string) *graph.Graph {
	t.Helper()
	basedir, webdir := root+"/run", root+"/www"
	g := graph.New(graph.Metadata{
		Name:    "lalinference_0-100",
		RunID:   "run-1",
		End:     100,
		BaseDir: basedir,
		LogFile: basedir + "/lalinference_pipeline-run-1.log",
	})
	cache := basedir + "/caches/H-H1_HOFT_CACHE-0-100.lcf"
	prep := job.NewDataPrep(job.DataPrepParams{
		Name:       "datafind-1",
		Key:        job.Key{Kind: job.KindDataPrep, Event: job.NoEvent, Combo: "H1", Span: "H1_HOFT:0-100"},
		Executable: "/bin/datafind",
		IFO:        "H1",
		FrameType:  "H1_HOFT",
		End:        100,
		Location:   datafind.Location{Cache: cache},
	})
	eng := job.NewEngine(job.EngineParams{
		Name:       "engine-2",
		Key:        job.Key{Kind: job.KindEngine, Event: 0, Combo: "H1"},
		Engine:     job.EngineNest,
		Executable: "/bin/nest",
		OutputRoot: basedir + "/engine/nest-0",
		Data: &job.DataBlock{
			TrigTime: 80, SegLen: 8, PSDLength: 64,
			IFOs:     []string{"H1"},
			Channels: map[string]string{"H1": "H1:STRAIN"},
			Caches:   map[string]string{"H1": cache},
		},
	})
	eng.AddOption("trigtime", "80")
	eng.AddOption("randomseed", "1")
	eng.AddParent(prep)
	eng.SetPriority(20)

	pos := basedir + "/posterior_samples/posterior_H1_80-0.dat"
	merge := job.NewMerge(job.MergeParams{
		Name:       "merge-3",
		Key:        job.Key{Kind: job.KindMerge, Event: 0, Combo: "H1"},
		Executable: "/bin/merge",
		PosFile:    pos,
		Nlive:      "1000",
	})
	job.AddMergeInput(merge, eng)

	var opts job.Options
	require.NoError(t, opts.Set("label", "run one"))
	report, err := job.NewReport(job.ReportParams{
		Name:       "resultspage-4",
		Key:        job.Key{Kind: job.KindReport, Event: 0, Combo: "H1"},
		Executable: "/bin/pp",
		OutPath:    webdir + "/80-0/H1",
		Options:    opts,
	})
	require.NoError(t, err)
	job.AddReportInput(report, merge)
	job.SetReportFile(report, "bsn", merge.Output(job.RoleEvidence))

	pub := job.NewPublish(job.PublishParams{
		Name:       "gracedb-5",
		Key:        job.Key{Kind: job.KindPublish, Event: 0, Combo: "H1"},
		Executable: "/bin/gracedb",
		GID:        "G1",
		WebDir:     webdir,
		BaseURL:    "https://ex.org/pe",
	})
	pub.AddParent(report)

	for _, n := range []*job.Node{prep, eng, merge, report, pub} {
		require.NoError(t, g.Insert(n))
	}
	require.NoError(t, g.Verify())
	return g
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestWriteDAGManGolden(t *testing.T) {
	g := pipeline(t, "")
	var buf bytes.Buffer
	require.NoError(t, WriteDAGMan(&buf, g, SubmitOptions{Dir: "/run", LogDir: "/run/log"}))
	golden(t).Assert(t, "pipeline.dag", buf.Bytes())
}

func TestWriteSubmitGolden(t *testing.T) {
	g := pipeline(t, "")
	opts := SubmitOptions{Dir: "/run", LogDir: "/run/log"}
	for _, n := range SubmitKinds(g) {
		if n.Kind() != job.KindEngine && n.Kind() != job.KindReport {
			continue
		}
		var buf bytes.Buffer
		require.NoError(t, WriteSubmit(&buf, g, n, opts))
		golden(t).Assert(t, n.Kind().String()+".sub", buf.Bytes())
	}
}

func TestSubmitKindsInPipelineOrder(t *testing.T) {
	g := pipeline(t, "")
	var kinds []string
	for _, n := range SubmitKinds(g) {
		kinds = append(kinds, n.Kind().String())
	}
	assert.Equal(t, []string{"datafind", "engine", "merge", "resultspage", "gracedb"}, kinds)
}

func TestSubmitQueue(t *testing.T) {
	g := pipeline(t, "")
	var buf bytes.Buffer
	require.NoError(t, WriteSubmit(&buf, g, g.Nodes()[1], SubmitOptions{LogDir: "/run/log", Queue: "Priority_PE"}))
	assert.Contains(t, buf.String(), "+Priority_PE = True\n")
	assert.Contains(t, buf.String(), "requirements = (TARGET.Priority_PE =?= True)\n")
}

func TestMacroArgumentsQuoting(t *testing.T) {
	var opts job.Options
	require.NoError(t, opts.Set("label", `it's "done"`))
	require.NoError(t, opts.Set("no2D", ""))
	n, err := job.NewReport(job.ReportParams{
		Name:    "resultspage-1",
		Key:     job.Key{Kind: job.KindReport},
		OutPath: "/www",
		Options: opts,
	})
	require.NoError(t, err)

	got := MacroArguments(n)
	assert.Equal(t, `--label 'it''s "done"' --no2D --outpath /www`, got)
	assert.Equal(t, `--label 'it''s \"done\"' --no2D --outpath /www`, escapeVar(got))
}

func TestWriteJSON(t *testing.T) {
	g := pipeline(t, "")
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, g))

	var doc Document
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	fp, err := g.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp, doc.Fingerprint)
	assert.Equal(t, "lalinference_0-100", doc.Meta.Name)
	require.Len(t, doc.Nodes, 5)
	assert.Equal(t, "engine", doc.Nodes[1].Kind)
	assert.Equal(t, []string{"datafind-1"}, doc.Nodes[1].Parents)
	assert.Equal(t, 20, doc.Nodes[1].Priority)
	assert.Equal(t, 2000, doc.Nodes[3].MemoryMB)
}

func TestWriteYAML(t *testing.T) {
	g := pipeline(t, "")
	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, g))
	assert.True(t, strings.HasPrefix(buf.String(), "meta:\n  name: lalinference_0-100\n"))

	var doc Document
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	require.Len(t, doc.Nodes, 5)
	assert.Equal(t, "gracedb", doc.Nodes[4].Kind)
	assert.Equal(t, "scheduler", doc.Nodes[4].Universe)
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("dot")
	assert.Error(t, err)
	assert.Equal(t, ".dag", FormatDAGMan.Ext())
	assert.Equal(t, ".yaml", FormatYAML.Ext())
}

func TestWriteFilesDAGMan(t *testing.T) {
	dir := t.TempDir()
	g := pipeline(t, "")
	path := filepath.Join(dir, g.Meta.Name+".dag")

	written, err := WriteFiles(path, g, FormatDAGMan, SubmitOptions{LogDir: "/run/log"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		path,
		filepath.Join(dir, "datafind.sub"),
		filepath.Join(dir, "engine.sub"),
		filepath.Join(dir, "merge.sub"),
		filepath.Join(dir, "resultspage.sub"),
		filepath.Join(dir, "gracedb.sub"),
	}, written)

	dag, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(dag), "JOB engine-2 "+filepath.Join(dir, "engine.sub")+"\n")
}

func TestWriteFilesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	written, err := WriteFiles(path, pipeline(t, ""), FormatJSON, SubmitOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, written)
	assert.FileExists(t, path)
}

func TestPrepareDirs(t *testing.T) {
	root := t.TempDir()
	g := pipeline(t, root)
	base := filepath.Join(root, "run")
	logs := filepath.Join(base, "log")

	dirs, err := PrepareDirs(g, logs)
	require.NoError(t, err)
	assert.Equal(t, logs, dirs[0])
	for _, d := range []string{
		logs,
		filepath.Join(base, "caches"),
		filepath.Join(base, "engine"),
		filepath.Join(base, "posterior_samples"),
		filepath.Join(root, "www", "80-0"),
	} {
		assert.DirExists(t, d)
	}
}
