package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/WuShichao/lalsuite/internal/job"
)

// Snapshot renders the structure of a result: the built and skipped events,
// then one line per node in insertion order with its parents.
//
//	scenario: two-events
//	built: 0 1
//	skipped: 2 (no science data for H1 at 3000)
//	datafind-1 datafind
//	engine-2 engine <- datafind-1
func Snapshot(name string, r *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	ids := make([]string, len(r.Summary.Built))
	for i, id := range r.Summary.Built {
		ids[i] = fmt.Sprint(id)
	}
	fmt.Fprintf(&b, "built: %s\n", strings.Join(ids, " "))
	for _, s := range r.Summary.Skipped {
		fmt.Fprintf(&b, "skipped: %d (%s)\n", s.EventID, s.Reason)
	}
	for _, n := range r.Graph.Nodes() {
		fmt.Fprintf(&b, "%s %s", n.Name(), n.Kind())
		if parents := n.Parents(); len(parents) > 0 {
			fmt.Fprintf(&b, " <- %s", strings.Join(names(parents), " "))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func names(nodes []*job.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

// GoldenFile returns the golden file of the named scenario under dir, laid
// out as goldie lays out its fixtures.
func GoldenFile(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// WriteGolden stores r's snapshot as the golden file of s under dir,
// creating dir if needed.
func WriteGolden(dir string, s *Scenario, r *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(GoldenFile(dir, s.Name), Snapshot(s.Name, r), 0o644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// MatchGolden reports whether r's snapshot equals the golden file of s
// under dir.
//
// A missing golden file is not an error: found is false and the caller
// falls back to the scenario's assertions.
func MatchGolden(dir string, s *Scenario, r *Result) (match, found bool, err error) {
	want, err := os.ReadFile(GoldenFile(dir, s.Name))
	if os.IsNotExist(err) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to read golden file: %w", err)
	}
	return bytes.Equal(want, Snapshot(s.Name, r)), true, nil
}

// RunWithGolden runs a scenario, fails t for each failed assertion and
// compares the snapshot with testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()
	r, err := Run(s)
	if err != nil {
		return nil, err
	}
	for _, e := range r.Errors {
		t.Error(e)
	}
	AssertGolden(t, s.Name, r)
	return r, nil
}

// AssertGolden compares an existing result's snapshot with its golden
// file.
func AssertGolden(t *testing.T, name string, r *Result) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, r))
}
