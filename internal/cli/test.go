package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WuShichao/lalsuite/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // golden files, <scenarios-dir>/golden when empty
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name    string   `json:"name"`
	Pass    bool     `json:"pass"`
	Updated bool     `json:"updated,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// HarnessResult holds the overall result of a scenario run.
type HarnessResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

func (r HarnessResult) String() string {
	if r.Total == 0 {
		return "No scenarios found."
	}
	var b strings.Builder
	for _, s := range r.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s", mark, s.Name)
		if s.Updated {
			b.WriteString(" (golden updated)")
		}
		b.WriteByte('\n')
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  %s\n", strings.TrimRight(e, "\n"))
		}
	}
	fmt.Fprintf(&b, "\nTest Summary: %d passed, %d failed, %d total", r.Passed, r.Failed, r.Total)
	return b.String()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run pipeline scenarios",
		Long: `Build the graph of every scenario file in a directory and check its
assertions and golden snapshot.

A scenario carries a configuration, a list of events and per-instrument
science segments. Seeds and run ids are fixed so snapshots are stable.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  lalinference-pipe test ./scenarios
  lalinference-pipe test ./scenarios --filter "coherence*"
  lalinference-pipe test ./scenarios --update
  lalinference-pipe test ./scenarios --golden-dir ./golden --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, args[0], opts, rootOpts)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory")

	return cmd
}

func runTests(cmd *cobra.Command, dir string, opts *TestOptions, rootOpts *RootOptions) error {
	formatter := newFormatter(rootOpts, cmd)

	if _, err := os.Stat(dir); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Errorf("scenarios directory: %w", err), nil)
	}
	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err, nil)
	}

	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(dir, "golden")
	}

	result := HarnessResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	for _, path := range files {
		sr := runScenario(path, goldenDir, opts.Update)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if result.Failed > 0 {
		err := fmt.Errorf("%d scenario(s) failed", result.Failed)
		if rootOpts.Format == "json" {
			return formatter.Fail(ExitFailure, ErrCodeScenario, err, result)
		}
		fmt.Fprintln(formatter.Writer, result)
		return WrapExitError(ExitFailure, ErrCodeScenario, err)
	}
	return formatter.Success(result)
}

// findScenarioFiles lists the scenario files in dir whose base name, without
// extension, matches filter.
func findScenarioFiles(dir, filter string) ([]string, error) {
	files, err := harness.ScenarioFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to find scenarios: %w", err)
	}
	if filter == "" {
		return files, nil
	}
	var out []string
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if matched {
			out = append(out, f)
		}
	}
	return out, nil
}

// runScenario executes a single scenario. Assertions always run; the
// snapshot is then written with update, or compared with the golden file
// when one exists.
func runScenario(path, goldenDir string, update bool) ScenarioResult {
	s, r, err := harness.RunFile(path)
	if err != nil {
		name := filepath.Base(path)
		if s != nil {
			name = s.Name
		}
		return ScenarioResult{Name: name, Errors: []string{err.Error()}}
	}

	sr := ScenarioResult{Name: s.Name, Pass: r.Pass, Errors: r.Errors}
	if update {
		if err := harness.WriteGolden(goldenDir, s, r); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, err.Error())
			return sr
		}
		sr.Updated = true
		return sr
	}

	match, found, err := harness.MatchGolden(goldenDir, s, r)
	switch {
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, err.Error())
	case found && !match:
		sr.Pass = false
		sr.Errors = append(sr.Errors, "graph does not match golden file (run with --update to regenerate)")
	}
	return sr
}
