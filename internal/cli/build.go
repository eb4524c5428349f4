package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WuShichao/lalsuite/internal/builder"
	"github.com/WuShichao/lalsuite/internal/config"
	"github.com/WuShichao/lalsuite/internal/emit"
	"github.com/WuShichao/lalsuite/internal/job"
)

// BuildOptions holds the flags of the build command.
type BuildOptions struct {
	Output    string
	DAGFormat string
	MkDirs    bool
}

// BuildResult is the summary printed by build. Waves is the length of the
// longest dependency chain, the rounds the scheduler needs with unlimited
// slots.
type BuildResult struct {
	Name        string         `json:"name"`
	RunID       string         `json:"run_id"`
	Nodes       int            `json:"nodes"`
	Waves       int            `json:"waves"`
	ByKind      map[string]int `json:"by_kind"`
	Fingerprint string         `json:"fingerprint"`
	Built       []int64        `json:"built"`
	Skipped     []builder.Skip `json:"skipped"`
	Files       []string       `json:"files"`
	Dirs        []string       `json:"dirs,omitempty"`
}

func (r BuildResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (run %s): %d nodes in %d waves\n", r.Name, r.RunID, r.Nodes, r.Waves)
	for _, k := range job.Kinds {
		if n := r.ByKind[k.String()]; n > 0 {
			fmt.Fprintf(&b, "  %-14s %d\n", k, n)
		}
	}
	fmt.Fprintf(&b, "built %d events %v\n", len(r.Built), r.Built)
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "skipped event %d: %s\n", s.EventID, s.Reason)
	}
	fmt.Fprintf(&b, "fingerprint %s\n", r.Fingerprint)
	for _, f := range r.Files {
		fmt.Fprintf(&b, "wrote %s\n", f)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{}

	cmd := &cobra.Command{
		Use:   "build <config.cue>",
		Short: "Build the job graph of a run",
		Long: `Load the configuration and events, resolve science segments, build
the job graph and write it.

The default output is <basedir>/<graph name> with the extension of the
chosen format. The dagman format also writes one submit file per job kind
next to the graph.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args[0], opts, rootOpts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "graph output path")
	cmd.Flags().StringVar(&opts.DAGFormat, "dag-format", string(emit.FormatDAGMan), "graph format (dagman|json|yaml)")
	cmd.Flags().BoolVar(&opts.MkDirs, "mkdirs", false, "create log and output directories")

	return cmd
}

func runBuild(cmd *cobra.Command, path string, opts *BuildOptions, rootOpts *RootOptions) error {
	formatter := newFormatter(rootOpts, cmd)
	logger := newLogger(rootOpts, formatter.Diag())
	ctx := cmd.Context()

	format, err := emit.ParseFormat(opts.DAGFormat)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err, nil)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeConfig, err, configDetails(err))
	}

	events, err := loadEvents(ctx, cfg, logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeEvents, err, nil)
	}

	start, end := builder.Bounds(cfg, eventTimes(events))
	segs, err := findSegments(ctx, cfg, start, end)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSegments, err, nil)
	}

	loc, err := locator(cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, err, nil)
	}
	coinc := cfg.Input.CoincFile
	if coinc == "" {
		coinc = cfg.Input.CoincInspiralFile
	}
	b := builder.New(cfg, segs, builder.Options{
		Logger:        logger,
		Locator:       loc,
		InjectionFile: cfg.Input.InjectionFile,
		CoincFile:     coinc,
	})
	g, sum, err := b.Build(events)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBuild, err, nil)
	}
	if g.Len() == 0 {
		err := fmt.Errorf("no event could be built (%d skipped)", len(sum.Skipped))
		return formatter.Fail(ExitFailure, ErrCodeBuild, err, sum.Skipped)
	}

	out := opts.Output
	if out == "" {
		out = filepath.Join(cfg.Paths.BaseDir, g.Meta.Name+format.Ext())
	}

	res := BuildResult{
		Name:    g.Meta.Name,
		RunID:   g.Meta.RunID,
		Nodes:   g.Len(),
		ByKind:  make(map[string]int),
		Built:   sum.Built,
		Skipped: sum.Skipped,
	}
	for k, n := range g.CountByKind() {
		res.ByKind[k.String()] = n
	}
	levels, err := g.Levels()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBuild, err, nil)
	}
	res.Waves = len(levels)
	if res.Fingerprint, err = g.Fingerprint(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBuild, err, nil)
	}

	if opts.MkDirs {
		dirs, err := emit.PrepareDirs(g, cfg.LogDir(), filepath.Dir(out))
		res.Dirs = dirs
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err, nil)
		}
	}

	files, err := emit.WriteFiles(out, g, format, emit.SubmitOptions{
		LogDir: cfg.LogDir(),
		Queue:  cfg.Condor.Queue,
	})
	res.Files = files
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, err, files)
	}
	logger.Info("graph written", "path", out, "format", format, "files", len(files))

	return formatter.Success(res)
}
