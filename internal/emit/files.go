package emit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/WuShichao/lalsuite/internal/graph"
)

// Format selects the serialization written by WriteFiles.
type Format string

const (
	FormatDAGMan Format = "dagman"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
)

// Formats lists the accepted formats.
var Formats = []Format{FormatDAGMan, FormatJSON, FormatYAML}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if !slices.Contains(Formats, f) {
		return "", fmt.Errorf("unknown graph format %q: must be one of %v", s, Formats)
	}
	return f, nil
}

// Ext returns the file extension of f.
func (f Format) Ext() string {
	if f == FormatDAGMan {
		return ".dag"
	}
	return "." + string(f)
}

// WriteFiles writes g to path in format f. The DAGMan form also writes the
// submit files next to path. It returns every file written.
func WriteFiles(path string, g *graph.Graph, f Format, opts SubmitOptions) ([]string, error) {
	var written []string
	write := func(p string, fn func(io.Writer) error) error {
		file, err := os.Create(p)
		if err != nil {
			return err
		}
		if err := fn(file); err != nil {
			file.Close()
			return fmt.Errorf("write %s: %w", p, err)
		}
		if err := file.Close(); err != nil {
			return err
		}
		written = append(written, p)
		return nil
	}

	switch f {
	case FormatJSON:
		return written, write(path, func(w io.Writer) error { return WriteJSON(w, g) })
	case FormatYAML:
		return written, write(path, func(w io.Writer) error { return WriteYAML(w, g) })
	case FormatDAGMan:
	default:
		return nil, fmt.Errorf("unknown graph format %q", f)
	}

	if opts.Dir == "" {
		opts.Dir = filepath.Dir(path)
	}
	if err := write(path, func(w io.Writer) error { return WriteDAGMan(w, g, opts) }); err != nil {
		return written, err
	}
	for _, n := range SubmitKinds(g) {
		err := write(opts.SubmitPath(n.Kind()), func(w io.Writer) error { return WriteSubmit(w, g, n, opts) })
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// PrepareDirs creates the directory of every output artifact in g, plus
// dirs. It returns the directories in creation order.
func PrepareDirs(g *graph.Graph, dirs ...string) ([]string, error) {
	var want []string
	add := func(d string) {
		if d != "" && d != "." && !slices.Contains(want, d) {
			want = append(want, d)
		}
	}
	for _, d := range dirs {
		add(d)
	}
	add(filepath.Dir(g.Meta.LogFile))
	for _, n := range g.Nodes() {
		for _, out := range n.Outputs() {
			add(filepath.Dir(out))
		}
	}

	var errs []error
	for _, d := range want {
		if err := os.MkdirAll(d, 0o755); err != nil {
			errs = append(errs, err)
		}
	}
	return want, errors.Join(errs...)
}
