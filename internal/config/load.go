package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/WuShichao/lalsuite/internal/job"
)

//go:embed schema.cue
var schemaSource []byte

// Error is a configuration failure attached to a dotted key.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads, unifies, decodes and validates the configuration at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, src)
}

// Parse is Load for an in-memory source; name is used in positions.
func Parse(name string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v = def.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := &Config{Path: name, value: v}
	if err := v.Decode(cfg); err != nil {
		return nil, formatCUEError(err)
	}

	engineOpts, err := openSection(v, "engine")
	if err != nil {
		return nil, err
	}
	if err := cfg.takeEngine(engineOpts); err != nil {
		return nil, err
	}
	if cfg.ResultsPage, err = openSection(v, "resultspage"); err != nil {
		return nil, err
	}

	// The schema restricts analysis.engine to the known variants.
	cfg.EngineKind, _ = job.ParseEngineKind(cfg.Analysis.Engine)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSection walks an open struct of scalar values into Options. Strings
// pass through, numbers are formatted, true becomes a bare flag and false
// drops the key.
func openSection(v cue.Value, section string) (job.Options, error) {
	var opts job.Options
	sv := v.LookupPath(cue.MakePath(cue.Str(section)))
	if !sv.Exists() {
		return opts, nil
	}
	iter, err := sv.Fields()
	if err != nil {
		return opts, formatCUEError(err)
	}
	for iter.Next() {
		key := iter.Selector().Unquoted()
		fv := iter.Value()
		var val string
		switch fv.Kind() {
		case cue.StringKind:
			val, err = fv.String()
		case cue.IntKind:
			var n int64
			n, err = fv.Int64()
			val = strconv.FormatInt(n, 10)
		case cue.FloatKind, cue.NumberKind:
			var f float64
			f, err = fv.Float64()
			val = job.FormatFloat(f)
		case cue.BoolKind:
			var b bool
			b, err = fv.Bool()
			if err == nil && !b {
				continue
			}
		default:
			return opts, &Error{Field: section + "." + key, Message: "must be a string, number or bool", Pos: fv.Pos()}
		}
		if err != nil {
			return opts, formatCUEError(err)
		}
		if err := opts.Set(key, val); err != nil {
			return opts, &Error{Field: section + "." + key, Message: err.Error(), Pos: fv.Pos()}
		}
	}
	return opts, nil
}

// takeEngine splits seglen out of the engine options; the node sets it.
func (c *Config) takeEngine(opts job.Options) error {
	raw, ok := opts.Get("seglen")
	if !ok {
		return &Error{Field: "engine.seglen", Message: "is required"}
	}
	seglen, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return &Error{Field: "engine.seglen", Message: err.Error(), Pos: c.pos("engine", "seglen")}
	}
	c.Engine.SegLen = seglen
	for _, k := range opts.Keys() {
		if k == "seglen" {
			continue
		}
		val, _ := opts.Get(k)
		// Keys were validated when opts was built.
		_ = c.Engine.Options.Set(k, val)
	}
	return nil
}

// EngineFloat returns a numeric engine option.
func (c *Config) EngineFloat(key string) (float64, bool) {
	raw, ok := c.Engine.Options.Get(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	return f, err == nil
}

// pos returns the source position of a key, or NoPos when the key is
// absent or the config was not loaded from CUE.
func (c *Config) pos(path ...string) token.Pos {
	if !c.value.Exists() {
		return token.NoPos
	}
	sels := make([]cue.Selector, len(path))
	for i, p := range path {
		sels[i] = cue.Str(p)
	}
	fv := c.value.LookupPath(cue.MakePath(sels...))
	if !fv.Exists() {
		return token.NoPos
	}
	return fv.Pos()
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	e := &Error{Field: "cue", Message: first.Error()}
	if p := first.Path(); len(p) > 0 {
		e.Field = strings.Join(p, ".")
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}

