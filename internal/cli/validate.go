package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WuShichao/lalsuite/internal/config"
)

// ConfigIssue is one configuration error in machine-readable form.
type ConfigIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (i ConfigIssue) String() string {
	if i.File == "" {
		return fmt.Sprintf("%s: %s", i.Field, i.Message)
	}
	return fmt.Sprintf("%s: %s (%s:%d:%d)", i.Field, i.Message, i.File, i.Line, i.Column)
}

// ValidateResult is printed by validate on success.
type ValidateResult struct {
	Path    string   `json:"path"`
	Engine  string   `json:"engine"`
	IFOs    []string `json:"ifos"`
	Sources []string `json:"sources"`
}

func (r ValidateResult) String() string {
	src := "analyse-all-time"
	if len(r.Sources) > 0 {
		src = strings.Join(r.Sources, ", ")
	}
	return fmt.Sprintf("configuration valid: %s\n  engine  %s\n  ifos    %s\n  events  %s",
		r.Path, r.Engine, strings.Join(r.IFOs, " "), src)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Check a configuration without building",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			cfg, err := config.Load(args[0])
			if err != nil {
				issues := configDetails(err)
				_ = formatter.Error(ErrCodeConfig, "invalid configuration", issues)
				if rootOpts.Format != "json" {
					for _, issue := range issues {
						fmt.Fprintf(formatter.Writer, "  %s\n", issue)
					}
				}
				return WrapExitError(ExitFailure, ErrCodeConfig, err)
			}
			return formatter.Success(ValidateResult{
				Path:    cfg.Path,
				Engine:  cfg.EngineKind.String(),
				IFOs:    cfg.Analysis.IFOs,
				Sources: cfg.EventSources(),
			})
		},
	}
}

// configDetails flattens a Load error into its *config.Error parts. Other
// errors, such as an unreadable file, yield a single issue.
func configDetails(err error) []ConfigIssue {
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	out := make([]ConfigIssue, 0, len(errs))
	for _, e := range errs {
		var ce *config.Error
		if !errors.As(e, &ce) {
			out = append(out, ConfigIssue{Field: "config", Message: e.Error()})
			continue
		}
		issue := ConfigIssue{Field: ce.Field, Message: ce.Message}
		if ce.Pos.IsValid() {
			issue.File = ce.Pos.Filename()
			issue.Line = ce.Pos.Line()
			issue.Column = ce.Pos.Column()
		}
		out = append(out, issue)
	}
	return out
}
