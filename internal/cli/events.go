package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/WuShichao/lalsuite/internal/config"
	"github.com/WuShichao/lalsuite/internal/event"
	"github.com/WuShichao/lalsuite/internal/job"
)

// EventList is printed by events.
type EventList struct {
	Events []event.Event `json:"events"`
}

func (l EventList) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d events", len(l.Events))
	for _, ev := range l.Events {
		trig := "-"
		if t, ok := ev.Time(); ok {
			trig = job.FormatFloat(t)
		}
		fmt.Fprintf(&b, "\n  %-6d %s", ev.ID, trig)
		if ev.GID != "" {
			fmt.Fprintf(&b, " gid=%s", ev.GID)
		}
		if len(ev.IFOs) > 0 {
			fmt.Fprintf(&b, " ifos=%s", strings.Join(ev.IFOs, ","))
		}
		if ev.TrigSNR > 0 {
			fmt.Fprintf(&b, " snr=%s", job.FormatFloat(ev.TrigSNR))
		}
	}
	return b.String()
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events <config.cue>",
		Short: "List the events a build would analyse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			logger := newLogger(rootOpts, formatter.Diag())
			cfg, err := config.Load(args[0])
			if err != nil {
				return formatter.Fail(ExitFailure, ErrCodeConfig, err, configDetails(err))
			}
			events, err := loadEvents(cmd.Context(), cfg, logger)
			if err != nil {
				return formatter.Fail(ExitCommandError, ErrCodeEvents, err, nil)
			}
			return formatter.Success(EventList{Events: events})
		},
	}
}
