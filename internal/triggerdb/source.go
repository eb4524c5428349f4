package triggerdb

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/WuShichao/lalsuite/internal/event"
)

// Source is an event.Source over a trigger database. It opens the
// database for each call.
type Source struct {
	DSN string
	// TimeSlides selects background coincidences instead of zero-lag.
	TimeSlides bool
	Query      Query
	// DumpPath, when set, receives the trigger dump.
	DumpPath string
	Logger   *slog.Logger
}

// Events implements event.Source.
func (s Source) Events(ctx context.Context) ([]event.Event, error) {
	db, err := Open(s.DSN, s.Logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	q := s.Query
	if s.DumpPath != "" {
		f, err := os.Create(s.DumpPath)
		if err != nil {
			return nil, fmt.Errorf("create trigger dump: %w", err)
		}
		defer f.Close()
		q.Dump = f
	}

	var events []event.Event
	if s.TimeSlides {
		events, err = db.TimeSlides(ctx, q)
	} else {
		events, err = db.ZeroLag(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.DSN, err)
	}
	return events, nil
}
