package triggerdb

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/WuShichao/lalsuite/internal/event"
	"github.com/WuShichao/lalsuite/internal/job"
)

// ZeroLagSlide is the time_slide_id of unshifted coincidences.
const ZeroLagSlide = "time_slide:time_slide_id:10049"

// DB is a read-only handle on a trigger database.
type DB struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects to dsn. A postgres:// or postgresql:// DSN uses lib/pq;
// anything else is a SQLite file path opened read-only.
func Open(dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, source := "sqlite3", ""
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, source = "postgres", dsn
	} else {
		if _, err := os.Stat(dsn); err != nil {
			return nil, fmt.Errorf("trigger database: %w", err)
		}
		source = "file:" + dsn + "?mode=ro"
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open trigger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to trigger database: %w", err)
	}
	return &DB{db: db, driver: driver, logger: logger}, nil
}

// Close closes the connection.
func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Query bounds a trigger search. Nil fields do not filter.
type Query struct {
	// Start and End bound the coincidence end time, inclusive.
	Start, End *float64
	// MaxCFAR keeps coincidences with combined FAR below it.
	MaxCFAR *float64
	// Dump receives one line per trigger:
	// "coinc ifo trig slide snr chisq cfar".
	Dump io.Writer
}

// where appends the query bounds to a statement that already has a WHERE
// clause.
func (q Query) where(stmt string, args []any) (string, []any) {
	const endTime = "coinc_inspiral.end_time + coinc_inspiral.end_time_ns * 1.0e-9"
	if q.Start != nil {
		stmt += " AND " + endTime + " >= ?"
		args = append(args, *q.Start)
	}
	if q.End != nil {
		stmt += " AND " + endTime + " <= ?"
		args = append(args, *q.End)
	}
	if q.MaxCFAR != nil {
		stmt += " AND coinc_inspiral.combined_far < ?"
		args = append(args, *q.MaxCFAR)
	}
	return stmt, args
}

// rebind rewrites '?' placeholders for drivers that number them.
func (d *DB) rebind(stmt string) string {
	if d.driver != "postgres" {
		return stmt
	}
	var b strings.Builder
	n := 0
	for _, r := range stmt {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const zeroLagSQL = `
	SELECT sngl_inspiral.end_time + sngl_inspiral.end_time_ns * 1.0e-9,
		sngl_inspiral.ifo, coinc_event.coinc_event_id,
		sngl_inspiral.snr, sngl_inspiral.chisq, coinc_inspiral.combined_far
	FROM sngl_inspiral
	JOIN coinc_event_map ON (coinc_event_map.table_name = 'sngl_inspiral'
		AND coinc_event_map.event_id = sngl_inspiral.event_id)
	JOIN coinc_event ON (coinc_event.coinc_event_id = coinc_event_map.coinc_event_id)
	JOIN coinc_inspiral ON (coinc_event.coinc_event_id = coinc_inspiral.coinc_event_id)
	WHERE coinc_event.time_slide_id = ?`

const slidSQL = `
	SELECT sngl_inspiral.end_time + sngl_inspiral.end_time_ns * 1.0e-9,
		time_slide.offset, sngl_inspiral.ifo, coinc_event.coinc_event_id,
		sngl_inspiral.snr, sngl_inspiral.chisq, coinc_inspiral.combined_far
	FROM sngl_inspiral
	JOIN coinc_event_map ON (coinc_event_map.table_name = 'sngl_inspiral'
		AND coinc_event_map.event_id = sngl_inspiral.event_id)
	JOIN coinc_event ON (coinc_event.coinc_event_id = coinc_event_map.coinc_event_id)
	JOIN time_slide ON (time_slide.time_slide_id = coinc_event.time_slide_id
		AND time_slide.instrument = sngl_inspiral.ifo)
	JOIN coinc_inspiral ON (coinc_inspiral.coinc_event_id = coinc_event.coinc_event_id)
	WHERE coinc_event.time_slide_id != ?`

const ringSQL = `
	SELECT search_summary.out_start_time, search_summary.out_end_time
	FROM search_summary
	JOIN process ON process.process_id = search_summary.process_id
	WHERE process.program = 'thinca'`

const orderBy = " ORDER BY coinc_event.coinc_event_id, sngl_inspiral.ifo"

// trigger is one single-instrument row of a coincidence.
type trigger struct {
	coinc int64
	ifo   string
	time  float64
	slide float64
	snr   float64
	chisq float64
	cfar  float64
}

// ZeroLag returns the unshifted coincidences, ascending by coinc id.
func (d *DB) ZeroLag(ctx context.Context, q Query) ([]event.Event, error) {
	stmt, args := q.where(zeroLagSQL, []any{ZeroLagSlide})
	rows, err := d.db.QueryContext(ctx, d.rebind(stmt+orderBy), args...)
	if err != nil {
		return nil, fmt.Errorf("query zero-lag coincidences: %w", err)
	}
	defer rows.Close()

	var trigs []trigger
	for rows.Next() {
		var tr trigger
		var id string
		if err := rows.Scan(&tr.time, &tr.ifo, &id, &tr.snr, &tr.chisq, &tr.cfar); err != nil {
			return nil, fmt.Errorf("scan coincidence: %w", err)
		}
		if tr.coinc, err = coincID(id); err != nil {
			return nil, err
		}
		trigs = append(trigs, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coincidences: %w", err)
	}
	return d.collect(trigs, q.Dump)
}

// TimeSlides returns the background coincidences with their times slid
// onto the analysed segment ring, ascending by coinc id.
func (d *DB) TimeSlides(ctx context.Context, q Query) ([]event.Event, error) {
	ring, err := d.ring(ctx)
	if err != nil {
		return nil, err
	}

	stmt, args := q.where(slidSQL, []any{ZeroLagSlide})
	rows, err := d.db.QueryContext(ctx, d.rebind(stmt+orderBy), args...)
	if err != nil {
		return nil, fmt.Errorf("query slid coincidences: %w", err)
	}
	defer rows.Close()

	var trigs []trigger
	for rows.Next() {
		var tr trigger
		var id string
		var offset float64
		if err := rows.Scan(&tr.time, &offset, &tr.ifo, &id, &tr.snr, &tr.chisq, &tr.cfar); err != nil {
			return nil, fmt.Errorf("scan coincidence: %w", err)
		}
		if tr.coinc, err = coincID(id); err != nil {
			return nil, err
		}
		seg, ok := ringFor(ring, tr.time)
		if !ok {
			return nil, fmt.Errorf("coinc %d: %s trigger at %s lies outside every analysed segment",
				tr.coinc, tr.ifo, job.FormatFloat(tr.time))
		}
		slid := SlideOnRing(tr.time, offset, seg[0], seg[1])
		tr.slide = slid - tr.time
		tr.time = slid
		trigs = append(trigs, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coincidences: %w", err)
	}
	return d.collect(trigs, q.Dump)
}

// ring returns the distinct analysed segments.
func (d *DB) ring(ctx context.Context) ([][2]float64, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(ringSQL))
	if err != nil {
		return nil, fmt.Errorf("query analysed segments: %w", err)
	}
	defer rows.Close()

	var out [][2]float64
	for rows.Next() {
		var s [2]float64
		if err := rows.Scan(&s[0], &s[1]); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return out, nil
}

func ringFor(ring [][2]float64, t float64) ([2]float64, bool) {
	for _, s := range ring {
		if s[0] <= t && t < s[1] {
			return s, true
		}
	}
	return [2]float64{}, false
}

// SlideOnRing shifts t by slide on the ring [start, end), wrapping past
// either end.
func SlideOnRing(t, slide, start, end float64) float64 {
	length := end - start
	r := math.Mod(t+slide-start, length)
	if r < 0 {
		r += length
	}
	return start + r
}

// collect groups triggers into events. The first trigger of a
// coincidence fixes its time.
func (d *DB) collect(trigs []trigger, dump io.Writer) ([]event.Event, error) {
	byID := make(map[int64]*event.Event)
	var order []int64
	for _, tr := range trigs {
		ev, ok := byID[tr.coinc]
		if !ok {
			e := event.NewEvent(tr.coinc, tr.time)
			e.TimeSlides = make(map[string]float64)
			ev = &e
			byID[tr.coinc] = ev
			order = append(order, tr.coinc)
		}
		ev.TimeSlides[tr.ifo] = tr.slide
		ev.IFOs = append(ev.IFOs, tr.ifo)
	}
	slices.Sort(order)

	if dump != nil {
		sorted := slices.Clone(trigs)
		slices.SortStableFunc(sorted, func(a, b trigger) int { return cmp.Compare(a.coinc, b.coinc) })
		for _, tr := range sorted {
			ev := byID[tr.coinc]
			trig, _ := ev.Time()
			if _, err := fmt.Fprintf(dump, "%d %s %s %s %s %s %s\n", tr.coinc, tr.ifo,
				job.FormatFloat(trig), job.FormatFloat(tr.slide),
				job.FormatFloat(tr.snr), job.FormatFloat(tr.chisq), job.FormatFloat(tr.cfar)); err != nil {
				return nil, fmt.Errorf("write trigger dump: %w", err)
			}
		}
	}

	out := make([]event.Event, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	d.logger.Debug("read coincidences", "events", len(out), "triggers", len(trigs))
	return out, nil
}

// coincID parses the integer suffix of "coinc_event:coinc_event_id:N".
func coincID(s string) (int64, error) {
	i := strings.LastIndexByte(s, ':')
	n, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("coinc event id %q: %w", s, err)
	}
	return n, nil
}
