package event

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var timeLine = regexp.MustCompile(`^[\d.]+`)

// ScanTimeFile reads one GPS time per line. Lines not starting with a digit
// or period are ignored; duplicate times are logged and dropped.
func ScanTimeFile(path string, logger *slog.Logger) ([]float64, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open time file: %w", err)
	}
	defer f.Close()

	var times []float64
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if !timeLine.MatchString(line) {
			continue
		}
		t, err := strconv.ParseFloat(strings.Fields(line)[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if slices.Contains(times, t) {
			logger.Warn("skipping duplicate time", "time", t, "line", lineNo)
			continue
		}
		logger.Debug("read time", "time", t)
		times = append(times, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return times, nil
}

// TimeFile is the explicit timestamp list source.
type TimeFile struct {
	Path   string
	IDs    *IDs
	Logger *slog.Logger
}

// Events implements Source.
func (s TimeFile) Events(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	times, err := ScanTimeFile(s.Path, s.Logger)
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(times))
	for _, t := range times {
		out = append(out, NewEvent(s.IDs.Next(), t))
	}
	return out, nil
}

// ReadTimeSlides reads a time-slide file. The header row names the
// instruments; each later row gives one event's integer shifts. Columns may
// appear in any order but must name exactly the configured instruments.
func ReadTimeSlides(path string, ifos []string) ([]map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open timeslide file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return nil, fmt.Errorf("%s: missing header row", path)
	}
	header := strings.Fields(scanner.Text())
	column := make(map[string]int, len(header))
	for i, ifo := range header {
		column[ifo] = i
	}
	if len(column) != len(ifos) {
		return nil, fmt.Errorf("%s: header names %d instruments, configuration has %d", path, len(column), len(ifos))
	}
	for _, ifo := range ifos {
		if _, ok := column[ifo]; !ok {
			return nil, fmt.Errorf("%s: header %v does not name instrument %s", path, header, ifo)
		}
	}

	var out []map[string]float64
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != len(header) {
			return nil, fmt.Errorf("%s:%d: expected %d columns, got %d", path, lineNo, len(header), len(fields))
		}
		row := make(map[string]float64, len(ifos))
		for _, ifo := range ifos {
			v, err := strconv.Atoi(fields[column[ifo]])
			if err != nil {
				return nil, fmt.Errorf("%s:%d: %s shift: %w", path, lineNo, ifo, err)
			}
			row[ifo] = float64(v)
		}
		out = append(out, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}
