package segment

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ReadSegwizard parses a segwizard-format segment list.
//
// Lines starting with '#' and blank lines are ignored. Data lines hold
// either "start end" or "id start end duration" columns. The returned list
// is coalesced.
func ReadSegwizard(r io.Reader) (List, error) {
	var out List
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)

		var startField, endField string
		switch len(fields) {
		case 2:
			startField, endField = fields[0], fields[1]
		case 4:
			startField, endField = fields[1], fields[2]
		default:
			return nil, fmt.Errorf("line %d: expected 2 or 4 columns, got %d", lineNo, len(fields))
		}

		start, err := strconv.ParseFloat(startField, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: start time: %w", lineNo, err)
		}
		end, err := strconv.ParseFloat(endField, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: end time: %w", lineNo, err)
		}
		if end <= start {
			return nil, fmt.Errorf("line %d: segment end %g is not after start %g", lineNo, end, start)
		}
		out = append(out, Segment{Start: start, End: end})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading segments: %w", err)
	}
	return out.Coalesce(), nil
}

// ReadSegwizardFile opens path and parses it with ReadSegwizard.
func ReadSegwizardFile(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment file: %w", err)
	}
	defer f.Close()

	list, err := ReadSegwizard(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}
