// Package datafind locates the frame data an instrument needs for an
// interval. Locators only compute names; the DataPrep job that runs the
// real lookup is a graph node.
package datafind

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Location is the result of a data lookup: the cache file the DataPrep
// job writes and, in distributed-replica mode, the frame files it covers.
type Location struct {
	Cache  string  `json:"cache"`
	Frames []Frame `json:"frames,omitempty"`
}

// Locator resolves (instrument, frame type, interval) to a Location.
type Locator interface {
	Locate(ifo, frameType string, start, end int64) (Location, error)
}

// Frame is a frame file named OBS-TYPE-START-DURATION.ext.
type Frame struct {
	Path        string `json:"path"`
	Observatory string `json:"observatory"`
	Type        string `json:"type"`
	Start       int64  `json:"start"`
	Duration    int64  `json:"duration"`
}

// End returns Start + Duration.
func (f Frame) End() int64 {
	return f.Start + f.Duration
}

// Overlaps reports whether the frame holds data in [start, end].
func (f Frame) Overlaps(start, end float64) bool {
	return float64(f.Start) <= end && float64(f.End()) > start
}

// ParseFrameName parses a frame file path following the
// OBS-TYPE-START-DURATION naming convention.
func ParseFrameName(path string) (Frame, error) {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	parts := strings.Split(base, "-")
	if len(parts) != 4 {
		return Frame{}, fmt.Errorf("frame name %q: expected OBS-TYPE-START-DURATION", path)
	}
	start, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Frame{}, fmt.Errorf("frame name %q: start: %w", path, err)
	}
	dur, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Frame{}, fmt.Errorf("frame name %q: duration: %w", path, err)
	}
	return Frame{Path: path, Observatory: parts[0], Type: parts[1], Start: start, Duration: dur}, nil
}

// CacheName returns <dir>/<obs>-<type>_CACHE-<start>-<duration>.lcf, where
// obs is the first letter of ifo.
func CacheName(dir, ifo, frameType string, start, end int64) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%s_CACHE-%d-%d.lcf", Observatory(ifo), frameType, start, end-start))
}

// Observatory returns the site letter of an instrument name.
func Observatory(ifo string) string {
	if ifo == "" {
		return ""
	}
	return ifo[:1]
}

// CacheLocator names cache files under Dir.
type CacheLocator struct {
	Dir string
}

// Locate implements Locator.
func (l CacheLocator) Locate(ifo, frameType string, start, end int64) (Location, error) {
	if end <= start {
		return Location{}, fmt.Errorf("datafind %s: empty interval [%d, %d)", ifo, start, end)
	}
	return Location{Cache: CacheName(l.Dir, ifo, frameType, start, end)}, nil
}

// LFNLocator serves distributed-replica mode: besides the cache name it
// returns the known frame files overlapping the interval.
type LFNLocator struct {
	Dir    string
	Frames map[string][]Frame
}

// NewLFNLocator parses the frame file names listed per instrument.
func NewLFNLocator(dir string, files map[string][]string) (*LFNLocator, error) {
	l := &LFNLocator{Dir: dir, Frames: make(map[string][]Frame, len(files))}
	for ifo, paths := range files {
		for _, p := range paths {
			f, err := ParseFrameName(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ifo, err)
			}
			l.Frames[ifo] = append(l.Frames[ifo], f)
		}
	}
	return l, nil
}

// Locate implements Locator. An empty frame set is an error.
func (l *LFNLocator) Locate(ifo, frameType string, start, end int64) (Location, error) {
	loc, err := CacheLocator{Dir: l.Dir}.Locate(ifo, frameType, start, end)
	if err != nil {
		return Location{}, err
	}
	for _, f := range l.Frames[ifo] {
		if f.Type == frameType && f.Overlaps(float64(start), float64(end)) {
			loc.Frames = append(loc.Frames, f)
		}
	}
	if len(loc.Frames) == 0 {
		return Location{}, fmt.Errorf("datafind %s: no %s frames for [%d, %d)", ifo, frameType, start, end)
	}
	return loc, nil
}

// ReadFrameList reads one frame path per line, skipping blanks and '#'
// comments.
func ReadFrameList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame list: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}
