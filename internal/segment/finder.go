package segment

import (
	"context"
	"fmt"
	"slices"
)

// Finder looks up the coalesced Science Segments of one instrument.
// Implementations read their data once; the builder never calls a Finder
// while it is constructing nodes.
type Finder interface {
	Find(ctx context.Context, ifo string, categories []int) (List, error)
}

// FileFinder reads science segments from per-instrument segwizard files and
// removes the veto segments of the requested categories.
type FileFinder struct {
	// Science maps instrument to its science segment file.
	Science map[string]string
	// Vetoes maps veto category to instrument to veto segment file.
	Vetoes map[int]map[string]string
}

// Find implements Finder.
func (f *FileFinder) Find(ctx context.Context, ifo string, categories []int) (List, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, ok := f.Science[ifo]
	if !ok {
		return nil, fmt.Errorf("no segment file configured for %s", ifo)
	}
	list, err := ReadSegwizardFile(path)
	if err != nil {
		return nil, err
	}

	cats := slices.Clone(categories)
	slices.Sort(cats)
	for _, cat := range cats {
		vetoPath, ok := f.Vetoes[cat][ifo]
		if !ok {
			continue
		}
		veto, err := ReadSegwizardFile(vetoPath)
		if err != nil {
			return nil, fmt.Errorf("category %d vetoes: %w", cat, err)
		}
		list = list.Subtract(veto)
	}
	return list, nil
}

// SpanFinder treats a fixed interval as science data for every instrument.
type SpanFinder struct {
	Start, End float64
}

// Find implements Finder.
func (f SpanFinder) Find(ctx context.Context, ifo string, _ []int) (List, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.End <= f.Start {
		return nil, fmt.Errorf("span for %s is empty: [%g, %g)", ifo, f.Start, f.End)
	}
	return List{{Start: f.Start, End: f.End}}, nil
}

// FindAll runs finder for each instrument and returns the lists by name.
func FindAll(ctx context.Context, finder Finder, ifos []string, categories []int) (map[string]List, error) {
	out := make(map[string]List, len(ifos))
	for _, ifo := range ifos {
		list, err := finder.Find(ctx, ifo, categories)
		if err != nil {
			return nil, fmt.Errorf("segments for %s: %w", ifo, err)
		}
		out[ifo] = list
	}
	return out, nil
}
