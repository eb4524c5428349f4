package event

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CatalogueKind tells which prior-analysis table a catalogue holds.
type CatalogueKind string

const (
	CatalogueInjection CatalogueKind = "injection"
	CatalogueSngl      CatalogueKind = "sngl-inspiral"
	CatalogueCoinc     CatalogueKind = "coinc-inspiral"
)

// CatalogueRow is one entry of an event catalogue file.
type CatalogueRow struct {
	EndTime float64  `yaml:"end_time"`
	ID      *int64   `yaml:"id,omitempty"`
	IFOs    []string `yaml:"ifos,omitempty"`
	SNR     float64  `yaml:"snr,omitempty"`
}

type catalogueFile struct {
	Events []CatalogueRow `yaml:"events"`
}

// ReadCatalogue decodes a YAML catalogue of the form
//
//	events:
//	  - end_time: 966384015.5
//	    id: 3
//	    ifos: [H1, L1]
//	    snr: 12.1
func ReadCatalogue(path string) ([]CatalogueRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalogue: %w", err)
	}
	var doc catalogueFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalogue %s: %w", path, err)
	}
	for i, row := range doc.Events {
		if row.EndTime <= 0 {
			return nil, fmt.Errorf("catalogue %s: entry %d has no end_time", path, i)
		}
	}
	return doc.Events, nil
}

// Catalogue is an injection or trigger catalogue source. Rows without an
// id get one from IDs.
type Catalogue struct {
	Path string
	Kind CatalogueKind
	IDs  *IDs
	// Slides, when set, gives each row's time slides and must have one
	// entry per row.
	Slides []map[string]float64
}

// Events implements Source.
func (s Catalogue) Events(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := ReadCatalogue(s.Path)
	if err != nil {
		return nil, err
	}
	if s.Slides != nil && len(s.Slides) != len(rows) {
		return nil, fmt.Errorf("%d timeslide rows for %d %s catalogue entries in %s",
			len(s.Slides), len(rows), s.Kind, s.Path)
	}

	out := make([]Event, 0, len(rows))
	for i, row := range rows {
		id := int64(0)
		if row.ID != nil {
			id = *row.ID
		} else {
			id = s.IDs.Next()
		}
		ev := NewEvent(id, row.EndTime)
		ev.IFOs = row.IFOs
		ev.TrigSNR = row.SNR
		if s.Slides != nil {
			ev.TimeSlides = s.Slides[i]
		}
		out = append(out, ev)
	}
	return out, nil
}
