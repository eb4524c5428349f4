// Package alert fetches candidate events from the low-latency alert
// service by running its command-line client.
package alert

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/WuShichao/lalsuite/internal/event"
)

// PayloadFile is the file the client downloads for an alert.
const PayloadFile = "coinc.yaml"

// Alert is a decoded alert payload.
type Alert struct {
	GID    string  `yaml:"gid"`
	Coincs []Coinc `yaml:"coincs"`
	// PSDSampleRate is the rate implied by the PSD attached to the alert;
	// zero when no PSD was attached.
	PSDSampleRate float64 `yaml:"psd_srate"`
}

// Coinc is one coincidence of an alert.
type Coinc struct {
	EndTime  float64  `yaml:"end_time"`
	SNR      float64  `yaml:"snr"`
	IFOs     []string `yaml:"ifos"`
	Duration float64  `yaml:"duration"`
	SRate    float64  `yaml:"srate"`
}

// Events converts the coincidences above snrThreshold into events. The id
// is the numeric part of the GID, offset by the coincidence index. The
// sample rate is capped at the PSD rate, in which case fhigh is set just
// below its Nyquist frequency.
func (a *Alert) Events(gid string, snrThreshold float64) ([]event.Event, error) {
	base, err := ParseGID(gid)
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for i, c := range a.Coincs {
		if c.SNR <= snrThreshold {
			continue
		}
		ev := event.NewEvent(base+int64(i), c.EndTime)
		ev.GID = gid
		ev.IFOs = c.IFOs
		ev.Duration = c.Duration
		ev.TrigSNR = c.SNR
		ev.SRate = c.SRate
		if a.PSDSampleRate > 0 && (c.SRate == 0 || c.SRate >= a.PSDSampleRate) {
			ev.SRate = a.PSDSampleRate
			ev.FHigh = a.PSDSampleRate / 2 * 0.95
		}
		out = append(out, ev)
	}
	return out, nil
}

// ParseGID returns the digits of a GID such as "G184098".
func ParseGID(gid string) (int64, error) {
	digits := strings.TrimLeftFunc(gid, func(r rune) bool { return !unicode.IsDigit(r) })
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("gid %q has no numeric part", gid)
	}
	return n, nil
}

// Decode parses an alert payload.
func Decode(data []byte) (*Alert, error) {
	var a Alert
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode alert: %w", err)
	}
	if len(a.Coincs) == 0 {
		return nil, fmt.Errorf("alert has no coincidences")
	}
	return &a, nil
}

// Fetcher retrieves an alert by GID.
type Fetcher interface {
	Fetch(ctx context.Context, gid string) (*Alert, error)
}

// CommandFetcher runs "<Client> download <gid> coinc.yaml" in Dir and
// decodes the downloaded file.
type CommandFetcher struct {
	Client string
	Dir    string
	Logger *slog.Logger
}

// Fetch implements Fetcher.
func (f CommandFetcher) Fetch(ctx context.Context, gid string) (*Alert, error) {
	logger := f.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.CommandContext(ctx, f.Client, "download", gid, PayloadFile)
	cmd.Dir = f.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	logger.Info("downloading alert", "client", f.Client, "gid", gid)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s download %s: %w: %s", f.Client, gid, err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(filepath.Join(f.Dir, PayloadFile))
	if err != nil {
		return nil, fmt.Errorf("read alert: %w", err)
	}
	a, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", gid, err)
	}
	logger.Info("found coincidences", "gid", gid, "count", len(a.Coincs))
	return a, nil
}

// Source is an event.Source over one alert.
type Source struct {
	Fetcher      Fetcher
	GID          string
	SNRThreshold float64
}

// Events implements event.Source.
func (s Source) Events(ctx context.Context) ([]event.Event, error) {
	a, err := s.Fetcher.Fetch(ctx, s.GID)
	if err != nil {
		return nil, err
	}
	return a.Events(s.GID, s.SNRThreshold)
}
