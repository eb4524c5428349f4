package builder

import (
	"math"
	"slices"

	"github.com/WuShichao/lalsuite/internal/config"
)

// RequiredData returns the interval of data all events need: from the
// earliest window start, less padding and a PSD estimate of 32 segment
// lengths, to the latest window end plus padding. The PSD estimate is
// zero when PSD files are supplied.
func RequiredData(cfg *config.Config, times []float64) (start, end float64) {
	if len(times) == 0 {
		return 0, 0
	}
	seglen := cfg.SegLen()
	padding := cfg.Input.Padding
	psdlength := 32 * seglen
	if len(cfg.LALInference.PSDFiles) > 0 {
		psdlength = 0
	}
	return slices.Min(times) - padding - seglen - psdlength + 2, slices.Max(times) + padding + 2
}

// Bounds returns the run's GPS bounds: input.gps-start-time and
// input.gps-end-time when set, else RequiredData rounded outward.
func Bounds(cfg *config.Config, times []float64) (start, end int64) {
	lo, hi := RequiredData(cfg, times)
	start, end = int64(math.Floor(lo)), int64(math.Ceil(hi))
	if cfg.Input.GPSStart != nil {
		start = int64(math.Floor(*cfg.Input.GPSStart))
	}
	if cfg.Input.GPSEnd != nil {
		end = int64(math.Ceil(*cfg.Input.GPSEnd))
	}
	return start, end
}
