package builder

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// SeedSource hands out engine random seeds in [1, 2^31].
type SeedSource interface {
	Seed() int64
}

// pcgSeeds draws seeds from a PCG stream.
type pcgSeeds struct {
	r *rand.Rand
}

// NewSeedSource returns a reproducible seed stream for seed.
func NewSeedSource(seed uint64) SeedSource {
	return &pcgSeeds{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *pcgSeeds) Seed() int64 {
	return 1 + s.r.Int64N(1<<31)
}

func defaultSeeds(seed *int64) SeedSource {
	if seed != nil {
		return NewSeedSource(uint64(*seed))
	}
	return NewSeedSource(uint64(time.Now().UnixNano()))
}

// RunIDGenerator names a run.
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
