package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoSegments() *Resolver {
	return NewResolver(map[string]List{
		"H1": {{Start: 0, End: 100}, {Start: 150, End: 300}},
	})
}

func TestResolveContributesWithoutShift(t *testing.T) {
	res, err := twoSegments().Resolve(Request{
		TrigTime:  80,
		SegLen:    32,
		MaxLength: 1024,
		IFOs:      []string{"H1"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"H1"}, res.IFOs)
	assert.Equal(t, 50.0, res.WindowStart)
	assert.Equal(t, 82.0, res.WindowEnd)
	assert.GreaterOrEqual(t, res.WindowStart, 0.0)
	assert.Less(t, res.WindowEnd, 100.0)
	assert.Equal(t, 0.0, res.CommonStart)
	assert.Equal(t, 100.0, res.CommonEnd)
	assert.Equal(t, 0.0, res.PSDStart)
	assert.Equal(t, 67.0, res.PSDLength)
}

func TestResolveExcludesShiftedInstrument(t *testing.T) {
	_, err := twoSegments().Resolve(Request{
		TrigTime:  80,
		SegLen:    32,
		MaxLength: 1024,
		IFOs:      []string{"H1"},
		Slides:    map[string]float64{"H1": 60},
	})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestResolvePartialInstrumentSet(t *testing.T) {
	r := NewResolver(map[string]List{
		"H1": {{Start: 0, End: 1000}},
		"L1": {{Start: 500, End: 600}},
		"V1": {{Start: 100, End: 900}},
	})
	res, err := r.Resolve(Request{
		TrigTime:  400,
		SegLen:    8,
		Padding:   2,
		MaxLength: 4096,
		IFOs:      []string{"H1", "L1", "V1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"H1", "V1"}, res.IFOs)
	assert.Equal(t, 100.0, res.CommonStart)
	assert.Equal(t, 900.0, res.CommonEnd)
	assert.Equal(t, 900.0-100-4-8-1, res.PSDLength)
	_, _, ok := res.DataSpan("L1")
	assert.False(t, ok)
}

func TestResolveSlideMovesCommonWindow(t *testing.T) {
	r := NewResolver(map[string]List{
		"H1": {{Start: 0, End: 1000}},
		"L1": {{Start: 0, End: 1000}},
	})
	res, err := r.Resolve(Request{
		TrigTime:  500,
		SegLen:    16,
		MaxLength: 4096,
		IFOs:      []string{"H1", "L1"},
		Slides:    map[string]float64{"L1": 100},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.CommonStart)
	assert.Equal(t, 900.0, res.CommonEnd)
	assert.Equal(t, 100.0, res.Slide("L1"))
}

func TestResolveMaxLengthAdvancesStart(t *testing.T) {
	r := NewResolver(map[string]List{"H1": {{Start: 0, End: 10000}}})
	res, err := r.Resolve(Request{
		TrigTime:  5000,
		SegLen:    8,
		MaxLength: 1024,
		IFOs:      []string{"H1"},
	})
	require.NoError(t, err)
	// Half-window steps of 512 until start+1024 reaches the trigger.
	assert.Equal(t, 4096.0, res.PSDStart)
	assert.Equal(t, 1024.0, res.PSDLength)
	assert.False(t, res.StartOverridden)
}

func TestResolveStartOverride(t *testing.T) {
	inside := 40.0
	res, err := twoSegments().Resolve(Request{
		TrigTime:  80,
		SegLen:    32,
		MaxLength: 1024,
		PSDStart:  &inside,
		IFOs:      []string{"H1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 40.0, res.PSDStart)
	assert.True(t, res.StartOverridden)
	assert.False(t, res.OverrideOutside)

	outside := -500.0
	length := 64.0
	res, err = twoSegments().Resolve(Request{
		TrigTime:  80,
		SegLen:    32,
		MaxLength: 1024,
		PSDStart:  &outside,
		PSDLength: &length,
		IFOs:      []string{"H1"},
	})
	require.NoError(t, err)
	assert.Equal(t, -500.0, res.PSDStart)
	assert.Equal(t, 64.0, res.PSDLength)
	assert.True(t, res.OverrideOutside)
}

func TestDataSpanClipsToSegment(t *testing.T) {
	res, err := NewResolver(map[string]List{"H1": {{Start: 10, End: 100}}}).Resolve(Request{
		TrigTime:  80,
		SegLen:    32,
		Padding:   4,
		MaxLength: 1024,
		IFOs:      []string{"H1"},
	})
	require.NoError(t, err)
	start, end, ok := res.DataSpan("H1")
	require.True(t, ok)
	assert.Equal(t, 10.0, start)
	assert.Equal(t, 86.0, end)
}

func TestResolveRejectsZeroSeglen(t *testing.T) {
	_, err := twoSegments().Resolve(Request{TrigTime: 80, IFOs: []string{"H1"}})
	require.Error(t, err)
}
