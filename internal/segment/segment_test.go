package segment

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalesce(t *testing.T) {
	in := List{
		{Start: 150, End: 300},
		{Start: 0, End: 50},
		{Start: 40, End: 100},
		{Start: 100, End: 120},
		{Start: 500, End: 500},
	}
	out := in.Coalesce()
	assert.Equal(t, List{
		{ID: 0, Start: 0, End: 120},
		{ID: 1, Start: 150, End: 300},
	}, out)
}

func TestSubtract(t *testing.T) {
	sci := List{{Start: 0, End: 100}, {Start: 200, End: 300}}
	veto := List{{Start: 10, End: 20}, {Start: 90, End: 210}, {Start: 250, End: 260}}
	out := sci.Subtract(veto)
	assert.Equal(t, List{
		{ID: 0, Start: 0, End: 10},
		{ID: 1, Start: 20, End: 90},
		{ID: 2, Start: 210, End: 250},
		{ID: 3, Start: 260, End: 300},
	}, out)
}

func TestCoveringUpperBoundStrict(t *testing.T) {
	l := List{{Start: 0, End: 100}}
	_, ok := l.Covering(68, 100)
	assert.False(t, ok)
	seg, ok := l.Covering(0, 99.5)
	assert.True(t, ok)
	assert.Equal(t, 100.0, seg.End)
}

func TestReadSegwizard(t *testing.T) {
	src := `# seg start stop duration
0 100 200 100
1 150 250 100

2 400 500 100
`
	list, err := ReadSegwizard(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, List{
		{ID: 0, Start: 100, End: 250},
		{ID: 1, Start: 400, End: 500},
	}, list)

	list, err = ReadSegwizard(strings.NewReader("10 20\n30 40\n"))
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestReadSegwizardErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"columns", "1 2 3\n", "expected 2 or 4 columns"},
		{"start", "x 20\n", "start time"},
		{"end", "10 y\n", "end time"},
		{"reversed", "20 10\n", "not after start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSegwizard(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFileFinderAppliesVetoes(t *testing.T) {
	dir := t.TempDir()
	sci := filepath.Join(dir, "H1-sci.txt")
	cat2 := filepath.Join(dir, "H1-cat2.txt")
	cat4 := filepath.Join(dir, "H1-cat4.txt")
	require.NoError(t, os.WriteFile(sci, []byte("0 1000\n"), 0o644))
	require.NoError(t, os.WriteFile(cat2, []byte("100 200\n"), 0o644))
	require.NoError(t, os.WriteFile(cat4, []byte("500 600\n"), 0o644))

	f := &FileFinder{
		Science: map[string]string{"H1": sci},
		Vetoes: map[int]map[string]string{
			2: {"H1": cat2},
			4: {"H1": cat4},
		},
	}

	list, err := f.Find(context.Background(), "H1", []int{2})
	require.NoError(t, err)
	assert.Equal(t, List{{ID: 0, Start: 0, End: 100}, {ID: 1, Start: 200, End: 1000}}, list)

	_, err = f.Find(context.Background(), "L1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "L1")
}

func TestFindAllSpan(t *testing.T) {
	segs, err := FindAll(context.Background(), SpanFinder{Start: 10, End: 20}, []string{"H1", "V1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, List{{Start: 10, End: 20}}, segs["V1"])

	_, err = FindAll(context.Background(), SpanFinder{Start: 20, End: 20}, []string{"H1"}, nil)
	require.Error(t, err)
}
