package alert

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = `
gid: G184098
psd_srate: 2048
coincs:
  - end_time: 1126259462.4
    snr: 23.7
    ifos: [H1, L1]
    duration: 8
    srate: 4096
  - end_time: 1126259470
    snr: 4
    ifos: [H1]
    duration: 4
    srate: 1024
`

func TestEvents(t *testing.T) {
	a, err := Decode([]byte(payload))
	require.NoError(t, err)

	events, err := a.Events("G184098", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	ev := events[0]
	assert.Equal(t, int64(184098), ev.ID)
	assert.Equal(t, "G184098", ev.GID)
	assert.Equal(t, []string{"H1", "L1"}, ev.IFOs)
	assert.Equal(t, 8.0, ev.Duration)
	assert.Equal(t, 23.7, ev.TrigSNR)
	// Capped to the PSD rate.
	assert.Equal(t, 2048.0, ev.SRate)
	assert.InDelta(t, 972.8, ev.FHigh, 1e-9)

	assert.Equal(t, int64(184099), events[1].ID)
	assert.Equal(t, 1024.0, events[1].SRate)
	assert.Zero(t, events[1].FHigh)
}

func TestEventsThreshold(t *testing.T) {
	a, err := Decode([]byte(payload))
	require.NoError(t, err)
	events, err := a.Events("G184098", 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 23.7, events[0].TrigSNR)
}

func TestParseGID(t *testing.T) {
	n, err := ParseGID("T12345")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), n)

	_, err = ParseGID("G")
	require.Error(t, err)
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode([]byte("gid: G1\n"))
	require.Error(t, err)
}

type stubFetcher struct{ a *Alert }

func (s stubFetcher) Fetch(ctx context.Context, gid string) (*Alert, error) {
	return s.a, nil
}

func TestSource(t *testing.T) {
	a, err := Decode([]byte(payload))
	require.NoError(t, err)
	events, err := Source{Fetcher: stubFetcher{a}, GID: "G184098", SNRThreshold: 10}.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
}

// writeClient writes a fake client script that copies the payload to the
// requested file.
func writeClient(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell client")
	}
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.yaml")
	require.NoError(t, os.WriteFile(src, []byte(payload), 0o644))
	client := filepath.Join(dir, "gracedb")
	script := fmt.Sprintf("#!/bin/sh\n%s\n", fmt.Sprintf(body, src))
	require.NoError(t, os.WriteFile(client, []byte(script), 0o755))
	return client
}

func TestCommandFetcher(t *testing.T) {
	client := writeClient(t, `[ "$1" = download ] || exit 2; cp %s "$3"`)
	f := CommandFetcher{Client: client, Dir: t.TempDir(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	a, err := f.Fetch(context.Background(), "G184098")
	require.NoError(t, err)
	assert.Len(t, a.Coincs, 2)
	assert.Equal(t, 2048.0, a.PSDSampleRate)
}

func TestCommandFetcherFailure(t *testing.T) {
	client := writeClient(t, `echo "no such event %s" >&2; exit 1`)
	f := CommandFetcher{Client: client, Dir: t.TempDir(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	_, err := f.Fetch(context.Background(), "G1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such event")
}
