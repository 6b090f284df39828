package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner returns canned output and records the identity it was invoked
// with.
type fakeRunner struct {
	out    string
	err    error
	lastID Identity
}

func (f *fakeRunner) Run(_ context.Context, id Identity, _ string, _ ...string) (string, error) {
	f.lastID = id
	return f.out, f.err
}

func fakeProcWithEngine(t *testing.T, comms ...string) string {
	t.Helper()
	root := t.TempDir()
	for i, comm := range comms {
		dir := filepath.Join(root, strconv.Itoa(100+i))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(comm+"\n"), 0o644))
	}
	return root
}

const driverParamsOutput = `--- get driver parameters
	device: (str:hw:USB) hw:USB
	rate: (uint:48000:48000) 48000
	period: (uint:1024:256) 256
	nperiods: (uint:2:2) 2
`

func TestCurrentSettingsEngineRunning(t *testing.T) {
	proc := fakeProcWithEngine(t, "jackdbus", "firefox")
	runner := &fakeRunner{out: driverParamsOutput}

	p := New(
		WithProcRoot(proc),
		WithRunner(runner),
		WithIdentityResolver(func() Identity { return Identity{} }),
	)

	got := p.CurrentSettings(context.Background())
	assert.Equal(t, Settings{
		Active:       true,
		BufferFrames: 256,
		SampleRateHz: 48000,
		Periods:      2,
	}, got)
}

func TestCurrentSettingsEngineNotRunning(t *testing.T) {
	proc := fakeProcWithEngine(t, "firefox", "systemd")
	runner := &fakeRunner{out: driverParamsOutput}

	p := New(WithProcRoot(proc), WithRunner(runner),
		WithIdentityResolver(func() Identity { return Identity{} }))

	got := p.CurrentSettings(context.Background())
	assert.Equal(t, Settings{}, got)
}

func TestCurrentSettingsQueryFailureIsUnknownNotError(t *testing.T) {
	proc := fakeProcWithEngine(t, "jackd")
	runner := &fakeRunner{err: errors.New("dbus session unreachable")}

	p := New(WithProcRoot(proc), WithRunner(runner),
		WithIdentityResolver(func() Identity { return Identity{} }))

	got := p.CurrentSettings(context.Background())
	assert.True(t, got.Active)
	assert.Zero(t, got.BufferFrames)
	assert.Zero(t, got.SampleRateHz)
	assert.Zero(t, got.Periods)
}

func TestCurrentSettingsUsesResolvedIdentity(t *testing.T) {
	proc := fakeProcWithEngine(t, "jackdbus")
	runner := &fakeRunner{out: driverParamsOutput}
	want := Identity{Username: "alice", UID: "1000"}

	p := New(WithProcRoot(proc), WithRunner(runner),
		WithIdentityResolver(func() Identity { return want }))

	_ = p.CurrentSettings(context.Background())
	assert.Equal(t, want, runner.lastID)
}

func TestParseDriverParams(t *testing.T) {
	tests := []struct {
		name                  string
		out                   string
		buffer, rate, periods int
	}{
		{
			name:    "paren format",
			out:     driverParamsOutput,
			buffer:  256,
			rate:    48000,
			periods: 2,
		},
		{
			name:    "colon format",
			out:     "rate: u32:set:96000:96000\nperiod: u32:set:128:128\nnperiods: u32:set:3:3\n",
			buffer:  128,
			rate:    96000,
			periods: 3,
		},
		{
			name:   "partial output leaves unknowns",
			out:    "rate: (uint:48000:48000) 44100\n",
			buffer: 0, rate: 44100, periods: 0,
		},
		{
			name: "garbage yields all unknown",
			out:  "no driver loaded\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer, rate, periods := parseDriverParams(tt.out)
			assert.Equal(t, tt.buffer, buffer)
			assert.Equal(t, tt.rate, rate)
			assert.Equal(t, tt.periods, periods)
		})
	}
}

func TestIdentityIsSet(t *testing.T) {
	assert.False(t, Identity{}.IsSet())
	assert.True(t, Identity{Username: "alice", UID: "1000"}.IsSet())
}
