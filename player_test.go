package main

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlayer records every call. Setting fail makes the next calls error.
type fakePlayer struct {
	mu    sync.Mutex
	calls []string
	fail  error
}

func (f *fakePlayer) record(format string, a ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, fmt.Sprintf(format, a...))
	return nil
}

func (f *fakePlayer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakePlayer) Init(context.Context) error { return f.record("init") }
func (f *fakePlayer) SetVolume(v int) error { return f.record("volume %d", v) }
func (f *fakePlayer) Play(track int) error { return f.record("play %d", track) }
func (f *fakePlayer) Pause() error { return f.record("pause") }
func (f *fakePlayer) Start() error { return f.record("start") }
func (f *fakePlayer) PlayFolder(track int) error { return f.record("folder %d", track) }
func (f *fakePlayer) Close() error { return nil }

func TestNewPlayerBackends(t *testing.T) {
	cfg := defaultConfig()

	cfg.Backend = backendMPD
	p, err := newPlayer(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &MPDPlayer{}, p)

	cfg.Backend = backendLocal
	p, err = newPlayer(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LocalPlayer{}, p)

	cfg.Backend = "cassette"
	_, err = newPlayer(cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestStartPlayer(t *testing.T) {
	fp := &fakePlayer{}
	cfg := defaultConfig()

	track, err := startPlayer(context.Background(), fp, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, track)
	assert.Equal(t, []string{"init", "volume 25", "play 1"}, fp.Calls())
}

func TestStartPlayerWithoutStartupTrack(t *testing.T) {
	fp := &fakePlayer{}
	cfg := defaultConfig()
	cfg.StartTrack = 0

	track, err := startPlayer(context.Background(), fp, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, track)
	assert.Equal(t, []string{"init", "volume 25"}, fp.Calls())
}

func TestStartPlayerInitFailure(t *testing.T) {
	fp := &fakePlayer{fail: ErrNoInit}

	_, err := startPlayer(context.Background(), fp, defaultConfig())
	assert.ErrorIs(t, err, ErrNoInit)
}
