package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPlayerPaths(t *testing.T) {
	p := NewLocalPlayer("/music", zerolog.Nop())
	assert.Equal(t, "/music/001.mp3", p.rootPath(1))
	assert.Equal(t, "/music/mp3/0042.mp3", p.folderPath(42))
	assert.Equal(t, "/music/mp3/0255.mp3", p.folderPath(maxTrack))
}

func TestGainFor(t *testing.T) {
	g, silent := gainFor(0)
	assert.True(t, silent)

	g, silent = gainFor(30)
	assert.False(t, silent)
	assert.Equal(t, 0.0, g)

	g, _ = gainFor(24)
	assert.Equal(t, -1.0, g)

	g, _ = gainFor(99)
	assert.Equal(t, 0.0, g, "clamped to max")
}

func TestLocalPlayerInitRejectsBadDir(t *testing.T) {
	dir := t.TempDir()
	p := NewLocalPlayer(filepath.Join(dir, "missing"), zerolog.Nop())
	assert.Error(t, p.Init(context.Background()))

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	p = NewLocalPlayer(file, zerolog.Nop())
	assert.Error(t, p.Init(context.Background()))
}

func TestLocalPlayerMissingTrack(t *testing.T) {
	p := NewLocalPlayer(t.TempDir(), zerolog.Nop())
	assert.Error(t, p.PlayFolder(7))
	assert.Error(t, p.Play(1))
}

func TestLocalPlayerIdleControls(t *testing.T) {
	p := NewLocalPlayer(t.TempDir(), zerolog.Nop())
	assert.NoError(t, p.Pause())
	assert.NoError(t, p.Start())
	assert.NoError(t, p.SetVolume(10))
	assert.NoError(t, p.Close())
}
