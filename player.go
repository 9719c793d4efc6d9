package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Player is the MP3 device the dispatcher drives. Track indexes are 1-based.
type Player interface {
	// Init brings the device up. A failure here is fatal for the daemon.
	Init(ctx context.Context) error
	SetVolume(volume int) error
	// Play plays track n from the root of the device.
	Play(track int) error
	Pause() error
	// Start resumes paused playback.
	Start() error
	// PlayFolder plays track n from the mp3/ folder.
	PlayFolder(track int) error
	Close() error
} // type Player interface

const (
	backendDFPlayer = "dfplayer"
	backendMPD      = "mpd"
	backendLocal    = "local"
)

// newPlayer builds the player selected by cfg.Backend.
func newPlayer(cfg *Config, logger zerolog.Logger) (Player, error) {
	logger = logger.With().Str("backend", cfg.Backend).Logger()

	switch cfg.Backend {
	case backendDFPlayer, "":
		return OpenDFPlayer(cfg.Serial, cfg.Baud, logger)
	case backendMPD:
		return NewMPDPlayer(cfg.MPDHost, cfg.MPDPort, cfg.MPDSocket, cfg.MPDPass, logger), nil
	case backendLocal:
		return NewLocalPlayer(cfg.MusicDir, logger), nil
	default:
		return nil, fmt.Errorf("unknown player backend %q", cfg.Backend)
	}
} // func newPlayer
