package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/rs/zerolog"
)

const localSampleRate = beep.SampleRate(44100)

// LocalPlayer plays the DFPlayer SD card layout from a directory through the
// host sound card: NNN.mp3 in the root, NNNN.mp3 under mp3/.
type LocalPlayer struct {
	dir    string
	logger zerolog.Logger

	mu     sync.Mutex
	volume int
	cur    beep.StreamSeekCloser
	ctrl   *beep.Ctrl
	gain   *effects.Volume
} // type LocalPlayer struct

func NewLocalPlayer(dir string, logger zerolog.Logger) *LocalPlayer {
	return &LocalPlayer{
		dir:    dir,
		volume: defaultVolume,
		logger: logger,
	}
} // func NewLocalPlayer

func (p *LocalPlayer) rootPath(track int) string {
	return filepath.Join(p.dir, fmt.Sprintf("%03d.mp3", track))
}

func (p *LocalPlayer) folderPath(track int) string {
	return filepath.Join(p.dir, "mp3", fmt.Sprintf("%04d.mp3", track))
}

func (p *LocalPlayer) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(p.dir)
	if err != nil {
		return fmt.Errorf("music dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("music dir %s is not a directory", p.dir)
	}
	if err := speaker.Init(localSampleRate, localSampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	p.logger.Info().Str("dir", p.dir).Msg("local player online")
	return nil
} // func Init

// gainFor maps the 0..30 device scale onto a base-2 gain where 30 is unity
// and every 6 steps halve the level.
func gainFor(volume int) (gain float64, silent bool) {
	if volume <= 0 {
		return 0, true
	}
	if volume > dfMaxVolume {
		volume = dfMaxVolume
	}
	return float64(volume-dfMaxVolume) / 6, false
} // func gainFor

func (p *LocalPlayer) SetVolume(volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.gain != nil {
		speaker.Lock()
		p.gain.Volume, p.gain.Silent = gainFor(volume)
		speaker.Unlock()
	}
	return nil
} // func SetVolume

func (p *LocalPlayer) play(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	stream, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", path, err)
	}

	var s beep.Streamer = stream
	if format.SampleRate != localSampleRate {
		s = beep.Resample(4, format.SampleRate, localSampleRate, stream)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	speaker.Clear()
	if p.cur != nil {
		p.cur.Close()
	}

	g, silent := gainFor(p.volume)
	p.gain = &effects.Volume{Streamer: s, Base: 2, Volume: g, Silent: silent}
	p.ctrl = &beep.Ctrl{Streamer: p.gain}
	p.cur = stream
	speaker.Play(p.ctrl)

	p.logger.Debug().Str("file", path).Msg("local play")
	return nil
} // func play

func (p *LocalPlayer) setPaused(paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return nil
	}
	speaker.Lock()
	p.ctrl.Paused = paused
	speaker.Unlock()
	return nil
} // func setPaused

func (p *LocalPlayer) Play(track int) error {
	return p.play(p.rootPath(track))
}

func (p *LocalPlayer) Pause() error {
	return p.setPaused(true)
}

func (p *LocalPlayer) Start() error {
	return p.setPaused(false)
}

func (p *LocalPlayer) PlayFolder(track int) error {
	return p.play(p.folderPath(track))
}

func (p *LocalPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur == nil {
		return nil
	}
	speaker.Clear()
	err := p.cur.Close()
	p.cur, p.ctrl, p.gain = nil, nil, nil
	return err
} // func Close
