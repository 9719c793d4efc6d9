package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog"
)

// MPDPlayer drives a Music Player Daemon instead of a serial module. Track n
// is playlist position n-1 for both root and folder playback.
type MPDPlayer struct {
	host    string
	port    int
	socket  string
	pass    string
	timeout time.Duration
	logger  zerolog.Logger
} // type MPDPlayer struct

func NewMPDPlayer(host string, port int, socket, pass string, logger zerolog.Logger) *MPDPlayer {
	return &MPDPlayer{
		host:    host,
		port:    port,
		socket:  socket,
		pass:    pass,
		timeout: 3 * time.Second,
		logger:  logger,
	}
} // func NewMPDPlayer

// dial returns a connected MPD client using the UNIX socket or TCP
func (m *MPDPlayer) dial() (*mpd.Client, error) {
	var (
		c   *mpd.Client
		err error
	)
	if m.socket != "" {
		c, err = mpd.Dial("unix", m.socket)
	} else {
		c, err = mpd.Dial("tcp", fmt.Sprintf("%s:%d", m.host, m.port))
	}
	if err != nil {
		return nil, err
	}

	if m.pass != "" {
		if err := c.Command("password %s", m.pass).OK(); err != nil {
			c.Close()
			return nil, fmt.Errorf("mpd password auth failed: %w", err)
		}
	}
	return c, nil
} // func dial

// do runs fn with a short-lived MPD client, bounded by m.timeout
func (m *MPDPlayer) do(fn func(*mpd.Client) error, src string) error {
	client, err := m.dial()
	if err != nil {
		return fmt.Errorf("mpd connect (%s): %w", src, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- fn(client)
	}()

	select {
	case err := <-done:
		client.Close()
		if err != nil {
			return fmt.Errorf("mpd %s: %w", src, err)
		}
		m.logger.Debug().Str("src", src).Msg("mpd command ok")
		return nil
	case <-time.After(m.timeout):
		client.Close()
		return fmt.Errorf("mpd %s: timeout", src)
	}
} // func do

func (m *MPDPlayer) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.do(func(c *mpd.Client) error {
		if err := c.Ping(); err != nil {
			return err
		}
		m.logger.Info().Str("protocol", c.Version()).Msg("mpd online")
		return nil
	}, "init")
} // func Init

// SetVolume maps the 0..30 device scale onto MPD's 0..100.
func (m *MPDPlayer) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	} else if volume > dfMaxVolume {
		volume = dfMaxVolume
	}
	return m.do(func(c *mpd.Client) error {
		return c.SetVolume(volume * 100 / dfMaxVolume)
	}, "setvol")
}

func (m *MPDPlayer) Play(track int) error {
	return m.do(func(c *mpd.Client) error { return c.Play(track - 1) }, "play")
}

func (m *MPDPlayer) Pause() error {
	return m.do(func(c *mpd.Client) error { return c.Pause(true) }, "pause")
}

func (m *MPDPlayer) Start() error {
	return m.do(func(c *mpd.Client) error { return c.Pause(false) }, "resume")
}

func (m *MPDPlayer) PlayFolder(track int) error {
	return m.do(func(c *mpd.Client) error { return c.Play(track - 1) }, "play")
}

func (m *MPDPlayer) Close() error {
	return nil
}
