package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Commands with a fixed meaning. Any other value in [1, maxTrack] selects a
// track directly.
const (
	cmdNext     = 2
	cmdResume   = 7
	cmdPause    = 9
	cmdPrevious = 14

	maxTrack = 255
)

// ErrInvalidCommand is returned for command values outside [1, maxTrack].
var ErrInvalidCommand = errors.New("invalid song number")

// Action is what the dispatcher did with a command.
type Action int

const (
	ActionNone Action = iota
	ActionPause
	ActionResume
	ActionNext
	ActionPrevious
	ActionPlay
	ActionInvalid
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionPause:
		return "pause"
	case ActionResume:
		return "resume"
	case ActionNext:
		return "next"
	case ActionPrevious:
		return "previous"
	case ActionPlay:
		return "play"
	case ActionInvalid:
		return "invalid"
	}
	return "action(" + strconv.Itoa(int(a)) + ")"
} // func (a Action) String

// parseCommand converts a response body to a command. Leading whitespace and
// an optional sign are accepted, digits are read up to the first non-digit
// and anything unparseable is 0.
func parseCommand(body string) int {
	s := strings.TrimLeft(body, " \t\r\n")

	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
} // func parseCommand

// Dispatcher maps commands to player actions and owns the mutations of State.
type Dispatcher struct {
	player Player
	state  *State
	logger zerolog.Logger
}

func NewDispatcher(player Player, state *State, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		player: player,
		state:  state,
		logger: logger,
	}
} // func NewDispatcher

// Dispatch parses a fetched body and applies it.
func (d *Dispatcher) Dispatch(body string) (Action, error) {
	command := parseCommand(body)
	if command == 0 && strings.TrimSpace(body) != "" && strings.TrimSpace(body) != "0" {
		d.logger.Debug().Str("body", body).Msg("response body is not a number, treating as 0")
	}
	return d.Apply(command)
} // func Dispatch

// Apply issues the playback action for command. State is only changed after
// the player accepted the action.
func (d *Dispatcher) Apply(command int) (Action, error) {
	d.state.mu.Lock()
	last, paused := d.state.lastApplied, d.state.paused
	d.state.mu.Unlock()

	if command <= 0 || command == last {
		return ActionNone, nil
	}

	d.logger.Info().Int("command", command).Msg("song command")

	switch command {
	case cmdPause:
		if paused {
			return ActionNone, nil
		}
		if err := d.player.Pause(); err != nil {
			return ActionPause, fmt.Errorf("pause: %w", err)
		}
		d.commit(func(s *State) { s.paused = true })
		d.logger.Info().Msg("STATE CHANGE: paused")
		return ActionPause, nil

	case cmdResume:
		if !paused {
			return ActionNone, nil
		}
		if err := d.player.Start(); err != nil {
			return ActionResume, fmt.Errorf("resume: %w", err)
		}
		d.commit(func(s *State) { s.paused = false })
		d.logger.Info().Msg("STATE CHANGE: resumed")
		return ActionResume, nil

	case cmdNext:
		track := last + 1
		if track > maxTrack {
			track = 1
		}
		return ActionNext, d.playFolder(ActionNext, track)

	case cmdPrevious:
		track := last - 1
		if track < 1 {
			track = maxTrack
		}
		return ActionPrevious, d.playFolder(ActionPrevious, track)

	default:
		if command < 1 || command > maxTrack {
			d.logger.Warn().Int("command", command).Msg("invalid song number")
			return ActionInvalid, fmt.Errorf("%w: %d", ErrInvalidCommand, command)
		}
		return ActionPlay, d.playFolder(ActionPlay, command)
	}
} // func Apply

func (d *Dispatcher) playFolder(a Action, track int) error {
	if err := d.player.PlayFolder(track); err != nil {
		return fmt.Errorf("%s: play mp3/%04d: %w", a, track, err)
	}
	d.commit(func(s *State) {
		s.lastApplied = track
		s.paused = false
	})
	d.logger.Info().Str("action", a.String()).Int("track", track).Msgf("STATE CHANGE: playing mp3/%04d", track)
	return nil
} // func playFolder

func (d *Dispatcher) commit(fn func(*State)) {
	d.state.mu.Lock()
	defer d.state.mu.Unlock()
	fn(d.state)
	d.state.commitLocked()
} // func commit
