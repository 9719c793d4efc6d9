package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State holds daemon state. Only the poll loop mutates it; status surfaces
// read it through snapshot().
type State struct {
	mu          sync.Mutex
	lastApplied int       // last command acted upon (a track index once playing)
	paused      bool      // playback paused?
	lastFetch   time.Time // start of the last fetch cycle
	lastCycle   string    // id of the last fetch cycle
	lastErr     string    // error of the last fetch cycle, "" on success
	path        string    // state file, "" disables disk writes
} // type State struct

type derivedState struct {
	WriteTime   string
	LastApplied int
	Paused      int
	LastFetch   string
	Cycle       string
	LastError   string
	PID         int
} // type derivedState struct

func newState(startTrack int, path string) *State {
	return &State{
		lastApplied: startTrack,
		path:        path,
	}
} // func newState

// snapshot returns a copy of the current state without touching disk.
func (s *State) snapshot() derivedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deriveLocked(false)
} // func snapshot

// commitLocked derives the current state and rewrites the state file
// (s.mu must be held).
func (s *State) commitLocked() derivedState {
	return s.deriveLocked(true)
} // func commitLocked

func (s *State) deriveLocked(write bool) derivedState {
	ds := derivedState{
		WriteTime:   time.Now().Format(time.RFC3339Nano),
		LastApplied: s.lastApplied,
		Paused:      btoi(s.paused),
		Cycle:       s.lastCycle,
		LastError:   s.lastErr,
		PID:         os.Getpid(),
	}
	if !s.lastFetch.IsZero() {
		ds.LastFetch = s.lastFetch.Format(time.RFC3339)
	}

	// ---- ONLY disk I/O is optional ----
	if !write || s.path == "" {
		return ds
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		log.Warn().Err(err).Str("path", tmp).Msg("state write failed")
		return ds
	}
	formatState(f, ds)
	if err := f.Close(); err != nil {
		log.Warn().Err(err).Str("path", tmp).Msg("state close failed")
		return ds
	}
	if err := os.Rename(tmp, s.path); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("state rename failed")
	}
	return ds
} // func deriveLocked

// removeFile deletes the state file at shutdown.
func (s *State) removeFile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
} // func removeFile

// formatState formats a derivedState into key=value lines
func formatState(w io.Writer, ds derivedState) {
	fmt.Fprintf(w, "writetime=%s\n", ds.WriteTime)
	fmt.Fprintf(w, "song=%d\n", ds.LastApplied)
	fmt.Fprintf(w, "paused=%d\n", ds.Paused)
	fmt.Fprintf(w, "lastfetch=%s\n", ds.LastFetch)
	fmt.Fprintf(w, "cycle=%s\n", ds.Cycle)
	if ds.LastError != "" {
		fmt.Fprintf(w, "error=%s\n", ds.LastError)
	}
	fmt.Fprintf(w, "pid=%d\n", ds.PID)
} // func formatState(w io.Writer, ds derivedState)

// btoi converts a bool to int (true=1, false=0)
func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
} // func btoi(b bool)
