package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// setupLogging points the global logger at stderr or, when path is set, at
// an append-only log file. The returned closer is nil for stderr.
func setupLogging(path string, verbose bool) (io.Closer, error) {
	var (
		out    io.Writer = os.Stderr
		closer io.Closer
	)

	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		out, closer = f, f
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    path != "",
	}).With().Timestamp().Logger()

	return closer, nil
} // func setupLogging
