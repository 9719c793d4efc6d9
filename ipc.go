package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Server answers status verbs and forwards playback verbs to the poll loop.
// The same verb set is used on the unix socket, the TCP listener and /ws.
type Server struct {
	poller   *Poller
	state    *State
	backend  string
	shutdown func()
	timeout  time.Duration
	logger   zerolog.Logger
} // type Server struct

func NewServer(poller *Poller, state *State, backend string, shutdown func(), logger zerolog.Logger) *Server {
	return &Server{
		poller:   poller,
		state:    state,
		backend:  backend,
		shutdown: shutdown,
		timeout:  10 * time.Second,
		logger:   logger,
	}
} // func NewServer

// statusLines renders a state snapshot as key=value lines.
func (s *Server) statusLines() []string {
	var buf bytes.Buffer
	formatState(&buf, s.state.snapshot())
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
} // func statusLines

// verbProcessor parses and executes comma separated verbs, returning response lines.
func (s *Server) verbProcessor(ctx context.Context, csv string) []string {
	var responses []string

	for _, part := range strings.Split(csv, ",") {
		line := strings.TrimSpace(part)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd := strings.ToLower(fields[0])
		var resp string

		switch cmd {
		case "status":
			responses = append(responses, s.statusLines()...)
			continue

		case "version":
			resp = fmt.Sprintf("songpoller daemon %s (backend %s)", version, s.backend)

		case "verbose":
			val := ""
			if len(fields) >= 2 {
				val = strings.ToLower(fields[1])
			}
			switch val {
			case "on":
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			case "off":
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			default:
				resp = "ERR verbose requires on or off"
			}
			if resp == "" {
				s.logger.Info().Msgf("[IPC] Verbose mode turned %s", val)
				resp = "Verbose mode " + val
			}

		case "command":
			if len(fields) != 2 {
				resp = "ERR command requires a value"
				break
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				resp = "ERR invalid command value"
				break
			}
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			action, err := s.poller.Apply(cctx, n)
			cancel()
			resp = formatResult(action, err)

		case "fetch":
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			action, err := s.poller.FetchNow(cctx)
			cancel()
			resp = formatResult(action, err)

		case "exit", "quit":
			s.logger.Info().Msgf("[IPC] Received %s, shutting down", cmd)
			s.shutdown()
			resp = "OK"

		default:
			resp = "Unknown command: " + cmd
		}
		responses = append(responses, resp)
	}
	return responses
} // func verbProcessor

func formatResult(action Action, err error) string {
	if err != nil {
		return "ERR " + err.Error()
	}
	if action == ActionNone {
		return "No change"
	}
	return "Applied " + action.String()
} // func formatResult

// handleConn reads one line of verbs and writes the responses.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)

	if scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			for _, resp := range s.verbProcessor(ctx, line) {
				fmt.Fprintln(conn, resp)
			}
			s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msgf("Executed command(s): %q", line)
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Warn().Err(err).Msg("client connection error")
	}
} // func handleConn

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("listening for clients")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}
		go s.handleConn(ctx, conn)
	}
} // func Serve

// listenIPC creates the unix socket, replacing a stale one.
func listenIPC(path string) (net.Listener, error) {
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0660); err != nil {
		ln.Close()
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}
	return ln, nil
} // func listenIPC

var numberRegex = regexp.MustCompile(`^-?[0-9]+$`)

// clientVerbs normalizes client command-line args into a verb line.
func clientVerbs(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("no client commands provided")
	}

	// ---- phase 1: normalize (strip commas, split tokens) ----
	var toks []string
	for _, a := range args {
		toks = append(toks, strings.Fields(strings.ReplaceAll(a, ",", " "))...)
	}

	// ---- phase 2: validate + batch ----
	var batch []string
	for i := 0; i < len(toks); {
		tok := strings.ToLower(toks[i])

		switch tok {
		case "status", "version", "fetch", "quit", "exit":
			batch = append(batch, tok)
			i++

		case "command", "play":
			if i+1 < len(toks) && numberRegex.MatchString(toks[i+1]) {
				batch = append(batch, "command "+toks[i+1])
				i += 2
				continue
			}
			return "", fmt.Errorf("%s requires a numeric argument", tok)

		case "pause", "resume", "next", "previous", "prev":
			batch = append(batch, "command "+strconv.Itoa(verbCommand[tok]))
			i++

		case "verbose":
			if i+1 < len(toks) {
				val := strings.ToLower(toks[i+1])
				if val == "on" || val == "off" {
					batch = append(batch, "verbose "+val)
					i += 2
					continue
				}
			}
			return "", fmt.Errorf("verbose requires 'on' or 'off' argument")

		default:
			return "", fmt.Errorf("unknown client verb: %s", tok)
		}
	}

	return strings.Join(batch, ", "), nil
} // func clientVerbs

// verbCommand maps friendly client verbs onto their command values.
var verbCommand = map[string]int{
	"pause":    cmdPause,
	"resume":   cmdResume,
	"next":     cmdNext,
	"previous": cmdPrevious,
	"prev":     cmdPrevious,
}

// sendClientCommand sends a verb line to the daemon, preferring the unix
// socket and falling back to TCP, and copies the response to w.
func sendClientCommand(w io.Writer, cmd, socketPath, tcpAddr string, logger zerolog.Logger) error {
	var (
		conn net.Conn
		err  error
	)

	if socketPath != "" {
		conn, err = net.DialTimeout("unix", socketPath, 500*time.Millisecond)
		if err != nil {
			logger.Debug().Err(err).Str("socket", socketPath).Msg("socket unusable")
		}
	}
	if conn == nil && tcpAddr != "" {
		conn, err = net.DialTimeout("tcp", tcpAddr, 500*time.Millisecond)
		if err != nil {
			logger.Debug().Err(err).Str("addr", tcpAddr).Msg("tcp unusable")
		}
	}
	if conn == nil {
		return fmt.Errorf("sendClientCommand: no usable daemon connection")
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))

	logger.Debug().Str("cmd", cmd).Msg("sending")
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return fmt.Errorf("sendClientCommand: write failed: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("sendClientCommand: read failed: %w", err)
	}
	return nil
} // func sendClientCommand
