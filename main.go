package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/rs/zerolog/log"
)

var version = "dev"

// flags that select what the binary does rather than configure the daemon
var controlFlags = map[string]bool{
	"config": true, "daemon": true, "version": true, "help": true,
}

// shutdownFunc returns a func that cancels the root context exactly once
func shutdownFunc(cancel context.CancelFunc) func() {
	var once sync.Once
	return func() {
		once.Do(cancel)
	}
} // func shutdownFunc

// initShutdownHandler installs a signal handler to trigger shutdown
func initShutdownHandler(shutdown func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info().Str("signal", sig.String()).Msg("Shutdown requested")
		shutdown()
	}()
} // func initShutdownHandler

// waitForLink blocks until iface has a usable link. An empty iface returns
// immediately.
func waitForLink(ctx context.Context, iface string) error {
	if iface == "" {
		return nil
	}
	log.Info().Str("iface", iface).Msg("waiting for network link")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for !linkUp(iface) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	log.Info().Str("iface", iface).Msg("network connected")
	return nil
} // func waitForLink

// startPlayer initializes the device and plays the startup track.
// Returns the track that becomes the first applied command.
func startPlayer(ctx context.Context, p Player, cfg *Config) (int, error) {
	ictx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := p.Init(ictx); err != nil {
		return 0, fmt.Errorf("player init: %w", err)
	}

	if err := p.SetVolume(cfg.Volume); err != nil {
		return 0, fmt.Errorf("set volume: %w", err)
	}

	if cfg.StartTrack > 0 {
		if err := p.Play(cfg.StartTrack); err != nil {
			return 0, fmt.Errorf("play startup track: %w", err)
		}
		log.Info().Int("track", cfg.StartTrack).Msgf("Startup: playing %03d.mp3 from root", cfg.StartTrack)
	}
	return cfg.StartTrack, nil
} // func startPlayer

// main parses flags, merges config and runs as client or daemon
func main() {
	// ------------------------------------------------------------------
	// Flags (client + daemon)
	// ------------------------------------------------------------------
	var (
		configFlag  string
		daemonMode  bool
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFlag, "config", "", "path to config file")
	flag.BoolVar(&daemonMode, "daemon", false, "Run as daemon")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&showHelp, "help", false, "Print help and exit")

	// configuration flags share their names with config file keys
	flag.String("endpoint", "", "base URL of the command endpoint")
	flag.String("path", "", "sub-path polled under the endpoint (default "+defaultSongPath+")")
	flag.Int("interval", 0, "fetch period in <ms> (default 5000)")
	flag.Int("volume", 0, "startup volume 0..30 (default 25)")
	flag.Int("starttrack", 0, "root track played at startup, 0 disables (default 1)")
	flag.String("backend", "", "player backend: dfplayer, mpd or local")
	flag.String("serial", "", "DFPlayer serial <device> (default "+defaultSerial+")")
	flag.Int("baud", 0, "DFPlayer baud rate (default 9600)")
	flag.String("iface", "", "network interface that must be up before fetching")
	flag.String("mpdhost", "", "MPD host <address>")
	flag.Int("mpdport", 0, "MPD host <port>")
	flag.String("mpdsocket", "", "MPD unix socket <path>")
	flag.String("mpdpass", "", "MPD server password")
	flag.String("musicdir", "", "local backend music <dir>")
	flag.String("socket", "", "IPC socket <path>, none disables")
	flag.String("listenip", "", "daemon listen IP")
	flag.Int("listenport", 0, "daemon listen port")
	flag.Int("httpport", 0, "status/websocket HTTP port, 0 disables (default 8089)")
	flag.String("state", "", "write state file to <path>")
	flag.String("log", "", "write logs to file instead of stderr")
	flag.BoolP("verbose", "v", false, "enable verbose logging")

	flag.Parse()

	if _, err := setupLogging("", false); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// ------------------------------------------------------------------
	// Merge config: default < env < config file < CLI
	// ------------------------------------------------------------------
	cfg := defaultConfig()
	parseMPDEnv(cfg, os.Getenv)

	verboseFlag, _ := flag.CommandLine.GetBool("verbose")
	cf := loadConfig(configFlag)
	if daemonMode {
		dumpConfig(os.Stderr, cf, verboseFlag)
	}
	if err := cfg.applyKV(parseConfig(cf.data)); err != nil {
		log.Fatal().Err(err).Str("path", cf.path).Msg("bad config file")
	}

	cli := make(map[string]string)
	flag.Visit(func(f *flag.Flag) {
		if !controlFlags[f.Name] {
			cli[f.Name] = f.Value.String()
		}
	})
	if err := cfg.applyKV(cli); err != nil {
		log.Fatal().Err(err).Msg("bad flag")
	}

	// ------------------------------------------------------------------
	// Redirect logs if --log is set
	// ------------------------------------------------------------------
	logCloser, err := setupLogging(cfg.LogPath, cfg.Verbose)
	if err != nil {
		log.Fatal().Err(err).Msg("logging setup failed")
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	// ------------------------------------------------------------------
	// Client command handling (positional args only)
	// ------------------------------------------------------------------
	if args := flag.Args(); len(args) > 0 {
		cmd, err := clientVerbs(args)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		tcpAddr := net.JoinHostPort(defaultDaemonIP, strconv.Itoa(cfg.ListenPort))
		if err := sendClientCommand(os.Stdout, cmd, cfg.Socket, tcpAddr, log.Logger); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if showVersion {
		fmt.Printf("\nsongpoller binary version %s\n\n", version)
		return
	}

	if showHelp {
		fmt.Printf("\nsongpoller binary version %s\n\n", version)
		fmt.Println("Usage: songpoller --daemon [flags] or client subcommands")
		fmt.Println("Client subcommands: status, version, fetch, pause, resume, next, previous,")
		fmt.Println("                    command <n>, verbose on|off, quit")
		flag.PrintDefaults()
		return
	}

	// ------------------------------------------------------------------
	// Enforce daemon gate
	// ------------------------------------------------------------------
	if !daemonMode {
		log.Fatal().Msg("Refusing to start daemon without --daemon")
	}
	if err := cfg.validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	code := runDaemon(cfg)
	if logCloser != nil {
		logCloser.Close()
	}
	os.Exit(code)
} // func main()

// runDaemon starts the player, listeners and poll loop and blocks until
// shutdown. Returns the process exit code.
func runDaemon(cfg *Config) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdown := shutdownFunc(cancel)
	initShutdownHandler(shutdown)

	logger := log.Logger

	player, err := newPlayer(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("player open failed")
		return 1
	}
	defer player.Close()

	track, err := startPlayer(ctx, player, cfg)
	if err != nil {
		// no recovery: the device is required
		logger.Error().Err(err).Msg("player not responding")
		return 1
	}

	state := newState(track, cfg.StatePath)
	state.mu.Lock()
	state.commitLocked()
	state.mu.Unlock()

	if err := waitForLink(ctx, cfg.Iface); err != nil {
		return 0
	}

	fetcher := NewFetcher(cfg.Endpoint, cfg.Path, cfg.Iface)
	dispatcher := NewDispatcher(player, state, logger.With().Str("component", "dispatch").Logger())
	poller := NewPoller(fetcher, dispatcher, state, cfg.Interval, logger.With().Str("component", "poll").Logger())
	srv := NewServer(poller, state, cfg.Backend, shutdown, logger.With().Str("component", "ipc").Logger())

	var wg sync.WaitGroup
	serve := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// ------------------------------------------------------------------
	// IPC socket + TCP listener
	// ------------------------------------------------------------------
	if cfg.Socket != "" {
		ln, err := listenIPC(cfg.Socket)
		if err != nil {
			logger.Error().Err(err).Msg("IPC socket disabled")
		} else {
			serve(func() { srv.Serve(ctx, ln) })
		}
	}

	if cfg.ListenPort > 0 {
		addr := net.JoinHostPort(cfg.ListenIP, strconv.Itoa(cfg.ListenPort))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("TCP listener disabled")
		} else {
			serve(func() { srv.Serve(ctx, ln) })
		}
	}

	if cfg.HTTPPort > 0 {
		e := NewHTTPRouter(srv)
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		serve(func() { srv.RunHTTP(ctx, e, addr) })
	}

	// ------------------------------------------------------------------
	// Poll loop owns fetch + dispatch until shutdown
	// ------------------------------------------------------------------
	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("poll loop failed")
	}
	shutdown()
	wg.Wait()

	exitCode := 0
	if cfg.Socket != "" {
		if err := os.Remove(cfg.Socket); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Msg("Failed to remove socket")
			exitCode = 1
		}
	}
	if err := state.removeFile(); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove state file")
		exitCode = 1
	}
	logger.Info().Msg("Cleanup steps completed, exiting")
	return exitCode
} // func runDaemon
