package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultEndpoint   = "https://alexa-27be5-default-rtdb.asia-southeast1.firebasedatabase.app"
	defaultSongPath   = "/gesture/song.json"
	defaultInterval   = 5000 * time.Millisecond
	defaultVolume     = 25
	defaultStartTrack = 1
	defaultSerial     = "/dev/serial0"
	defaultBaud       = 9600
	defaultMPDhost    = "localhost"
	defaultMPDport    = 6600
	defaultMusicDir   = "/var/lib/songpoller/music"
	defaultSocketPath = "/run/songpoller/songpoller.sock"
	defaultListenIP   = "0.0.0.0"
	defaultListenPort = 6589
	defaultHTTPPort   = 8089
	defaultDaemonIP   = "localhost"
) // const

// Config is the merged daemon configuration.
// Precedence: CLI > config file > environment > default.
type Config struct {
	Endpoint   string
	Path       string
	Interval   time.Duration
	Volume     int
	StartTrack int
	Backend    string

	Serial string
	Baud   int
	Iface  string

	MPDHost   string
	MPDPort   int
	MPDSocket string
	MPDPass   string

	MusicDir string

	Socket     string
	ListenIP   string
	ListenPort int
	HTTPPort   int
	StatePath  string
	LogPath    string
	Verbose    bool
} // type Config struct

type configFile struct {
	path   string
	data   string
	exists bool
} // type configFile struct

func defaultConfig() *Config {
	return &Config{
		Endpoint:   defaultEndpoint,
		Path:       defaultSongPath,
		Interval:   defaultInterval,
		Volume:     defaultVolume,
		StartTrack: defaultStartTrack,
		Backend:    backendDFPlayer,
		Serial:     defaultSerial,
		Baud:       defaultBaud,
		MPDHost:    defaultMPDhost,
		MPDPort:    defaultMPDport,
		MusicDir:   defaultMusicDir,
		Socket:     defaultSocketPath,
		ListenIP:   defaultListenIP,
		ListenPort: defaultListenPort,
		HTTPPort:   defaultHTTPPort,
	}
} // func defaultConfig

// loadConfig loads the config file from a given path or defaults to ~/.config/songpoller.conf
func loadConfig(cliPath string) configFile {
	var path string

	if cliPath != "" {
		path = cliPath
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return configFile{}
		}
		path = filepath.Join(home, ".config", "songpoller.conf")
	}

	cf := configFile{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return cf
	}

	cf.exists = true
	cf.data = string(data)
	return cf
} // func loadConfig(cliPath string) configFile

// dumpConfig prints the config path and optionally its contents if verbose
func dumpConfig(w io.Writer, cf configFile, verbose bool) {
	fmt.Fprintf(w, "config path: %s\n", cf.path)

	if !cf.exists {
		fmt.Fprintln(w, "config file: not found")
		return
	}

	if verbose {
		fmt.Fprintln(w, "config contents:")
		fmt.Fprintln(w, "-----")
		fmt.Fprint(w, cf.data)
		if !strings.HasSuffix(cf.data, "\n") {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, "-----")
	}
} // func dumpConfig

// parseConfig parses key=value lines from a string into a map
func parseConfig(data string) map[string]string {
	cfg := make(map[string]string)

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)

		if k != "" {
			cfg[k] = v
		}
	}
	return cfg
} // func parseConfig(data string) map[string]string

// applyKV overlays key=value settings onto cfg. Config file keys and long
// flag names are the same, so both sources go through here. Empty values
// are ignored.
func (cfg *Config) applyKV(kv map[string]string) error {
	for k, v := range kv {
		if v == "" {
			continue
		}

		var err error
		switch k {
		case "endpoint":
			cfg.Endpoint = v
		case "path":
			cfg.Path = v
		case "interval":
			var ms int
			ms, err = positiveInt(v)
			cfg.Interval = time.Duration(ms) * time.Millisecond
		case "volume":
			cfg.Volume, err = strconv.Atoi(v)
		case "starttrack":
			cfg.StartTrack, err = strconv.Atoi(v)
		case "backend":
			cfg.Backend = strings.ToLower(v)
		case "serial":
			cfg.Serial = v
		case "baud":
			cfg.Baud, err = positiveInt(v)
		case "iface":
			cfg.Iface = v
		case "mpdhost":
			cfg.MPDHost = v
		case "mpdport":
			cfg.MPDPort, err = positiveInt(v)
		case "mpdsocket":
			cfg.MPDSocket = v
		case "mpdpass":
			cfg.MPDPass = v
		case "musicdir":
			cfg.MusicDir = v
		case "socket":
			cfg.Socket = v
		case "listenip":
			cfg.ListenIP = v
		case "listenport":
			cfg.ListenPort, err = strconv.Atoi(v)
		case "httpport":
			cfg.HTTPPort, err = strconv.Atoi(v)
		case "state":
			cfg.StatePath = v
		case "log":
			cfg.LogPath = v
		case "verbose":
			cfg.Verbose, err = strconv.ParseBool(v)
		default:
			log.Debug().Str("key", k).Msg("ignoring unknown config key")
		}
		if err != nil {
			return fmt.Errorf("config %s=%q: %w", k, v, err)
		}
	}

	// `socket=none` disables the IPC socket
	if cfg.Socket == "none" {
		cfg.Socket = ""
	}
	return nil
} // func applyKV

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}
	return n, nil
} // func positiveInt

// parseMPDEnv reads MPD_HOST and MPD_PORT the way mpc does.
func parseMPDEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("MPD_HOST"); v != "" {
		if strings.HasPrefix(v, "@") { // 1. abstract socket with no password
			cfg.MPDSocket = v
		} else if strings.Contains(v, "@@") { // 2. password@@abstract
			parts := strings.SplitN(v, "@@", 2)
			cfg.MPDPass = parts[0]
			cfg.MPDSocket = "@" + parts[1]
		} else if strings.Contains(v, "@") { // 3. password@tcp or password@socket
			parts := strings.SplitN(v, "@", 2)
			cfg.MPDPass = parts[0]
			if strings.Contains(parts[1], "/") {
				cfg.MPDSocket = parts[1]
			} else {
				cfg.MPDHost = parts[1]
			}
		} else if strings.Contains(v, "/") { // 4. socket without password
			cfg.MPDSocket = v
		} else {
			cfg.MPDHost = v
		}
	}

	if p := getenv("MPD_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			cfg.MPDPort = n
		} else {
			log.Warn().Str("MPD_PORT", p).Msg("ignoring invalid MPD_PORT")
		}
	}
} // func parseMPDEnv

// validate checks values the daemon cannot start without.
func (cfg *Config) validate() error {
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}
	if cfg.StartTrack < 0 || cfg.StartTrack > maxTrack {
		return fmt.Errorf("starttrack %d outside 0..%d", cfg.StartTrack, maxTrack)
	}
	switch cfg.Backend {
	case backendDFPlayer, backendMPD, backendLocal:
	default:
		return fmt.Errorf("unknown player backend %q", cfg.Backend)
	}
	return nil
} // func validate
