package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	kv := parseConfig(`
# songpoller
endpoint = http://example.test
Interval=2500
broken line
=novalue
volume=
`)
	assert.Equal(t, map[string]string{
		"endpoint": "http://example.test",
		"interval": "2500",
		"volume":   "",
	}, kv)
}

func TestApplyKV(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.applyKV(map[string]string{
		"endpoint":   "http://example.test",
		"interval":   "2500",
		"volume":     "",
		"backend":    "MPD",
		"starttrack": "0",
		"socket":     "none",
		"verbose":    "true",
		"whatever":   "x",
	})
	require.NoError(t, err)

	assert.Equal(t, "http://example.test", cfg.Endpoint)
	assert.Equal(t, 2500*time.Millisecond, cfg.Interval)
	assert.Equal(t, defaultVolume, cfg.Volume, "empty values are ignored")
	assert.Equal(t, backendMPD, cfg.Backend)
	assert.Equal(t, 0, cfg.StartTrack)
	assert.Equal(t, "", cfg.Socket)
	assert.True(t, cfg.Verbose)
}

func TestApplyKVRejectsBadValues(t *testing.T) {
	for k, v := range map[string]string{
		"interval": "0",
		"baud":     "fast",
		"volume":   "loud",
		"verbose":  "maybe",
	} {
		cfg := defaultConfig()
		assert.Error(t, cfg.applyKV(map[string]string{k: v}), "%s=%s", k, v)
	}
}

func TestPrecedenceCLIOverFileOverEnv(t *testing.T) {
	cfg := defaultConfig()
	parseMPDEnv(cfg, func(k string) string {
		return map[string]string{"MPD_HOST": "envhost", "MPD_PORT": "6601"}[k]
	})
	require.NoError(t, cfg.applyKV(map[string]string{"mpdhost": "filehost"}))
	require.NoError(t, cfg.applyKV(map[string]string{"mpdport": "6700"}))

	assert.Equal(t, "filehost", cfg.MPDHost)
	assert.Equal(t, 6700, cfg.MPDPort)
}

func TestParseMPDEnv(t *testing.T) {
	tests := []struct {
		host                 string
		wantHost, wantSocket string
		wantPass             string
	}{
		{"music.lan", "music.lan", "", ""},
		{"secret@music.lan", "music.lan", "", "secret"},
		{"/run/mpd/socket", defaultMPDhost, "/run/mpd/socket", ""},
		{"secret@/run/mpd/socket", defaultMPDhost, "/run/mpd/socket", "secret"},
		{"@mpd", defaultMPDhost, "@mpd", ""},
		{"secret@@mpd", defaultMPDhost, "@mpd", "secret"},
	}
	for _, tt := range tests {
		cfg := defaultConfig()
		parseMPDEnv(cfg, func(k string) string {
			if k == "MPD_HOST" {
				return tt.host
			}
			return ""
		})
		assert.Equal(t, tt.wantHost, cfg.MPDHost, tt.host)
		assert.Equal(t, tt.wantSocket, cfg.MPDSocket, tt.host)
		assert.Equal(t, tt.wantPass, cfg.MPDPass, tt.host)
		assert.Equal(t, defaultMPDport, cfg.MPDPort)
	}
}

func TestLoadAndDumpConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songpoller.conf")
	require.NoError(t, os.WriteFile(path, []byte("volume=10"), 0644))

	cf := loadConfig(path)
	assert.True(t, cf.exists)
	assert.Equal(t, "volume=10", cf.data)

	var buf bytes.Buffer
	dumpConfig(&buf, cf, true)
	assert.Contains(t, buf.String(), "config path: "+path)
	assert.Contains(t, buf.String(), "volume=10\n-----")

	missing := loadConfig(filepath.Join(t.TempDir(), "nope.conf"))
	assert.False(t, missing.exists)
	buf.Reset()
	dumpConfig(&buf, missing, true)
	assert.Contains(t, buf.String(), "config file: not found")
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	assert.NoError(t, cfg.validate())

	cfg.StartTrack = 256
	assert.Error(t, cfg.validate())

	cfg = defaultConfig()
	cfg.Backend = "tape"
	assert.Error(t, cfg.validate())

	cfg = defaultConfig()
	cfg.Endpoint = ""
	assert.Error(t, cfg.validate())
}
