package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the display bridge.
//
// Every field has a default that reproduces the fixed behaviour of the
// display hardware (Volumio on localhost:3000, /tmp/volumio.sock, 5 s idle,
// brightness 159/32), so running without a config file is the normal case.
type Config struct {
	// Source selects where playback state comes from.
	Source SourceConfig `yaml:"source"`

	// Volumio Socket.IO API
	Volumio VolumioConfig `yaml:"volumio"`

	// MPD, used when source.kind is "mpd"
	MPD MPDConfig `yaml:"mpd"`

	// Display driver socket and dimming policy
	Display DisplayFileConfig `yaml:"display"`

	// Optional WebSocket mirror of the display
	Mirror MirrorConfig `yaml:"mirror"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type SourceConfig struct {
	Kind string `yaml:"kind"` // "volumio" or "mpd"
}

type VolumioConfig struct {
	URL string `yaml:"url"`
}

type MPDConfig struct {
	Network      string `yaml:"network"` // "tcp" or "unix"
	Addr         string `yaml:"addr"`
	PasswordFile string `yaml:"password_file,omitempty"`
}

type DisplayFileConfig struct {
	SocketPath       string `yaml:"socket_path"`
	IdleMS           int    `yaml:"idle_ms"`
	ActiveBrightness int    `yaml:"active_brightness"`
	DimBrightness    int    `yaml:"dim_brightness"`
}

type MirrorConfig struct {
	ListenAddr string `yaml:"listen_addr"` // empty disables the mirror
	Path       string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Source: SourceConfig{
			Kind: sourceVolumio,
		},
		Volumio: VolumioConfig{
			URL: defaultVolumioURL,
		},
		MPD: MPDConfig{
			Network: "tcp",
			Addr:    defaultMPDAddr,
		},
		Display: DisplayFileConfig{
			SocketPath:       defaultDisplaySocket,
			IdleMS:           defaultIdleMS,
			ActiveBrightness: defaultActiveBrightness,
			DimBrightness:    defaultDimBrightness,
		},
		Mirror: MirrorConfig{
			Path: defaultMirrorPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document. A yaml.Node
	// accepts any document, so anything but io.EOF means there is another one.
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides carries flag values that were explicitly set on the command line.
// A nil pointer means "not set"; a non-nil pointer is applied even if it holds a zero value.
type FlagOverrides struct {
	SourceKind *string

	VolumioURL *string

	MPDAddr    *string
	MPDNetwork *string

	DisplaySocket *string
	IdleMS        *int

	MirrorListen *string

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SourceKind != nil {
		cfg.Source.Kind = *o.SourceKind
	}
	if o.VolumioURL != nil {
		cfg.Volumio.URL = *o.VolumioURL
	}
	if o.MPDAddr != nil {
		cfg.MPD.Addr = *o.MPDAddr
	}
	if o.MPDNetwork != nil {
		cfg.MPD.Network = *o.MPDNetwork
	}
	if o.DisplaySocket != nil {
		cfg.Display.SocketPath = *o.DisplaySocket
	}
	if o.IdleMS != nil {
		cfg.Display.IdleMS = *o.IdleMS
	}
	if o.MirrorListen != nil {
		cfg.Mirror.ListenAddr = *o.MirrorListen
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// It is meant to run after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case sourceVolumio:
		if c.Volumio.URL == "" {
			return errors.New("volumio.url must not be empty")
		}
		if _, err := socketIOURL(c.Volumio.URL); err != nil {
			return fmt.Errorf("volumio.url: %w", err)
		}
	case sourceMPD:
		if c.MPD.Network != "tcp" && c.MPD.Network != "unix" {
			return fmt.Errorf("mpd.network must be %q or %q", "tcp", "unix")
		}
		if c.MPD.Addr == "" {
			return errors.New("mpd.addr must not be empty")
		}
	default:
		return fmt.Errorf("source.kind must be %q or %q", sourceVolumio, sourceMPD)
	}

	if c.Display.SocketPath == "" {
		return errors.New("display.socket_path must not be empty")
	}
	if c.Display.IdleMS <= 0 {
		return errors.New("display.idle_ms must be > 0")
	}
	if c.Display.ActiveBrightness < 0 || c.Display.ActiveBrightness > 255 {
		return errors.New("display.active_brightness must be between 0 and 255")
	}
	if c.Display.DimBrightness < 0 || c.Display.DimBrightness > 255 {
		return errors.New("display.dim_brightness must be between 0 and 255")
	}

	if c.Mirror.ListenAddr != "" && !strings.HasPrefix(c.Mirror.Path, "/") {
		return errors.New("mirror.path must start with /")
	}

	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToDisplayConfig converts the file config into the reducer's policy.
func (c *Config) ToDisplayConfig() DisplayConfig {
	return DisplayConfig{
		ActiveBrightness: c.Display.ActiveBrightness,
		DimBrightness:    c.Display.DimBrightness,
		IdleWindow:       time.Duration(c.Display.IdleMS) * time.Millisecond,
	}
}

// MPDPassword reads mpd.password_file, if configured.
func (c *Config) MPDPassword() (string, error) {
	if c.MPD.PasswordFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(ExpandPath(c.MPD.PasswordFile))
	if err != nil {
		return "", fmt.Errorf("read mpd password file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
