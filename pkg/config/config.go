// Copyright 2026 Jeremy Hahn
// SPDX-License-Identifier: MIT

// Package config loads the eaglelink configuration from a YAML file with
// EAGLELINK_* environment overrides. A Config is loaded once at startup and
// treated as immutable afterwards.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eagletech/eaglelink/pkg/eagle"
	"github.com/eagletech/eaglelink/pkg/link"
	"github.com/eagletech/eaglelink/pkg/link/bluez"
)

// ErrInvalidConfig indicates a configuration value is unusable.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// KnownPeers maps peer aliases to MAC addresses.
var KnownPeers = map[string]string{
	"robot":      "68:5E:1C:31:9E:4B",
	"test_board": "68:5E:1C:26:76:7C",
}

// Default listen addresses.
const (
	DefaultStatusListen  = "127.0.0.1:8470"
	DefaultMonitorListen = ":8471"
)

// Config is the complete eaglelink configuration. Environment keys are
// EnvPrefix plus the upper-cased YAML path.
type Config struct {
	// Colour is the team colour written into default snapshots.
	Colour string `yaml:"colour" env:"COLOUR"`

	Link    LinkConfig    `yaml:"link" envPrefix:"LINK_"`
	Lines   LinesConfig   `yaml:"lines" envPrefix:"LINES_"`
	Status  StatusConfig  `yaml:"status" envPrefix:"STATUS_"`
	Monitor MonitorConfig `yaml:"monitor" envPrefix:"MONITOR_"`
}

// LinkConfig configures the BLE link.
type LinkConfig struct {
	// Peer is a MAC address or one of the KnownPeers aliases.
	Peer              string        `yaml:"peer" env:"PEER"`
	Adapter           string        `yaml:"adapter" env:"ADAPTER"`
	WriteUUID         string        `yaml:"write_uuid" env:"WRITE_UUID"`
	NotifyUUID        string        `yaml:"notify_uuid" env:"NOTIFY_UUID"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY"`
	SettleDelay       time.Duration `yaml:"settle_delay" env:"SETTLE_DELAY"`
	FallbackChunkSize int           `yaml:"fallback_chunk_size" env:"FALLBACK_CHUNK_SIZE"`
	MaxFrameRate      float64       `yaml:"max_frame_rate" env:"MAX_FRAME_RATE"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" env:"KEEPALIVE_INTERVAL"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

// LinesConfig bounds the received line buffer.
type LinesConfig struct {
	MaxLines   int `yaml:"max_lines" env:"MAX_LINES"`
	MaxPartial int `yaml:"max_partial" env:"MAX_PARTIAL"`
}

// StatusConfig configures the HTTP status API.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Listen  string `yaml:"listen" env:"LISTEN"`
}

// MonitorConfig configures the encrypted event stream.
type MonitorConfig struct {
	Enabled        bool          `yaml:"enabled" env:"ENABLED"`
	Listen         string        `yaml:"listen" env:"LISTEN"`
	KeyFile        string        `yaml:"key_file" env:"KEY_FILE"`
	MaxConnections int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	RateLimit      float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst      int           `yaml:"rate_burst" env:"RATE_BURST"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Colour: "blue",
		Link: LinkConfig{
			Peer:              "robot",
			Adapter:           bluez.DefaultAdapter,
			WriteUUID:         link.DefaultCharacteristicUUID,
			NotifyUUID:        link.DefaultCharacteristicUUID,
			ConnectTimeout:    link.DefaultConnectTimeout,
			WriteTimeout:      link.DefaultWriteTimeout,
			ReconnectDelay:    link.DefaultReconnectDelay,
			SettleDelay:       link.DefaultSettleDelay,
			FallbackChunkSize: link.DefaultFallbackChunkSize,
			MaxFrameRate:      link.DefaultMaxFrameRate,
			PollInterval:      bluez.DefaultPollInterval,
		},
		Lines: LinesConfig{
			MaxLines:   1024,
			MaxPartial: 4096,
		},
		Status: StatusConfig{
			Listen: DefaultStatusListen,
		},
		Monitor: MonitorConfig{
			Listen:         DefaultMonitorListen,
			MaxConnections: 16,
			RateLimit:      10,
			RateBurst:      20,
			WriteTimeout:   5 * time.Second,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := cfg.applyEnv(nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode merges YAML data into c, rejecting unknown keys.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first unusable value.
func (c *Config) Validate() error {
	if _, err := eagle.ParseColour(c.Colour); err != nil {
		return fmt.Errorf("%w: colour %q", ErrInvalidConfig, c.Colour)
	}
	if _, err := c.PeerAddress(); err != nil {
		return err
	}
	if err := c.LinkConfig(nil).Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Link.PollInterval < 0 {
		return fmt.Errorf("%w: link.poll_interval must not be negative", ErrInvalidConfig)
	}
	if c.Status.Enabled && c.Status.Listen == "" {
		return fmt.Errorf("%w: status.listen is required when status is enabled", ErrInvalidConfig)
	}
	if c.Monitor.Enabled {
		if c.Monitor.Listen == "" {
			return fmt.Errorf("%w: monitor.listen is required when monitor is enabled", ErrInvalidConfig)
		}
		if c.Monitor.KeyFile == "" {
			return fmt.Errorf("%w: monitor.key_file is required when monitor is enabled", ErrInvalidConfig)
		}
	}
	if c.Monitor.MaxConnections < 0 || c.Monitor.RateLimit < 0 || c.Monitor.RateBurst < 0 {
		return fmt.Errorf("%w: monitor limits must not be negative", ErrInvalidConfig)
	}
	return nil
}

// PeerAddress resolves Link.Peer through KnownPeers.
func (c *Config) PeerAddress() (string, error) {
	peer := strings.TrimSpace(c.Link.Peer)
	if mac, ok := KnownPeers[strings.ToLower(peer)]; ok {
		return mac, nil
	}
	if peer == "" {
		return "", fmt.Errorf("%w: link.peer is required", ErrInvalidConfig)
	}
	if strings.Count(peer, ":") != 5 {
		return "", fmt.Errorf("%w: link.peer %q is neither a MAC address nor a known peer", ErrInvalidConfig, peer)
	}
	return strings.ToUpper(peer), nil
}

// TeamColour returns the parsed Colour.
func (c *Config) TeamColour() eagle.Colour {
	colour, _ := eagle.ParseColour(c.Colour)
	return colour
}

// LinkConfig converts the link and lines sections into a link.Config.
func (c *Config) LinkConfig(logger *slog.Logger) link.Config {
	return link.Config{
		WriteUUID:         c.Link.WriteUUID,
		NotifyUUID:        c.Link.NotifyUUID,
		ConnectTimeout:    c.Link.ConnectTimeout,
		WriteTimeout:      c.Link.WriteTimeout,
		ReconnectDelay:    c.Link.ReconnectDelay,
		SettleDelay:       c.Link.SettleDelay,
		FallbackChunkSize: c.Link.FallbackChunkSize,
		MaxFrameRate:      c.Link.MaxFrameRate,
		KeepaliveInterval: c.Link.KeepaliveInterval,
		MaxLines:          c.Lines.MaxLines,
		MaxPartial:        c.Lines.MaxPartial,
		Logger:            logger,
	}
}

// BluezConfig converts the link section into a bluez.Config.
func (c *Config) BluezConfig(logger *slog.Logger) (bluez.Config, error) {
	addr, err := c.PeerAddress()
	if err != nil {
		return bluez.Config{}, err
	}
	return bluez.Config{
		Address:      addr,
		Adapter:      c.Link.Adapter,
		PollInterval: c.Link.PollInterval,
		Logger:       logger,
	}, nil
}

// YAML renders the configuration for display.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
