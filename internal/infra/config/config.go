// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Message codes used by GetMessage.
const (
	MsgMissingToken     = "missing_token"
	MsgInitialization   = "initialization"
	MsgSongListLoad     = "song_list_load"
	MsgConnection       = "connection"
	MsgDeviceActivation = "device_activation"
	MsgToggle           = "toggle"
	MsgPlayback         = "playback"
	MsgNextTrack        = "next_track"
	MsgPlayerConnected  = "player_connected"
	MsgDeviceReady      = "device_ready"
	MsgDeviceLost       = "device_lost"
	MsgToggled          = "toggled"
	MsgPlaylistFinished = "playlist_finished"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Player   PlayerConfig   `yaml:"player"`
	Messages MessagesConfig `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr      string      `yaml:"addr" default:":8080"`
	PublicURL string      `yaml:"public_url" default:"http://localhost:8080" validate:"omitempty,url"`
	Hooks     HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// BackendConfig represents the song backend the player reads from.
type BackendConfig struct {
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	TimeoutMs int    `yaml:"timeout_ms" default:"10000" validate:"gte=0,lte=120000"`
}

// SpotifyConfig represents Spotify API configuration.
// Client credentials are only needed by the auth tool.
type SpotifyConfig struct {
	APIBaseURL   string `yaml:"api_base_url" default:"https://api.spotify.com/v1/" validate:"omitempty,url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// PlayerConfig represents the playback device configuration.
type PlayerConfig struct {
	Name     string         `yaml:"name" default:"Custom Music Player" validate:"required"`
	Volume   float64        `yaml:"volume" default:"0.5" validate:"gte=0,lte=1"`
	Type     string         `yaml:"type" default:"connect" validate:"omitempty,oneof=connect"`
	Settings map[string]any `yaml:"settings"`
}

// MessagesConfig represents user-facing status messages.
type MessagesConfig struct {
	MissingToken     string `yaml:"missing_token" default:"Sign in to Spotify to use the player"`
	Initialization   string `yaml:"initialization" default:"Could not initialize the player"`
	SongListLoad     string `yaml:"song_list_load" default:"Could not load the songs"`
	Connection       string `yaml:"connection" default:"Could not connect to Spotify"`
	DeviceActivation string `yaml:"device_activation" default:"Could not set up the playback device"`
	Toggle           string `yaml:"toggle" default:"Could not toggle playback"`
	Playback         string `yaml:"playback" default:"Playback error"`
	NextTrack        string `yaml:"next_track" default:"Could not play the next song"`
	PlayerConnected  string `yaml:"player_connected" default:"Player connected"`
	DeviceReady      string `yaml:"device_ready" default:"Device ready"`
	DeviceLost       string `yaml:"device_lost" default:"Device disconnected"`
	Toggled          string `yaml:"toggled" default:"Playback toggled"`
	PlaylistFinished string `yaml:"playlist_finished" default:"Playlist finished"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
// The backend URL is left empty.
func Default() *Config {
	var cfg Config
	// defaults.Set only fails on malformed tags.
	if err := defaults.Set(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("QUEUEPLAYER_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("SPOTIFY_API_BASE_URL"); v != "" {
		c.Spotify.APIBaseURL = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case MsgMissingToken:
		return c.Messages.MissingToken
	case MsgInitialization:
		return c.Messages.Initialization
	case MsgSongListLoad:
		return c.Messages.SongListLoad
	case MsgConnection:
		return c.Messages.Connection
	case MsgDeviceActivation:
		return c.Messages.DeviceActivation
	case MsgToggle:
		return c.Messages.Toggle
	case MsgPlayback:
		return c.Messages.Playback
	case MsgNextTrack:
		return c.Messages.NextTrack
	case MsgPlayerConnected:
		return c.Messages.PlayerConnected
	case MsgDeviceReady:
		return c.Messages.DeviceReady
	case MsgDeviceLost:
		return c.Messages.DeviceLost
	case MsgToggled:
		return c.Messages.Toggled
	case MsgPlaylistFinished:
		return c.Messages.PlaylistFinished
	default:
		return c.Messages.Initialization
	}
}

// BackendTimeout returns the HTTP timeout for backend calls.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutMs) * time.Millisecond
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
