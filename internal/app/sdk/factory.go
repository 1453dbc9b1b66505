// Package sdk builds the playback device SDK selected in configuration.
package sdk

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/queueplayer/internal/infra/config"
	"github.com/osa030/queueplayer/internal/infra/spotify"
)

// ConnectSettings are the settings of the "connect" player type.
type ConnectSettings struct {
	PollIntervalMs int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms" default:"1000" validate:"gte=100,lte=60000"`
}

// NewFromConfig creates the SDK for the configured player type.
func NewFromConfig(cfg *config.Config) (*spotify.SDK, error) {
	zlog.Debug().Msgf("creating player sdk: type=%s settings=%+v", cfg.Player.Type, cfg.Player.Settings)

	switch cfg.Player.Type {
	case "connect", "":
		settings, err := decodeConnectSettings(cfg.Player.Settings)
		if err != nil {
			return nil, errors.Wrap(err, "invalid connect player settings")
		}
		zlog.Info().Msgf("registered player sdk: type=connect poll_interval_ms=%d", settings.PollIntervalMs)
		return spotify.NewSDK(spotify.SDKConfig{
			BaseURL:      cfg.Spotify.APIBaseURL,
			PollInterval: time.Duration(settings.PollIntervalMs) * time.Millisecond,
		}), nil

	default:
		return nil, errors.Newf("unsupported player type: %s", cfg.Player.Type)
	}
}

func decodeConnectSettings(settings map[string]any) (*ConnectSettings, error) {
	var s ConnectSettings
	if err := mapstructure.Decode(settings, &s); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&s); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &s, nil
}
