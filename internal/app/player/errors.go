package player

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/queueplayer/internal/infra/config"
)

var (
	ErrMissingToken     = errors.New("access token is missing")
	ErrInitialization   = errors.New("initialization failed")
	ErrSongListLoad     = errors.New("song list load failed")
	ErrConnection       = errors.New("player connection failed")
	ErrDeviceActivation = errors.New("device activation failed")
	ErrToggle           = errors.New("toggle playback failed")
	ErrPlayback         = errors.New("playback failed")
	ErrNextTrack        = errors.New("next track fetch failed")
)

// fail wraps cause and marks it with kind so callers can match it with errors.Is.
func fail(cause error, kind error, msg string) error {
	if cause == nil {
		return kind
	}
	return errors.Mark(errors.Wrap(cause, msg), kind)
}

// messageCode maps an error to the status message code shown on the page.
func messageCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return config.MsgMissingToken
	case errors.Is(err, ErrSongListLoad):
		return config.MsgSongListLoad
	case errors.Is(err, ErrConnection):
		return config.MsgConnection
	case errors.Is(err, ErrDeviceActivation):
		return config.MsgDeviceActivation
	case errors.Is(err, ErrToggle):
		return config.MsgToggle
	case errors.Is(err, ErrPlayback):
		return config.MsgPlayback
	case errors.Is(err, ErrNextTrack):
		return config.MsgNextTrack
	default:
		return config.MsgInitialization
	}
}
