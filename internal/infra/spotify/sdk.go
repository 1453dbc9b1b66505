package spotify

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/queueplayer/internal/domain/device"
)

// SDKConfig represents Connect SDK configuration.
type SDKConfig struct {
	BaseURL      string
	PollInterval time.Duration
}

type namedHook struct {
	name string
	hook device.ReadyHook
}

// SDK is the device.SDK for Spotify Connect devices.
// Hooks run once Load has been called.
type SDK struct {
	cfg SDKConfig

	mu     sync.Mutex
	hooks  []namedHook
	loaded bool
	ctx    context.Context
}

var _ device.SDK = (*SDK)(nil)

// NewSDK creates a new Connect SDK.
func NewSDK(cfg SDKConfig) *SDK {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBaseURL
	}
	return &SDK{cfg: cfg}
}

// Load marks the runtime as ready and runs the registered hooks in
// registration order. ctx bounds the lifetime of players created by hooks.
func (s *SDK) Load(ctx context.Context) {
	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return
	}
	s.loaded = true
	s.ctx = ctx
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	zlog.Info().Msgf("spotify: sdk loaded: pending_hooks=%d", len(hooks))
	for _, h := range hooks {
		s.run(ctx, h)
	}
}

// OnReady implements device.SDK.
func (s *SDK) OnReady(name string, hook device.ReadyHook) {
	s.mu.Lock()
	if !s.loaded {
		s.hooks = append(s.hooks, namedHook{name: name, hook: hook})
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.run(ctx, namedHook{name: name, hook: hook})
}

// Unregister removes a pending hook that has not run yet.
func (s *SDK) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.hooks[:0]
	for _, h := range s.hooks {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	s.hooks = kept
}

// NewPlayer implements device.SDK.
func (s *SDK) NewPlayer(opts device.Options) (device.Player, error) {
	return NewDevice(opts, s.cfg.BaseURL, s.cfg.PollInterval)
}

func (s *SDK) run(ctx context.Context, h namedHook) {
	zlog.Debug().Msgf("spotify: running ready hook: name=%s", h.name)
	h.hook(ctx)
}
