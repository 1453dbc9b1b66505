// Package player provides the playback session controller. A session loads
// the song list from the backend, projects it onto the page, brings the
// playback device online and forwards page clicks to the playback API.
package player

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/osa030/queueplayer/internal/domain/device"
	"github.com/osa030/queueplayer/internal/domain/queue"
	"github.com/osa030/queueplayer/internal/domain/track"
	"github.com/osa030/queueplayer/internal/infra/config"
	"github.com/osa030/queueplayer/internal/infra/logger"
	"github.com/osa030/queueplayer/internal/ui"
)

// Backend is the collaborator service that owns the song order.
type Backend interface {
	TopSongs(ctx context.Context, token string) ([]track.Track, error)
	// PlayNext returns nil when there are no more songs.
	PlayNext(ctx context.Context) (*track.Track, error)
}

// PlaybackAPI issues playback commands for the authenticated user.
type PlaybackAPI interface {
	ActivateDevice(ctx context.Context, deviceID string) error
	PlayURI(ctx context.Context, uri string) error
}

// Renderer is the page the session draws on.
type Renderer interface {
	RenderQueue(tracks []track.Track)
	RenderNowPlaying(t track.Track)
	RenderStatus(msg string)
	RemoveFirstQueued()
	DisableSkip()
	RenderPlayback(state device.PlaybackState)
	Bind(h ui.Handlers)
}

// Deps are the collaborators of a session.
type Deps struct {
	Config  *config.Config
	Backend Backend
	SDK     device.SDK
	Page    Renderer
	// NewAPI builds the playback API client for an access token.
	NewAPI func(token string) PlaybackAPI
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID       string       `json:"id"`
	State    string       `json:"state"`
	Current  *track.Track `json:"current,omitempty"`
	DeviceID string       `json:"device_id,omitempty"`
	Status   string       `json:"status"`
	Queued   int          `json:"queued"`
}

// Session is one player page. User actions are serialized; device events
// are handled as they arrive.
type Session struct {
	id      string
	token   string
	cfg     *config.Config
	backend Backend
	sdk     device.SDK
	page    Renderer
	api     PlaybackAPI
	log     zerolog.Logger

	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	queue    *queue.Queue
	current  *track.Track
	deviceID string
	status   string
	player   device.Player
	closed   bool
}

// AcquireToken reads the access token from the launch parameters.
func AcquireToken(params url.Values) (string, error) {
	token := strings.TrimSpace(params.Get("token"))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// NewSession creates a session from the launch parameters. A missing token is
// reported on the page and leaves the session unauthenticated.
func NewSession(id string, params url.Values, deps Deps) *Session {
	s := &Session{
		id:      id,
		cfg:     deps.Config,
		backend: deps.Backend,
		sdk:     deps.SDK,
		page:    deps.Page,
		log:     logger.Component("player").With().Str("session", id).Logger(),
		state:   StateUnauthenticated,
		queue:   queue.New(),
	}

	token, err := AcquireToken(params)
	if err != nil {
		s.report(err)
		return s
	}

	s.token = token
	s.api = deps.NewAPI(token)
	s.state = StateInitializing
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Bootstrap loads the song list, binds the page controls and registers the
// SDK ready hook. It stops at the first failing step.
func (s *Session) Bootstrap(ctx context.Context) error {
	if s.token == "" {
		return ErrMissingToken
	}

	s.log.Info().Msg("bootstrapping session")

	if err := s.loadSongs(ctx); err != nil {
		s.report(err)
		s.report(ErrInitialization)
		return errors.Mark(err, ErrInitialization)
	}

	s.page.Bind(ui.Handlers{
		Toggle: s.TogglePlayback,
		Next:   s.PlayNext,
		Play:   s.PlayTrack,
	})

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil
	}

	s.sdk.OnReady(s.hookName(), s.OnSDKReady)
	return nil
}

func (s *Session) loadSongs(ctx context.Context) error {
	songs, err := s.backend.TopSongs(ctx, s.token)
	if err != nil {
		return fail(err, ErrSongListLoad, "failed to load song list")
	}

	s.mu.Lock()
	for _, t := range songs {
		if !t.IsPlayable() {
			s.log.Warn().Msgf("skipping song without uri: %s", t.Label())
			continue
		}
		s.queue.Enqueue(t)
	}
	queued := s.queue.PeekAll()
	s.mu.Unlock()

	s.page.RenderQueue(queued)
	s.log.Info().Msgf("song list loaded: count=%d", len(queued))
	return nil
}

// OnSDKReady creates the player handle, subscribes to its events and connects it.
func (s *Session) OnSDKReady(ctx context.Context) {
	p, err := s.sdk.NewPlayer(device.Options{
		Name:   s.cfg.Player.Name,
		Token:  s.accessToken,
		Volume: s.cfg.Player.Volume,
	})
	if err != nil {
		s.report(fail(err, ErrConnection, "failed to create player"))
		return
	}
	p.AddListener(s.handleEvent)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.Disconnect()
		return
	}
	s.player = p
	s.mu.Unlock()

	_ = s.Connect(ctx)
}

// Connect brings the player online.
func (s *Session) Connect(ctx context.Context) error {
	p := s.currentPlayer()
	if p == nil {
		err := errors.Wrap(ErrConnection, "player not created")
		s.report(err)
		return err
	}

	ok, err := p.Connect(ctx)
	if err != nil {
		err = fail(err, ErrConnection, "failed to connect player")
		s.report(err)
		return err
	}
	if !ok {
		err := errors.Wrap(ErrConnection, "player reported unsuccessful connection")
		s.report(err)
		return err
	}

	s.log.Info().Msg("player connected")
	s.setStatus(s.cfg.GetMessage(config.MsgPlayerConnected))
	return nil
}

// TogglePlayback pauses or resumes the device.
func (s *Session) TogglePlayback(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p := s.currentPlayer()
	if p == nil {
		err := errors.Wrap(ErrToggle, "player not ready")
		s.report(err)
		return err
	}

	if err := p.TogglePlay(ctx); err != nil {
		err = fail(err, ErrToggle, "failed to toggle playback")
		s.report(err)
		return err
	}

	s.setStatus(s.cfg.GetMessage(config.MsgToggled))
	return nil
}

// PlayNext asks the backend for the next song and plays it.
func (s *Session) PlayNext(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	// A click queued behind the one that finished the playlist ends here.
	if s.State() == StateQueueExhausted {
		return errors.Wrap(ui.ErrDisabled, "playlist finished")
	}

	next, err := s.backend.PlayNext(ctx)
	if err != nil {
		err = fail(err, ErrNextTrack, "failed to fetch next song")
		s.report(err)
		return err
	}

	if next == nil {
		s.mu.Lock()
		s.state = StateQueueExhausted
		s.mu.Unlock()

		s.log.Info().Msg("playlist finished")
		s.setStatus(s.cfg.GetMessage(config.MsgPlaylistFinished))
		s.page.DisableSkip()
		return nil
	}
	if !next.IsPlayable() {
		err := errors.Wrapf(ErrNextTrack, "backend song has no uri: %s", next.Label())
		s.report(err)
		return err
	}

	s.page.RenderNowPlaying(*next)
	s.mu.Lock()
	current := *next
	s.current = &current
	s.mu.Unlock()

	playErr := s.playTrack(ctx, next.URI)

	// The backend owns the order; the local list is display only and
	// advances once per song regardless of the playback result.
	s.mu.Lock()
	head, ok := s.queue.Dequeue()
	s.mu.Unlock()
	if ok {
		if head.URI != next.URI {
			s.log.Warn().Msgf("backend song differs from list head: backend=%s head=%s", next.URI, head.URI)
		}
		s.page.RemoveFirstQueued()
	}

	return playErr
}

// PlayTrack starts playback of uri on the active device.
func (s *Session) PlayTrack(ctx context.Context, uri string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.playTrack(ctx, uri)
}

func (s *Session) playTrack(ctx context.Context, uri string) error {
	if s.api == nil {
		err := errors.Wrap(ErrPlayback, "no access token")
		s.report(err)
		return err
	}

	if err := s.api.PlayURI(ctx, uri); err != nil {
		err = fail(err, ErrPlayback, "failed to start playback")
		s.report(err)
		return err
	}

	s.log.Info().Msgf("playing: uri=%s", uri)
	return nil
}

func (s *Session) handleEvent(ctx context.Context, e device.Event) {
	s.log.Debug().Msgf("device event: type=%s", e.Type())

	switch ev := e.(type) {
	case device.ReadyEvent:
		s.onDeviceReady(ctx, ev.DeviceID)
	case device.NotReadyEvent:
		s.onDeviceNotReady(ev.DeviceID)
	case device.StateChangedEvent:
		s.page.RenderPlayback(ev.State)
	}
}

func (s *Session) onDeviceReady(ctx context.Context, deviceID string) {
	s.mu.Lock()
	s.deviceID = deviceID
	if s.state != StateQueueExhausted {
		s.state = StateDeviceActivating
	}
	s.mu.Unlock()

	s.log.Info().Msgf("device ready: id=%s", deviceID)

	if err := s.api.ActivateDevice(ctx, deviceID); err != nil {
		s.report(fail(err, ErrDeviceActivation, "failed to activate device"))
		return
	}

	s.mu.Lock()
	if s.state == StateDeviceActivating {
		s.state = StateReady
	}
	s.mu.Unlock()

	s.setStatus(s.cfg.GetMessage(config.MsgDeviceReady))
}

func (s *Session) onDeviceNotReady(deviceID string) {
	s.mu.Lock()
	s.deviceID = ""
	if s.state == StateReady {
		s.state = StateDeviceActivating
	}
	s.mu.Unlock()

	s.log.Warn().Msgf("device went offline: id=%s", deviceID)
	s.setStatus(s.cfg.GetMessage(config.MsgDeviceLost))
}

// Snapshot returns the session's current view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:       s.id,
		State:    s.state.String(),
		DeviceID: s.deviceID,
		Status:   s.status,
		Queued:   s.queue.Len(),
	}
	if s.current != nil {
		current := *s.current
		snap.Current = &current
	}
	return snap
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close disconnects the player and drops a pending ready hook.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	p := s.player
	s.player = nil
	s.mu.Unlock()

	if u, ok := s.sdk.(interface{ Unregister(name string) }); ok {
		u.Unregister(s.hookName())
	}
	if p != nil {
		p.Disconnect()
	}
	s.log.Info().Msg("session closed")
}

// report logs err and shows its user-facing message in the status line.
func (s *Session) report(err error) {
	code := messageCode(err)
	msg := s.cfg.GetMessage(code)
	s.log.Error().Err(err).Str("code", code).Msg(msg)
	s.setStatus("Error: " + msg)
}

func (s *Session) setStatus(msg string) {
	s.mu.Lock()
	s.status = msg
	s.mu.Unlock()
	s.page.RenderStatus(msg)
}

func (s *Session) currentPlayer() device.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

func (s *Session) accessToken(context.Context) (string, error) {
	return s.token, nil
}

func (s *Session) hookName() string {
	return "session:" + s.id
}
