package player

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/queueplayer/internal/domain/device"
	"github.com/osa030/queueplayer/internal/domain/track"
	"github.com/osa030/queueplayer/internal/infra/config"
	"github.com/osa030/queueplayer/internal/ui"
)

type fakeBackend struct {
	songs    []track.Track
	songsErr error
	next     []*track.Track
	nextErr  error
	gotToken string
}

func (b *fakeBackend) TopSongs(_ context.Context, token string) ([]track.Track, error) {
	b.gotToken = token
	return b.songs, b.songsErr
}

func (b *fakeBackend) PlayNext(context.Context) (*track.Track, error) {
	if b.nextErr != nil {
		return nil, b.nextErr
	}
	if len(b.next) == 0 {
		return nil, nil
	}
	n := b.next[0]
	b.next = b.next[1:]
	return n, nil
}

type fakeAPI struct {
	mu          sync.Mutex
	activated   []string
	played      []string
	activateErr error
	playErr     error
}

func (a *fakeAPI) ActivateDevice(_ context.Context, deviceID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activated = append(a.activated, deviceID)
	return a.activateErr
}

func (a *fakeAPI) PlayURI(_ context.Context, uri string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.played = append(a.played, uri)
	return a.playErr
}

type fakePlayer struct {
	opts         device.Options
	listeners    []device.Listener
	connectOK    bool
	connectErr   error
	toggleErr    error
	toggles      int
	disconnected bool
}

func (p *fakePlayer) Connect(context.Context) (bool, error) { return p.connectOK, p.connectErr }

func (p *fakePlayer) TogglePlay(context.Context) error {
	p.toggles++
	return p.toggleErr
}

func (p *fakePlayer) AddListener(l device.Listener) { p.listeners = append(p.listeners, l) }

func (p *fakePlayer) Disconnect() { p.disconnected = true }

func (p *fakePlayer) emit(e device.Event) {
	for _, l := range p.listeners {
		l(context.Background(), e)
	}
}

type fakeSDK struct {
	hooks      map[string]device.ReadyHook
	player     *fakePlayer
	newErr     error
	unregister []string
}

func (s *fakeSDK) OnReady(name string, hook device.ReadyHook) {
	if s.hooks == nil {
		s.hooks = make(map[string]device.ReadyHook)
	}
	s.hooks[name] = hook
}

func (s *fakeSDK) NewPlayer(opts device.Options) (device.Player, error) {
	if s.newErr != nil {
		return nil, s.newErr
	}
	s.player.opts = opts
	return s.player, nil
}

func (s *fakeSDK) Unregister(name string) { s.unregister = append(s.unregister, name) }

func (s *fakeSDK) fire(ctx context.Context) {
	for _, h := range s.hooks {
		h(ctx)
	}
}

type fixture struct {
	backend *fakeBackend
	api     *fakeAPI
	sdk     *fakeSDK
	page    *ui.Page
	cfg     *config.Config
}

func newFixture() *fixture {
	return &fixture{
		backend: &fakeBackend{},
		api:     &fakeAPI{},
		sdk:     &fakeSDK{player: &fakePlayer{connectOK: true}},
		page:    ui.NewPage(),
		cfg:     config.Default(),
	}
}

func (f *fixture) session(params url.Values) *Session {
	return NewSession("s1", params, Deps{
		Config:  f.cfg,
		Backend: f.backend,
		SDK:     f.sdk,
		Page:    f.page,
		NewAPI:  func(string) PlaybackAPI { return f.api },
	})
}

func (f *fixture) errorStatus(code string) string {
	return "Error: " + f.cfg.GetMessage(code)
}

func withToken() url.Values {
	return url.Values{"token": {"tok"}}
}

func TestAcquireToken(t *testing.T) {
	tests := []struct {
		name    string
		params  url.Values
		want    string
		wantErr bool
	}{
		{name: "present", params: url.Values{"token": {"abc"}}, want: "abc"},
		{name: "trimmed", params: url.Values{"token": {" abc "}}, want: "abc"},
		{name: "absent", params: url.Values{}, wantErr: true},
		{name: "empty", params: url.Values{"token": {""}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AcquireToken(tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSession_MissingToken(t *testing.T) {
	f := newFixture()
	s := f.session(url.Values{})

	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Equal(t, f.errorStatus(config.MsgMissingToken), f.page.Snapshot().Status)

	err := s.Bootstrap(context.Background())
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.Empty(t, f.backend.gotToken, "no backend call without a token")
	assert.Empty(t, f.sdk.hooks)
}

func TestSession_Bootstrap(t *testing.T) {
	f := newFixture()
	f.backend.songs = []track.Track{{Name: "X", Artist: "Y", URI: "u1"}}
	s := f.session(withToken())

	require.NoError(t, s.Bootstrap(context.Background()))
	assert.Equal(t, "tok", f.backend.gotToken)
	assert.Equal(t, StateInitializing, s.State())

	snap := f.page.Snapshot()
	assert.Equal(t, []ui.Item{{Name: "X", Artist: "Y", URI: "u1"}}, snap.Queue)
	assert.Contains(t, f.sdk.hooks, "session:s1")
	assert.Equal(t, 1, s.Snapshot().Queued)

	require.NoError(t, f.page.Click(context.Background(), ui.Action{Kind: ui.ActionPlay, URI: "u1"}))
	assert.Equal(t, []string{"u1"}, f.api.played)
}

func TestSession_Bootstrap_SkipsSongsWithoutURI(t *testing.T) {
	f := newFixture()
	f.backend.songs = []track.Track{
		{Name: "X", Artist: "Y", URI: "u1"},
		{Name: "Broken", Artist: "Y", URI: " "},
	}
	s := f.session(withToken())

	require.NoError(t, s.Bootstrap(context.Background()))
	assert.Equal(t, []ui.Item{{Name: "X", Artist: "Y", URI: "u1"}}, f.page.Snapshot().Queue)
	assert.Equal(t, 1, s.Snapshot().Queued)
}

func TestSession_Bootstrap_SongListFailure(t *testing.T) {
	f := newFixture()
	f.backend.songsErr = errors.New("boom")
	s := f.session(withToken())

	err := s.Bootstrap(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSongListLoad)
	assert.ErrorIs(t, err, ErrInitialization)

	assert.Equal(t, f.errorStatus(config.MsgInitialization), f.page.Snapshot().Status)
	assert.Empty(t, f.sdk.hooks, "bootstrap stops at the first failure")
	assert.ErrorIs(t, f.page.Click(context.Background(), ui.Action{Kind: ui.ActionToggle}), ui.ErrUnbound)
}

func TestSession_SDKReadyFlow(t *testing.T) {
	f := newFixture()
	s := f.session(withToken())
	require.NoError(t, s.Bootstrap(context.Background()))

	f.sdk.fire(context.Background())
	p := f.sdk.player
	assert.Equal(t, "Custom Music Player", p.opts.Name)
	assert.Equal(t, 0.5, p.opts.Volume)
	tok, err := p.opts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
	require.Len(t, p.listeners, 1)
	assert.Equal(t, f.cfg.GetMessage(config.MsgPlayerConnected), f.page.Snapshot().Status)

	p.emit(device.ReadyEvent{DeviceID: "dev-1"})
	assert.Equal(t, []string{"dev-1"}, f.api.activated)
	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, "dev-1", s.Snapshot().DeviceID)
	assert.Equal(t, f.cfg.GetMessage(config.MsgDeviceReady), f.page.Snapshot().Status)

	p.emit(device.StateChangedEvent{State: device.PlaybackState{Paused: true, TrackName: "Song"}})
	require.NotNil(t, f.page.Snapshot().Playback)
	assert.True(t, f.page.Snapshot().Playback.Paused)

	p.emit(device.NotReadyEvent{DeviceID: "dev-1"})
	assert.Empty(t, s.Snapshot().DeviceID)
	assert.Equal(t, StateDeviceActivating, s.State())
	assert.Equal(t, f.cfg.GetMessage(config.MsgDeviceLost), f.page.Snapshot().Status)
}

func TestSession_DeviceActivationFailure(t *testing.T) {
	f := newFixture()
	f.api.activateErr = errors.New("404")
	s := f.session(withToken())
	require.NoError(t, s.Bootstrap(context.Background()))
	f.sdk.fire(context.Background())

	f.sdk.player.emit(device.ReadyEvent{DeviceID: "dev-1"})
	assert.Equal(t, f.errorStatus(config.MsgDeviceActivation), f.page.Snapshot().Status)
	assert.Equal(t, StateDeviceActivating, s.State())
}

func TestSession_Connect(t *testing.T) {
	tests := []struct {
		name       string
		connectOK  bool
		connectErr error
		newErr     error
	}{
		{name: "unsuccessful", connectOK: false},
		{name: "transport error", connectErr: errors.New("dial")},
		{name: "player construction fails", newErr: errors.New("bad options")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.sdk.player.connectOK = tt.connectOK
			f.sdk.player.connectErr = tt.connectErr
			f.sdk.newErr = tt.newErr
			s := f.session(withToken())
			require.NoError(t, s.Bootstrap(context.Background()))

			f.sdk.fire(context.Background())
			assert.Equal(t, f.errorStatus(config.MsgConnection), f.page.Snapshot().Status)
		})
	}

	t.Run("before player exists", func(t *testing.T) {
		f := newFixture()
		s := f.session(withToken())
		assert.ErrorIs(t, s.Connect(context.Background()), ErrConnection)
	})
}

func TestSession_TogglePlayback(t *testing.T) {
	f := newFixture()
	s := f.session(withToken())
	require.NoError(t, s.Bootstrap(context.Background()))

	assert.ErrorIs(t, s.TogglePlayback(context.Background()), ErrToggle)

	f.sdk.fire(context.Background())
	require.NoError(t, f.page.Click(context.Background(), ui.Action{Kind: ui.ActionToggle}))
	assert.Equal(t, 1, f.sdk.player.toggles)
	assert.Equal(t, f.cfg.GetMessage(config.MsgToggled), f.page.Snapshot().Status)

	f.sdk.player.toggleErr = errors.New("no device")
	err := s.TogglePlayback(context.Background())
	assert.ErrorIs(t, err, ErrToggle)
	assert.Equal(t, f.errorStatus(config.MsgToggle), f.page.Snapshot().Status)
}

func TestSession_PlayNext(t *testing.T) {
	f := newFixture()
	f.backend.songs = []track.Track{
		{Name: "A", Artist: "1", URI: "u1"},
		{Name: "B", Artist: "2", URI: "u2"},
	}
	f.backend.next = []*track.Track{{Name: "A", Artist: "1", URI: "u1"}}
	s := f.session(withToken())
	require.NoError(t, s.Bootstrap(context.Background()))

	require.NoError(t, f.page.Click(context.Background(), ui.Action{Kind: ui.ActionNext}))
	assert.Equal(t, []string{"u1"}, f.api.played)

	snap := f.page.Snapshot()
	require.NotNil(t, snap.NowPlaying)
	assert.Equal(t, "u1", snap.NowPlaying.URI)
	assert.Equal(t, []ui.Item{{Name: "B", Artist: "2", URI: "u2"}}, snap.Queue)

	sess := s.Snapshot()
	require.NotNil(t, sess.Current)
	assert.Equal(t, "u1", sess.Current.URI)
	assert.Equal(t, 1, sess.Queued)
}

func TestSession_PlayNext_Exhausted(t *testing.T) {
	f := newFixture()
	s := f.session(withToken())
	require.NoError(t, s.Bootstrap(context.Background()))

	require.NoError(t, s.PlayNext(context.Background()))

	snap := f.page.Snapshot()
	assert.True(t, snap.SkipDisabled)
	assert.Equal(t, f.cfg.GetMessage(config.MsgPlaylistFinished), snap.Status)
	assert.Equal(t, StateQueueExhausted, s.State())
	assert.Empty(t, f.api.played)
}

func TestSession_PlayNext_AfterExhaustion(t *testing.T) {
	f := newFixture()
	s := f.session(withToken())
	require.NoError(t, s.Bootstrap(context.Background()))
	require.NoError(t, s.PlayNext(context.Background()))

	// The backend would hand out another song, but skip stays disabled.
	f.backend.next = []*track.Track{{Name: "Z", Artist: "9", URI: "u9"}}

	err := f.page.Click(context.Background(), ui.Action{Kind: ui.ActionNext})
	assert.ErrorIs(t, err, ui.ErrDisabled)
	assert.ErrorIs(t, s.PlayNext(context.Background()), ui.ErrDisabled)

	assert.Empty(t, f.api.played)
	assert.Len(t, f.backend.next, 1)
	assert.Equal(t, StateQueueExhausted, s.State())
	assert.Equal(t, f.cfg.GetMessage(config.MsgPlaylistFinished), f.page.Snapshot().Status)
}

func TestSession_PlayNext_Failures(t *testing.T) {
	t.Run("backend error", func(t *testing.T) {
		f := newFixture()
		f.backend.nextErr = errors.New("503")
		s := f.session(withToken())

		assert.ErrorIs(t, s.PlayNext(context.Background()), ErrNextTrack)
		assert.Equal(t, f.errorStatus(config.MsgNextTrack), f.page.Snapshot().Status)
	})

	t.Run("backend song without uri", func(t *testing.T) {
		f := newFixture()
		f.backend.songs = []track.Track{{Name: "A", Artist: "1", URI: "u1"}}
		f.backend.next = []*track.Track{{Name: "A", Artist: "1"}}
		s := f.session(withToken())
		require.NoError(t, s.Bootstrap(context.Background()))

		assert.ErrorIs(t, s.PlayNext(context.Background()), ErrNextTrack)
		assert.Equal(t, f.errorStatus(config.MsgNextTrack), f.page.Snapshot().Status)
		assert.Empty(t, f.api.played)
		assert.Len(t, f.page.Snapshot().Queue, 1)
	})

	t.Run("playback rejected still advances the list", func(t *testing.T) {
		f := newFixture()
		f.backend.songs = []track.Track{{Name: "A", Artist: "1", URI: "u1"}}
		f.backend.next = []*track.Track{{Name: "A", Artist: "1", URI: "u1"}}
		f.api.playErr = errors.New("403 premium required")
		s := f.session(withToken())
		require.NoError(t, s.Bootstrap(context.Background()))

		err := s.PlayNext(context.Background())
		assert.ErrorIs(t, err, ErrPlayback)
		assert.Equal(t, f.errorStatus(config.MsgPlayback), f.page.Snapshot().Status)
		assert.Empty(t, f.page.Snapshot().Queue)
	})
}

func TestSession_PlayTrack_Failure(t *testing.T) {
	f := newFixture()
	f.api.playErr = errors.New("403")
	s := f.session(withToken())

	assert.NotPanics(t, func() {
		err := s.PlayTrack(context.Background(), "u1")
		assert.ErrorIs(t, err, ErrPlayback)
	})
	assert.Equal(t, f.errorStatus(config.MsgPlayback), f.page.Snapshot().Status)
}

func TestSession_Close(t *testing.T) {
	f := newFixture()
	s := f.session(withToken())
	require.NoError(t, s.Bootstrap(context.Background()))
	f.sdk.fire(context.Background())

	s.Close()
	s.Close()
	assert.True(t, f.sdk.player.disconnected)
	assert.Equal(t, []string{"session:s1"}, f.sdk.unregister)

	t.Run("hook after close disconnects immediately", func(t *testing.T) {
		f := newFixture()
		s := f.session(withToken())
		require.NoError(t, s.Bootstrap(context.Background()))
		s.Close()

		f.sdk.fire(context.Background())
		assert.True(t, f.sdk.player.disconnected)
		assert.Nil(t, s.currentPlayer())
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "queue_exhausted", StateQueueExhausted.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestMessageCode(t *testing.T) {
	wrapped := fail(errors.New("cause"), ErrPlayback, "ctx")
	assert.Equal(t, config.MsgPlayback, messageCode(wrapped))
	assert.Equal(t, config.MsgInitialization, messageCode(errors.New("other")))
	assert.Equal(t, config.MsgMissingToken, messageCode(ErrMissingToken))
}
