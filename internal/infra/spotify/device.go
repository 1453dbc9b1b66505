package spotify

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/osa030/queueplayer/internal/domain/device"
)

var (
	// ErrNotConnected is returned by commands issued before Connect succeeded.
	ErrNotConnected = errors.New("device not connected")
	// ErrDisconnected is returned by Connect once Disconnect was called.
	ErrDisconnected = errors.New("device handle disconnected")
)

// Device is a device.Player backed by a Spotify Connect device that is
// addressed through the Web API.
type Device struct {
	opts         device.Options
	client       *spotify.Client
	pollInterval time.Duration

	mu        sync.Mutex
	listeners []device.Listener
	deviceID  string
	online    bool
	last      *device.PlaybackState
	cancel    context.CancelFunc
	closed    bool
}

var _ device.Player = (*Device)(nil)

// NewDevice creates a player handle for the Connect device named in opts.
func NewDevice(opts device.Options, baseURL string, pollInterval time.Duration) (*Device, error) {
	if opts.Name == "" {
		return nil, errors.New("device name is required")
	}
	if opts.Token == nil {
		return nil, errors.New("token callback is required")
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	httpClient := oauth2.NewClient(context.Background(), &callbackTokenSource{fn: opts.Token})
	return &Device{
		opts:         opts,
		client:       newAPIClient(httpClient, baseURL),
		pollInterval: pollInterval,
	}, nil
}

// AddListener implements device.Player.
func (d *Device) AddListener(l device.Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

// Connect finds the named device, applies the initial volume and starts
// watching it. ReadyEvent is delivered asynchronously once watching starts.
func (d *Device) Connect(ctx context.Context) (bool, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false, ErrDisconnected
	}
	if d.cancel != nil {
		d.mu.Unlock()
		return true, nil
	}
	d.mu.Unlock()

	id, err := d.lookup(ctx)
	if err != nil {
		return false, err
	}
	if id == "" {
		zlog.Warn().Msgf("spotify: device not found: name=%s", d.opts.Name)
		return false, nil
	}

	sid := spotify.ID(id)
	if err := d.client.VolumeOpt(ctx, volumePercent(d.opts.Volume), &spotify.PlayOptions{DeviceID: &sid}); err != nil {
		// Some devices reject remote volume control.
		zlog.Warn().Err(err).Msgf("spotify: failed to set initial volume: device=%s", id)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	// Disconnect may have run while the device was looked up.
	if d.closed {
		d.mu.Unlock()
		cancel()
		return false, ErrDisconnected
	}
	if d.cancel != nil {
		d.mu.Unlock()
		cancel()
		return true, nil
	}
	d.deviceID = id
	d.cancel = cancel
	d.mu.Unlock()

	go d.watch(watchCtx, id)

	zlog.Info().Msgf("spotify: connected to device: name=%s id=%s", d.opts.Name, id)
	return true, nil
}

// TogglePlay pauses when the device is playing and resumes otherwise.
func (d *Device) TogglePlay(ctx context.Context) error {
	d.mu.Lock()
	id := d.deviceID
	d.mu.Unlock()
	if id == "" {
		return ErrNotConnected
	}

	state, err := d.client.PlayerState(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get player state")
	}

	sid := spotify.ID(id)
	opt := &spotify.PlayOptions{DeviceID: &sid}
	if state != nil && state.Playing {
		if err := d.client.PauseOpt(ctx, opt); err != nil {
			return errors.Wrap(err, "failed to pause")
		}
		return nil
	}
	if err := d.client.PlayOpt(ctx, opt); err != nil {
		return errors.Wrap(err, "failed to resume")
	}
	return nil
}

// Disconnect stops watching the device. The handle cannot be reconnected.
func (d *Device) Disconnect() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.deviceID = ""
	d.online = false
	d.last = nil
}

// lookup returns the ID of the device whose name matches, or "".
func (d *Device) lookup(ctx context.Context) (string, error) {
	devices, err := d.client.PlayerDevices(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to list devices")
	}
	for _, dev := range devices {
		if strings.EqualFold(dev.Name, d.opts.Name) {
			return string(dev.ID), nil
		}
	}
	return "", nil
}

// watch announces the device and then polls for presence and state changes.
func (d *Device) watch(ctx context.Context, id string) {
	d.setOnline(ctx, id, true)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.poll(ctx, id)
		}
	}
}

func (d *Device) poll(ctx context.Context, id string) {
	found, err := d.lookup(ctx)
	if err != nil {
		if ctx.Err() == nil {
			zlog.Debug().Err(err).Msg("spotify: device poll failed")
		}
		return
	}

	present := found == id
	d.setOnline(ctx, id, present)
	if !present {
		return
	}

	st, err := d.client.PlayerState(ctx)
	if err != nil {
		if ctx.Err() == nil {
			zlog.Debug().Err(err).Msg("spotify: player state poll failed")
		}
		return
	}
	if st == nil || string(st.Device.ID) != id {
		return
	}

	next := convertState(st)
	d.mu.Lock()
	changed := d.last == nil || *d.last != next
	if changed {
		d.last = &next
	}
	d.mu.Unlock()

	if changed {
		d.emit(ctx, device.StateChangedEvent{State: next})
	}
}

func (d *Device) setOnline(ctx context.Context, id string, online bool) {
	d.mu.Lock()
	changed := d.online != online
	d.online = online
	if !online {
		d.last = nil
	}
	d.mu.Unlock()

	if !changed {
		return
	}
	if online {
		d.emit(ctx, device.ReadyEvent{DeviceID: id})
	} else {
		d.emit(ctx, device.NotReadyEvent{DeviceID: id})
	}
}

func (d *Device) emit(ctx context.Context, e device.Event) {
	d.mu.Lock()
	listeners := make([]device.Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.Unlock()

	zlog.Debug().Msgf("spotify: device event: type=%s", e.Type())
	for _, l := range listeners {
		l(ctx, e)
	}
}

// convertState converts a Spotify player state to the device view.
func convertState(st *spotify.PlayerState) device.PlaybackState {
	state := device.PlaybackState{
		Paused:   !st.Playing,
		Position: time.Duration(st.Progress) * time.Millisecond,
	}
	if st.Item != nil {
		state.TrackURI = string(st.Item.URI)
		state.TrackName = st.Item.Name
		if len(st.Item.Artists) > 0 {
			state.Artist = st.Item.Artists[0].Name
		}
	}
	return state
}

// volumePercent converts a [0, 1] volume to the API's 0-100 scale.
func volumePercent(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return int(math.Round(v * 100))
}

// callbackTokenSource adapts a device.TokenFunc to oauth2.TokenSource.
type callbackTokenSource struct {
	fn device.TokenFunc
}

func (s *callbackTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.fn(context.Background())
	if err != nil {
		return nil, errors.Wrap(err, "token callback failed")
	}
	if tok == "" {
		return nil, errors.New("token callback returned an empty token")
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}
