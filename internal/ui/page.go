// Package ui projects a player session onto a page model and renders it as HTML.
package ui

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/osa030/queueplayer/internal/domain/device"
	"github.com/osa030/queueplayer/internal/domain/track"
)

var (
	ErrUnbound       = errors.New("page handlers are not bound")
	ErrUnknownAction = errors.New("unknown page action")
	ErrDisabled      = errors.New("page control is disabled")
)

// Item is one entry of the song list.
type Item struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
	URI    string `json:"uri"`
}

// Playback is the device playback indicator.
type Playback struct {
	Paused     bool   `json:"paused"`
	TrackName  string `json:"track_name,omitempty"`
	Artist     string `json:"artist,omitempty"`
	PositionMs int64  `json:"position_ms"`
}

// Snapshot is a point-in-time copy of the page.
type Snapshot struct {
	Version      uint64    `json:"version"`
	Queue        []Item    `json:"queue"`
	NowPlaying   *Item     `json:"now_playing,omitempty"`
	Status       string    `json:"status"`
	SkipDisabled bool      `json:"skip_disabled"`
	Playback     *Playback `json:"playback,omitempty"`
}

// ActionKind identifies a clickable control.
type ActionKind int

const (
	ActionToggle ActionKind = iota // Play/pause button
	ActionNext                     // Skip button
	ActionPlay                     // Song list entry
)

// String returns the string representation of the action kind.
func (k ActionKind) String() string {
	switch k {
	case ActionToggle:
		return "toggle"
	case ActionNext:
		return "next"
	case ActionPlay:
		return "play"
	default:
		return "unknown"
	}
}

// Action is a click on a page control. URI is set for ActionPlay.
type Action struct {
	Kind ActionKind
	URI  string
}

// Handlers are the click handlers bound to the page controls.
type Handlers struct {
	Toggle func(ctx context.Context) error
	Next   func(ctx context.Context) error
	Play   func(ctx context.Context, uri string) error
}

// Page is the in-memory page model. It is safe for concurrent use.
type Page struct {
	mu           sync.RWMutex
	version      uint64
	queue        []Item
	nowPlaying   *Item
	status       string
	skipDisabled bool
	playback     *Playback
	handlers     *Handlers
	onChange     func(Snapshot)

	// notifyMu orders change callbacks; notified is the last version delivered.
	notifyMu sync.Mutex
	notified uint64
}

// NewPage creates an empty page.
func NewPage() *Page {
	return &Page{}
}

// OnChange registers a callback invoked with a fresh snapshot after every render.
// Callbacks see strictly increasing versions; a snapshot overtaken by a newer
// render is skipped. fn must not render to the page.
func (p *Page) OnChange(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// RenderQueue replaces the song list.
func (p *Page) RenderQueue(tracks []track.Track) {
	p.update(func() {
		p.queue = lo.Map(tracks, func(t track.Track, _ int) Item { return itemOf(t) })
	})
}

// RenderNowPlaying shows the track currently playing.
func (p *Page) RenderNowPlaying(t track.Track) {
	p.update(func() {
		item := itemOf(t)
		p.nowPlaying = &item
	})
}

// RenderStatus replaces the status line.
func (p *Page) RenderStatus(msg string) {
	p.update(func() { p.status = msg })
}

// RemoveFirstQueued drops the first entry of the song list, if any.
func (p *Page) RemoveFirstQueued() {
	p.update(func() {
		if len(p.queue) > 0 {
			p.queue = p.queue[1:]
		}
	})
}

// DisableSkip disables the skip control.
func (p *Page) DisableSkip() {
	p.update(func() { p.skipDisabled = true })
}

// RenderPlayback updates the playback indicator.
func (p *Page) RenderPlayback(state device.PlaybackState) {
	p.update(func() {
		p.playback = &Playback{
			Paused:     state.Paused,
			TrackName:  state.TrackName,
			Artist:     state.Artist,
			PositionMs: state.Position.Milliseconds(),
		}
	})
}

// Bind registers the click handlers.
func (p *Page) Bind(h Handlers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = &h
}

// Click dispatches a click to the bound handler.
func (p *Page) Click(ctx context.Context, a Action) error {
	p.mu.RLock()
	h := p.handlers
	skipDisabled := p.skipDisabled
	p.mu.RUnlock()

	if h == nil {
		return ErrUnbound
	}

	switch a.Kind {
	case ActionToggle:
		if h.Toggle == nil {
			return ErrUnbound
		}
		return h.Toggle(ctx)
	case ActionNext:
		if h.Next == nil {
			return ErrUnbound
		}
		if skipDisabled {
			return ErrDisabled
		}
		return h.Next(ctx)
	case ActionPlay:
		if h.Play == nil {
			return ErrUnbound
		}
		return h.Play(ctx, a.URI)
	default:
		return errors.Wrapf(ErrUnknownAction, "kind=%d", a.Kind)
	}
}

// Snapshot returns a copy of the page.
func (p *Page) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Page) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:      p.version,
		Queue:        make([]Item, len(p.queue)),
		Status:       p.status,
		SkipDisabled: p.skipDisabled,
	}
	copy(s.Queue, p.queue)
	if p.nowPlaying != nil {
		item := *p.nowPlaying
		s.NowPlaying = &item
	}
	if p.playback != nil {
		pb := *p.playback
		s.Playback = &pb
	}
	return s
}

// update applies fn under the lock and notifies the change callback outside it.
func (p *Page) update(fn func()) {
	p.mu.Lock()
	fn()
	p.version++
	snap := p.snapshotLocked()
	notify := p.onChange
	p.mu.Unlock()

	if notify == nil {
		return
	}

	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	if snap.Version <= p.notified {
		return
	}
	p.notified = snap.Version
	notify(snap)
}

func itemOf(t track.Track) Item {
	return Item{Name: t.Name, Artist: t.Artist, URI: t.URI}
}

// Position returns the playback position as a duration.
func (pb Playback) Position() time.Duration {
	return time.Duration(pb.PositionMs) * time.Millisecond
}
