// Package device defines the playback device contract: the SDK that loads
// the player runtime, the player handle it creates, and the events it emits.
package device

import (
	"context"
	"time"
)

// TokenFunc supplies the OAuth access token whenever the player needs it.
type TokenFunc func(ctx context.Context) (string, error)

// Options configures a new player handle.
type Options struct {
	Name   string    // Device name shown in Spotify Connect
	Token  TokenFunc // Access token callback
	Volume float64   // Initial volume in [0, 1]
}

// EventType represents a player event type.
type EventType int

const (
	EventReady        EventType = iota // Device is online and addressable
	EventStateChanged                  // Playback state changed on the device
	EventNotReady                      // Device went offline
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventStateChanged:
		return "player_state_changed"
	case EventNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// Event is emitted by a Player. The concrete type is one of ReadyEvent,
// StateChangedEvent or NotReadyEvent.
type Event interface {
	Type() EventType
}

// ReadyEvent signals the device is online.
type ReadyEvent struct {
	DeviceID string
}

// Type implements Event.
func (ReadyEvent) Type() EventType { return EventReady }

// StateChangedEvent carries the device's latest playback state.
type StateChangedEvent struct {
	State PlaybackState
}

// Type implements Event.
func (StateChangedEvent) Type() EventType { return EventStateChanged }

// NotReadyEvent signals the device went offline.
type NotReadyEvent struct {
	DeviceID string
}

// Type implements Event.
func (NotReadyEvent) Type() EventType { return EventNotReady }

// PlaybackState is the device's view of what is playing.
type PlaybackState struct {
	Paused    bool
	TrackURI  string
	TrackName string
	Artist    string
	Position  time.Duration
}

// Listener receives player events.
type Listener func(ctx context.Context, e Event)

// Player is a handle to a single playback device.
type Player interface {
	// Connect brings the device online. It returns false when the device
	// could not be reached without an underlying transport error.
	Connect(ctx context.Context) (bool, error)
	// TogglePlay resumes or pauses playback on the device.
	TogglePlay(ctx context.Context) error
	// AddListener subscribes to device events.
	AddListener(l Listener)
	// Disconnect takes the device offline and stops event delivery.
	Disconnect()
}

// ReadyHook is invoked once the SDK runtime is available.
type ReadyHook func(ctx context.Context)

// SDK loads the player runtime and constructs player handles.
type SDK interface {
	// OnReady registers a named hook run when the runtime is ready.
	// Hooks registered after the runtime is ready run immediately.
	OnReady(name string, hook ReadyHook)
	// NewPlayer constructs a player handle.
	NewPlayer(opts Options) (Player, error)
}
