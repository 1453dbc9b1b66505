package player

// State represents the session lifecycle state.
type State int

const (
	StateUnauthenticated  State = iota // No access token
	StateInitializing                  // Loading songs and waiting for the SDK
	StateDeviceActivating              // Device online, transferring playback
	StateReady                         // Device active
	StateQueueExhausted                // Backend has no more songs
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateInitializing:
		return "initializing"
	case StateDeviceActivating:
		return "device_activating"
	case StateReady:
		return "ready"
	case StateQueueExhausted:
		return "queue_exhausted"
	default:
		return "unknown"
	}
}
