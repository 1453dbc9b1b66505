// Package track provides the Track domain entity.
package track

import "strings"

// Track represents a playable song reference received from the backend.
// Tracks are treated as immutable once received.
type Track struct {
	Name   string `json:"name"`   // Track name
	Artist string `json:"artist"` // Artist name
	URI    string `json:"uri"`    // Opaque playback identifier (e.g. spotify:track:ID)
}

// IsPlayable reports whether the track carries a playback identifier.
func (t Track) IsPlayable() bool {
	return strings.TrimSpace(t.URI) != ""
}

// Label returns a "name - artist" label for logs and status lines.
func (t Track) Label() string {
	switch {
	case t.Name == "" && t.Artist == "":
		return t.URI
	case t.Artist == "":
		return t.Name
	case t.Name == "":
		return t.Artist
	default:
		return t.Name + " - " + t.Artist
	}
}
