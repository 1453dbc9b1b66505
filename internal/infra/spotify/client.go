// Package spotify provides the Spotify Web API playback client and a
// Spotify Connect backed implementation of the device SDK.
package spotify

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

// DefaultAPIBaseURL is the Spotify Web API root.
const DefaultAPIBaseURL = "https://api.spotify.com/v1/"

// WebClient issues playback commands on behalf of a single access token.
type WebClient struct {
	client *spotify.Client
}

// NewWebClient creates a playback client authorized with a bearer token.
// The token is used as-is; it is never refreshed.
func NewWebClient(ctx context.Context, token, baseURL string) *WebClient {
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})
	return &WebClient{client: newAPIClient(oauth2.NewClient(ctx, src), baseURL)}
}

func newAPIClient(httpClient *http.Client, baseURL string) *spotify.Client {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return spotify.New(httpClient, spotify.WithBaseURL(baseURL))
}

// ActivateDevice makes the device the active playback target without
// starting playback.
func (c *WebClient) ActivateDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id is required")
	}
	if err := c.client.TransferPlayback(ctx, spotify.ID(deviceID), false); err != nil {
		return errors.Wrapf(err, "failed to transfer playback to device %s", deviceID)
	}
	return nil
}

// PlayURI starts playback of a single track on the active device.
func (c *WebClient) PlayURI(ctx context.Context, uri string) error {
	normalized := NormalizeTrackURI(uri)
	if normalized == "" {
		return errors.New("track uri is required")
	}

	err := c.client.PlayOpt(ctx, &spotify.PlayOptions{
		URIs: []spotify.URI{spotify.URI(normalized)},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to play %s", normalized)
	}
	return nil
}

// NormalizeTrackURI converts a track URL, URI or bare ID into a
// spotify:track URI. Other spotify: URIs are returned unchanged.
func NormalizeTrackURI(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}

	// Handle Spotify URI format: spotify:track:TRACK_ID, spotify:episode:ID, ...
	if strings.HasPrefix(input, "spotify:") {
		return input
	}

	// Handle URL format: https://open.spotify.com/track/TRACK_ID or https://open.spotify.com/intl-XX/track/TRACK_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		id := strings.Split(parts[len(parts)-1], "?")[0]
		id = strings.TrimRight(id, "/")
		if id == "" {
			return ""
		}
		return "spotify:track:" + id
	}

	// Assume it's already a track ID
	return "spotify:track:" + input
}
