// Package backend provides a client for the song backend that feeds the player.
package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/queueplayer/internal/domain/track"
)

// Client is a song backend client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Config represents backend client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// TopSongsResponse represents the response from GET /top-songs.
type TopSongsResponse struct {
	Queue []track.Track `json:"queue"`
}

// PlayNextResponse represents the response from GET /play-next.
// Song is nil once the playlist is exhausted.
type PlayNextResponse struct {
	Song *track.Track `json:"song"`
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid backend base URL")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// TopSongs retrieves the initial song list for the token's user.
func (c *Client) TopSongs(ctx context.Context, token string) ([]track.Track, error) {
	params := url.Values{}
	params.Set("token", token)

	var resp TopSongsResponse
	if err := c.getJSON(ctx, "/top-songs", params, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to get top songs")
	}

	zlog.Debug().Msgf("backend: loaded top songs: count=%d", len(resp.Queue))
	return resp.Queue, nil
}

// PlayNext asks the backend for the next song.
// It returns nil without error when the playlist is exhausted.
func (c *Client) PlayNext(ctx context.Context) (*track.Track, error) {
	var resp PlayNextResponse
	if err := c.getJSON(ctx, "/play-next", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to get next song")
	}

	if resp.Song == nil {
		zlog.Debug().Msg("backend: playlist exhausted")
	}
	return resp.Song, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf("backend returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
