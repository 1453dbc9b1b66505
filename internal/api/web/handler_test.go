package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/queueplayer/internal/app/player"
	"github.com/osa030/queueplayer/internal/app/registry"
	"github.com/osa030/queueplayer/internal/domain/device"
	"github.com/osa030/queueplayer/internal/domain/track"
	"github.com/osa030/queueplayer/internal/infra/config"
)

type stubBackend struct{}

func (stubBackend) TopSongs(context.Context, string) ([]track.Track, error) {
	return []track.Track{{Name: "X", Artist: "Y", URI: "u1"}}, nil
}

func (stubBackend) PlayNext(context.Context) (*track.Track, error) { return nil, nil }

type recordingAPI struct {
	mu     sync.Mutex
	played []string
	err    error
}

func (a *recordingAPI) ActivateDevice(context.Context, string) error { return nil }

func (a *recordingAPI) PlayURI(_ context.Context, uri string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.played = append(a.played, uri)
	return a.err
}

func (a *recordingAPI) plays() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.played...)
}

// hookSDK records ready hooks and never loads.
type hookSDK struct {
	mu    sync.Mutex
	hooks int
}

func (s *hookSDK) OnReady(string, device.ReadyHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks++
}

func (s *hookSDK) NewPlayer(device.Options) (device.Player, error) { return nil, errors.New("unused") }

func (s *hookSDK) registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hooks
}

type testServer struct {
	*httptest.Server
	registry *registry.Registry
	api      *recordingAPI
	sdk      *hookSDK
	client   *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	api := &recordingAPI{}
	sdk := &hookSDK{}
	reg := registry.New(context.Background(), player.Deps{
		Config:  config.Default(),
		Backend: stubBackend{},
		SDK:     sdk,
		NewAPI:  func(string) player.PlaybackAPI { return api },
	}, nil)
	t.Cleanup(reg.CloseAll)

	mux := http.NewServeMux()
	NewHandler(reg).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:   srv,
		registry: reg,
		api:      api,
		sdk:      sdk,
		client: &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}},
	}
}

// launch opens the launch link and returns the new session id.
func (s *testServer) launch(t *testing.T, query string) string {
	t.Helper()
	resp, err := s.client.Get(s.URL + "/?" + query)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	location := resp.Header.Get("Location")
	require.True(t, strings.HasPrefix(location, "/s/"))
	return strings.TrimPrefix(location, "/s/")
}

// waitBootstrapped waits until the session registered its ready hook,
// the last bootstrap step.
func (s *testServer) waitBootstrapped(t *testing.T, id string) {
	t.Helper()
	_, err := s.registry.Get(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.sdk.registered() == 1 }, time.Second, 5*time.Millisecond)
}

func (s *testServer) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := s.client.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (s *testServer) post(t *testing.T, path string, form url.Values) int {
	t.Helper()
	resp, err := s.client.PostForm(s.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestHandler_LaunchAndRender(t *testing.T) {
	s := newTestServer(t)
	id := s.launch(t, "token=tok")
	s.waitBootstrapped(t, id)

	status, body := s.get(t, PagePath(id))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, strings.Count(body, `class="song-item"`))
	assert.Contains(t, body, `data-uri="u1"`)
	assert.Contains(t, body, `action="/s/`+id+`/play"`)
}

func TestHandler_LaunchWithoutToken(t *testing.T) {
	s := newTestServer(t)
	id := s.launch(t, "")

	status, body := s.get(t, PagePath(id))
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Error: Sign in to Spotify to use the player")

	assert.Equal(t, http.StatusConflict, s.post(t, PagePath(id)+"/toggle", nil))
}

func TestHandler_Actions(t *testing.T) {
	s := newTestServer(t)
	id := s.launch(t, "token=tok")
	s.waitBootstrapped(t, id)

	assert.Equal(t, http.StatusSeeOther, s.post(t, PagePath(id)+"/play", url.Values{"uri": {"u1"}}))
	assert.Equal(t, []string{"u1"}, s.api.plays())

	assert.Equal(t, http.StatusBadRequest, s.post(t, PagePath(id)+"/play", url.Values{}))

	assert.Equal(t, http.StatusSeeOther, s.post(t, PagePath(id)+"/next", nil))
	status, body := s.get(t, PagePath(id))
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `id="skip-button" disabled`)
	assert.Contains(t, body, "Playlist finished")

	assert.Equal(t, http.StatusConflict, s.post(t, PagePath(id)+"/next", nil))
	assert.Equal(t, []string{"u1"}, s.api.plays())
}

func TestHandler_PlaybackErrorShownOnPage(t *testing.T) {
	s := newTestServer(t)
	s.api.err = errors.New("403 premium required")
	id := s.launch(t, "token=tok")
	s.waitBootstrapped(t, id)

	assert.Equal(t, http.StatusSeeOther, s.post(t, PagePath(id)+"/play", url.Values{"uri": {"u1"}}))
	_, body := s.get(t, PagePath(id))
	assert.Contains(t, body, "Error: Playback error")
}

func TestHandler_StateAndHealth(t *testing.T) {
	s := newTestServer(t)
	id := s.launch(t, "token=tok")
	s.waitBootstrapped(t, id)

	status, body := s.get(t, PagePath(id)+"/state")
	require.Equal(t, http.StatusOK, status)
	var state stateResponse
	require.NoError(t, json.Unmarshal([]byte(body), &state))
	assert.Equal(t, id, state.Session.ID)
	assert.Equal(t, "initializing", state.Session.State)
	assert.Len(t, state.Page.Queue, 1)

	status, body = s.get(t, "/healthz")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","sessions":1}`, body)
}

func TestHandler_UnknownSession(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.get(t, "/s/missing")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, http.StatusNotFound, s.post(t, "/s/missing/next", nil))
}

func TestHandler_RelaunchReplacesSession(t *testing.T) {
	s := newTestServer(t)
	first := s.launch(t, "token=tok")
	s.waitBootstrapped(t, first)

	second := s.launch(t, "token=tok")
	assert.NotEqual(t, first, second)

	status, _ := s.get(t, PagePath(first))
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.get(t, PagePath(second))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, s.registry.Count())
}
