// Package connect provides the Connect RPC remote control of player sessions.
package connect

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/queueplayer/internal/app/notification"
	"github.com/osa030/queueplayer/internal/app/player"
	"github.com/osa030/queueplayer/internal/app/registry"
	"github.com/osa030/queueplayer/internal/ui"
)

const (
	// PlayerServiceName is the fully-qualified name of the PlayerService service.
	PlayerServiceName = "queueplayer.v1.PlayerService"

	GetStateProcedure  = "/" + PlayerServiceName + "/GetState"
	ToggleProcedure    = "/" + PlayerServiceName + "/Toggle"
	NextProcedure      = "/" + PlayerServiceName + "/Next"
	PlayTrackProcedure = "/" + PlayerServiceName + "/PlayTrack"
	SubscribeProcedure = "/" + PlayerServiceName + "/Subscribe"
)

type GetStateRequest struct{}

type ToggleRequest struct{}

type NextRequest struct{}

type PlayTrackRequest struct {
	URI string `json:"uri"`
}

type SubscribeRequest struct{}

// StateResponse is the current view of a session.
type StateResponse struct {
	Session player.Snapshot `json:"session"`
	Page    ui.Snapshot     `json:"page"`
}

// ActionResponse reports the outcome of a player action. Action failures are
// carried here rather than as RPC errors because the page shows them as well.
type ActionResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	State   StateResponse `json:"state"`
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	notifications *notification.Manager

	closeOnce sync.Once
	done      chan struct{}
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(notifications *notification.Manager) *PlayerService {
	return &PlayerService{
		notifications: notifications,
		done:          make(chan struct{}),
	}
}

// NewPlayerServiceHandler builds an HTTP handler serving every PlayerService
// procedure and returns the path to mount it on.
func NewPlayerServiceHandler(svc *PlayerService, reg *registry.Registry, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(NewSessionInterceptor(reg)),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState, opts...))
	mux.Handle(ToggleProcedure, connect.NewUnaryHandler(ToggleProcedure, svc.Toggle, opts...))
	mux.Handle(NextProcedure, connect.NewUnaryHandler(NextProcedure, svc.Next, opts...))
	mux.Handle(PlayTrackProcedure, connect.NewUnaryHandler(PlayTrackProcedure, svc.PlayTrack, opts...))
	mux.Handle(SubscribeProcedure, connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...))
	return "/" + PlayerServiceName + "/", mux
}

// GetState returns the session's current view.
func (s *PlayerService) GetState(
	ctx context.Context,
	_ *connect.Request[GetStateRequest],
) (*connect.Response[StateResponse], error) {
	entry, err := entryFrom(ctx)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(stateOf(entry)), nil
}

// Toggle pauses or resumes playback.
func (s *PlayerService) Toggle(
	ctx context.Context,
	_ *connect.Request[ToggleRequest],
) (*connect.Response[ActionResponse], error) {
	return s.click(ctx, ui.Action{Kind: ui.ActionToggle})
}

// Next plays the backend's next song.
func (s *PlayerService) Next(
	ctx context.Context,
	_ *connect.Request[NextRequest],
) (*connect.Response[ActionResponse], error) {
	return s.click(ctx, ui.Action{Kind: ui.ActionNext})
}

// PlayTrack plays a track by URI.
func (s *PlayerService) PlayTrack(
	ctx context.Context,
	req *connect.Request[PlayTrackRequest],
) (*connect.Response[ActionResponse], error) {
	uri := strings.TrimSpace(req.Msg.URI)
	if uri == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("uri is required"))
	}
	return s.click(ctx, ui.Action{Kind: ui.ActionPlay, URI: uri})
}

func (s *PlayerService) click(ctx context.Context, action ui.Action) (*connect.Response[ActionResponse], error) {
	entry, err := entryFrom(ctx)
	if err != nil {
		return nil, err
	}

	err = entry.Page.Click(ctx, action)
	if errors.Is(err, ui.ErrUnbound) || errors.Is(err, ui.ErrDisabled) {
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}

	resp := &ActionResponse{Success: err == nil}
	if err != nil {
		resp.Error = entry.Page.Snapshot().Status
	}
	resp.State = *stateOf(entry)
	return connect.NewResponse(resp), nil
}

// Subscribe streams page updates of the session, starting with its current state.
func (s *PlayerService) Subscribe(
	ctx context.Context,
	_ *connect.Request[SubscribeRequest],
	stream *connect.ServerStream[notification.Notification],
) error {
	entry, err := entryFrom(ctx)
	if err != nil {
		return err
	}

	// Subscribe before taking the initial snapshot so no update is missed.
	// Broadcasts wait on the adapter until the initial state is out.
	adapter := &notificationStreamAdapter{stream: stream}
	adapter.mu.Lock()
	subscriptionID := s.notifications.Subscribe(entry.ID, adapter)
	defer s.notifications.Unsubscribe(subscriptionID)

	err = adapter.sendLocked(&notification.Notification{
		SequenceNo: s.notifications.NextSequenceNo(),
		SessionID:  entry.ID,
		Initial:    true,
		Page:       entry.Page.Snapshot(),
	})
	adapter.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

// Close ends every open subscription.
func (s *PlayerService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func stateOf(entry *registry.Entry) *StateResponse {
	return &StateResponse{
		Session: entry.Session.Snapshot(),
		Page:    entry.Page.Snapshot(),
	}
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
// Broadcasts may overlap, so sends are serialized and a page version that is
// not newer than the last one sent is dropped.
type notificationStreamAdapter struct {
	mu          sync.Mutex
	stream      interface{ Send(*notification.Notification) error }
	lastVersion uint64
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n.Page.Version <= a.lastVersion {
		return nil
	}
	return a.sendLocked(n)
}

func (a *notificationStreamAdapter) sendLocked(n *notification.Notification) error {
	if err := a.stream.Send(n); err != nil {
		return err
	}
	a.lastVersion = max(a.lastVersion, n.Page.Version)
	return nil
}
