package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/osa030/queueplayer/internal/app/notification"
)

// PlayerServiceClient is a client for the PlayerService RPC.
type PlayerServiceClient struct {
	sessionID string
	getState  *connect.Client[GetStateRequest, StateResponse]
	toggle    *connect.Client[ToggleRequest, ActionResponse]
	next      *connect.Client[NextRequest, ActionResponse]
	playTrack *connect.Client[PlayTrackRequest, ActionResponse]
	subscribe *connect.Client[SubscribeRequest, notification.Notification]
}

// NewPlayerServiceClient creates a client acting on one session.
func NewPlayerServiceClient(httpClient connect.HTTPClient, baseURL, sessionID string, opts ...connect.ClientOption) *PlayerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)

	return &PlayerServiceClient{
		sessionID: sessionID,
		getState:  connect.NewClient[GetStateRequest, StateResponse](httpClient, baseURL+GetStateProcedure, opts...),
		toggle:    connect.NewClient[ToggleRequest, ActionResponse](httpClient, baseURL+ToggleProcedure, opts...),
		next:      connect.NewClient[NextRequest, ActionResponse](httpClient, baseURL+NextProcedure, opts...),
		playTrack: connect.NewClient[PlayTrackRequest, ActionResponse](httpClient, baseURL+PlayTrackProcedure, opts...),
		subscribe: connect.NewClient[SubscribeRequest, notification.Notification](httpClient, baseURL+SubscribeProcedure, opts...),
	}
}

// GetState calls PlayerService.GetState.
func (c *PlayerServiceClient) GetState(ctx context.Context) (*StateResponse, error) {
	resp, err := c.getState.CallUnary(ctx, withSession(c.sessionID, &GetStateRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Toggle calls PlayerService.Toggle.
func (c *PlayerServiceClient) Toggle(ctx context.Context) (*ActionResponse, error) {
	resp, err := c.toggle.CallUnary(ctx, withSession(c.sessionID, &ToggleRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Next calls PlayerService.Next.
func (c *PlayerServiceClient) Next(ctx context.Context) (*ActionResponse, error) {
	resp, err := c.next.CallUnary(ctx, withSession(c.sessionID, &NextRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// PlayTrack calls PlayerService.PlayTrack.
func (c *PlayerServiceClient) PlayTrack(ctx context.Context, uri string) (*ActionResponse, error) {
	resp, err := c.playTrack.CallUnary(ctx, withSession(c.sessionID, &PlayTrackRequest{URI: uri}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Subscribe calls PlayerService.Subscribe.
func (c *PlayerServiceClient) Subscribe(ctx context.Context) (*connect.ServerStreamForClient[notification.Notification], error) {
	return c.subscribe.CallServerStream(ctx, withSession(c.sessionID, &SubscribeRequest{}))
}

func withSession[T any](sessionID string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if sessionID != "" {
		req.Header().Set(SessionIDHeader, sessionID)
	}
	return req
}
