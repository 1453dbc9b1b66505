package connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/queueplayer/internal/app/registry"
)

const (
	// SessionIDHeader names the session an RPC acts on.
	SessionIDHeader = "X-Session-Id"
)

var errMissingSession = errors.New("missing " + SessionIDHeader + " header")

type entryKey struct{}

// sessionInterceptor resolves the session named in the request metadata and
// rejects calls for sessions that are not live.
type sessionInterceptor struct {
	registry *registry.Registry
}

// NewSessionInterceptor creates an interceptor that attaches the session
// named by SessionIDHeader to the handler context.
func NewSessionInterceptor(reg *registry.Registry) connect.Interceptor {
	return &sessionInterceptor{registry: reg}
}

func (i *sessionInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		ctx, err := i.resolve(ctx, req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *sessionInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *sessionInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.resolve(ctx, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *sessionInterceptor) resolve(ctx context.Context, header http.Header) (context.Context, error) {
	id := header.Get(SessionIDHeader)
	if id == "" {
		return nil, connect.NewError(connect.CodeUnauthenticated, errMissingSession)
	}

	entry, err := i.registry.Get(id)
	if err != nil {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	return context.WithValue(ctx, entryKey{}, entry), nil
}

func entryFrom(ctx context.Context) (*registry.Entry, error) {
	entry, ok := ctx.Value(entryKey{}).(*registry.Entry)
	if !ok {
		return nil, connect.NewError(connect.CodeUnauthenticated, errMissingSession)
	}
	return entry, nil
}
