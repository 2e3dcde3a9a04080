// Package oneshot provides server protocols that answer exactly one request
// per connection.
//
// A one-shot protocol is written like any pipelined protocol: it builds a
// Transport from an I/O handle. Pipelined adapts it to pipeline.ServerProto
// by truncating the transport's request stream to a single item, so the
// dispatch engine sees end-of-stream right after the first request, writes
// the one response, and closes the connection through its normal path.
package oneshot

import (
	"context"

	"github.com/mithrel/oneshot/pkg/pipeline"
	"github.com/mithrel/oneshot/pkg/stream"
)

// ServerProto is a one-shot server protocol over I/O handles of type T.
//
// For simple protocols the implementing type is often an empty struct; it
// may also carry configuration used while building the transport. It must
// be safe to call BindTransport from many goroutines at once.
type ServerProto[T, Req, Resp any] interface {
	// BindTransport builds a transport over io. It blocks until the
	// transport is ready or ctx is done. On error the caller keeps
	// ownership of io.
	BindTransport(ctx context.Context, io T) (pipeline.Transport[Req, Resp], error)
}

// ServerProtoFunc lets an ordinary function act as a one-shot ServerProto.
type ServerProtoFunc[T, Req, Resp any] func(ctx context.Context, io T) (pipeline.Transport[Req, Resp], error)

func (f ServerProtoFunc[T, Req, Resp]) BindTransport(ctx context.Context, io T) (pipeline.Transport[Req, Resp], error) {
	return f(ctx, io)
}

// Pipelined exposes a one-shot protocol as a pipelined one.
func Pipelined[T, Req, Resp any](p ServerProto[T, Req, Resp]) pipeline.ServerProto[T, Req, Resp] {
	return pipelined[T, Req, Resp]{inner: p}
}

type pipelined[T, Req, Resp any] struct {
	inner ServerProto[T, Req, Resp]
}

// BindTransport builds the inner transport and limits its request stream to
// one item. Errors from the inner builder are returned as is.
func (p pipelined[T, Req, Resp]) BindTransport(ctx context.Context, io T) (pipeline.Transport[Req, Resp], error) {
	t, err := p.inner.BindTransport(ctx, io)
	if err != nil {
		return nil, err
	}
	return TakeOne(t), nil
}

// TakeOne wraps t so that its request stream yields at most one item.
// Send, Flush and Close go straight to t.
func TakeOne[Req, Resp any](t pipeline.Transport[Req, Resp]) pipeline.Transport[Req, Resp] {
	return &transport[Req, Resp]{Transport: t, requests: stream.Take[Req](t, 1)}
}

type transport[Req, Resp any] struct {
	pipeline.Transport[Req, Resp]
	requests *stream.Taken[Req]
}

func (t *transport[Req, Resp]) Recv(ctx context.Context) (Req, error) {
	return t.requests.Recv(ctx)
}
