// Package pipeline defines the generic server protocol contract driven by the
// dispatch engine: a protocol turns an I/O handle into a Transport, and the
// engine reads requests from it, hands them to a Service, and writes the
// responses back in order, possibly with several requests in flight.
package pipeline

import (
	"context"

	"github.com/mithrel/oneshot/pkg/stream"
)

// Transport is a duplex message channel over one I/O handle: a stream of
// inbound requests and a sink for outbound responses.
type Transport[Req, Resp any] interface {
	stream.Stream[Req]
	stream.Sink[Resp]
}

// ServerProto builds transports for a pipelined protocol.
//
// BindTransport may be called concurrently, once per accepted connection.
// It blocks until the transport is ready or ctx is done. When it returns an
// error the caller keeps ownership of io.
type ServerProto[T, Req, Resp any] interface {
	BindTransport(ctx context.Context, io T) (Transport[Req, Resp], error)
}

// ServerProtoFunc lets an ordinary function act as a ServerProto.
type ServerProtoFunc[T, Req, Resp any] func(ctx context.Context, io T) (Transport[Req, Resp], error)

func (f ServerProtoFunc[T, Req, Resp]) BindTransport(ctx context.Context, io T) (Transport[Req, Resp], error) {
	return f(ctx, io)
}

// Service answers one request.
type Service[Req, Resp any] interface {
	Call(ctx context.Context, req Req) (Resp, error)
}

// ServiceFunc lets an ordinary function act as a Service.
type ServiceFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f ServiceFunc[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}
