// Package ping is a small one-shot protocol: the client sends one string,
// the server answers "pong" to "ping" and echoes anything else, then the
// connection closes.
package ping

import (
	"context"
	"io"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mithrel/oneshot/internal/codec"
	"github.com/mithrel/oneshot/pkg/oneshot"
	"github.com/mithrel/oneshot/pkg/pipeline"
)

type (
	Request  = *wrapperspb.StringValue
	Response = *wrapperspb.StringValue
)

// Proto frames Request and Response messages with codec.ProtoFramed.
type Proto struct{}

var _ oneshot.ServerProto[io.ReadWriteCloser, Request, Response] = Proto{}

func (Proto) BindTransport(ctx context.Context, rw io.ReadWriteCloser) (pipeline.Transport[Request, Response], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return codec.NewProtoFramed[Request, Response](rw, func() Request { return &wrapperspb.StringValue{} }), nil
}

// Service answers ping requests.
type Service struct{}

var _ pipeline.Service[Request, Response] = Service{}

func (Service) Call(ctx context.Context, req Request) (Response, error) {
	if req.GetValue() == "ping" {
		return wrapperspb.String("pong"), nil
	}
	return wrapperspb.String(req.GetValue()), nil
}
