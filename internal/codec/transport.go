package codec

import (
	"bufio"
	"context"
	"io"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/mithrel/oneshot/pkg/pipeline"
)

// readDeadliner is implemented by net.Conn and quic streams.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// ProtoFramed is a pipeline.Transport that reads Req frames from and writes
// Resp frames to one I/O handle. It is owned by a single connection; Recv
// and Send may run on different goroutines, but each must not be called
// concurrently with itself.
type ProtoFramed[Req, Resp proto.Message] struct {
	rw     io.ReadWriteCloser
	r      *bufio.Reader
	w      *bufio.Writer
	newReq func() Req
}

var _ pipeline.Transport[proto.Message, proto.Message] = (*ProtoFramed[proto.Message, proto.Message])(nil)

// NewProtoFramed wraps rw. newReq allocates the message each inbound frame
// is decoded into.
func NewProtoFramed[Req, Resp proto.Message](rw io.ReadWriteCloser, newReq func() Req) *ProtoFramed[Req, Resp] {
	return &ProtoFramed[Req, Resp]{
		rw:     rw,
		r:      bufio.NewReader(rw),
		w:      bufio.NewWriter(rw),
		newReq: newReq,
	}
}

// Recv decodes the next request. Cancelling ctx interrupts a blocked read
// when the handle supports read deadlines.
func (f *ProtoFramed[Req, Resp]) Recv(ctx context.Context) (Req, error) {
	var zero Req
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if d, ok := f.rw.(readDeadliner); ok {
		if dl, ok := ctx.Deadline(); ok {
			_ = d.SetReadDeadline(dl)
		}
		stop := context.AfterFunc(ctx, func() { _ = d.SetReadDeadline(time.Now()) })
		defer func() {
			if !stop() {
				return
			}
			_ = d.SetReadDeadline(time.Time{})
		}()
	}
	req := f.newReq()
	if err := ReadFrame(f.r, req); err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, err
	}
	return req, nil
}

// Send buffers resp; call Flush to write it out.
func (f *ProtoFramed[Req, Resp]) Send(ctx context.Context, resp Resp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return WriteFrame(f.w, resp)
}

func (f *ProtoFramed[Req, Resp]) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.w.Flush()
}

// Close flushes pending responses and closes the handle.
func (f *ProtoFramed[Req, Resp]) Close() error {
	ferr := f.w.Flush()
	cerr := f.rw.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}
