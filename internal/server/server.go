// Package server is the dispatch engine: it drives any pipeline.ServerProto
// over accepted I/O handles, handing requests to a service and writing the
// responses back in request order.
//
// The engine knows nothing about one-shot protocols. A connection ends when
// its transport's request stream reports io.EOF; the engine then waits for
// every outstanding response to be written and closes the transport.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mithrel/oneshot/internal/transport"
	"github.com/mithrel/oneshot/pkg/pipeline"
)

// Server serves connections whose handles are of type T.
type Server[T io.Closer, Req, Resp any] struct {
	proto pipeline.ServerProto[T, Req, Resp]
	svc   pipeline.Service[Req, Resp]
	opts  options
	wg    sync.WaitGroup
}

func New[T io.Closer, Req, Resp any](proto pipeline.ServerProto[T, Req, Resp], svc pipeline.Service[Req, Resp], opts ...Option) *Server[T, Req, Resp] {
	o := options{maxInFlight: defaultMaxInFlight}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}
	return &Server[T, Req, Resp]{proto: proto, svc: svc, opts: o}
}

// Serve accepts connections until ctx is done or the acceptor fails, serving
// each on its own goroutine. It returns nil on cancellation and waits for
// open connections to finish.
func (s *Server[T, Req, Resp]) Serve(ctx context.Context, acc transport.Acceptor[T]) error {
	defer s.wg.Wait()

	errc := make(chan error, 1)
	go func() {
		for {
			if s.opts.limiter != nil {
				if err := s.opts.limiter.Wait(ctx); err != nil {
					errc <- err
					return
				}
			}
			conn, err := acc.Accept(ctx)
			if err != nil {
				errc <- err
				return
			}
			s.wg.Add(1)
			go func(conn T) {
				defer s.wg.Done()
				_ = s.ServeConn(ctx, conn)
			}(conn)
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		_ = acc.Close()
		<-errc
		return nil
	case err = <-errc:
		_ = acc.Close()
	}
	// a listener closed during shutdown is not an error
	if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
		return nil
	}
	s.opts.log.Errorw("accept failed", "addr", acc.Addr().String(), "err", err)
	return err
}

// ServeConn builds a transport over conn and dispatches until the request
// stream ends. The server owns conn: it is closed on every path. Errors from
// BindTransport are returned unchanged.
func (s *Server[T, Req, Resp]) ServeConn(ctx context.Context, conn T) error {
	id := uuid.NewString()
	log := s.opts.log.With("conn", id)
	s.opts.metrics.ConnOpened()
	defer s.opts.metrics.ConnClosed()

	t, err := s.proto.BindTransport(ctx, conn)
	if err != nil {
		s.opts.metrics.BindFailed()
		_ = conn.Close()
		log.Warnw("bind transport failed", "err", err)
		return err
	}
	log.Debug("connection open")

	err = s.dispatch(ctx, t, log)
	if err != nil {
		log.Warnw("connection closed with error", "err", err)
		return err
	}
	log.Debug("connection closed")
	return nil
}

type result[Resp any] struct {
	resp Resp
	err  error
}

func (s *Server[T, Req, Resp]) dispatch(ctx context.Context, t pipeline.Transport[Req, Resp], log *zap.SugaredLogger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// pending holds one slot per request in arrival order; inFlight counts
	// requests from dispatch until their response is sent
	pending := make(chan chan result[Resp], s.opts.maxInFlight)
	inFlight := semaphore.NewWeighted(int64(s.opts.maxInFlight))
	writeErr := make(chan error, 1)
	go func() {
		writeErr <- s.writeLoop(ctx, t, pending, inFlight)
		cancel()
	}()

	var readErr error
read:
	for {
		req, err := t.Recv(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
		if err := inFlight.Acquire(ctx, 1); err != nil {
			break
		}
		slot := make(chan result[Resp], 1)
		select {
		case pending <- slot:
		case <-ctx.Done():
			break read
		}
		go func(req Req) {
			start := time.Now()
			resp, err := s.svc.Call(ctx, req)
			s.opts.metrics.Observe(time.Since(start).Seconds(), err)
			slot <- result[Resp]{resp: resp, err: err}
		}(req)
	}
	close(pending)

	werr := <-writeErr
	cerr := t.Close()
	switch {
	case werr != nil:
		return werr
	case readErr != nil:
		return readErr
	case cerr != nil:
		log.Debugw("close transport", "err", cerr)
		return cerr
	}
	return nil
}

// writeLoop writes responses in request order and flushes whenever no more
// responses are queued.
func (s *Server[T, Req, Resp]) writeLoop(ctx context.Context, t pipeline.Transport[Req, Resp], pending <-chan chan result[Resp], inFlight *semaphore.Weighted) error {
	dirty := false
	for slot := range pending {
		var r result[Resp]
		select {
		case r = <-slot:
		case <-ctx.Done():
			return ctx.Err()
		}
		if r.err != nil {
			return r.err
		}
		if err := t.Send(ctx, r.resp); err != nil {
			return err
		}
		inFlight.Release(1)
		dirty = true
		if len(pending) == 0 {
			if err := t.Flush(ctx); err != nil {
				return err
			}
			dirty = false
		}
	}
	if dirty {
		return t.Flush(ctx)
	}
	return nil
}
