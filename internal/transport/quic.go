package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	quic "github.com/quic-go/quic-go"
)

const (
	alpn = "oneshot-quic/1"

	// closeLinger bounds how long a server handle waits for the peer to
	// close the connection after the response stream is finished.
	closeLinger = 5 * time.Second
)

var ErrMissingTLS = errors.New("missing TLS configuration")

// QUICStream is the I/O handle for one QUIC connection: its first
// bidirectional stream. Closing it finishes the stream and then tears the
// connection down.
type QUICStream struct {
	quic.Stream
	conn   quic.Connection
	linger time.Duration
}

func (s *QUICStream) Close() error {
	err := s.Stream.Close()
	if s.linger > 0 {
		// let the peer read the tail of the stream before dropping the connection
		select {
		case <-s.conn.Context().Done():
		case <-time.After(s.linger):
		}
	}
	_ = s.conn.CloseWithError(0, "done")
	return err
}

func (s *QUICStream) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *QUICStream) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// QUICAcceptor accepts QUIC connections and hands out their first stream.
// Each connection waits for its stream on its own goroutine, so a peer that
// never opens one only holds up itself.
type QUICAcceptor struct {
	l       *quic.Listener
	streams chan *QUICStream
	ctx     context.Context
	cancel  context.CancelFunc

	done chan struct{}
	err  error
}

var _ Acceptor[*QUICStream] = (*QUICAcceptor)(nil)

// ListenQUIC starts a QUIC listener on addr. The oneshot ALPN is added to
// tlsConf when missing.
func ListenQUIC(addr string, tlsConf *tls.Config) (*QUICAcceptor, error) {
	if tlsConf == nil {
		return nil, ErrMissingTLS
	}
	ensureALPN(tlsConf)
	l, err := quic.ListenAddr(addr, tlsConf, &quic.Config{})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &QUICAcceptor{
		l:       l,
		streams: make(chan *QUICStream),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go a.acceptConns()
	return a, nil
}

func (a *QUICAcceptor) acceptConns() {
	defer close(a.done)
	for {
		conn, err := a.l.Accept(a.ctx)
		if err != nil {
			if a.ctx.Err() != nil {
				err = net.ErrClosed
			}
			a.err = err
			return
		}
		go a.acceptStream(conn)
	}
}

// acceptStream waits for the first stream of conn. It gives up when the
// connection dies (idle timeout included) or the acceptor is closed.
func (a *QUICAcceptor) acceptStream(conn quic.Connection) {
	s, err := conn.AcceptStream(a.ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "no stream")
		return
	}
	select {
	case a.streams <- &QUICStream{Stream: s, conn: conn, linger: closeLinger}:
	case <-a.ctx.Done():
		_ = conn.CloseWithError(0, "shutdown")
	}
}

// Accept returns the next connection that has opened its stream.
func (a *QUICAcceptor) Accept(ctx context.Context) (*QUICStream, error) {
	select {
	case s := <-a.streams:
		return s, nil
	case <-a.done:
		return nil, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *QUICAcceptor) Close() error {
	a.cancel()
	return a.l.Close()
}

func (a *QUICAcceptor) Addr() net.Addr { return a.l.Addr() }

// DialQUIC connects to addr and opens the single request stream.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (*QUICStream, error) {
	if tlsConf == nil {
		return nil, ErrMissingTLS
	}
	ensureALPN(tlsConf)
	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{})
	if err != nil {
		return nil, err
	}
	s, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream")
		return nil, err
	}
	return &QUICStream{Stream: s, conn: conn}, nil
}

func ensureALPN(tlsConf *tls.Config) {
	for _, p := range tlsConf.NextProtos {
		if p == alpn {
			return
		}
	}
	tlsConf.NextProtos = append(tlsConf.NextProtos, alpn)
}
