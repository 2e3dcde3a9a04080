// Package transport provides listeners that hand out one I/O handle per
// accepted connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

// Acceptor yields I/O handles for incoming connections.
type Acceptor[T any] interface {
	// Accept blocks until a connection arrives, the acceptor is closed, or
	// ctx is done.
	Accept(ctx context.Context) (T, error)
	Close() error
	Addr() net.Addr
}

// NetAcceptor accepts stream connections from a net.Listener.
type NetAcceptor struct {
	l net.Listener
}

var _ Acceptor[net.Conn] = (*NetAcceptor)(nil)

// Listen opens a unix or tcp listener. For unix sockets a stale socket file
// is removed first and the new one is made private to the owner. The
// listener is closed when ctx is done.
func Listen(ctx context.Context, network, addr string) (*NetAcceptor, error) {
	switch network {
	case "unix":
		_ = os.Remove(addr)
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if network == "unix" {
		_ = os.Chmod(addr, 0o600)
	}
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	return &NetAcceptor{l: l}, nil
}

func (a *NetAcceptor) Accept(ctx context.Context) (net.Conn, error) {
	c, err := a.l.Accept()
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, net.ErrClosed) {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return c, nil
}

func (a *NetAcceptor) Close() error { return a.l.Close() }

func (a *NetAcceptor) Addr() net.Addr { return a.l.Addr() }

// Erase turns an acceptor of concrete handles into one of
// io.ReadWriteCloser, so one protocol can serve every listener kind.
func Erase[T io.ReadWriteCloser](acc Acceptor[T]) Acceptor[io.ReadWriteCloser] {
	return erased[T]{Acceptor: acc}
}

type erased[T io.ReadWriteCloser] struct {
	Acceptor[T]
}

func (e erased[T]) Accept(ctx context.Context) (io.ReadWriteCloser, error) {
	c, err := e.Acceptor.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}
