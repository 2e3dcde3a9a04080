// Package client performs a single request/response exchange against a
// one-shot server.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/mithrel/oneshot/internal/codec"
	"github.com/mithrel/oneshot/internal/transport"
)

const defaultTimeout = 5 * time.Second

// Client dials a fresh connection for every call.
type Client struct {
	Network string
	Addr    string
	// TLS is used for quic; nil means skip verification, which only suits
	// self-signed development servers.
	TLS     *tls.Config
	Timeout time.Duration
}

func (c *Client) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	switch c.Network {
	case "unix", "tcp", "tcp4", "tcp6":
		d := &net.Dialer{}
		return d.DialContext(ctx, c.Network, c.Addr)
	case "quic":
		tlsConf := c.TLS
		if tlsConf == nil {
			tlsConf = &tls.Config{InsecureSkipVerify: true}
		}
		s, err := transport.DialQUIC(ctx, c.Addr, tlsConf.Clone())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", c.Network)
	}
}

// Call sends req and decodes the single response into resp.
func (c *Client) Call(ctx context.Context, req, resp proto.Message) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s %s: %w", c.Network, c.Addr, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		if d, ok := conn.(interface{ SetDeadline(time.Time) error }); ok {
			_ = d.SetDeadline(dl)
		}
	}
	if err := codec.WriteFrame(conn, req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	if err := codec.ReadFrame(bufio.NewReader(conn), resp); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return nil
}
