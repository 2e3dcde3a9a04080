package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mithrel/oneshot/internal/codec"
	"github.com/mithrel/oneshot/internal/metrics"
	"github.com/mithrel/oneshot/internal/ping"
	"github.com/mithrel/oneshot/internal/transport"
	"github.com/mithrel/oneshot/pkg/oneshot"
	"github.com/mithrel/oneshot/pkg/pipeline"
	"github.com/mithrel/oneshot/pkg/stream"
)

// memConn is an I/O handle that only records Close.
type memConn struct {
	mu     sync.Mutex
	closed bool
}

func (c *memConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *memConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// memTransport serves a fixed list of requests and records responses.
type memTransport struct {
	*stream.SliceStream[string]
	mu      sync.Mutex
	sent    []string
	flushes int
	closed  bool
	sendErr error
}

func (m *memTransport) Send(_ context.Context, resp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, resp)
	return nil
}

func (m *memTransport) Flush(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *memTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func upper() pipeline.Service[string, string] {
	return pipeline.ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
		return strings.ToUpper(req), nil
	})
}

func fixedProto(tr *memTransport) pipeline.ServerProto[*memConn, string, string] {
	return pipeline.ServerProtoFunc[*memConn, string, string](func(ctx context.Context, c *memConn) (pipeline.Transport[string, string], error) {
		return tr, nil
	})
}

func TestServeConnPipelinedAnswersEveryRequest(t *testing.T) {
	tr := &memTransport{SliceStream: stream.Slice("a", "b", "c")}
	srv := New[*memConn, string, string](fixedProto(tr), upper())

	require.NoError(t, srv.ServeConn(context.Background(), &memConn{}))
	assert.Equal(t, []string{"A", "B", "C"}, tr.sent)
	assert.True(t, tr.closed)
}

func TestServeConnOneShotAnswersFirstRequestOnly(t *testing.T) {
	tr := &memTransport{SliceStream: stream.Slice("a", "b")}
	one := oneshot.Pipelined[*memConn, string, string](fixedProto(tr))
	srv := New[*memConn, string, string](one, upper())

	require.NoError(t, srv.ServeConn(context.Background(), &memConn{}))
	assert.Equal(t, []string{"A"}, tr.sent)
	assert.Equal(t, 1, tr.Polls())
	assert.Equal(t, 1, tr.flushes)
	assert.True(t, tr.closed)
}

func TestServeConnOneShotEmptyStream(t *testing.T) {
	tr := &memTransport{SliceStream: stream.Slice[string]()}
	one := oneshot.Pipelined[*memConn, string, string](fixedProto(tr))
	srv := New[*memConn, string, string](one, upper())

	require.NoError(t, srv.ServeConn(context.Background(), &memConn{}))
	assert.Empty(t, tr.sent)
	assert.True(t, tr.closed)
}

func TestServeConnBindErrorClosesHandle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	failing := pipeline.ServerProtoFunc[*memConn, string, string](func(ctx context.Context, c *memConn) (pipeline.Transport[string, string], error) {
		return nil, syscall.ECONNRESET
	})
	srv := New[*memConn, string, string](oneshot.Pipelined[*memConn, string, string](failing), upper(), WithMetrics(m))

	conn := &memConn{}
	err := srv.ServeConn(context.Background(), conn)
	assert.Equal(t, syscall.ECONNRESET, err)
	assert.True(t, conn.isClosed())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BindErrors))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
}

func TestServeConnReadErrorIsReturned(t *testing.T) {
	boom := errors.New("read failed")
	tr := &memTransport{SliceStream: stream.Slice("a").FailAfter(boom)}
	srv := New[*memConn, string, string](fixedProto(tr), upper())

	err := srv.ServeConn(context.Background(), &memConn{})
	assert.Same(t, boom, err)
	assert.Equal(t, []string{"A"}, tr.sent)
	assert.True(t, tr.closed)
}

func TestServeConnOneShotReadErrorIsTerminal(t *testing.T) {
	boom := errors.New("read failed")
	tr := &memTransport{SliceStream: stream.Slice[string]().FailAfter(boom)}
	one := oneshot.Pipelined[*memConn, string, string](fixedProto(tr))
	srv := New[*memConn, string, string](one, upper())

	err := srv.ServeConn(context.Background(), &memConn{})
	assert.Same(t, boom, err)
	assert.Empty(t, tr.sent)
	assert.Equal(t, 1, tr.Polls())
}

func TestServeConnServiceError(t *testing.T) {
	boom := errors.New("service failed")
	tr := &memTransport{SliceStream: stream.Slice("a")}
	failing := pipeline.ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
		return "", boom
	})
	srv := New[*memConn, string, string](fixedProto(tr), failing)

	err := srv.ServeConn(context.Background(), &memConn{})
	assert.Same(t, boom, err)
	assert.Empty(t, tr.sent)
	assert.True(t, tr.closed)
}

func TestServeConnSendError(t *testing.T) {
	boom := errors.New("broken pipe")
	tr := &memTransport{SliceStream: stream.Slice("a"), sendErr: boom}
	one := oneshot.Pipelined[*memConn, string, string](fixedProto(tr))
	srv := New[*memConn, string, string](one, upper())

	assert.Same(t, boom, srv.ServeConn(context.Background(), &memConn{}))
}

func TestServeConnKeepsResponseOrder(t *testing.T) {
	tr := &memTransport{SliceStream: stream.Slice("slow", "fast")}
	svc := pipeline.ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
		if req == "slow" {
			time.Sleep(30 * time.Millisecond)
		}
		return req, nil
	})
	srv := New[*memConn, string, string](fixedProto(tr), svc, WithMaxInFlight(4))

	require.NoError(t, srv.ServeConn(context.Background(), &memConn{}))
	assert.Equal(t, []string{"slow", "fast"}, tr.sent)
}

func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "os")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func TestServeUnixPingPong(t *testing.T) {
	sock := filepath.Join(shortTempDir(t), "s.sock")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	acc, err := transport.Listen(ctx, "unix", sock)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	proto := oneshot.Pipelined[io.ReadWriteCloser, ping.Request, ping.Response](ping.Proto{})
	srv := New[io.ReadWriteCloser, ping.Request, ping.Response](proto, ping.Service{}, WithMetrics(m))

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, transport.Erase[net.Conn](acc)) }()

	for _, in := range []string{"ping", "hello"} {
		conn, err := net.Dial("unix", sock)
		require.NoError(t, err)
		require.NoError(t, codec.WriteFrame(conn, wrapperspb.String(in)))
		// a second request on the same connection is never answered
		require.NoError(t, codec.WriteFrame(conn, wrapperspb.String("ignored")))

		r := bufio.NewReader(conn)
		resp := &wrapperspb.StringValue{}
		require.NoError(t, codec.ReadFrame(r, resp))
		if in == "ping" {
			assert.Equal(t, "pong", resp.GetValue())
		} else {
			assert.Equal(t, in, resp.GetValue())
		}
		// the server closes the connection after one response
		assert.ErrorIs(t, codec.ReadFrame(r, &wrapperspb.StringValue{}), io.EOF)
		conn.Close()
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not stop")
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("ok")))
}

// gauge records the peak number of concurrent service calls.
type gauge struct {
	cur, peak atomic.Int32
}

func (g *gauge) service(d time.Duration) pipeline.Service[string, string] {
	return pipeline.ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
		n := g.cur.Add(1)
		defer g.cur.Add(-1)
		for {
			p := g.peak.Load()
			if n <= p || g.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(d)
		return strings.ToUpper(req), nil
	})
}

func TestServeConnMaxInFlightBoundsServiceCalls(t *testing.T) {
	for _, limit := range []int{1, 2, 3} {
		tr := &memTransport{SliceStream: stream.Slice("a", "b", "c", "d", "e", "f")}
		g := &gauge{}
		srv := New[*memConn, string, string](fixedProto(tr), g.service(20*time.Millisecond), WithMaxInFlight(limit))

		require.NoError(t, srv.ServeConn(context.Background(), &memConn{}))
		assert.Equal(t, []string{"A", "B", "C", "D", "E", "F"}, tr.sent)
		assert.LessOrEqual(t, int(g.peak.Load()), limit, "limit %d", limit)
	}
}

func TestServeConnMaxInFlightAllowsConcurrency(t *testing.T) {
	tr := &memTransport{SliceStream: stream.Slice("a", "b", "c", "d")}
	g := &gauge{}
	srv := New[*memConn, string, string](fixedProto(tr), g.service(100*time.Millisecond), WithMaxInFlight(4))

	require.NoError(t, srv.ServeConn(context.Background(), &memConn{}))
	assert.Greater(t, int(g.peak.Load()), 1)
}
