package client

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mithrel/oneshot/internal/codec"
)

func TestCallUnix(t *testing.T) {
	dir, err := os.MkdirTemp("", "os")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "c.sock")

	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		req := &wrapperspb.StringValue{}
		if err := codec.ReadFrame(bufio.NewReader(conn), req); err != nil {
			return
		}
		_ = codec.WriteFrame(conn, wrapperspb.String("re:"+req.GetValue()))
	}()

	c := &Client{Network: "unix", Addr: sock}
	resp := &wrapperspb.StringValue{}
	require.NoError(t, c.Call(context.Background(), wrapperspb.String("hi"), resp))
	assert.Equal(t, "re:hi", resp.GetValue())
}

func TestCallUnsupportedNetwork(t *testing.T) {
	c := &Client{Network: "carrier-pigeon", Addr: "x"}
	err := c.Call(context.Background(), wrapperspb.String("hi"), &wrapperspb.StringValue{})
	assert.ErrorContains(t, err, "unsupported network")
}

func TestCallServerClosesEarly(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go func() {
		conn, err := l.Accept()
		if err == nil {
			_ = codec.ReadFrame(bufio.NewReader(conn), &wrapperspb.StringValue{})
			_ = conn.Close()
		}
	}()

	c := &Client{Network: "tcp", Addr: l.Addr().String()}
	err = c.Call(context.Background(), wrapperspb.String("hi"), &wrapperspb.StringValue{})
	assert.ErrorContains(t, err, "read response")
}
