// Package codec frames protobuf messages on a byte stream and exposes the
// result as a pipeline transport.
package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
)

// MaxFrameSize bounds a single message payload.
const MaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes a uvarint length prefix followed by the marshaled m.
func WriteFrame(w io.Writer, m proto.Message) error {
	b, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	if len(b) > MaxFrameSize {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, len(b))
	}
	var lenbuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenbuf[:], uint64(len(b)))
	if _, err := w.Write(lenbuf[:n]); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadFrame reads one length-prefixed message into dst. It returns io.EOF
// only when r ends before the first byte of a frame; a frame cut short
// yields io.ErrUnexpectedEOF.
func ReadFrame(r *bufio.Reader, dst proto.Message) error {
	ln, err := binary.ReadUvarint(r)
	if err != nil {
		return err
	}
	if ln > MaxFrameSize {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, ln)
	}
	buf := make([]byte, ln)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return proto.Unmarshal(buf, dst)
}
