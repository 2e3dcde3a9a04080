// Package stream defines the item stream and sink halves of a message
// transport, plus adapters over them.
//
// A Stream signals end-of-stream by returning io.EOF from Recv. Any other
// error is terminal for the stream as well; callers should not Recv again
// after an error.
package stream

import "context"

// Stream produces a sequence of items. Recv blocks until an item is
// available, the stream ends (io.EOF), or ctx is done.
type Stream[I any] interface {
	Recv(ctx context.Context) (I, error)
}

// Sink accepts items for writing. Send may buffer; Flush pushes buffered
// items to the underlying handle. Close flushes and releases the handle.
type Sink[I any] interface {
	Send(ctx context.Context, item I) error
	Flush(ctx context.Context) error
	Close() error
}
