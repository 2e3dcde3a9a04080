package stream

import (
	"context"
	"errors"
	"io"
)

// Taken yields at most n items from an inner stream and then reports io.EOF
// on every later Recv. It is not safe for concurrent use.
type Taken[I any] struct {
	inner     Stream[I]
	remaining int
}

// Take wraps s so that it yields no more than n items. A non-positive n
// produces a stream that is already exhausted.
func Take[I any](s Stream[I], n int) *Taken[I] {
	if n < 0 {
		n = 0
	}
	return &Taken[I]{inner: s, remaining: n}
}

// Recv returns the next inner item while quota remains. Once the quota is
// spent, or the inner stream has ended or failed, the inner stream is never
// polled again.
func (t *Taken[I]) Recv(ctx context.Context) (I, error) {
	var zero I
	if t.remaining == 0 {
		return zero, io.EOF
	}
	item, err := t.inner.Recv(ctx)
	if err != nil {
		// errors end the stream without spending quota on an item
		t.remaining = 0
		if errors.Is(err, io.EOF) {
			return zero, io.EOF
		}
		return zero, err
	}
	t.remaining--
	return item, nil
}

// Remaining reports how many more items may be yielded.
func (t *Taken[I]) Remaining() int { return t.remaining }
