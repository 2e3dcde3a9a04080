package stream

import (
	"context"
	"io"
)

// SliceStream is an in-memory Stream over a fixed list of items. It counts
// how many times it was polled, which makes it handy in tests.
type SliceStream[I any] struct {
	items []I
	err   error
	polls int
}

// Slice returns a stream that yields items in order and then io.EOF.
func Slice[I any](items ...I) *SliceStream[I] {
	return &SliceStream[I]{items: items}
}

// FailAfter makes the stream return err instead of io.EOF once its items
// are exhausted.
func (s *SliceStream[I]) FailAfter(err error) *SliceStream[I] {
	s.err = err
	return s
}

func (s *SliceStream[I]) Recv(ctx context.Context) (I, error) {
	var zero I
	s.polls++
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if len(s.items) == 0 {
		if s.err != nil {
			return zero, s.err
		}
		return zero, io.EOF
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item, nil
}

// Polls reports how many times Recv was called.
func (s *SliceStream[I]) Polls() int { return s.polls }
