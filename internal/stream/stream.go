// Package stream implements the append-only multi-subscriber stream that
// fans a sandbox's PTY output out to the voting UI, report capture and the
// transcript archiver. Every subscriber observes the full history followed
// by live items; nothing is ever dropped or reordered.
package stream

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Append once the stream has been closed.
var ErrClosed = errors.New("stream closed")

// Stream is a finite append-only sequence with full-history replay. The
// zero value is not usable; construct with New.
type Stream[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	// wake is closed and replaced whenever items arrive or the stream
	// closes, releasing every waiting subscriber at once.
	wake chan struct{}
}

// New constructs an open stream.
func New[T any]() *Stream[T] {
	return &Stream[T]{wake: make(chan struct{})}
}

// Append adds an item and wakes all subscribers. It fails once the stream
// is closed.
func (s *Stream[T]) Append(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.items = append(s.items, item)
	close(s.wake)
	s.wake = make(chan struct{})
	return nil
}

// Close marks the stream finished. Subscribers drain history and then
// terminate. Closing twice is a no-op.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.wake)
	s.wake = make(chan struct{})
}

// Closed reports whether Close has been called.
func (s *Stream[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Accumulated snapshots every item appended so far.
func (s *Stream[T]) Accumulated() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.items...)
}

// Len returns the number of items appended so far.
func (s *Stream[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Subscription iterates the stream from the beginning. Subscriptions are
// independent; a slow subscriber never affects the producer or its peers.
type Subscription[T any] struct {
	stream *Stream[T]
	cursor int
}

// Subscribe opens an iterator positioned before the first item, so late
// subscribers still observe the entire history.
func (s *Stream[T]) Subscribe() *Subscription[T] {
	return &Subscription[T]{stream: s}
}

// Next blocks until an item is available and returns it. The second return
// is false once history is drained and the stream is closed, or when the
// context is cancelled.
func (sub *Subscription[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	for {
		sub.stream.mu.Lock()
		if sub.cursor < len(sub.stream.items) {
			item := sub.stream.items[sub.cursor]
			sub.cursor++
			sub.stream.mu.Unlock()
			return item, true
		}
		if sub.stream.closed {
			sub.stream.mu.Unlock()
			return zero, false
		}
		wake := sub.stream.wake
		sub.stream.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, false
		case <-wake:
		}
	}
}

// Drain collects all remaining items until the stream closes or the context
// is cancelled. Mainly a test convenience.
func (sub *Subscription[T]) Drain(ctx context.Context) []T {
	var out []T
	for {
		item, ok := sub.Next(ctx)
		if !ok {
			return out
		}
		out = append(out, item)
	}
}
