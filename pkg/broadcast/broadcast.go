package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Broadcast after the broadcaster was closed.
var ErrClosed = errors.New("broadcast: broadcaster is closed")

// Message wraps data of type T for type-safe broadcasting.
type Message[T any] struct {
	Data T
}

// Subscriber receives messages from a Broadcaster.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed when the subscription ends.
	Receive() <-chan Message[T]
	// Close ends the subscription. Idempotent.
	Close() error
}

// Broadcaster fans messages out to every active subscriber. Slow consumers
// lose messages instead of blocking the publisher.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber that lives until ctx is cancelled or Close is called.
	Subscribe(ctx context.Context) Subscriber[T]
	Broadcast(ctx context.Context, msg Message[T]) error
	Close() error
}

type subscriber[T any] struct {
	ch     chan Message[T]
	mu     sync.RWMutex
	closed bool
	onDone func()
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan Message[T], bufferSize)}
}

func (s *subscriber[T]) Receive() <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	onDone := s.onDone
	s.mu.Unlock()

	if onDone != nil {
		onDone()
	}
	return nil
}

// send delivers msg without blocking. It reports false when the buffer is
// full or the subscriber is closed.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
