// Package broadcast provides the single logical pub/sub topic that carries
// serialized fired alerts to every live gateway subscriber. There is no
// backlog: a subscriber that was not connected at publish time never receives
// that message.
package broadcast

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed indicates the broadcast channel has been shut down.
var ErrClosed = errors.New("broadcast: closed")

// Publisher publishes serialized alerts onto the broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Subscriber opens subscriptions on the broadcast channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription is one live handle on the broadcast channel. Close must be
// called on every exit path to avoid subscription leaks; Messages is closed
// after Close returns.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Mock is an in-process broadcast channel used in tests and in single-node
// deployments without Redis. It implements Publisher and Subscriber.
type Mock struct {
	mu         sync.Mutex
	subs       map[int]chan []byte
	nextID     int
	closed     bool
	publishErr error
}

// NewMock creates an in-process broadcast channel.
func NewMock() *Mock {
	return &Mock{subs: make(map[int]chan []byte)}
}

// FailPublishWith makes every subsequent Publish return err. Used by tests to
// simulate fan-out failure.
func (m *Mock) FailPublishWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishErr = err
}

// Publish delivers the payload to every current subscriber. Slow subscribers
// are skipped rather than blocking the publisher (at-most-once, no backlog).
func (m *Mock) Publish(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.publishErr != nil {
		return m.publishErr
	}

	for _, ch := range m.subs {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe opens a new subscription.
func (m *Mock) Subscribe(_ context.Context) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	id := m.nextID
	m.nextID++
	ch := make(chan []byte, 64)
	m.subs[id] = ch

	return &mockSubscription{parent: m, id: id, ch: ch}, nil
}

// SubscriberCount returns the number of live subscriptions.
func (m *Mock) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close shuts the channel down and closes every subscription.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	return nil
}

type mockSubscription struct {
	parent *Mock
	id     int
	ch     chan []byte
	once   sync.Once
}

func (s *mockSubscription) Messages() <-chan []byte {
	return s.ch
}

func (s *mockSubscription) Close() error {
	s.once.Do(func() {
		s.parent.mu.Lock()
		defer s.parent.mu.Unlock()
		if _, ok := s.parent.subs[s.id]; ok {
			delete(s.parent.subs, s.id)
			close(s.ch)
		}
	})
	return nil
}
