// Package bus provides topic and session filtered pub/sub for event
// envelopes, with an in-memory implementation and a redis-streams backed one.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/agentbot-ai/agentbot/internal/event"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("bus: closed")

// DefaultQueueSize bounds a subscription's undelivered envelopes unless
// overridden with WithQueueSize.
const DefaultQueueSize = 10

// Bus fans envelopes out to matching subscriptions.
//
// Delivery within one subscription is publish-ordered, modulo the
// backpressure policy: when a subscription's queue is full, the OLDEST
// undelivered envelope is dropped to make room for the new one. Callers
// expecting blocking FIFO semantics will be surprised; for availability
// events, freshness dominates history.
type Bus interface {
	// Publish dispatches env to every subscription whose type and session
	// filter match. It never blocks on slow subscribers.
	Publish(ctx context.Context, env event.Envelope) error

	// Subscribe registers a new subscription for the given envelope type.
	Subscribe(t event.Type, opts ...SubscribeOption) (*Subscription, error)

	// Close rejects further publishes and delivers the bus-closed sentinel
	// to every open subscription.
	Close() error
}

// SubscribeOption customizes a subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	session   string
	queueSize int
}

// WithSession restricts the subscription to envelopes for one session.
// Broadcast envelopes (session "*") always match.
func WithSession(id string) SubscribeOption {
	return func(o *subscribeOptions) { o.session = id }
}

// WithQueueSize overrides the bounded queue size.
func WithQueueSize(n int) SubscribeOption {
	return func(o *subscribeOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

func applyOptions(opts []SubscribeOption) subscribeOptions {
	o := subscribeOptions{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Subscription is one reader's bounded queue. One subscription per
// concurrent reader; Close releases it.
type Subscription struct {
	ch     chan event.Envelope
	filter string

	mu       sync.Mutex
	closed   bool
	detach   func(*Subscription)
	detached bool
}

func newSubscription(filter string, queueSize int, detach func(*Subscription)) *Subscription {
	return &Subscription{
		ch:     make(chan event.Envelope, queueSize),
		filter: filter,
		detach: detach,
	}
}

// C returns the receive channel. It is closed when the subscription is
// closed; the bus-closed sentinel arrives as a regular envelope before that
// when the whole bus shuts down.
func (s *Subscription) C() <-chan event.Envelope {
	return s.ch
}

// Close detaches the subscription from the bus and closes its channel.
// Safe to call more than once.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	detach := s.detach
	detached := s.detached
	s.mu.Unlock()

	if detach != nil && !detached {
		detach(s)
	}
	close(s.ch)
	return nil
}

// markDetached records that the bus already removed the subscription, so
// Close must not call back into it.
func (s *Subscription) markDetached() {
	s.mu.Lock()
	s.detached = true
	s.mu.Unlock()
}

// matches reports whether an envelope passes the session filter.
func (s *Subscription) matches(env event.Envelope) bool {
	return s.filter == "" || env.SessionID == s.filter || env.SessionID == event.Broadcast
}

// offer enqueues without blocking, dropping the oldest queued envelope when
// full. Offers are serialized per subscription, so the loop always
// terminates with env enqueued.
func (s *Subscription) offer(env event.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- env:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
