package bus

import (
	"context"
	"sync"

	"github.com/agentbot-ai/agentbot/internal/event"
)

// MemoryBus is the in-process Bus. Publish snapshots the matching
// subscription set under the lock and delivers without holding it.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[event.Type]map[*Subscription]struct{}
	closed bool
}

// NewMemory creates an in-process bus.
func NewMemory() *MemoryBus {
	return &MemoryBus{topics: make(map[event.Type]map[*Subscription]struct{})}
}

func (b *MemoryBus) Publish(ctx context.Context, env event.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*Subscription, 0, len(b.topics[env.Type]))
	for sub := range b.topics[env.Type] {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.matches(env) {
			sub.offer(env)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(t event.Type, opts ...SubscribeOption) (*Subscription, error) {
	o := applyOptions(opts)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := newSubscription(o.session, o.queueSize, func(s *Subscription) { b.remove(t, s) })
	if b.topics[t] == nil {
		b.topics[t] = make(map[*Subscription]struct{})
	}
	b.topics[t][sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBus) remove(t event.Type, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.topics[t]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.topics, t)
		}
	}
}

// Close delivers the bus-closed sentinel to every open subscription so
// blocked readers exit, then forgets them. Subsequent publishes fail with
// ErrClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*Subscription
	for _, set := range b.topics {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	b.topics = make(map[event.Type]map[*Subscription]struct{})
	b.mu.Unlock()

	sentinel := event.NewAlert(event.Alert{Message: "message bus closed", BusClosed: true})
	for _, sub := range subs {
		sub.markDetached()
		sub.offer(sentinel)
	}
	return nil
}

var _ Bus = (*MemoryBus)(nil)
