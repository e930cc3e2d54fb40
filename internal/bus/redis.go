package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agentbot-ai/agentbot/internal/event"
)

// DefaultStream is the redis stream carrying envelopes unless overridden.
const DefaultStream = "agentbot.events"

const readBlock = 5 * time.Second

// RedisBus is a Bus backed by a single redis stream with one consumer group
// per (type, session filter) subscriber. Each entry is acknowledged after
// the subscriber-side filter ran; non-matching entries are acked and
// skipped, giving every subscriber a durable cursor over the stream.
type RedisBus struct {
	client *redis.Client
	stream string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	subs   map[*Subscription]struct{}
	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup
}

// NewRedis connects a stream bus to the given redis URL.
func NewRedis(url, stream string, logger *slog.Logger) (*RedisBus, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if stream == "" {
		stream = DefaultStream
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBus{
		client: redis.NewClient(opt),
		stream: stream,
		logger: logger.With("component", "redis-bus"),
		subs:   make(map[*Subscription]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, env event.Envelope) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]any{"event": string(data)},
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", b.stream, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(t event.Type, opts ...SubscribeOption) (*Subscription, error) {
	o := applyOptions(opts)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	sub := newSubscription(o.session, o.queueSize, func(s *Subscription) { b.remove(s) })
	b.subs[sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	filter := o.session
	if filter == "" {
		filter = event.Broadcast
	}
	group := fmt.Sprintf("g:%s:%s", t, filter)
	consumer := "c:" + uuid.New().String()[:8]

	if err := b.client.XGroupCreateMkStream(b.ctx, b.stream, group, "$").Err(); err != nil && !isBusyGroup(err) {
		b.wg.Done()
		b.remove(sub)
		return nil, fmt.Errorf("create group %s: %w", group, err)
	}

	go b.pump(sub, t, group, consumer)
	return sub, nil
}

// pump reads the consumer group cursor and feeds matching envelopes into
// the subscription queue. Every entry is acked, matching or not.
func (b *RedisBus) pump(sub *Subscription, t event.Type, group, consumer string) {
	defer b.wg.Done()

	for {
		if b.ctx.Err() != nil {
			return
		}

		res, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{b.stream, ">"},
			Count:    16,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Warn("xreadgroup failed", "group", group, "error", err)
			select {
			case <-b.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range res {
			for _, entry := range stream.Messages {
				if env, ok := b.decodeEntry(entry); ok && env.Type == t && sub.matches(env) {
					sub.offer(env)
				}
				if err := b.client.XAck(b.ctx, b.stream, group, entry.ID).Err(); err != nil && b.ctx.Err() == nil {
					b.logger.Warn("xack failed", "group", group, "id", entry.ID, "error", err)
				}
			}
		}
	}
}

func (b *RedisBus) decodeEntry(entry redis.XMessage) (event.Envelope, bool) {
	raw, ok := entry.Values["event"].(string)
	if !ok || raw == "" {
		return event.Envelope{}, false
	}
	var env event.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		b.logger.Warn("dropping undecodable stream entry", "id", entry.ID, "error", err)
		return event.Envelope{}, false
	}
	return env, true
}

func (b *RedisBus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Close stops all pump goroutines, delivers the bus-closed sentinel to open
// subscriptions, and releases the client.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	sentinel := event.NewAlert(event.Alert{Message: "message bus closed", BusClosed: true})
	for _, sub := range subs {
		sub.markDetached()
		sub.offer(sentinel)
	}
	return b.client.Close()
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

var _ Bus = (*RedisBus)(nil)
