// Package pubsub owns the delivery channels: per-room broadcast topics
// and per-user notification channels. The registry is constructed and
// injected so the router never touches process globals, and so the
// local implementation can be swapped for the Redis-backed one in
// multi-process deployments.
package pubsub

import (
	"context"
	"errors"
	"sync"
)

var ErrRegistryClosed = errors.New("registry closed")

func RoomTopic(roomId string) string {
	return "room:" + roomId
}

func UserTopic(userId string) string {
	return "user:" + userId
}

// Subscriber receives payloads for topics it is subscribed to. Deliver
// must not block; it reports whether the payload was accepted.
type Subscriber interface {
	Deliver(topic string, payload []byte) bool
}

type Registry interface {
	Subscribe(topic string, sub Subscriber)
	Unsubscribe(topic string, sub Subscriber)
	// DropSubscriber removes the subscriber from every topic and
	// returns how many subscriptions were removed.
	DropSubscriber(sub Subscriber) int
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

type LocalRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[Subscriber]struct{}
	closed bool
}

func NewLocalRegistry() *LocalRegistry {
	return &LocalRegistry{
		topics: make(map[string]map[Subscriber]struct{}),
	}
}

func (r *LocalRegistry) Subscribe(topic string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if r.topics[topic] == nil {
		r.topics[topic] = make(map[Subscriber]struct{})
	}
	r.topics[topic][sub] = struct{}{}
}

func (r *LocalRegistry) Unsubscribe(topic string, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if subs, ok := r.topics[topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(r.topics, topic)
		}
	}
}

func (r *LocalRegistry) DropSubscriber(sub Subscriber) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	for topic, subs := range r.topics {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			removed++
			if len(subs) == 0 {
				delete(r.topics, topic)
			}
		}
	}

	return removed
}

func (r *LocalRegistry) Publish(_ context.Context, topic string, payload []byte) error {
	if r.isClosed() {
		return ErrRegistryClosed
	}

	r.fanout(topic, payload)
	return nil
}

func (r *LocalRegistry) fanout(topic string, payload []byte) {
	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.topics[topic]))
	for sub := range r.topics[topic] {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		sub.Deliver(topic, payload)
	}
}

func (r *LocalRegistry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *LocalRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.topics = make(map[string]map[Subscriber]struct{})
	return nil
}
