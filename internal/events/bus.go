// Package events provides an in-process observer bus for auth
// notifications. It replaces the browser-global event dispatch the core
// originally relied on: each service constructs its own Bus and hands it
// to whoever needs to listen.
package events

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// Topic names a notification stream.
type Topic string

// Topics published by the auth core.
const (
	TopicRefreshRequested Topic = "refresh-requested"
	TopicRefreshComplete  Topic = "refresh-complete"
	TopicNewUserWelcome   Topic = "new-user-welcome"
	TopicLogout           Topic = "logout"
	TopicAuthStateChange  Topic = "auth-state-change"
)

// Event is a published notification.
type Event struct {
	// ID uniquely identifies this publication.
	ID string
	// Topic is the stream the event was published on.
	Topic Topic
	// Payload is topic-specific data; may be nil.
	Payload any
}

// Handler receives published events.
type Handler func(Event)

// Bus is a per-instance publish/subscribe registry.
// The zero value is not usable; call New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic]map[string]Handler
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[Topic]map[string]Handler)}
}

// Subscribe registers fn for a topic and returns an unsubscribe func.
// Unsubscribing twice is harmless.
func (b *Bus) Subscribe(topic Topic, fn Handler) func() {
	id := ulid.Make().String()

	b.mu.Lock()
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[string]Handler)
	}
	b.handlers[topic][id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers[topic], id)
		b.mu.Unlock()
	}
}

// Publish delivers payload to every subscriber of the topic.
// Handlers run synchronously on the caller's goroutine, outside the
// registry lock so a handler may subscribe or unsubscribe.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	snapshot := make([]Handler, 0, len(b.handlers[topic]))
	for _, fn := range b.handlers[topic] {
		snapshot = append(snapshot, fn)
	}
	b.mu.RUnlock()

	evt := Event{
		ID:      ulid.Make().String(),
		Topic:   topic,
		Payload: payload,
	}
	for _, fn := range snapshot {
		fn(evt)
	}
}
