// Package bus is an in-process pub/sub channel for pipeline progress.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

// Topics published by the sweeper.
const (
	TopicScanStarted     = "scan.started"
	TopicScanProgress    = "scan.progress"
	TopicScanCompleted   = "scan.completed"
	TopicScanFailed      = "scan.failed"
	TopicDeleteOutcome   = "delete.outcome"
	TopicDeleteCompleted = "delete.completed"
	TopicSessionClosed   = "session.closed"
)

// AllTopics subscribes a handler to every topic.
const AllTopics = "*"

// Event is one published notification.
type Event struct {
	Topic     string    `json:"topic"`
	RunID     string    `json:"runId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler receives events. Handlers run on the publisher's goroutine
// and must not block.
type EventHandler func(Event)

// SubscriptionID identifies a subscription for Unsubscribe.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// Bus fans events out to subscribers in publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers handler for topic, or for every topic with AllTopics.
func (b *Bus) Subscribe(topic string, handler EventHandler) SubscriptionID {
	id := SubscriptionID(atomic.AddUint64(&b.nextID, 1))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})

	L_debug("bus: subscribed", "topic", topic, "subscriptionID", id)
	return id
}

// Unsubscribe removes a subscription. Returns false if id is unknown.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subs {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			L_debug("bus: unsubscribed", "topic", topic, "subscriptionID", id)
			return true
		}
	}
	return false
}

// Publish delivers an event to the topic's subscribers and to AllTopics
// subscribers. A panicking handler is logged and skipped. Safe on a nil Bus.
func (b *Bus) Publish(topic, runID string, data any) {
	if b == nil {
		return
	}
	event := Event{Topic: topic, RunID: runID, Data: data, Timestamp: time.Now()}

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.subs[topic])+len(b.subs[AllTopics]))
	targets = append(targets, b.subs[topic]...)
	targets = append(targets, b.subs[AllTopics]...)
	b.mu.RUnlock()

	L_trace("bus: publish", "topic", topic, "runId", runID, "subscribers", len(targets))
	for _, sub := range targets {
		deliver(sub, event)
	}
}

func deliver(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			L_error("bus: handler panic", "topic", event.Topic, "subscriptionID", sub.id, "panic", r)
		}
	}()
	sub.handler(event)
}
