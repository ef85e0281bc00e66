// Package hub is the in-process pub/sub fan-out for the drift events and
// health-state transitions the ingest worker pool publishes. Subscribers
// receive them without touching the store. internal/api holds a Hub but no
// endpoint subscribes to it.
package hub

import (
	"sync"

	"github.com/Suvan8806/driftwatch/internal/store"
)

// Hub topics.
const (
	TopicDriftEvents  = "drift_events"
	TopicHealthStates = "health_states"
)

const subscriberBufSize = 64

// Hub fans out published messages to subscribers of a topic. A slow
// subscriber never blocks a publish; its messages are dropped instead.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	ch chan any
}

// New creates a Hub with both DriftWatch topics pre-registered.
func New() *Hub {
	return &Hub{
		subs: map[string]map[*subscriber]struct{}{
			TopicDriftEvents:  {},
			TopicHealthStates: {},
		},
	}
}

// Subscribe returns a buffered channel receiving messages for topic, plus a
// handle to pass to Unsubscribe.
func (h *Hub) Subscribe(topic string) (*subscriber, <-chan any) {
	s := &subscriber{ch: make(chan any, subscriberBufSize)}
	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*subscriber]struct{})
	}
	h.subs[topic][s] = struct{}{}
	h.mu.Unlock()
	return s, s.ch
}

// Unsubscribe removes a subscriber from topic and closes its channel.
func (h *Hub) Unsubscribe(topic string, s *subscriber) {
	h.mu.Lock()
	if subs, ok := h.subs[topic]; ok {
		if _, exists := subs[s]; exists {
			delete(subs, s)
			close(s.ch)
		}
	}
	h.mu.Unlock()
}

// Publish sends msg to every subscriber of topic. Non-blocking: a full
// subscriber buffer drops the message rather than stalling the publisher.
func (h *Hub) Publish(topic string, msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[topic] {
		select {
		case s.ch <- msg:
		default:
		}
	}
}

// PublishDriftEvent satisfies internal/ingest.EventSink.
func (h *Hub) PublishDriftEvent(e store.DriftEvent) {
	h.Publish(TopicDriftEvents, e)
}

// PublishHealthState satisfies internal/ingest.EventSink.
func (h *Hub) PublishHealthState(s store.HealthState) {
	h.Publish(TopicHealthStates, s)
}
