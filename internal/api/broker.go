package api

import (
	"encoding/json"
	"sync"
)

// Plan stream event types.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

// SSEEvent is one message on a plan topic.
type SSEEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newEvent(typ string, v any) SSEEvent {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return SSEEvent{Type: typ, Data: b}
}

// terminal reports whether evt ends a plan stream.
func (e SSEEvent) terminal() bool { return e.Type == EventResult || e.Type == EventError }

type EventBroker interface {
	Subscribe(topic string) chan SSEEvent
	Unsubscribe(topic string, ch chan SSEEvent)
	Publish(topic string, evt SSEEvent)
}

// Broker is the in-process EventBroker. Slow subscribers drop events.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan SSEEvent]struct{} // planId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(topic string) chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = map[chan SSEEvent]struct{}{}
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(topic string, ch chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[topic]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

func (b *Broker) Publish(topic string, evt SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[topic] {
		deliver(ch, evt)
	}
}

// deliver never blocks. Progress events are dropped when ch is full; a
// terminal event evicts the oldest queued events instead.
func deliver(ch chan SSEEvent, evt SSEEvent) {
	if !evt.terminal() {
		select {
		case ch <- evt:
		default:
		}
		return
	}
	for {
		select {
		case ch <- evt:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
