package api

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch chan SSEEvent) SSEEvent {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return SSEEvent{}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("p1")
	other := b.Subscribe("p2")

	b.Publish("p1", newEvent(EventProgress, map[string]int{"iteration": 1}))
	got := recv(t, ch)
	assert.Equal(t, EventProgress, got.Type)
	assert.JSONEq(t, `{"iteration":1}`, string(got.Data))
	assert.Empty(t, other)

	b.Unsubscribe("p1", ch)
	_, ok := <-ch
	assert.False(t, ok)
	// idempotent
	b.Unsubscribe("p1", ch)
	b.Publish("p1", newEvent(EventResult, nil))
}

func TestDeliverKeepsTerminalEvents(t *testing.T) {
	ch := make(chan SSEEvent, 2)
	deliver(ch, newEvent(EventProgress, 1))
	deliver(ch, newEvent(EventProgress, 2))
	// full: progress is dropped
	deliver(ch, newEvent(EventProgress, 3))
	deliver(ch, newEvent(EventResult, "done"))

	assert.Equal(t, `2`, string((<-ch).Data))
	last := <-ch
	assert.Equal(t, EventResult, last.Type)
	assert.True(t, last.terminal())
}

func TestRedisBrokerFansOut(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewRedisBrokerClient(rdb)
	t.Cleanup(func() { _ = b.Close() })

	a := b.Subscribe("plan-1")
	c := b.Subscribe("plan-1")
	b.Publish("plan-1", newEvent(EventError, Problem{Status: 504, Title: "Plan timed out"}))

	for _, ch := range []chan SSEEvent{a, c} {
		evt := recv(t, ch)
		assert.Equal(t, EventError, evt.Type)
		assert.JSONEq(t, `{"type":"","title":"Plan timed out","status":504}`, string(evt.Data))
	}

	b.Unsubscribe("plan-1", a)
	select {
	case _, ok := <-a:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
	b.Unsubscribe("plan-1", c)
}
