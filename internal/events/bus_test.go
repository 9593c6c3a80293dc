package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribePublish(t *testing.T) {
	bus := New()

	var got []Event
	unsub := bus.Subscribe(TopicLogout, func(e Event) {
		got = append(got, e)
	})

	bus.Publish(TopicLogout, nil)
	bus.Publish(TopicRefreshComplete, nil) // different topic, not delivered

	assert.Len(t, got, 1)
	assert.Equal(t, TopicLogout, got[0].Topic)
	assert.NotEmpty(t, got[0].ID)

	unsub()
	bus.Publish(TopicLogout, nil)
	assert.Len(t, got, 1, "no delivery after unsubscribe")

	// Double unsubscribe is harmless.
	unsub()
}

func TestPublishPayload(t *testing.T) {
	bus := New()

	var payload any
	bus.Subscribe(TopicNewUserWelcome, func(e Event) {
		payload = e.Payload
	})

	bus.Publish(TopicNewUserWelcome, map[string]int64{"credits": 12})
	assert.Equal(t, map[string]int64{"credits": 12}, payload)
}

func TestHandlerMayUnsubscribeDuringPublish(t *testing.T) {
	bus := New()

	calls := 0
	var unsub func()
	unsub = bus.Subscribe(TopicAuthStateChange, func(Event) {
		calls++
		unsub()
	})

	bus.Publish(TopicAuthStateChange, nil)
	bus.Publish(TopicAuthStateChange, nil)
	assert.Equal(t, 1, calls)
}

func TestMultipleSubscribers(t *testing.T) {
	bus := New()

	a, b := 0, 0
	bus.Subscribe(TopicRefreshComplete, func(Event) { a++ })
	bus.Subscribe(TopicRefreshComplete, func(Event) { b++ })

	bus.Publish(TopicRefreshComplete, nil)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
