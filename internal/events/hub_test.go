package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllTopicSubscribers(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe("thread:100")
	defer cancel1()
	ch2, cancel2 := hub.Subscribe("thread:100")
	defer cancel2()
	other, cancelOther := hub.Subscribe("thread:200")
	defer cancelOther()

	hub.Publish("thread:100", Event{Type: "progress", Data: 7})

	ev := <-ch1
	assert.Equal(t, "progress", ev.Type)
	assert.Equal(t, 7, ev.Data)
	ev = <-ch2
	assert.Equal(t, "progress", ev.Type)

	select {
	case <-other:
		t.Fatal("event leaked to the wrong topic")
	default:
	}
}

func TestCancelClosesChannelAndCleansTopic(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("thread:100")
	assert.Equal(t, 1, hub.Subscribers("thread:100"))

	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers("thread:100"))

	// Publishing to a topic with no subscribers is a no-op.
	hub.Publish("thread:100", Event{Type: "progress"})

	// Double cancel is safe.
	cancel()
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe("thread:100")
	defer cancel()

	// Overfill the buffer; Publish must never block.
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish("thread:100", Event{Type: "progress", Data: i})
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	require.Equal(t, subscriberBuffer, received, "overflow events are dropped")
}
