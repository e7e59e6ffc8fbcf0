package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOut(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe(4)
	b := hub.Subscribe(4)

	u := Update{Ori: []float32{0.1}, New: []float32{0.2}}
	hub.Publish(u)

	assert.Equal(t, u, <-a.C)
	assert.Equal(t, u, <-b.C)
	assert.EqualValues(t, 1, hub.Published())
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	hub := NewHub()
	slow := hub.Subscribe(1)

	for i := 0; i < 5; i++ {
		hub.Publish(Update{Ori: []float32{float32(i)}})
	}

	first := <-slow.C
	assert.Equal(t, []float32{0}, first.Ori)
	assert.EqualValues(t, 4, slow.Dropped())
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	assert.False(t, hub.HasSubscribers())
	hub.Publish(Update{})
	assert.EqualValues(t, 1, hub.Published())
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(1)
	require.True(t, hub.HasSubscribers())

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)
	assert.False(t, hub.HasSubscribers())

	_, ok := sub.Next()
	assert.False(t, ok, "subscription should have ended")
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe(1)
	b := hub.Subscribe(1)
	hub.Close()

	<-a.Done()
	<-b.Done()
	_, okA := a.Next()
	assert.False(t, okA)
	assert.False(t, hub.HasSubscribers())

	// unsubscribing after close is harmless
	hub.Unsubscribe(a)
}

func TestHub_NextDeliversQueuedUpdate(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(2)
	hub.Publish(Update{Ori: []float32{0.3}})

	u, ok := sub.Next()
	require.True(t, ok)
	assert.Equal(t, []float32{0.3}, u.Ori)
}

func TestHub_ConcurrentSubscribeAndPublish(t *testing.T) {
	hub := NewHub()
	stop := make(chan struct{})
	published := make(chan struct{})

	go func() {
		defer close(published)
		for {
			select {
			case <-stop:
				return
			default:
				hub.Publish(Update{Ori: []float32{1}})
			}
		}
	}()

	for i := 0; i < 200; i++ {
		sub := hub.Subscribe(1)
		hub.Unsubscribe(sub)
	}
	close(stop)
	<-published

	assert.False(t, hub.HasSubscribers())
	assert.NotZero(t, hub.Published())
}

func TestAudioUpdateWireFormat(t *testing.T) {
	data, err := json.Marshal(NewAudioUpdate(Update{Ori: []float32{0.5}, New: []float32{-0.25}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"audio_update","payload":{"ori":[0.5],"new":[-0.25]}}`, string(data))
}
