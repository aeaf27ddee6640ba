package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishFansOut(t *testing.T) {
	h := NewHub()
	_, a := h.Subscribe(2)
	_, b := h.Subscribe(2)

	now := time.Unix(10, 0)
	assert.Equal(t, 2, h.Publish(Delivery{Received: now}))

	for _, ch := range []<-chan Delivery{a, b} {
		select {
		case d := <-ch:
			assert.Equal(t, now, d.Received)
		default:
			t.Fatal("subscriber did not receive delivery")
		}
	}
}

func TestHub_SlowSubscriberSkips(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(1)

	assert.Equal(t, 1, h.Publish(Delivery{}))
	assert.Equal(t, 0, h.Publish(Delivery{}))
	assert.Equal(t, uint64(1), h.Skipped())
	assert.Len(t, ch, 1)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(0)
	require.Equal(t, 1, h.Len())
	assert.Equal(t, DefaultSubscriberBuffer, cap(ch))

	h.Unsubscribe(id)
	h.Unsubscribe(id)
	h.Unsubscribe("unknown")
	assert.Equal(t, 0, h.Len())

	_, open := <-ch
	assert.False(t, open)
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	_, before := h.Subscribe(1)
	h.Close()
	h.Close()

	_, open := <-before
	assert.False(t, open)

	_, after := h.Subscribe(1)
	_, open = <-after
	assert.False(t, open)
	assert.Equal(t, 0, h.Publish(Delivery{}))
}
