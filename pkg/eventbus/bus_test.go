package eventbus_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskbeacon/taskbeacon/pkg/eventbus"
	"github.com/taskbeacon/taskbeacon/pkg/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_PublishSubscribe(t *testing.T) {
	t.Run("delivers to all listeners in registration order", func(t *testing.T) {
		b := eventbus.New(eventbus.WithLogger(discardLogger()))

		var order []int
		b.Subscribe(func(ev eventbus.Event) { order = append(order, 1) })
		b.Subscribe(func(ev eventbus.Event) { order = append(order, 2) })
		b.Subscribe(func(ev eventbus.Event) { order = append(order, 3) })

		b.Publish("proj", notify.EventUpdated, nil)
		assert.Equal(t, []int{1, 2, 3}, order)
	})

	t.Run("payload serialized once and shared", func(t *testing.T) {
		b := eventbus.New(eventbus.WithLogger(discardLogger()))

		var payloads [][]byte
		for i := 0; i < 3; i++ {
			b.Subscribe(func(ev eventbus.Event) { payloads = append(payloads, ev.Payload) })
		}

		n := &notify.Notification{
			Subject:   "proj",
			Message:   "build finished",
			Status:    notify.StatusCompleted,
			Timestamp: 42,
		}
		b.Publish("proj", notify.EventUpdated, n)

		require.Len(t, payloads, 3)
		// Same backing array, not three encodes.
		assert.Same(t, &payloads[0][0], &payloads[1][0])
		assert.Same(t, &payloads[1][0], &payloads[2][0])

		var p eventbus.Payload
		require.NoError(t, json.Unmarshal(payloads[0], &p))
		assert.True(t, p.HasNotification)
		assert.Equal(t, notify.EventUpdated, p.Type)
		assert.Equal(t, "build finished", p.Message)
		assert.EqualValues(t, 42, p.Timestamp)
	})

	t.Run("nil notification produces static payload", func(t *testing.T) {
		b := eventbus.New(eventbus.WithLogger(discardLogger()))

		var got []byte
		b.Subscribe(func(ev eventbus.Event) { got = ev.Payload })
		b.Publish("proj", notify.EventRemoved, nil)

		var p eventbus.Payload
		require.NoError(t, json.Unmarshal(got, &p))
		assert.False(t, p.HasNotification)
		assert.Equal(t, notify.EventRemoved, p.Type)
		assert.Empty(t, p.Message)
	})

	t.Run("event carries subject and notification", func(t *testing.T) {
		b := eventbus.New(eventbus.WithLogger(discardLogger()))

		var got eventbus.Event
		b.Subscribe(func(ev eventbus.Event) { got = ev })

		n := &notify.Notification{Subject: "proj", Status: notify.StatusWorking}
		b.Publish("proj", notify.EventUpdated, n)

		assert.Equal(t, "proj", got.Subject)
		assert.Equal(t, notify.EventUpdated, got.Type)
		assert.Same(t, n, got.Notification)
	})
}

func TestBus_Unsubscribe(t *testing.T) {
	t.Run("removes exactly that listener", func(t *testing.T) {
		b := eventbus.New(eventbus.WithLogger(discardLogger()))

		var first, second int
		unsub := b.Subscribe(func(ev eventbus.Event) { first++ })
		b.Subscribe(func(ev eventbus.Event) { second++ })
		require.Equal(t, 2, b.ListenerCount())

		unsub()
		assert.Equal(t, 1, b.ListenerCount())

		b.Publish("proj", notify.EventUpdated, nil)
		assert.Equal(t, 0, first)
		assert.Equal(t, 1, second)
	})

	t.Run("idempotent", func(t *testing.T) {
		b := eventbus.New(eventbus.WithLogger(discardLogger()))

		b.Subscribe(func(ev eventbus.Event) {})
		unsub := b.Subscribe(func(ev eventbus.Event) {})

		unsub()
		unsub()
		assert.Equal(t, 1, b.ListenerCount())
	})
}

func TestBus_ListenerPanicIsolation(t *testing.T) {
	b := eventbus.New(eventbus.WithLogger(discardLogger()))

	var delivered []int
	b.Subscribe(func(ev eventbus.Event) { delivered = append(delivered, 1) })
	b.Subscribe(func(ev eventbus.Event) { panic("listener fault") })
	b.Subscribe(func(ev eventbus.Event) { delivered = append(delivered, 3) })

	require.NotPanics(t, func() {
		b.Publish("proj", notify.EventUpdated, nil)
	})
	assert.Equal(t, []int{1, 3}, delivered)
}

func TestBus_ConcurrentPublish(t *testing.T) {
	b := eventbus.New(eventbus.WithLogger(discardLogger()))

	done := make(chan struct{})
	count := 0
	b.Subscribe(func(ev eventbus.Event) { count++ })

	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			b.Subscribe(func(ev eventbus.Event) {})()
		}
	}()

	for i := 0; i < 100; i++ {
		b.Publish("proj", notify.EventUpdated, nil)
	}
	<-done

	assert.Equal(t, 100, count)
	assert.Equal(t, 1, b.ListenerCount())
}
