package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribersInOrder(t *testing.T) {
	bus := New()
	var seen []string

	bus.Subscribe(func(e Event) { seen = append(seen, "first:"+e.Message) })
	bus.Subscribe(func(e Event) { seen = append(seen, "second:"+e.Message) })

	bus.Publish(Event{Kind: WorkoutQueued, Message: "saved offline"})
	require.Equal(t, []string{"first:saved offline", "second:saved offline"}, seen)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New()
	calls := 0
	unsubscribe := bus.Subscribe(func(Event) { calls++ })

	bus.Publish(Event{Kind: WorkoutCreated})
	unsubscribe()
	unsubscribe()
	bus.Publish(Event{Kind: WorkoutCreated})

	require.Equal(t, 1, calls)
	require.Zero(t, bus.Len())
}

func TestPublishFillsDefaults(t *testing.T) {
	bus := New()
	var got Event
	bus.Subscribe(func(e Event) { got = e })

	bus.Publish(Event{Kind: ReplayCompleted})
	require.Equal(t, LevelInfo, got.Level)
	require.False(t, got.At.IsZero())
}

func TestHandlerMayUnsubscribeDuringPublish(t *testing.T) {
	bus := New()
	var unsubscribe func()
	calls := 0
	unsubscribe = bus.Subscribe(func(Event) {
		calls++
		unsubscribe()
	})

	bus.Publish(Event{Kind: WorkoutSynced})
	bus.Publish(Event{Kind: WorkoutSynced})
	require.Equal(t, 1, calls)
}
