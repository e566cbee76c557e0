package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscribers(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Publish(Event{Type: TypeSelection, Dataset: "ds1", Payload: SelectionPayload{IDs: []string{"c1"}}})

	select {
	case ev := <-ch:
		if ev.Type != TypeSelection {
			t.Fatalf("expected %q, got %q", TypeSelection, ev.Type)
		}
		if ev.Dataset != "ds1" {
			t.Fatalf("expected dataset ds1, got %q", ev.Dataset)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected event delivery")
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: TypeHover})
	}

	if got := b.Dropped(); got != 2 {
		t.Fatalf("expected 2 dropped events, got %d", got)
	}
	if got := len(ch); got != 1 {
		t.Fatalf("expected 1 buffered event, got %d", got)
	}
}

func TestUnsubscribeClosesChannelOnce(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)

	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	if got := b.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}

	// Publishing with no subscribers is a no-op.
	b.Publish(Event{Type: TypeDataReplaced})
}
