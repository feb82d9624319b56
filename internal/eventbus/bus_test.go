package eventbus

import (
	"testing"
	"time"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: BroadcastFinished, Data: 3})
	select {
	case e := <-ch:
		if e.Type != BroadcastFinished || e.Data.(int) != 3 || e.Time.IsZero() {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)

	b.Publish(Event{Type: ForecastRefreshed})
	b.Publish(Event{Type: ForecastFetchFailed}) // dropped, must not block

	if e := <-ch; e.Type != ForecastRefreshed {
		t.Fatalf("got %q want first event", e.Type)
	}
	unsub()
	unsub()
	b.Publish(Event{Type: ReplySent}) // after close, must not panic
}

func TestSubscribeFiltersByPrefix(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4, "broadcast.")
	defer unsub()

	b.Publish(Event{Type: ForecastRefreshed})
	b.Publish(Event{Type: BroadcastAborted})
	b.Publish(Event{Type: ReplySent})

	if e := <-ch; e.Type != BroadcastAborted {
		t.Fatalf("got %q want %q", e.Type, BroadcastAborted)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %q", e.Type)
	default:
	}
}

func TestDroppedCountsFullSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: ReplySent})
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("dropped=%d want 2", got)
	}
}
