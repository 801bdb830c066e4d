package eventbus

import "testing"

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: ReminderCreated, Data: "x"})

	for i, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != ReminderCreated {
			t.Fatalf("subscriber %d got %q", i, e.Type)
		}
		if e.Time.IsZero() {
			t.Fatalf("subscriber %d got zero time", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "first"})
	b.Publish(Event{Type: "second"})

	if e := <-ch; e.Type != "first" {
		t.Fatalf("got %q, want first", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %q", e.Type)
	default:
	}
}

func TestUnsubscribeClosesAndStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	unsub()
	unsub()

	b.Publish(Event{Type: "after"})
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
}
