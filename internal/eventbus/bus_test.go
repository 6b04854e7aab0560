package eventbus

import "testing"

func TestPublishFanOut(t *testing.T) {
	t.Parallel()

	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubC()

	b.Publish(Event{Type: JobAdded, Data: "send_sch_1"})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != JobAdded || e.Data != "send_sch_1" || e.Time.IsZero() {
			t.Fatalf("event=%+v", e)
		}
	}

	unsubA()
	unsubA()
	if _, ok := <-a; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: JobRemoved})
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()

	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: JobFired})
	b.Publish(Event{Type: JobFired})
	if len(ch) != 1 {
		t.Fatalf("len=%d want 1", len(ch))
	}
}
