package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: JobStarted, Data: "j1"})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != JobStarted || e.Data != "j1" || e.Time.IsZero() {
				t.Fatalf("event = %+v", e)
			}
		default:
			t.Fatalf("subscriber missed event")
		}
	}
}

func TestSlowSubscriberDrops(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: JobStarted})
	b.Publish(Event{Type: JobFinished})
	if len(ch) != 1 || (<-ch).Type != JobStarted {
		t.Fatalf("expected only the first event to be buffered")
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	b.Publish(Event{Type: JobFailed})
}

func TestCounter(t *testing.T) {
	c := NewCounter()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Record(Event{Type: JobFinished, Time: t0})
	c.Record(Event{Type: JobFinished, Time: t0.Add(time.Second)})
	c.Record(Event{Type: JobFailed, Time: t0})

	s := c.Snapshot()
	if s[JobFinished].Count != 2 || !s[JobFinished].Last.Equal(t0.Add(time.Second)) {
		t.Fatalf("finished = %+v", s[JobFinished])
	}
	if s[JobFailed].Count != 1 {
		t.Fatalf("failed = %+v", s[JobFailed])
	}
	s[JobFailed] = TypeStats{}
	if c.Snapshot()[JobFailed].Count != 1 {
		t.Fatalf("snapshot must be a copy")
	}
}
