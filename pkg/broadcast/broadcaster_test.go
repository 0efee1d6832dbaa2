package broadcast

import (
	"sync"
	"testing"
	"time"
)

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	b := New(4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	if n := b.Publish(Event{Type: "payout.settled", Data: 1}); n != 2 {
		t.Fatalf("Publish() delivered to %d, expected 2", n)
	}

	for i, s := range []*Subscription{s1, s2} {
		select {
		case ev := <-s.C:
			if ev.Type != "payout.settled" {
				t.Errorf("subscriber %d got %q", i, ev.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestPublish_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := New(1)
	slow := b.Subscribe()
	fast := b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			b.Publish(Event{Type: "tick", Data: i})
			<-fast.C
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a subscriber that never reads")
	}

	// the slow subscriber kept only what fit in its buffer
	if len(slow.C) != 1 {
		t.Errorf("slow subscriber buffered %d events, expected 1", len(slow.C))
	}
}

func TestSubscribe_NoReplay(t *testing.T) {
	b := New(4)
	b.Publish(Event{Type: "before"})

	s := b.Subscribe()
	select {
	case ev := <-s.C:
		t.Fatalf("late subscriber received %q", ev.Type)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	b.Unsubscribe(s)
	b.Unsubscribe(s)

	if _, ok := <-s.C; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if b.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, expected 0", b.Subscribers())
	}
	if n := b.Publish(Event{Type: "x"}); n != 0 {
		t.Errorf("Publish() delivered to %d after unsubscribe", n)
	}
}

func TestConcurrentJoinLeavePublish(t *testing.T) {
	b := New(2)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := b.Subscribe()
			b.Unsubscribe(s)
		}()
		go func(i int) {
			defer wg.Done()
			b.Publish(Event{Type: "tick", Data: i})
		}(i)
	}
	wg.Wait()
}

func TestClose(t *testing.T) {
	b := New(4)
	s := b.Subscribe()
	b.Close()

	if _, ok := <-s.C; ok {
		t.Error("subscription open after Close")
	}
	late := b.Subscribe()
	if _, ok := <-late.C; ok {
		t.Error("subscription after Close should be closed")
	}
	b.Close()
}
