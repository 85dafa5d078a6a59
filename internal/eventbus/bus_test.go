package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeDoorChanged, Data: DoorChanged{Status: "open"}})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeDoorChanged || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
			if d, ok := e.Data.(DoorChanged); !ok || d.Status != "open" {
				t.Fatalf("data=%#v", e.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("event not delivered")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "x"})
	b.Publish(Event{Type: "x"})
	if got := b.Dropped(); got != 1 {
		t.Fatalf("dropped=%d", got)
	}
}

func TestUnsubscribeWhilePublishing(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.Publish(Event{Type: "x"})
			}
		}
	}()
	for i := 0; i < 100; i++ {
		_, unsub := b.Subscribe(1)
		unsub()
		unsub()
	}
	close(stop)
	wg.Wait()
}
