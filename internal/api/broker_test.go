package api

import (
	"testing"
)

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	ch1 := b.Subscribe("run1")
	ch2 := b.Subscribe("run1")
	other := b.Subscribe("run2")

	b.Publish("run1", SSEEvent{Type: "progress", Data: map[string]any{"routesDone": 1}})

	for i, ch := range []chan SSEEvent{ch1, ch2} {
		select {
		case evt := <-ch:
			if evt.Type != "progress" {
				t.Fatalf("subscriber %d: wrong event %+v", i, evt)
			}
		default:
			t.Fatalf("subscriber %d: no event delivered", i)
		}
	}
	select {
	case evt := <-other:
		t.Fatalf("run2 subscriber got run1 event: %+v", evt)
	default:
	}

	b.Unsubscribe("run1", ch1)
	b.Unsubscribe("run1", ch2)
	b.Unsubscribe("run2", other)
}

func TestBrokerDropsWhenSubscriberFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("run1")

	// Fill the buffer and keep publishing: Publish must never block.
	for i := 0; i < 100; i++ {
		b.Publish("run1", SSEEvent{Type: "progress", Data: map[string]any{"i": i}})
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
			continue
		default:
		}
		break
	}
	if drained == 0 || drained > 16 {
		t.Fatalf("expected a bounded buffer of events, drained %d", drained)
	}
	b.Unsubscribe("run1", ch)
}
