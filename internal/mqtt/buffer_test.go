package mqtt

import (
	"testing"
)

func TestBacklogEmptyDrain(t *testing.T) {
	b := newBacklog(10)
	got, dropped := b.drain()
	if got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
	if dropped != 0 {
		t.Errorf("expected 0 dropped, got %d", dropped)
	}
}

func TestBacklogPushAndDrain(t *testing.T) {
	b := newBacklog(10)
	for i := 0; i < 5; i++ {
		b.push(pendingMsg{topic: "t", payload: []byte{byte(i)}})
	}
	if b.len() != 5 {
		t.Fatalf("expected len 5, got %d", b.len())
	}

	got, dropped := b.drain()
	if len(got) != 5 || dropped != 0 {
		t.Fatalf("expected 5 items and 0 dropped, got %d/%d", len(got), dropped)
	}
	for i := 0; i < 5; i++ {
		if got[i].payload[0] != byte(i) {
			t.Errorf("item %d: expected payload %d, got %d", i, i, got[i].payload[0])
		}
	}

	if again, _ := b.drain(); again != nil {
		t.Errorf("expected nil from second drain, got %d items", len(again))
	}
}

func TestBacklogOverflowDropsOldest(t *testing.T) {
	limit := 5
	b := newBacklog(limit)

	// Push 0..7, keep the most recent 5 (3..7)
	for i := 0; i < limit+3; i++ {
		b.push(pendingMsg{topic: "t", payload: []byte{byte(i)}})
	}
	if b.len() != limit {
		t.Fatalf("len: got %d, want %d", b.len(), limit)
	}

	got, dropped := b.drain()
	if dropped != 3 {
		t.Errorf("dropped: got %d, want 3", dropped)
	}
	for i := 0; i < limit; i++ {
		if want := byte(i + 3); got[i].payload[0] != want {
			t.Errorf("item %d: expected payload %d, got %d", i, want, got[i].payload[0])
		}
	}
}

func TestBacklogDrainResetsOverflowState(t *testing.T) {
	b := newBacklog(2)
	for i := 0; i < 4; i++ {
		b.push(pendingMsg{payload: []byte{byte(i)}})
	}
	b.drain()

	if b.warned {
		t.Error("drain should reset the overflow warning")
	}
	b.push(pendingMsg{payload: []byte{9}})
	got, dropped := b.drain()
	if len(got) != 1 || dropped != 0 {
		t.Errorf("expected 1 item and 0 dropped after reset, got %d/%d", len(got), dropped)
	}
}

func TestBacklogPreservesMessageFields(t *testing.T) {
	b := newBacklog(3)
	b.push(pendingMsg{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})

	got, _ := b.drain()
	m := got[0]
	if m.topic != TopicSystem || string(m.payload) != "x" || m.qos != 1 || !m.retained {
		t.Errorf("fields not preserved: %+v", m)
	}
}
