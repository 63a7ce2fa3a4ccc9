package coordinator

import (
	"sync"
	"testing"
	"time"
)

func TestMediaGroupBufferMergesOnExpiry(t *testing.T) {
	var mu sync.Mutex
	var flushed []Inbound

	b := newMediaGroupBuffer(30*time.Millisecond, func(in Inbound) {
		mu.Lock()
		defer mu.Unlock()
		flushed = append(flushed, in)
	})

	b.add(Inbound{ChatID: "c1", MediaGroupID: "g1", Text: "caption"})
	b.add(Inbound{ChatID: "c1", MediaGroupID: "g1", Text: ""})

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(flushed) != 1 {
		t.Fatalf("expected exactly 1 merged flush, got %d", len(flushed))
	}
	if flushed[0].Text != "caption" {
		t.Errorf("expected merged text %q, got %q", "caption", flushed[0].Text)
	}
}

func TestMediaGroupBufferExtendsOnArrival(t *testing.T) {
	var mu sync.Mutex
	var flushCount int

	b := newMediaGroupBuffer(50*time.Millisecond, func(in Inbound) {
		mu.Lock()
		flushCount++
		mu.Unlock()
	})

	b.add(Inbound{ChatID: "c1", MediaGroupID: "g2"})
	time.Sleep(30 * time.Millisecond)
	b.add(Inbound{ChatID: "c1", MediaGroupID: "g2"}) // extends the timer

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	count := flushCount
	mu.Unlock()
	if count != 0 {
		t.Errorf("expected no flush yet (timer extended), got %d", count)
	}

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	count = flushCount
	mu.Unlock()
	if count != 1 {
		t.Errorf("expected exactly 1 flush after the extended window elapses, got %d", count)
	}
}
