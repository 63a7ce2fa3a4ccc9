package cron

import (
	"testing"
	"time"
)

func TestQueueEnqueueDropsOldestAboveMaxPending(t *testing.T) {
	q := NewQueue(2, 100)
	base := time.Now()

	q.Enqueue(Job{Name: "a"}, base)
	q.Enqueue(Job{Name: "b"}, base.Add(time.Minute))
	q.Enqueue(Job{Name: "c"}, base.Add(2*time.Minute))

	if q.Len() != 2 {
		t.Fatalf("expected queue bounded at 2, got %d", q.Len())
	}
	first, ok := q.Pop()
	if !ok || first.Job.Name != "b" {
		t.Errorf("expected oldest dropped and 'b' to survive first, got %+v", first)
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q := NewQueue(5, 100)
	if _, ok := q.Pop(); ok {
		t.Error("expected Pop on empty queue to report false")
	}
}

func TestQueueTryBeginExecutionRespectsLock(t *testing.T) {
	q := NewQueue(5, 100)
	now := time.Now()

	if !q.TryBeginExecution(now) {
		t.Fatal("expected first TryBeginExecution to succeed")
	}
	if q.TryBeginExecution(now) {
		t.Error("expected second TryBeginExecution to fail while execution_lock held")
	}
	q.EndExecution()
	if !q.TryBeginExecution(now) {
		t.Error("expected TryBeginExecution to succeed after EndExecution")
	}
}

func TestQueuePerHourCap(t *testing.T) {
	q := NewQueue(5, 2)
	now := time.Now()

	if !q.TryBeginExecution(now) {
		t.Fatal("expected 1st execution to be allowed")
	}
	q.EndExecution()
	if !q.TryBeginExecution(now.Add(time.Minute)) {
		t.Fatal("expected 2nd execution to be allowed")
	}
	q.EndExecution()
	if q.TryBeginExecution(now.Add(2 * time.Minute)) {
		t.Error("expected 3rd execution within the hour to be refused")
	}

	// Outside the trailing-hour window, the cap resets.
	if !q.TryBeginExecution(now.Add(2 * time.Hour)) {
		t.Error("expected execution to be allowed again outside the 1-hour window")
	}
}
