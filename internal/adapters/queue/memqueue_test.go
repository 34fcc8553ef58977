package queue

import (
	"testing"

	"github.com/adiarra14/fleetsdkapp-sub001/internal/domain"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	e1 := &domain.DeviceEvent{DeviceID: "D1"}
	e2 := &domain.DeviceEvent{DeviceID: "D2"}

	if !q.Enqueue(e1) || !q.Enqueue(e2) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].Event.DeviceID != "D1" {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].Event.DeviceID != "D2" {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
}

func TestMemQueueCapacity(t *testing.T) {
	q := NewMemQueue(2)

	ev := &domain.DeviceEvent{DeviceID: "cap"}

	if !q.Enqueue(ev) || !q.Enqueue(ev) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(ev) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}

	q.DequeueBatch(1)
	if !q.Enqueue(ev) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}
}
