package queue

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	// Test empty queue
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	// Test enqueue
	if !q.Enqueue(ctx, Task{ProblemID: "problem-1"}) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	// Test dequeue
	taskChan := q.Dequeue(ctx)
	task := <-taskChan
	if task.ProblemID != "problem-1" {
		t.Errorf("expected problem-1, got %v", task.ProblemID)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, Task{ProblemID: "problem-1"}) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, Task{ProblemID: "problem-2"}) {
		t.Error("expected enqueue to succeed")
	}

	// Try to enqueue when full
	if q.Enqueue(ctx, Task{ProblemID: "problem-3"}) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if q.IsClosed() {
		t.Error("expected queue to be open")
	}

	q.Enqueue(ctx, Task{ProblemID: "problem-1"})

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}

	// Enqueue after close is rejected
	if q.Enqueue(ctx, Task{ProblemID: "problem-2"}) {
		t.Error("expected enqueue to fail after close")
	}

	// Closing twice is a no-op
	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got %v", err)
	}

	// Buffered tasks drain, then the channel closes
	taskChan := q.Dequeue(ctx)
	task, ok := <-taskChan
	if !ok || task.ProblemID != "problem-1" {
		t.Errorf("expected buffered problem-1, got %v (ok=%v)", task.ProblemID, ok)
	}
	select {
	case _, ok := <-taskChan:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for channel close")
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()
	numGoroutines := 10
	numTasks := 100

	// Start producer goroutines
	done := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < numTasks; j++ {
				q.Enqueue(ctx, Task{ProblemID: fmt.Sprintf("problem-%d-%d", id, j)})
			}
			done <- true
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for producers")
		}
	}

	if l := q.Len(ctx); l != numGoroutines*numTasks {
		t.Errorf("expected length %d, got %d", numGoroutines*numTasks, l)
	}
}
