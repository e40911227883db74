package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

func setupTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q, err := NewQueue(client, "worker-test")
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	return q
}

func dataStart(unit string) domain.InvocationEvent {
	return domain.InvocationEvent{EventType: domain.EventExtractionDataStart, SyncUnitID: unit}
}

func TestNewQueue_RequiresClient(t *testing.T) {
	if _, err := NewQueue(nil, ""); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestNewQueue_GroupAlreadyExists(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	for i := 0; i < 2; i++ {
		if _, err := NewQueue(client, ""); err != nil {
			t.Fatalf("attempt %d: unexpected error: %v", i, err)
		}
	}
}

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	task := domain.NewInvocationTask(dataStart("unit-1"))
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}

	got, err := q.DequeueWithTimeout(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected dequeue error: %v", err)
	}
	if got == nil || got.ID != task.ID {
		t.Fatalf("expected task %s, got %+v", task.ID, got)
	}
	if got.Status != domain.TaskStatusProcessing || got.Attempts != 1 {
		t.Errorf("expected processing with one attempt, got %s/%d", got.Status, got.Attempts)
	}
	if got.SyncUnitID() != "unit-1" {
		t.Errorf("unexpected sync unit %q", got.SyncUnitID())
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected stats error: %v", err)
	}
	if stats.ProcessingCount != 1 || stats.PendingCount != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := q.Ack(ctx, task.ID); err != nil {
		t.Fatalf("unexpected ack error: %v", err)
	}
	stored, _ := q.GetTask(ctx, task.ID)
	if stored == nil || stored.Status != domain.TaskStatusCompleted {
		t.Errorf("expected completed task, got %+v", stored)
	}

	if next, _ := q.DequeueWithTimeout(ctx, 0); next != nil {
		t.Errorf("expected empty queue, got %+v", next)
	}
}

func TestQueue_DelayedTaskWaitsUntilDue(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()

	task := domain.NewContinuationTask(dataStart("unit-1"), 30*time.Second)
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}

	if got, _ := q.DequeueWithTimeout(ctx, 0); got != nil {
		t.Fatalf("delayed task delivered early: %+v", got)
	}
	stats, _ := q.Stats(ctx)
	if stats.ScheduledCount != 1 {
		t.Errorf("expected one scheduled task, got %+v", stats)
	}

	q.now = func() time.Time { return time.Now().Add(time.Minute) }
	got, err := q.DequeueWithTimeout(ctx, 0)
	if err != nil {
		t.Fatalf("unexpected dequeue error: %v", err)
	}
	if got == nil || got.ID != task.ID {
		t.Fatalf("expected promoted task, got %+v", got)
	}
	if got.Event.EventType != domain.EventExtractionDataContinue {
		t.Errorf("expected continuation event, got %s", got.Event.EventType)
	}
}

func TestQueue_NackRetriesThenFails(t *testing.T) {
	q := setupTestQueue(t)
	ctx := context.Background()
	q.now = func() time.Time { return time.Now().Add(time.Hour) }

	task := domain.NewInvocationTask(dataStart("unit-1"))
	task.MaxAttempts = 2
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatal(err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		got, err := q.DequeueWithTimeout(ctx, 0)
		if err != nil || got == nil {
			t.Fatalf("attempt %d: expected task, got %v %v", attempt, got, err)
		}
		if got.Attempts != attempt {
			t.Errorf("expected attempt %d, got %d", attempt, got.Attempts)
		}
		if err := q.Nack(ctx, got.ID, "boom"); err != nil {
			t.Fatalf("unexpected nack error: %v", err)
		}
	}

	stored, _ := q.GetTask(ctx, task.ID)
	if stored.Status != domain.TaskStatusFailed || stored.Error != "boom" {
		t.Errorf("expected failed task, got %+v", stored)
	}
	stats, _ := q.Stats(ctx)
	if stats.FailedCount != 1 || stats.ScheduledCount != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if got, _ := q.DequeueWithTimeout(ctx, 0); got != nil {
		t.Errorf("failed task delivered again: %+v", got)
	}
}

func TestQueue_NackUnknownTask(t *testing.T) {
	q := setupTestQueue(t)

	err := q.Nack(context.Background(), "missing", "boom")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueue_GetTaskUnknown(t *testing.T) {
	q := setupTestQueue(t)

	task, err := q.GetTask(context.Background(), "missing")
	if err != nil || task != nil {
		t.Errorf("expected nil, nil; got %v, %v", task, err)
	}
}

func TestQueue_Ping(t *testing.T) {
	q := setupTestQueue(t)

	if err := q.Ping(context.Background()); err != nil {
		t.Errorf("unexpected ping error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}
