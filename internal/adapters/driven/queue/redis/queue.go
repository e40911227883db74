package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

const (
	taskStream     = "extractor:tasks"
	taskGroup      = "extractor:workers"
	scheduledTasks = "extractor:scheduled"
	failedTasks    = "extractor:failed"

	taskKeyPrefix = "extractor:task:"

	consumerPrefix = "worker-"

	// taskTTL bounds how long task documents outlive their last update
	taskTTL = 24 * time.Hour

	// claimTimeout is how long a delivered task may stay unacked before
	// another consumer takes it over
	claimTimeout = 5 * time.Minute
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Queue implements TaskQueue over a Redis stream with one consumer group.
// Delayed tasks wait in a sorted set scored by ScheduledFor and are moved
// onto the stream once due.
type Queue struct {
	client       *redis.Client
	consumerName string
	now          func() time.Time
}

// NewQueue creates a new Redis-backed task queue.
// consumerName should be unique per worker instance.
func NewQueue(client *redis.Client, consumerName string) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if consumerName == "" {
		consumerName = consumerPrefix + strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	err := client.XGroupCreateMkStream(context.Background(), taskStream, taskGroup, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Queue{client: client, consumerName: consumerName, now: time.Now}, nil
}

// Enqueue stores the task and either streams it or schedules it.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL)
	if task.ScheduledFor.After(q.now()) {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
	} else {
		pipe.XAdd(ctx, streamEntry(task))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// DequeueWithTimeout returns the next ready task, waiting up to timeout
// seconds. A zero timeout does not block.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	// best effort; a failed promotion is retried on the next dequeue
	_ = q.promoteScheduledTasks(ctx)

	if task, err := q.claimAbandonedTask(ctx); err == nil && task != nil {
		return task, nil
	}

	block := time.Duration(timeout) * time.Second
	if timeout <= 0 {
		block = -1
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    taskGroup,
		Consumer: q.consumerName,
		Streams:  []string{taskStream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}
	return q.deliver(ctx, streams[0].Messages[0])
}

// deliver marks the task behind msg as processing and remembers the
// message for Ack/Nack. Messages without task data are dropped.
func (q *Queue) deliver(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		q.client.XAck(ctx, taskStream, taskGroup, msg.ID)
		q.client.XDel(ctx, taskStream, msg.ID)
		return nil, nil
	}

	task.MarkProcessing()
	if err := q.save(ctx, q.client, task); err != nil {
		return nil, err
	}
	if err := q.client.Set(ctx, messageKey(task.ID), msg.ID, taskTTL).Err(); err != nil {
		return nil, fmt.Errorf("failed to record message id: %w", err)
	}
	return task, nil
}

// Ack acknowledges successful completion of a task.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	msgID, err := q.client.Get(ctx, messageKey(taskID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get message ID: %w", err)
	}
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	if task != nil {
		task.MarkCompleted()
		if err := q.save(ctx, pipe, task); err != nil {
			return err
		}
	}
	pipe.Del(ctx, messageKey(taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack task: %w", err)
	}
	return nil
}

// Nack schedules a retry with backoff, or marks the task failed once its
// attempts are spent.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("task %s: %w", taskID, domain.ErrNotFound)
	}
	msgID, _ := q.client.Get(ctx, messageKey(taskID)).Result()

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	if task.CanRetry() {
		task.Retry(reason)
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{Score: float64(task.ScheduledFor.Unix()), Member: task.ID})
	} else {
		task.MarkFailed(reason)
		pipe.SAdd(ctx, failedTasks, task.ID)
	}
	if err := q.save(ctx, pipe, task); err != nil {
		return err
	}
	pipe.Del(ctx, messageKey(taskID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID, nil when unknown.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Stats returns queue statistics.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	stats := &driven.QueueStats{}

	length, err := q.client.XLen(ctx, taskStream).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get stream length: %w", err)
	}
	pending, err := q.client.XPending(ctx, taskStream, taskGroup).Result()
	if err == nil && pending != nil {
		stats.ProcessingCount = pending.Count
	}
	stats.PendingCount = length - stats.ProcessingCount

	if stats.ScheduledCount, err = q.client.ZCard(ctx, scheduledTasks).Result(); err != nil {
		return nil, fmt.Errorf("failed to get scheduled count: %w", err)
	}
	if stats.FailedCount, err = q.client.SCard(ctx, failedTasks).Result(); err != nil {
		return nil, fmt.Errorf("failed to get failed count: %w", err)
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op: the Redis client is shared.
func (q *Queue) Close() error {
	return nil
}

// promoteScheduledTasks moves due scheduled tasks onto the stream.
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, scheduledTasks, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := q.client.TxPipeline()
	for _, taskID := range due {
		pipe.ZRem(ctx, scheduledTasks, taskID)
		task, err := q.GetTask(ctx, taskID)
		if err != nil || task == nil {
			continue
		}
		pipe.XAdd(ctx, streamEntry(task))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// claimAbandonedTask takes over a task another consumer left unacked.
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: taskStream,
		Group:  taskGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   taskStream,
			Group:    taskGroup,
			Consumer: q.consumerName,
			MinIdle:  claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}
		task, err := q.deliver(ctx, claimed[0])
		if err == nil && task != nil {
			return task, nil
		}
	}
	return nil, nil
}

func (q *Queue) save(ctx context.Context, c redis.Cmdable, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	if err := c.Set(ctx, taskKeyPrefix+task.ID, data, taskTTL).Err(); err != nil {
		return fmt.Errorf("failed to store task: %w", err)
	}
	return nil
}

func streamEntry(task *domain.Task) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: taskStream,
		Values: map[string]any{
			"task_id":      task.ID,
			"event_type":   string(task.Event.EventType),
			"sync_unit_id": task.SyncUnitID(),
		},
	}
}

func messageKey(taskID string) string {
	return taskKeyPrefix + taskID + ":msg"
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
