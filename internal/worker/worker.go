package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driving"
)

// Defaults for WorkerConfig.
const (
	DefaultInvocationTimeout = 10 * time.Minute
	DefaultLockRetryDelay    = 30 * time.Second
	defaultLockGrace         = 30 * time.Second
)

// Worker consumes invocation tasks and acts as the re-invocation scheduler:
// each task runs one time-boxed invocation and the signal it ends with
// decides what gets enqueued next.
type Worker struct {
	taskQueue  driven.TaskQueue
	lock       driven.DistributedLock
	extraction driving.ExtractionService
	scheduler  driving.Scheduler
	logger     *slog.Logger

	// Configuration
	concurrency       int
	dequeueTimeout    int // seconds
	invocationTimeout time.Duration
	lockRetryDelay    time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue         driven.TaskQueue
	Lock              driven.DistributedLock // Optional: serialises invocations per sync unit
	Extraction        driving.ExtractionService
	Scheduler         driving.Scheduler // Optional
	Logger            *slog.Logger
	Concurrency       int           // Number of concurrent task processors
	DequeueTimeout    int           // Seconds to wait for a task before checking again
	InvocationTimeout time.Duration // Time budget of one invocation
	LockRetryDelay    time.Duration // Delay before retrying a task whose sync unit is busy
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	invocationTimeout := cfg.InvocationTimeout
	if invocationTimeout <= 0 {
		invocationTimeout = DefaultInvocationTimeout
	}

	lockRetryDelay := cfg.LockRetryDelay
	if lockRetryDelay <= 0 {
		lockRetryDelay = DefaultLockRetryDelay
	}

	return &Worker{
		taskQueue:         cfg.TaskQueue,
		lock:              cfg.Lock,
		extraction:        cfg.Extraction,
		scheduler:         cfg.Scheduler,
		logger:            logger,
		concurrency:       concurrency,
		dequeueTimeout:    dequeueTimeout,
		invocationTimeout: invocationTimeout,
		lockRetryDelay:    lockRetryDelay,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
		"invocation_timeout", w.invocationTimeout,
	)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker. In-flight invocations finish first.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		if task == nil {
			continue
		}

		w.ProcessTask(ctx, task)
	}
}

// ProcessTask runs one invocation task and settles it on the queue.
func (w *Worker) ProcessTask(ctx context.Context, task *domain.Task) domain.TaskResult {
	logger := w.logger.With(
		"task_id", task.ID,
		"sync_unit_id", task.SyncUnitID(),
		"event_type", task.Event.EventType,
		"attempt", task.Attempts,
	)
	logger.Info("processing task")
	start := time.Now()

	res := domain.TaskResult{TaskID: task.ID}

	if task.Type != domain.TaskTypeInvocation {
		res.Error = fmt.Sprintf("unknown task type: %s", task.Type)
		w.nack(ctx, task, res.Error, logger)
		return w.finish(res, start, logger)
	}

	release, acquired, err := w.acquire(ctx, task.SyncUnitID())
	if err != nil {
		res.Error = err.Error()
		w.nack(ctx, task, res.Error, logger)
		return w.finish(res, start, logger)
	}
	if !acquired {
		logger.Info("sync unit busy, deferring task", "delay", w.lockRetryDelay)
		retry := domain.NewInvocationTask(task.Event)
		retry.ScheduledFor = retry.CreatedAt.Add(w.lockRetryDelay)
		if err := w.taskQueue.Enqueue(ctx, retry); err != nil {
			res.Error = fmt.Sprintf("defer task: %v", err)
			w.nack(ctx, task, res.Error, logger)
			return w.finish(res, start, logger)
		}
		w.ack(ctx, task, logger)
		res.Success = true
		return w.finish(res, start, logger)
	}
	defer release()

	ictx, cancel := context.WithTimeout(ctx, w.invocationTimeout)
	result, err := w.extraction.Handle(ictx, task.Event)
	cancel()

	if result == nil {
		// Rejected before anything was emitted.
		res.Error = fmt.Sprintf("invocation rejected: %v", err)
		w.nack(ctx, task, res.Error, logger)
		return w.finish(res, start, logger)
	}
	res.Signal = result.Signal

	switch {
	case domain.IsFatal(err):
		// Already reported upstream; re-running cannot fix configuration.
		res.Error = err.Error()
		logger.Error("fatal invocation error, not retrying", "error", err)
		w.ack(ctx, task, logger)

	case result.NeedsContinuation():
		delay := time.Duration(result.DelaySeconds) * time.Second
		next := domain.NewContinuationTask(task.Event, delay)
		if err := w.taskQueue.Enqueue(ctx, next); err != nil {
			res.Error = fmt.Sprintf("enqueue continuation: %v", err)
			w.nack(ctx, task, res.Error, logger)
			return w.finish(res, start, logger)
		}
		logger.Info("continuation enqueued",
			"next_task_id", next.ID,
			"next_event_type", next.Event.EventType,
			"delay", delay,
		)
		w.ack(ctx, task, logger)
		res.Success = true

	case result.Signal == domain.SignalError:
		res.Error = errorMessage(result, err)
		w.nack(ctx, task, res.Error, logger)

	default:
		w.ack(ctx, task, logger)
		res.Success = true
	}

	return w.finish(res, start, logger)
}

// acquire takes the sync unit lock and keeps it alive until release is called.
// Without a configured lock every acquisition succeeds.
func (w *Worker) acquire(ctx context.Context, syncUnitID string) (release func(), acquired bool, err error) {
	if w.lock == nil {
		return func() {}, true, nil
	}

	name := driven.SyncUnitLockName(syncUnitID)
	ttl := w.invocationTimeout + defaultLockGrace

	ok, err := w.lock.Acquire(ctx, name, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := w.lock.Extend(ctx, name, ttl); err != nil {
					w.logger.Warn("failed to extend lock", "lock", name, "error", err)
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		// Release even when ctx is cancelled so the unit is not blocked until expiry.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.lock.Release(rctx, name); err != nil {
			w.logger.Warn("failed to release lock", "lock", name, "error", err)
		}
	}, true, nil
}

func (w *Worker) ack(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	if err := w.taskQueue.Ack(context.WithoutCancel(ctx), task.ID); err != nil {
		logger.Error("failed to ack task", "ack_error", err)
	}
}

func (w *Worker) nack(ctx context.Context, task *domain.Task, reason string, logger *slog.Logger) {
	if err := w.taskQueue.Nack(context.WithoutCancel(ctx), task.ID, reason); err != nil {
		logger.Error("failed to nack task", "nack_error", err)
	}
}

func (w *Worker) finish(res domain.TaskResult, start time.Time, logger *slog.Logger) domain.TaskResult {
	res.Duration = time.Since(start)
	if res.Error != "" {
		logger.Error("task failed", "duration", res.Duration, "signal", res.Signal, "error", res.Error)
	} else {
		logger.Info("task completed", "duration", res.Duration, "signal", res.Signal)
	}
	return res
}

func errorMessage(result *domain.InvocationResult, err error) string {
	if result.Last.Error != nil && result.Last.Error.Message != "" {
		return result.Last.Error.Message
	}
	if err != nil {
		return err.Error()
	}
	return string(result.Last.Type)
}

// Health returns health status of the worker.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	LockHealth  bool   `json:"lock_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{Running: running, QueueHealth: true, LockHealth: true}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	}
	if w.lock != nil {
		if err := w.lock.Ping(ctx); err != nil {
			health.LockHealth = false
			if health.Error != "" {
				health.Error += "; "
			}
			health.Error += err.Error()
		}
	}

	return health
}
