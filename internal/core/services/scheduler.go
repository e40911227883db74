package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driving"
)

// Scheduler enqueues an incremental EXTRACTION_DATA_START per sync unit on
// a fixed interval. It runs on worker nodes.
//
// For multi-worker deployments, configure a DistributedLock to prevent
// duplicate enqueuing across instances.
type Scheduler struct {
	taskQueue driven.TaskQueue
	lock      driven.DistributedLock
	logger    *slog.Logger

	mu        sync.RWMutex
	schedules map[string]*domain.ScheduledTask
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	interval  time.Duration

	lockTTL time.Duration
}

var _ driving.Scheduler = (*Scheduler)(nil)

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	TaskQueue    driven.TaskQueue
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Schedules    []*domain.ScheduledTask
	Logger       *slog.Logger
	PollInterval time.Duration // How often to check for due schedules (default: 30s)
	LockTTL      time.Duration // TTL for the distributed lock (default: 60s)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 60 * time.Second
	}

	schedules := make(map[string]*domain.ScheduledTask, len(cfg.Schedules))
	for _, s := range cfg.Schedules {
		schedules[s.ID] = s
	}

	return &Scheduler{
		taskQueue: cfg.TaskQueue,
		lock:      cfg.Lock,
		logger:    logger,
		schedules: schedules,
		interval:  interval,
		lockTTL:   lockTTL,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "poll_interval", s.interval, "schedules", len(s.schedules))

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.checkAndEnqueue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkAndEnqueue(ctx)
		}
	}
}

// checkAndEnqueue enqueues every due schedule. With a lock configured only
// the instance holding "scheduler" polls.
func (s *Scheduler) checkAndEnqueue(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, "scheduler", s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			return
		}
		if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return
		}
		defer func() {
			if err := s.lock.Release(ctx, "scheduler"); err != nil {
				s.logger.Warn("failed to release scheduler lock", "error", err)
			}
		}()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, scheduled := range s.schedules {
		if !scheduled.IsDue() {
			continue
		}

		task := domain.NewInvocationTask(scheduled.Event())
		if err := s.taskQueue.Enqueue(ctx, task); err != nil {
			s.logger.Error("failed to enqueue scheduled sync",
				"scheduled_id", scheduled.ID,
				"error", err,
			)
			scheduled.LastError = err.Error()
			continue
		}

		s.logger.Info("enqueued scheduled sync",
			"scheduled_id", scheduled.ID,
			"sync_unit_id", scheduled.SyncUnitID,
			"task_id", task.ID,
		)
		scheduled.LastError = ""
		scheduled.UpdateNextRun()
	}
}

// Schedules returns a snapshot of the configured schedules.
func (s *Scheduler) Schedules() []domain.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScheduledTask, 0, len(s.schedules))
	for _, sc := range s.schedules {
		out = append(out, *sc)
	}
	return out
}

// TriggerNow immediately enqueues a schedule's event, ignoring its next run.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	scheduled, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: schedule %s", domain.ErrNotFound, id)
	}
	event := scheduled.Event()
	s.mu.Unlock()

	task := domain.NewInvocationTask(event)
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("manually triggered scheduled sync",
		"scheduled_id", id,
		"task_id", task.ID,
	)

	return task, nil
}
