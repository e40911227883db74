package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	return uuid.NewString()
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeInvocation runs one extraction invocation for a sync unit
	TaskTypeInvocation TaskType = "extraction_invocation"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents a queued invocation to be processed by workers
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// Type identifies what kind of task this is
	Type TaskType `json:"type"`

	// Event is the invocation event this task delivers
	Event InvocationEvent `json:"event"`

	// Status is the current state of the task
	Status TaskStatus `json:"status"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum retry count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	// CreatedAt is when the task was enqueued
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the task was last modified
	UpdatedAt time.Time `json:"updated_at"`

	// StartedAt is when processing began (nil if not started)
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when processing finished (nil if not complete)
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ScheduledFor is when the task should be processed (for delayed tasks)
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewInvocationTask creates a task delivering event as soon as possible
func NewInvocationTask(event InvocationEvent) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         TaskTypeInvocation,
		Event:        event,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewContinuationTask creates the follow-up invocation after a progress or
// delay signal. The task becomes ready after delay.
func NewContinuationTask(previous InvocationEvent, delay time.Duration) *Task {
	next := InvocationEvent{
		EventType:  continuationOf(previous.EventType),
		SyncUnitID: previous.SyncUnitID,
		Mode:       previous.Mode,
		RequestID:  previous.RequestID,
	}
	task := NewInvocationTask(next)
	if delay > 0 {
		task.ScheduledFor = task.CreatedAt.Add(delay)
	}
	return task
}

func continuationOf(t EventType) EventType {
	switch t {
	case EventExtractionAttachmentsStart, EventExtractionAttachmentsContinue:
		return EventExtractionAttachmentsContinue
	default:
		return EventExtractionDataContinue
	}
}

// SyncUnitID returns the sync unit the task targets
func (t *Task) SyncUnitID() string {
	return t.Event.SyncUnitID
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && !time.Now().Before(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	now := time.Now()
	t.Status = TaskStatusFailed
	t.UpdatedAt = now
	t.Error = err
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err

	// 1s, 2s, 4s, 8s, capped at 5 minutes
	backoff := time.Duration(1<<t.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	t.ScheduledFor = now.Add(backoff)
}

// TaskResult represents the outcome of processing a task
type TaskResult struct {
	TaskID   string        `json:"task_id"`
	Success  bool          `json:"success"`
	Signal   Signal        `json:"signal,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// ScheduledTask is a recurring incremental sync for one sync unit
type ScheduledTask struct {
	// ID is the unique identifier for this schedule
	ID string `json:"id"`

	// SyncUnitID is the unit to sync when triggered
	SyncUnitID string `json:"sync_unit_id"`

	// Interval is how often to run the task
	Interval time.Duration `json:"interval"`

	// Enabled indicates if the schedule is active
	Enabled bool `json:"enabled"`

	// LastRun is when the task was last triggered
	LastRun *time.Time `json:"last_run,omitempty"`

	// NextRun is when the task should next be triggered
	NextRun time.Time `json:"next_run"`

	// LastError contains the last error if triggering failed
	LastError string `json:"last_error,omitempty"`
}

// NewScheduledTask creates a new enabled schedule
func NewScheduledTask(syncUnitID string, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:         "incremental-" + syncUnitID,
		SyncUnitID: syncUnitID,
		Interval:   interval,
		Enabled:    true,
		NextRun:    time.Now().Add(interval),
	}
}

// Event builds the invocation event a trigger enqueues
func (s *ScheduledTask) Event() InvocationEvent {
	return InvocationEvent{
		EventType:  EventExtractionDataStart,
		SyncUnitID: s.SyncUnitID,
		Mode:       SyncModeIncremental,
	}
}

// IsDue returns true if the scheduled task should be triggered
func (s *ScheduledTask) IsDue() bool {
	return s.Enabled && time.Now().After(s.NextRun)
}

// UpdateNextRun calculates the next run time after execution
func (s *ScheduledTask) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
}
