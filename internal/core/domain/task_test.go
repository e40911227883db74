package domain

import (
	"testing"
	"time"
)

func TestGenerateID(t *testing.T) {
	id1 := GenerateID()
	id2 := GenerateID()

	if id1 == "" || id2 == "" {
		t.Error("expected non-empty ID")
	}
	if id1 == id2 {
		t.Error("expected unique IDs")
	}
	// canonical UUID text form
	if len(id1) != 36 {
		t.Errorf("expected ID length 36, got %d", len(id1))
	}
}

func TestNewInvocationTask(t *testing.T) {
	event := InvocationEvent{EventType: EventExtractionDataStart, SyncUnitID: "unit-1", Mode: SyncModeInitial}

	task := NewInvocationTask(event)

	if task.ID == "" {
		t.Error("expected non-empty ID")
	}
	if task.Type != TaskTypeInvocation {
		t.Errorf("expected type %s, got %s", TaskTypeInvocation, task.Type)
	}
	if task.SyncUnitID() != "unit-1" {
		t.Errorf("expected sync unit unit-1, got %s", task.SyncUnitID())
	}
	if task.Status != TaskStatusPending {
		t.Errorf("expected status %s, got %s", TaskStatusPending, task.Status)
	}
	if task.MaxAttempts != 3 {
		t.Errorf("expected max attempts 3, got %d", task.MaxAttempts)
	}
	if !task.IsReady() {
		t.Error("expected new task to be ready")
	}
}

func TestNewContinuationTask(t *testing.T) {
	tests := []struct {
		name     string
		previous EventType
		expected EventType
	}{
		{"data start", EventExtractionDataStart, EventExtractionDataContinue},
		{"data continue", EventExtractionDataContinue, EventExtractionDataContinue},
		{"attachments start", EventExtractionAttachmentsStart, EventExtractionAttachmentsContinue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := InvocationEvent{EventType: tt.previous, SyncUnitID: "unit-1", Mode: SyncModeIncremental}
			task := NewContinuationTask(prev, 0)
			if task.Event.EventType != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, task.Event.EventType)
			}
			if task.Event.Mode != SyncModeIncremental {
				t.Errorf("expected mode preserved, got %s", task.Event.Mode)
			}
		})
	}
}

func TestNewContinuationTask_Delay(t *testing.T) {
	prev := InvocationEvent{EventType: EventExtractionDataStart, SyncUnitID: "unit-1"}
	task := NewContinuationTask(prev, 30*time.Second)

	if task.IsReady() {
		t.Error("expected delayed task not to be ready")
	}
	if got := task.ScheduledFor.Sub(task.CreatedAt); got != 30*time.Second {
		t.Errorf("expected 30s delay, got %v", got)
	}
}

func TestTask_CanRetry(t *testing.T) {
	tests := []struct {
		name        string
		attempts    int
		maxAttempts int
		expected    bool
	}{
		{"no attempts yet", 0, 3, true},
		{"two attempts", 2, 3, true},
		{"max attempts reached", 3, 3, false},
		{"over max attempts", 4, 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Attempts: tt.attempts, MaxAttempts: tt.maxAttempts}
			if got := task.CanRetry(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestTask_IsReady(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name         string
		status       TaskStatus
		scheduledFor time.Time
		expected     bool
	}{
		{"pending and past scheduled", TaskStatusPending, past, true},
		{"pending and future scheduled", TaskStatusPending, future, false},
		{"processing", TaskStatusProcessing, past, false},
		{"completed", TaskStatusCompleted, past, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := &Task{Status: tt.status, ScheduledFor: tt.scheduledFor}
			if got := task.IsReady(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestTask_StatusTransitions(t *testing.T) {
	task := NewInvocationTask(InvocationEvent{EventType: EventExtractionDataStart, SyncUnitID: "u"})

	task.MarkProcessing()
	if task.Status != TaskStatusProcessing || task.StartedAt == nil || task.Attempts != 1 {
		t.Errorf("unexpected processing state: %+v", task)
	}

	task.Error = "old"
	task.MarkCompleted()
	if task.Status != TaskStatusCompleted || task.CompletedAt == nil || task.Error != "" {
		t.Errorf("unexpected completed state: %+v", task)
	}

	task.MarkFailed("boom")
	if task.Status != TaskStatusFailed || task.Error != "boom" {
		t.Errorf("unexpected failed state: %+v", task)
	}
}

func TestTask_Retry_ExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempts        int
		expectedBackoff time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{10, 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			task := NewInvocationTask(InvocationEvent{SyncUnitID: "u"})
			task.Attempts = tt.attempts
			before := time.Now()

			task.Retry("error")

			expectedMin := before.Add(tt.expectedBackoff)
			expectedMax := before.Add(tt.expectedBackoff + time.Second)
			if task.ScheduledFor.Before(expectedMin) || task.ScheduledFor.After(expectedMax) {
				t.Errorf("attempts=%d: expected ScheduledFor between %v and %v, got %v",
					tt.attempts, expectedMin, expectedMax, task.ScheduledFor)
			}
			if task.Status != TaskStatusPending {
				t.Errorf("expected pending after retry, got %s", task.Status)
			}
		})
	}
}

func TestScheduledTask(t *testing.T) {
	s := NewScheduledTask("unit-1", time.Hour)
	if s.ID != "incremental-unit-1" {
		t.Errorf("unexpected id %s", s.ID)
	}
	if s.IsDue() {
		t.Error("expected new schedule not to be due")
	}

	s.NextRun = time.Now().Add(-time.Minute)
	if !s.IsDue() {
		t.Error("expected schedule to be due")
	}
	s.Enabled = false
	if s.IsDue() {
		t.Error("disabled schedule must not be due")
	}

	s.UpdateNextRun()
	if s.LastRun == nil || !s.NextRun.After(*s.LastRun) {
		t.Error("expected next run after last run")
	}

	event := s.Event()
	if event.EventType != EventExtractionDataStart || event.Mode != SyncModeIncremental {
		t.Errorf("unexpected event %+v", event)
	}
}
