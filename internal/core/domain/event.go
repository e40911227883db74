package domain

import "time"

// EventType identifies an incoming invocation event
type EventType string

const (
	EventExtractionExternalSyncUnitsStart EventType = "EXTRACTION_EXTERNAL_SYNC_UNITS_START"
	EventExtractionMetadataStart          EventType = "EXTRACTION_METADATA_START"
	EventExtractionDataStart              EventType = "EXTRACTION_DATA_START"
	EventExtractionDataContinue           EventType = "EXTRACTION_DATA_CONTINUE"
	EventExtractionDataDelete             EventType = "EXTRACTION_DATA_DELETE"
	EventExtractionAttachmentsStart       EventType = "EXTRACTION_ATTACHMENTS_START"
	EventExtractionAttachmentsContinue    EventType = "EXTRACTION_ATTACHMENTS_CONTINUE"
)

// IsKnown reports whether the event type has a handler.
func (t EventType) IsKnown() bool {
	switch t {
	case EventExtractionExternalSyncUnitsStart,
		EventExtractionMetadataStart,
		EventExtractionDataStart,
		EventExtractionDataContinue,
		EventExtractionDataDelete,
		EventExtractionAttachmentsStart,
		EventExtractionAttachmentsContinue:
		return true
	default:
		return false
	}
}

// InvocationEvent is the payload that starts one time-boxed worker invocation.
type InvocationEvent struct {
	EventType  EventType `json:"event_type"`
	SyncUnitID string    `json:"sync_unit_id"`
	Mode       SyncMode  `json:"mode,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// IsIncremental reports whether the platform asked for an incremental cycle.
func (e InvocationEvent) IsIncremental() bool {
	return e.Mode == SyncModeIncremental
}

// ExtractorEventType identifies an outgoing signal
type ExtractorEventType string

const (
	ExtractionExternalSyncUnitsDone  ExtractorEventType = "EXTRACTION_EXTERNAL_SYNC_UNITS_DONE"
	ExtractionExternalSyncUnitsError ExtractorEventType = "EXTRACTION_EXTERNAL_SYNC_UNITS_ERROR"

	ExtractionMetadataDone  ExtractorEventType = "EXTRACTION_METADATA_DONE"
	ExtractionMetadataError ExtractorEventType = "EXTRACTION_METADATA_ERROR"

	ExtractionDataProgress ExtractorEventType = "EXTRACTION_DATA_PROGRESS"
	ExtractionDataDelay    ExtractorEventType = "EXTRACTION_DATA_DELAY"
	ExtractionDataDone     ExtractorEventType = "EXTRACTION_DATA_DONE"
	ExtractionDataError    ExtractorEventType = "EXTRACTION_DATA_ERROR"

	ExtractionDataDeleteDone  ExtractorEventType = "EXTRACTION_DATA_DELETE_DONE"
	ExtractionDataDeleteError ExtractorEventType = "EXTRACTION_DATA_DELETE_ERROR"

	ExtractionAttachmentsProgress ExtractorEventType = "EXTRACTION_ATTACHMENTS_PROGRESS"
	ExtractionAttachmentsDelay    ExtractorEventType = "EXTRACTION_ATTACHMENTS_DELAY"
	ExtractionAttachmentsDone     ExtractorEventType = "EXTRACTION_ATTACHMENTS_DONE"
	ExtractionAttachmentsError    ExtractorEventType = "EXTRACTION_ATTACHMENTS_ERROR"
)

// Signal is the variant of an outgoing event as seen by the scheduler
type Signal string

const (
	SignalProgress Signal = "progress"
	SignalDone     Signal = "done"
	SignalError    Signal = "error"
	SignalDelay    Signal = "delay"
)

// Signal classifies the event type.
func (t ExtractorEventType) Signal() Signal {
	switch t {
	case ExtractionDataProgress, ExtractionAttachmentsProgress:
		return SignalProgress
	case ExtractionDataDelay, ExtractionAttachmentsDelay:
		return SignalDelay
	case ExtractionExternalSyncUnitsError, ExtractionMetadataError,
		ExtractionDataError, ExtractionDataDeleteError, ExtractionAttachmentsError:
		return SignalError
	default:
		return SignalDone
	}
}

// Progress values reported to the platform.
const (
	ProgressMedium     = 50
	ProgressUsers      = 50
	ProgressCompletion = 100
)

// ExternalSyncUnit is a unit of data the platform can sync independently.
type ExternalSyncUnit struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// EventError carries an error message on the event channel
type EventError struct {
	Message string `json:"message"`
}

// ExtractorEvent is one outgoing signal on the progress/event channel.
type ExtractorEvent struct {
	Type              ExtractorEventType `json:"event_type"`
	SyncUnitID        string             `json:"sync_unit_id,omitempty"`
	Progress          *int               `json:"progress,omitempty"`
	Delay             *int               `json:"delay,omitempty"`
	Error             *EventError        `json:"error,omitempty"`
	ExternalSyncUnits []ExternalSyncUnit `json:"external_sync_units,omitempty"`
	EmittedAt         time.Time          `json:"emitted_at"`
}

// Signal classifies the event.
func (e ExtractorEvent) Signal() Signal {
	return e.Type.Signal()
}

// NewProgressEvent creates a mid-progress event.
func NewProgressEvent(t ExtractorEventType, progress int) ExtractorEvent {
	return ExtractorEvent{Type: t, Progress: &progress, EmittedAt: time.Now().UTC()}
}

// NewDoneEvent creates a completion event. progress may be nil.
func NewDoneEvent(t ExtractorEventType, progress *int) ExtractorEvent {
	return ExtractorEvent{Type: t, Progress: progress, EmittedAt: time.Now().UTC()}
}

// NewErrorEvent creates an error event.
func NewErrorEvent(t ExtractorEventType, message string) ExtractorEvent {
	return ExtractorEvent{Type: t, Error: &EventError{Message: message}, EmittedAt: time.Now().UTC()}
}

// NewDelayEvent creates a delay event asking the scheduler to wait.
func NewDelayEvent(t ExtractorEventType, seconds int) ExtractorEvent {
	return ExtractorEvent{Type: t, Delay: &seconds, EmittedAt: time.Now().UTC()}
}

// InvocationResult summarises what one invocation signalled upward.
type InvocationResult struct {
	// Signal is the variant of the last emitted event.
	Signal Signal `json:"signal"`

	// Last is the last emitted event.
	Last ExtractorEvent `json:"last"`

	// DelaySeconds is the largest delay requested during the invocation.
	DelaySeconds int `json:"delay_seconds,omitempty"`

	// Events counts every emitted event.
	Events int `json:"events"`
}

// NeedsContinuation reports whether the scheduler should invoke again.
func (r *InvocationResult) NeedsContinuation() bool {
	return r != nil && (r.Signal == SignalProgress || r.Signal == SignalDelay)
}
