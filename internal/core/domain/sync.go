package domain

import (
	"fmt"
	"time"
)

// SyncMode is the synchronization mode requested by the platform
type SyncMode string

const (
	SyncModeInitial     SyncMode = "INITIAL"
	SyncModeIncremental SyncMode = "INCREMENTAL"
)

// SyncState is the persisted progress of one sync unit, keyed by entity type.
type SyncState struct {
	Phases map[EntityType]PhaseState `json:"phases"`

	// LastSuccessfulSyncStarted is stamped at every extraction-start event.
	LastSuccessfulSyncStarted *time.Time `json:"lastSuccessfulSyncStarted,omitempty"`
}

// NewSyncState creates a state with every known entity type PENDING.
func NewSyncState() *SyncState {
	s := &SyncState{Phases: make(map[EntityType]PhaseState, len(EntityPriority))}
	for _, t := range EntityPriority {
		s.Phases[t] = NewPhaseState()
	}
	return s
}

// Phase returns the phase for an entity type, PENDING when untracked.
func (s *SyncState) Phase(t EntityType) PhaseState {
	if s.Phases == nil {
		return NewPhaseState()
	}
	p, ok := s.Phases[t]
	if !ok {
		return NewPhaseState()
	}
	return p
}

// SetPhase replaces the phase for an entity type.
func (s *SyncState) SetPhase(t EntityType, p PhaseState) {
	if s.Phases == nil {
		s.Phases = make(map[EntityType]PhaseState)
	}
	s.Phases[t] = p
}

// ResetPhase returns an entity type to PENDING.
func (s *SyncState) ResetPhase(t EntityType) {
	s.SetPhase(t, NewPhaseState())
}

// AllCompleted reports whether every listed entity type is completed.
func (s *SyncState) AllCompleted(types []EntityType) bool {
	for _, t := range types {
		if !s.Phase(t).Completed {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (s *SyncState) Clone() *SyncState {
	c := &SyncState{Phases: make(map[EntityType]PhaseState, len(s.Phases))}
	for t, p := range s.Phases {
		c.Phases[t] = p
	}
	if s.LastSuccessfulSyncStarted != nil {
		ts := *s.LastSuccessfulSyncStarted
		c.LastSuccessfulSyncStarted = &ts
	}
	return c
}

// ResetPolicy decides which phases are reset when a new cycle starts.
type ResetPolicy string

const (
	// ResetPolicyAlways resets every phase on every start event.
	ResetPolicyAlways ResetPolicy = "always"

	// ResetPolicySkipCompleted keeps phases that completed under a prior
	// sync marker when an incremental cycle starts. Initial cycles still reset.
	ResetPolicySkipCompleted ResetPolicy = "skip-completed"
)

// ParseResetPolicy validates a policy name.
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch ResetPolicy(s) {
	case ResetPolicyAlways, "":
		return ResetPolicyAlways, nil
	case ResetPolicySkipCompleted:
		return ResetPolicySkipCompleted, nil
	default:
		return "", fmt.Errorf("%w: unknown reset policy %q", ErrInvalidInput, s)
	}
}

// ShouldReset reports whether the phase must return to PENDING for a start
// event in the given mode. previousMarker is the sync marker as it was before
// this start event stamped a new one.
func (r ResetPolicy) ShouldReset(mode SyncMode, phase PhaseState, previousMarker *time.Time) bool {
	if r != ResetPolicySkipCompleted {
		return true
	}
	if mode != SyncModeIncremental {
		return true
	}
	return !(phase.Completed && previousMarker != nil)
}

// RateLimitPolicy decides what the entity processor does after a throttled fetch.
type RateLimitPolicy string

const (
	// RateLimitPolicyImmediate retries the same cursor straight away.
	RateLimitPolicyImmediate RateLimitPolicy = "immediate"

	// RateLimitPolicyHonor waits for the advertised retry-after before retrying.
	RateLimitPolicyHonor RateLimitPolicy = "honor"
)

// ParseRateLimitPolicy validates a policy name.
func ParseRateLimitPolicy(s string) (RateLimitPolicy, error) {
	switch RateLimitPolicy(s) {
	case RateLimitPolicyImmediate, "":
		return RateLimitPolicyImmediate, nil
	case RateLimitPolicyHonor:
		return RateLimitPolicyHonor, nil
	default:
		return "", fmt.Errorf("%w: unknown rate limit policy %q", ErrInvalidInput, s)
	}
}
