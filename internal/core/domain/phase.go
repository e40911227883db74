package domain

// EntityType identifies a category of records being extracted (e.g. "users").
type EntityType string

const (
	// EntityTypeUsers is the user directory of the upstream platform
	EntityTypeUsers EntityType = "users"
)

// EntityPriority is the fixed order in which entity types are extracted.
// Later types may assume every earlier type fully landed.
var EntityPriority = []EntityType{EntityTypeUsers}

// RecordKind returns the source record variant carried by this entity type.
func (t EntityType) RecordKind() (RecordKind, bool) {
	switch t {
	case EntityTypeUsers:
		return RecordKindUser, true
	default:
		return "", false
	}
}

// PhaseStatus is the lifecycle state derived from a PhaseState
type PhaseStatus string

const (
	PhaseStatusPending    PhaseStatus = "pending"
	PhaseStatusInProgress PhaseStatus = "in_progress"
	PhaseStatusCompleted  PhaseStatus = "completed"
)

// PhaseState tracks extraction progress for one entity type within a sync cycle.
// An empty NextCursor means "start from the beginning" before the first page
// and "no more pages" after it.
type PhaseState struct {
	Completed       bool   `json:"completed"`
	NextCursor      string `json:"nextCursor,omitempty"`
	LastProcessedID string `json:"lastProcessedId,omitempty"`
	TotalFetched    int    `json:"totalFetched"`
	RateLimited     bool   `json:"rateLimited"`
}

// NewPhaseState returns a phase in the PENDING state.
func NewPhaseState() PhaseState {
	return PhaseState{}
}

// Status derives the lifecycle state.
func (p PhaseState) Status() PhaseStatus {
	switch {
	case p.Completed:
		return PhaseStatusCompleted
	case p.TotalFetched > 0 || p.NextCursor != "":
		return PhaseStatusInProgress
	default:
		return PhaseStatusPending
	}
}

// HasCursor reports whether a resume cursor is stored.
func (p PhaseState) HasCursor() bool {
	return p.NextCursor != ""
}

// Advance records a successfully fetched page. lastID is kept when empty.
func (p *PhaseState) Advance(fetched int, lastID, nextCursor string) {
	p.NextCursor = nextCursor
	p.TotalFetched += fetched
	p.RateLimited = false
	if lastID != "" {
		p.LastProcessedID = lastID
	}
}

// Complete marks the phase as fully consumed. A completed phase never
// carries a cursor meant for resumption.
func (p *PhaseState) Complete() {
	p.Completed = true
	p.NextCursor = ""
	p.RateLimited = false
}
