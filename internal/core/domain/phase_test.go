package domain

import "testing"

func TestPhaseState_Lifecycle(t *testing.T) {
	p := NewPhaseState()
	if p.Status() != PhaseStatusPending {
		t.Fatalf("expected pending, got %s", p.Status())
	}

	p.Advance(2, "u2", "c1")
	if p.Status() != PhaseStatusInProgress {
		t.Errorf("expected in_progress, got %s", p.Status())
	}
	if p.NextCursor != "c1" {
		t.Errorf("expected cursor c1, got %q", p.NextCursor)
	}
	if p.LastProcessedID != "u2" {
		t.Errorf("expected last id u2, got %q", p.LastProcessedID)
	}

	p.Advance(1, "", "")
	if p.TotalFetched != 3 {
		t.Errorf("expected 3 fetched, got %d", p.TotalFetched)
	}
	if p.LastProcessedID != "u2" {
		t.Errorf("expected last id kept, got %q", p.LastProcessedID)
	}

	p.Complete()
	if p.Status() != PhaseStatusCompleted {
		t.Errorf("expected completed, got %s", p.Status())
	}
	if p.HasCursor() {
		t.Error("completed phase must not carry a cursor")
	}
}

func TestPhaseState_AdvanceClearsRateLimited(t *testing.T) {
	p := PhaseState{RateLimited: true, NextCursor: "c1"}
	p.Advance(1, "u1", "c2")
	if p.RateLimited {
		t.Error("expected rate limited flag to clear after a successful page")
	}
}

func TestPhaseState_CursorOnlyIsInProgress(t *testing.T) {
	p := PhaseState{NextCursor: "c1"}
	if p.Status() != PhaseStatusInProgress {
		t.Errorf("expected in_progress, got %s", p.Status())
	}
}

func TestEntityType_RecordKind(t *testing.T) {
	kind, ok := EntityTypeUsers.RecordKind()
	if !ok || kind != RecordKindUser {
		t.Errorf("expected user kind, got %q (%v)", kind, ok)
	}
	if _, ok := EntityType("tickets").RecordKind(); ok {
		t.Error("expected unknown entity type to have no record kind")
	}
}
