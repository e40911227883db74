package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-extractor/internal/normalisers"
)

func usersOf(ids ...string) []domain.Record {
	return mocks.UserPage("", ids...).Items
}

func TestRepositoryPusher_PushCommitsAndPersists(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())
	state := domain.NewSyncState()
	updated := domain.PhaseState{NextCursor: "c1", TotalFetched: 2}
	progress := domain.ProgressUsers

	err := h.pusher.Push(context.Background(), testSyncUnit, state, domain.EntityTypeUsers, usersOf("u1", "u2"), updated, &progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if state.Phase(domain.EntityTypeUsers) != updated {
		t.Errorf("expected in-memory phase updated, got %+v", state.Phase(domain.EntityTypeUsers))
	}
	stored, ok := h.store.Phase(testSyncUnit, domain.EntityTypeUsers)
	if !ok || stored != updated {
		t.Errorf("expected persisted phase, got %+v", stored)
	}

	items := h.users().Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items pushed, got %d", len(items))
	}
	if items[0].Data["email"] != "u1@example.com" {
		t.Errorf("expected normalized email, got %v", items[0].Data)
	}

	last, ok := h.emitter.Last()
	if !ok || last.Type != domain.ExtractionDataProgress || *last.Progress != 50 {
		t.Errorf("expected progress 50, got %v", h.emitter.Types())
	}
}

func TestRepositoryPusher_CompletedPhaseEmitsNoProgress(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())
	state := domain.NewSyncState()
	progress := domain.ProgressUsers

	err := h.pusher.Push(context.Background(), testSyncUnit, state, domain.EntityTypeUsers, usersOf("u1"), domain.PhaseState{Completed: true, TotalFetched: 1}, &progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.emitter.Events()) != 0 {
		t.Errorf("expected no events, got %v", h.emitter.Types())
	}
}

func TestRepositoryPusher_MissingRepositoryIsFatal(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())
	delete(h.repos.Repos, "users")
	state := domain.NewSyncState()

	err := h.pusher.Push(context.Background(), testSyncUnit, state, domain.EntityTypeUsers, usersOf("u1"), domain.PhaseState{Completed: true}, nil)
	if !errors.Is(err, domain.ErrRepositoryNotFound) {
		t.Fatalf("expected ErrRepositoryNotFound, got %v", err)
	}
	if !domain.IsFatal(err) {
		t.Error("expected fatal error")
	}
	if state.Phase(domain.EntityTypeUsers).Completed {
		t.Error("state must not change when the repository is missing")
	}
	if h.store.Saves != 0 {
		t.Errorf("expected no save, got %d", h.store.Saves)
	}

	last, _ := h.emitter.Last()
	if last.Type != domain.ExtractionDataError || last.Error.Message != "repository not found for users" {
		t.Errorf("unexpected event %+v", last)
	}
}

func TestRepositoryPusher_PushFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())
	h.users().PushErr = errors.New("destination unavailable")
	state := domain.NewSyncState()
	before := state.Phase(domain.EntityTypeUsers)

	err := h.pusher.Push(context.Background(), testSyncUnit, state, domain.EntityTypeUsers, usersOf("u1"), domain.PhaseState{NextCursor: "c1", TotalFetched: 1}, nil)

	var perr *domain.PushError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PushError, got %v", err)
	}
	if perr.ItemType != "users" {
		t.Errorf("expected users item type, got %s", perr.ItemType)
	}
	if state.Phase(domain.EntityTypeUsers) != before {
		t.Error("state must not change on push failure")
	}
	if h.store.Saves != 0 {
		t.Errorf("expected no save, got %d", h.store.Saves)
	}
	if h.emitter.Count(domain.ExtractionDataError) != 1 {
		t.Errorf("expected one error event, got %v", h.emitter.Types())
	}
}

func TestRepositoryPusher_SaveFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())
	h.store.SaveErr = errors.New("store down")
	state := domain.NewSyncState()
	progress := domain.ProgressUsers

	err := h.pusher.Push(context.Background(), testSyncUnit, state, domain.EntityTypeUsers, usersOf("u1"), domain.PhaseState{NextCursor: "c1", TotalFetched: 1}, &progress)
	if err == nil {
		t.Fatal("expected error")
	}
	if state.Phase(domain.EntityTypeUsers).HasCursor() {
		t.Error("in-memory state must not advance when persisting fails")
	}
	if h.emitter.Count(domain.ExtractionDataProgress) != 0 {
		t.Error("no progress may be emitted for an uncommitted push")
	}
}

func TestRepositoryPusher_MalformedRecord(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())
	state := domain.NewSyncState()

	err := h.pusher.Push(context.Background(), testSyncUnit, state, domain.EntityTypeUsers, []domain.Record{{Kind: "ticket"}}, domain.PhaseState{Completed: true}, nil)
	if !errors.Is(err, domain.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
	if h.users().PushCount() != 0 {
		t.Error("nothing may be pushed when normalisation fails")
	}
}

func TestRepositoryPusher_PushAllCommitsIndependently(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())
	reg := normalisers.DefaultRegistry()
	reg.Register(&normalisers.UserNormaliser{Type: "contacts"})
	h.repos.Repos["contacts"] = mocks.NewMockRepository("contacts")
	h.repos.Repos["contacts"].PushErr = errors.New("contacts down")
	h.pusher = NewRepositoryPusher(RepositoryPusherConfig{
		Repos:       h.repos,
		Normalisers: reg,
		Store:       h.store,
		Emitter:     h.emitter,
		Logger:      discardLogger(),
	})

	state := domain.NewSyncState()
	contacts := domain.EntityType("contacts")
	err := h.pusher.PushAll(context.Background(), testSyncUnit, state, []PushRequest{
		{EntityType: domain.EntityTypeUsers, Items: usersOf("u1"), Phase: domain.PhaseState{Completed: true, TotalFetched: 1}},
		{EntityType: contacts, Items: usersOf("c1"), Phase: domain.PhaseState{Completed: true, TotalFetched: 1}},
	})

	var perr *domain.PushError
	if !errors.As(err, &perr) || perr.ItemType != "contacts" {
		t.Fatalf("expected contacts PushError, got %v", err)
	}
	if !state.Phase(domain.EntityTypeUsers).Completed {
		t.Error("expected users phase committed")
	}
	if state.Phase(contacts).Completed {
		t.Error("contacts phase must stay untouched")
	}
	stored, _ := h.store.Phase(testSyncUnit, contacts)
	if stored.Completed {
		t.Error("contacts phase must not be persisted")
	}
}

func TestRepositoryPusher_PushAllMirroredTargets(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())
	reg := normalisers.DefaultRegistry()
	reg.Register(&normalisers.UserNormaliser{Type: "directory"})
	h.repos.Repos["directory"] = mocks.NewMockRepository("directory")
	h.pusher = NewRepositoryPusher(RepositoryPusherConfig{
		Repos:       h.repos,
		Normalisers: reg,
		Store:       h.store,
		Emitter:     h.emitter,
		Concurrency: 2,
		Logger:      discardLogger(),
	})

	state := domain.NewSyncState()
	err := h.pusher.PushAll(context.Background(), testSyncUnit, state, []PushRequest{{
		EntityType: domain.EntityTypeUsers,
		Items:      usersOf("u1", "u2"),
		Phase:      domain.PhaseState{Completed: true, TotalFetched: 2},
		ItemTypes:  []string{"users", "directory"},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.users().Items()) != 2 || len(h.repos.Repos["directory"].Items()) != 2 {
		t.Error("expected both destinations to receive the batch")
	}
	if h.store.Saves != 1 {
		t.Errorf("expected a single state save, got %d", h.store.Saves)
	}
}

func TestRepositoryPusher_PushAllMirrorFailureBlocksCommit(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())
	reg := normalisers.DefaultRegistry()
	reg.Register(&normalisers.UserNormaliser{Type: "directory"})
	h.repos.Repos["directory"] = mocks.NewMockRepository("directory")
	h.repos.Repos["directory"].PushErr = errors.New("directory down")
	h.pusher = NewRepositoryPusher(RepositoryPusherConfig{
		Repos:       h.repos,
		Normalisers: reg,
		Store:       h.store,
		Emitter:     h.emitter,
		Logger:      discardLogger(),
	})

	state := domain.NewSyncState()
	err := h.pusher.PushAll(context.Background(), testSyncUnit, state, []PushRequest{{
		EntityType: domain.EntityTypeUsers,
		Items:      usersOf("u1"),
		Phase:      domain.PhaseState{Completed: true, TotalFetched: 1},
		ItemTypes:  []string{"users", "directory"},
	}})
	if err == nil {
		t.Fatal("expected error")
	}
	if state.Phase(domain.EntityTypeUsers).Completed {
		t.Error("phase must not commit while a destination failed")
	}
	if h.store.Saves != 0 {
		t.Errorf("expected no save, got %d", h.store.Saves)
	}
}

func TestRepositoryPusher_PushAllManyMirrorsOneFailing(t *testing.T) {
	for run := 0; run < 50; run++ {
		h := newHarness(t, mocks.NewMockCursorFetcher())
		reg := normalisers.DefaultRegistry()
		targets := []string{"users"}
		for i := 0; i < 8; i++ {
			name := fmt.Sprintf("mirror-%d", i)
			reg.Register(&normalisers.UserNormaliser{Type: name})
			h.repos.Repos[name] = mocks.NewMockRepository(name)
			targets = append(targets, name)
		}
		h.users().PushErr = errors.New("users down")
		pusher := NewRepositoryPusher(RepositoryPusherConfig{
			Repos:       h.repos,
			Normalisers: reg,
			Store:       h.store,
			Emitter:     h.emitter,
			Concurrency: 8,
			Logger:      discardLogger(),
		})

		state := domain.NewSyncState()
		err := pusher.PushAll(context.Background(), testSyncUnit, state, []PushRequest{{
			EntityType: domain.EntityTypeUsers,
			Items:      usersOf("u1", "u2"),
			Phase:      domain.PhaseState{Completed: true, TotalFetched: 2},
			ItemTypes:  targets,
		}})

		var perr *domain.PushError
		if !errors.As(err, &perr) || perr.ItemType != "users" {
			t.Fatalf("run %d: expected users push error, got %v", run, err)
		}
		if state.Phase(domain.EntityTypeUsers).Completed {
			t.Fatalf("run %d: phase must not commit while a destination failed", run)
		}
		if h.store.Saves != 0 {
			t.Fatalf("run %d: expected no save, got %d", run, h.store.Saves)
		}
	}
}

func TestRepositoryPusher_PushAllSetupFailureSkipsDestinations(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())

	state := domain.NewSyncState()
	err := h.pusher.PushAll(context.Background(), testSyncUnit, state, []PushRequest{{
		EntityType: domain.EntityTypeUsers,
		Items:      usersOf("u1"),
		Phase:      domain.PhaseState{Completed: true, TotalFetched: 1},
		ItemTypes:  []string{"users", "archive"},
	}})

	if !errors.Is(err, domain.ErrRepositoryNotFound) {
		t.Fatalf("expected ErrRepositoryNotFound, got %v", err)
	}
	if h.users().PushCount() != 0 {
		t.Error("a request with a missing destination must not write to the others")
	}
}
