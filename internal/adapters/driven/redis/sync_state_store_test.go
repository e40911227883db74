package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

func TestSyncStateStore_RoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewSyncStateStore(client)
	ctx := context.Background()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	state := domain.NewSyncState()
	state.LastSuccessfulSyncStarted = &started
	state.SetPhase(domain.EntityTypeUsers, domain.PhaseState{
		NextCursor:      "c2",
		LastProcessedID: "u20",
		TotalFetched:    20,
		RateLimited:     true,
	})

	if err := store.Save(ctx, "unit-1", state); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if ttl := mr.TTL(syncStatePrefix + "unit-1"); ttl != 0 {
		t.Errorf("state must not expire, got ttl %v", ttl)
	}

	got, err := store.Get(ctx, "unit-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if got.Phase(domain.EntityTypeUsers) != state.Phase(domain.EntityTypeUsers) {
		t.Errorf("phase mismatch: got %+v want %+v", got.Phase(domain.EntityTypeUsers), state.Phase(domain.EntityTypeUsers))
	}
	if got.LastSuccessfulSyncStarted == nil || !got.LastSuccessfulSyncStarted.Equal(started) {
		t.Errorf("unexpected sync marker %v", got.LastSuccessfulSyncStarted)
	}
}

func TestSyncStateStore_Missing(t *testing.T) {
	client, _ := setupTestRedis(t)

	_, err := NewSyncStateStore(client).Get(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSyncStateStore_CorruptDocument(t *testing.T) {
	client, mr := setupTestRedis(t)
	if err := mr.Set(syncStatePrefix+"unit-1", "{not json"); err != nil {
		t.Fatal(err)
	}

	_, err := NewSyncStateStore(client).Get(context.Background(), "unit-1")
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestSyncStateStore_Delete(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewSyncStateStore(client)
	ctx := context.Background()

	if err := store.Save(ctx, "unit-1", domain.NewSyncState()); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "unit-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := store.Get(ctx, "unit-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
