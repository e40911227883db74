package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SyncStateStore = (*SyncStateStore)(nil)

const syncStatePrefix = "extractor:state:"

// SyncStateStore keeps one JSON document per sync unit. Keys carry no TTL:
// state must outlive any pause between invocations.
type SyncStateStore struct {
	client *redis.Client
}

// NewSyncStateStore creates a new Redis-backed SyncStateStore
func NewSyncStateStore(client *redis.Client) *SyncStateStore {
	return &SyncStateStore{client: client}
}

// Save replaces the state of a sync unit
func (s *SyncStateStore) Save(ctx context.Context, syncUnitID string, state *domain.SyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal sync state: %w", err)
	}
	if err := s.client.Set(ctx, syncStatePrefix+syncUnitID, data, 0).Err(); err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

// Get loads the state of a sync unit, domain.ErrNotFound when absent
func (s *SyncStateStore) Get(ctx context.Context, syncUnitID string) (*domain.SyncState, error) {
	data, err := s.client.Get(ctx, syncStatePrefix+syncUnitID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}

	state := domain.NewSyncState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("unmarshal sync state: %w", err)
	}
	return state, nil
}

// Delete removes the state of a sync unit
func (s *SyncStateStore) Delete(ctx context.Context, syncUnitID string) error {
	if err := s.client.Del(ctx, syncStatePrefix+syncUnitID).Err(); err != nil {
		return fmt.Errorf("delete sync state: %w", err)
	}
	return nil
}
