package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SyncStateStore = (*SyncStateStore)(nil)

// SyncStateStore keeps each sync unit's state as one JSONB document, so a
// save replaces the whole state atomically.
type SyncStateStore struct {
	db *DB
}

// NewSyncStateStore creates a new SyncStateStore
func NewSyncStateStore(db *DB) *SyncStateStore {
	return &SyncStateStore{db: db}
}

// Save creates or replaces the state of a sync unit
func (s *SyncStateStore) Save(ctx context.Context, syncUnitID string, state *domain.SyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal sync state: %w", err)
	}

	query := `
		INSERT INTO extractor_sync_states (sync_unit_id, state, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (sync_unit_id) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, syncUnitID, data); err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

// Get loads the state of a sync unit, domain.ErrNotFound when absent
func (s *SyncStateStore) Get(ctx context.Context, syncUnitID string) (*domain.SyncState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM extractor_sync_states WHERE sync_unit_id = $1`, syncUnitID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM extractor_sync_states WHERE sync_unit_id = $1`, syncUnitID); err != nil {
		return fmt.Errorf("delete sync state: %w", err)
	}
	return nil
}
