package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.RepositoryProvider = (*RepositoryProvider)(nil)
	_ driven.Repository         = (*Repository)(nil)
)

// maxBatchRows bounds the rows in one INSERT. Five parameters per row keeps
// a full batch well under the 65535 bind parameter limit.
const maxBatchRows = 1000

// RepositoryProvider hands out a Repository per registered item type.
type RepositoryProvider struct {
	repos map[string]*Repository
}

// NewRepositoryProvider registers one destination table partition per item type.
func NewRepositoryProvider(db *DB, itemTypes ...string) *RepositoryProvider {
	p := &RepositoryProvider{repos: make(map[string]*Repository, len(itemTypes))}
	for _, t := range itemTypes {
		p.repos[t] = &Repository{db: db, itemType: t}
	}
	return p
}

// GetRepo looks up the destination for an item type
func (p *RepositoryProvider) GetRepo(itemType string) (driven.Repository, bool) {
	r, ok := p.repos[itemType]
	if !ok {
		return nil, false
	}
	return r, true
}

// ItemTypes lists the registered item types, sorted.
func (p *RepositoryProvider) ItemTypes() []string {
	types := make([]string, 0, len(p.repos))
	for t := range p.repos {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Repository upserts normalized items of one type into extractor_items.
type Repository struct {
	db       *DB
	itemType string
}

// ItemType returns the destination name
func (r *Repository) ItemType() string {
	return r.itemType
}

// Push writes the batch in one transaction. Re-pushing an item replaces it,
// and when the batch carries an id more than once its last copy wins.
func (r *Repository) Push(ctx context.Context, items []domain.NormalizedItem) error {
	if len(items) == 0 {
		return nil
	}
	// ON CONFLICT DO UPDATE cannot touch the same row twice in one statement.
	items = latestByID(items)

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(items); start += maxBatchRows {
			end := min(start+maxBatchRows, len(items))
			if err := r.insert(ctx, tx, items[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *Repository) insert(ctx context.Context, tx *sql.Tx, items []domain.NormalizedItem) error {
	args := make([]any, 0, len(items)*5)
	for _, item := range items {
		data, err := json.Marshal(item.Data)
		if err != nil {
			return fmt.Errorf("marshal item %s: %w", item.ID, err)
		}
		args = append(args, r.itemType, item.ID, item.CreatedDate, item.ModifiedDate, data)
	}

	if _, err := tx.ExecContext(ctx, upsertItemsQuery(len(items)), args...); err != nil {
		return fmt.Errorf("upsert %s items: %w", r.itemType, err)
	}
	return nil
}

// latestByID keeps the last copy of every id, in first-seen order.
func latestByID(items []domain.NormalizedItem) []domain.NormalizedItem {
	index := make(map[string]int, len(items))
	out := make([]domain.NormalizedItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.ID]; ok {
			out[i] = item
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

// upsertItemsQuery builds a multi-row upsert for n items.
func upsertItemsQuery(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO extractor_items (item_type, item_id, created_date, modified_date, data) VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		p := i * 5
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d)", p+1, p+2, p+3, p+4, p+5)
	}
	b.WriteString(` ON CONFLICT (item_type, item_id) DO UPDATE SET
		created_date = EXCLUDED.created_date,
		modified_date = EXCLUDED.modified_date,
		data = EXCLUDED.data,
		pushed_at = NOW()`)
	return b.String()
}
