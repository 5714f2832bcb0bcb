package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/af-corp/aegis-chat/internal/types"
)

// CatalogStore is the admin-managed list of selectable models.
type CatalogStore struct {
	db DB
}

func NewCatalogStore(db DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) ListActiveModels(ctx context.Context) ([]types.CatalogEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, display_name, is_active, is_default
		FROM models
		WHERE is_active
		ORDER BY is_default DESC, sort_order, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.CatalogEntry, error) {
		var e types.CatalogEntry
		err := row.Scan(&e.ID, &e.DisplayName, &e.IsActive, &e.IsDefault)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect models: %w", err)
	}
	return entries, nil
}

// SetModel inserts or updates one model. Marking a model as default clears
// the flag on every other model.
func (s *CatalogStore) SetModel(ctx context.Context, e types.CatalogEntry) error {
	if e.ID == "" {
		return fmt.Errorf("set model: id is required")
	}
	_, err := s.db.Exec(ctx, `
		WITH cleared AS (
			UPDATE models SET is_default = FALSE, updated_at = NOW()
			WHERE $4 AND id <> $1 AND is_default
		)
		INSERT INTO models (id, display_name, is_active, is_default)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    is_active    = EXCLUDED.is_active,
		    is_default   = EXCLUDED.is_default,
		    updated_at   = NOW()
	`, e.ID, e.DisplayName, e.IsActive, e.IsDefault)
	if err != nil {
		return fmt.Errorf("upsert model %s: %w", e.ID, err)
	}
	return nil
}
