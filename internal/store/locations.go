package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"itinerary-router/internal/database"
	"itinerary-router/internal/models"
)

type locationRepository struct {
	store *Store
}

func (r *locationRepository) GetByID(ctx context.Context, id string) (*models.Location, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := r.store.db.Rebind(`SELECT id, name, lat, lng, category FROM locations WHERE id = ?`)

	var loc models.Location
	err := r.store.db.GetContext(ctx, &loc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return &loc, nil
}

func (r *locationRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Location, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query, args, err := sqlx.In(`SELECT id, name, lat, lng, category FROM locations WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build location query: %w", err)
	}

	var locs []models.Location
	if err := r.store.db.SelectContext(ctx, &locs, r.store.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	return locs, nil
}

// Upsert inserts loc unless a location with the same id already exists.
// Existing records are never modified.
func (r *locationRepository) Upsert(ctx context.Context, loc *models.Location) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	query := r.store.db.Rebind(`INSERT INTO locations (id, name, lat, lng, category)
	          VALUES (?, ?, ?, ?, ?)
	          ON CONFLICT (id) DO NOTHING`)

	if _, err := r.store.db.ExecContext(ctx, query, loc.ID, loc.Name, loc.Lat, loc.Lng, loc.Category); err != nil {
		return fmt.Errorf("failed to upsert location: %w", err)
	}
	return nil
}
