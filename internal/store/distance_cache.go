package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"itinerary-router/internal/models"
)

type distanceCacheRepository struct {
	store *Store
}

type distanceCacheRow struct {
	Mode           string  `db:"mode"`
	OriginLat      float64 `db:"origin_lat"`
	OriginLng      float64 `db:"origin_lng"`
	DestLat        float64 `db:"dest_lat"`
	DestLng        float64 `db:"dest_lng"`
	DistanceMeters float64 `db:"distance_meters"`
}

// Get returns the cached entry for the rounded pair under mode, or nil when absent
func (r *distanceCacheRepository) Get(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (*models.DistanceCacheEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := r.store.db.Rebind(`SELECT mode, origin_lat, origin_lng, dest_lat, dest_lng, distance_meters
	          FROM distance_cache
	          WHERE mode = ? AND origin_lat = ? AND origin_lng = ? AND dest_lat = ? AND dest_lng = ?`)

	var row distanceCacheRow
	err := r.store.db.GetContext(ctx, &row, query, string(mode),
		models.RoundCoordinate(origin.Lat), models.RoundCoordinate(origin.Lng),
		models.RoundCoordinate(dest.Lat), models.RoundCoordinate(dest.Lng))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distance cache entry: %w", err)
	}

	return &models.DistanceCacheEntry{
		Mode:           models.TravelMode(row.Mode),
		Origin:         models.Coordinates{Lat: row.OriginLat, Lng: row.OriginLng},
		Destination:    models.Coordinates{Lat: row.DestLat, Lng: row.DestLng},
		DistanceMeters: row.DistanceMeters,
	}, nil
}

// SetBatch stores entries in one transaction, replacing existing pairs.
// Entries without a mode are stored as driving.
func (r *distanceCacheRepository) SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := tx.Rebind(`INSERT INTO distance_cache
	          (mode, origin_lat, origin_lng, dest_lat, dest_lng, distance_meters)
	          VALUES (?, ?, ?, ?, ?, ?)
	          ON CONFLICT (mode, origin_lat, origin_lng, dest_lat, dest_lng)
	          DO UPDATE SET distance_meters = excluded.distance_meters`)

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		mode := entry.Mode
		if mode == "" {
			mode = models.ModeDriving
		}
		_, err := stmt.ExecContext(ctx, string(mode),
			models.RoundCoordinate(entry.Origin.Lat), models.RoundCoordinate(entry.Origin.Lng),
			models.RoundCoordinate(entry.Destination.Lat), models.RoundCoordinate(entry.Destination.Lng),
			entry.DistanceMeters)
		if err != nil {
			return fmt.Errorf("failed to insert batch entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *distanceCacheRepository) Clear(ctx context.Context) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, err := r.store.db.ExecContext(ctx, "DELETE FROM distance_cache"); err != nil {
		return fmt.Errorf("failed to clear distance cache: %w", err)
	}
	return nil
}
