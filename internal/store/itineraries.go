package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"itinerary-router/internal/database"
	"itinerary-router/internal/models"
)

type itineraryRepository struct {
	store *Store
}

type itineraryRow struct {
	ID          int64           `db:"id"`
	UserID      string          `db:"user_id"`
	Name        string          `db:"name"`
	Route       string          `db:"route"`
	Suggestions string          `db:"suggestions"`
	StartLat    sql.NullFloat64 `db:"start_lat"`
	StartLng    sql.NullFloat64 `db:"start_lng"`
	EndLat      sql.NullFloat64 `db:"end_lat"`
	EndLng      sql.NullFloat64 `db:"end_lng"`
	CreatedAt   time.Time       `db:"created_at"`
}

const itineraryColumns = `id, user_id, name, route, suggestions, start_lat, start_lng, end_lat, end_lng, created_at`

func nullCoords(c *models.Coordinates) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lng, Valid: true}
}

func coordsFromNull(lat, lng sql.NullFloat64) *models.Coordinates {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &models.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
}

func toRow(it *models.Itinerary) (itineraryRow, error) {
	route, err := json.Marshal(it.Route)
	if err != nil {
		return itineraryRow{}, fmt.Errorf("failed to encode route: %w", err)
	}
	suggestions := it.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	sugg, err := json.Marshal(suggestions)
	if err != nil {
		return itineraryRow{}, fmt.Errorf("failed to encode suggestions: %w", err)
	}

	row := itineraryRow{
		ID:          it.ID,
		UserID:      it.UserID,
		Name:        it.Name,
		Route:       string(route),
		Suggestions: string(sugg),
		CreatedAt:   it.CreatedAt,
	}
	row.StartLat, row.StartLng = nullCoords(it.StartLocation)
	row.EndLat, row.EndLng = nullCoords(it.EndLocation)
	return row, nil
}

func (row itineraryRow) toModel() (*models.Itinerary, error) {
	it := &models.Itinerary{
		ID:            row.ID,
		UserID:        row.UserID,
		Name:          row.Name,
		StartLocation: coordsFromNull(row.StartLat, row.StartLng),
		EndLocation:   coordsFromNull(row.EndLat, row.EndLng),
		CreatedAt:     row.CreatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.Route), &it.Route); err != nil {
		return nil, fmt.Errorf("failed to decode route of itinerary %d: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.Suggestions), &it.Suggestions); err != nil {
		return nil, fmt.Errorf("failed to decode suggestions of itinerary %d: %w", row.ID, err)
	}
	return it, nil
}

func (r *itineraryRepository) List(ctx context.Context, userID string) ([]models.Itinerary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := r.store.db.Rebind(`SELECT ` + itineraryColumns + ` FROM itineraries
	          WHERE user_id = ? ORDER BY created_at DESC, id DESC`)

	var rows []itineraryRow
	if err := r.store.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to query itineraries: %w", err)
	}

	itineraries := make([]models.Itinerary, 0, len(rows))
	for _, row := range rows {
		it, err := row.toModel()
		if err != nil {
			return nil, err
		}
		itineraries = append(itineraries, *it)
	}
	return itineraries, nil
}

func (r *itineraryRepository) GetByID(ctx context.Context, userID string, id int64) (*models.Itinerary, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	query := r.store.db.Rebind(`SELECT ` + itineraryColumns + ` FROM itineraries WHERE id = ? AND user_id = ?`)

	var row itineraryRow
	err := r.store.db.GetContext(ctx, &row, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get itinerary: %w", err)
	}
	return row.toModel()
}

func (r *itineraryRepository) Create(ctx context.Context, it *models.Itinerary) (*models.Itinerary, error) {
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Now().UTC()
	}
	row, err := toRow(it)
	if err != nil {
		return nil, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	query := r.store.db.Rebind(`INSERT INTO itineraries
	          (user_id, name, route, suggestions, start_lat, start_lng, end_lat, end_lng, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	          RETURNING id`)

	var id int64
	err = r.store.db.QueryRowxContext(ctx, query,
		row.UserID, row.Name, row.Route, row.Suggestions,
		row.StartLat, row.StartLng, row.EndLat, row.EndLng, row.CreatedAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to create itinerary: %w", err)
	}
	it.ID = id
	return it, nil
}

// Update replaces the mutable fields of an itinerary owned by it.UserID
func (r *itineraryRepository) Update(ctx context.Context, it *models.Itinerary) (*models.Itinerary, error) {
	row, err := toRow(it)
	if err != nil {
		return nil, err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	query := r.store.db.Rebind(`UPDATE itineraries
	          SET name = ?, route = ?, suggestions = ?, start_lat = ?, start_lng = ?, end_lat = ?, end_lng = ?
	          WHERE id = ? AND user_id = ?`)

	result, err := r.store.db.ExecContext(ctx, query,
		row.Name, row.Route, row.Suggestions,
		row.StartLat, row.StartLng, row.EndLat, row.EndLng,
		row.ID, row.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update itinerary: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return nil, database.ErrNotFound
	}
	return it, nil
}

func (r *itineraryRepository) Delete(ctx context.Context, userID string, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	query := r.store.db.Rebind(`DELETE FROM itineraries WHERE id = ? AND user_id = ?`)
	result, err := r.store.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete itinerary: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}
