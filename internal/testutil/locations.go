package testutil

import (
	"context"
	"sync"

	"itinerary-router/internal/database"
	"itinerary-router/internal/models"
)

// MemoryLocationRepository is an in-memory LocationRepository
type MemoryLocationRepository struct {
	mu        sync.Mutex
	locations map[string]models.Location
	UpsertErr error
	upserts   int
}

func NewMemoryLocationRepository(locs ...models.Location) *MemoryLocationRepository {
	r := &MemoryLocationRepository{locations: make(map[string]models.Location)}
	for _, l := range locs {
		r.locations[l.ID] = l
	}
	return r
}

func (r *MemoryLocationRepository) GetByID(ctx context.Context, id string) (*models.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.locations[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &loc, nil
}

func (r *MemoryLocationRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Location
	for _, id := range ids {
		if loc, ok := r.locations[id]; ok {
			out = append(out, loc)
		}
	}
	return out, nil
}

// Upsert inserts loc unless its id already exists
func (r *MemoryLocationRepository) Upsert(ctx context.Context, loc *models.Location) error {
	if r.UpsertErr != nil {
		return r.UpsertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts++
	if _, ok := r.locations[loc.ID]; !ok {
		r.locations[loc.ID] = *loc
	}
	return nil
}

// Count returns the number of stored locations
func (r *MemoryLocationRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locations)
}

// Upserts returns how many Upsert calls succeeded
func (r *MemoryLocationRepository) Upserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}
