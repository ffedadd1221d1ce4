package database

import (
	"context"

	"itinerary-router/internal/models"
)

// DataStore is the interface for data persistence
type DataStore interface {
	Close() error
	HealthCheck(ctx context.Context) error
	Locations() LocationRepository
	Itineraries() ItineraryRepository
	DistanceCache() DistanceCacheRepository
}

// LocationRepository handles the place catalog.
// Locations are insert-only: Upsert never overwrites an existing id.
type LocationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Location, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Location, error)
	Upsert(ctx context.Context, loc *models.Location) error
}

// ItineraryRepository handles itinerary persistence scoped to a user
type ItineraryRepository interface {
	List(ctx context.Context, userID string) ([]models.Itinerary, error)
	GetByID(ctx context.Context, userID string, id int64) (*models.Itinerary, error)
	Create(ctx context.Context, it *models.Itinerary) (*models.Itinerary, error)
	Update(ctx context.Context, it *models.Itinerary) (*models.Itinerary, error)
	Delete(ctx context.Context, userID string, id int64) error
}

// DistanceCacheRepository handles distance cache persistence.
// Entries are keyed by travel mode and rounded origin and destination.
type DistanceCacheRepository interface {
	Get(ctx context.Context, origin, dest models.Coordinates, mode models.TravelMode) (*models.DistanceCacheEntry, error)
	SetBatch(ctx context.Context, entries []models.DistanceCacheEntry) error
	Clear(ctx context.Context) error
}
