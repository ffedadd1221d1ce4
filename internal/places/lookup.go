package places

import (
	"context"
	"fmt"

	"itinerary-router/internal/models"
)

// LookupService finds places of one type near a point
type LookupService interface {
	Nearby(ctx context.Context, point models.Coordinates, placeType string, radius, limit int) ([]models.Location, error)
}

// ErrUnknownPlaceType is returned for place types with no OSM selector
type ErrUnknownPlaceType struct {
	PlaceType string
}

func (e *ErrUnknownPlaceType) Error() string {
	return fmt.Sprintf("unknown place type: %s", e.PlaceType)
}

// tagSelector is an OSM key=value pair
type tagSelector struct {
	Key   string
	Value string
}

// placeTypeTags maps place types to the OSM tag identifying them
var placeTypeTags = map[string]tagSelector{
	"tourist_attraction": {"tourism", "attraction"},
	"restaurant":         {"amenity", "restaurant"},
	"park":               {"leisure", "park"},
	"museum":             {"tourism", "museum"},
	"shopping_mall":      {"shop", "mall"},
	"night_club":         {"amenity", "nightclub"},
	"amusement_park":     {"tourism", "theme_park"},
	"zoo":                {"tourism", "zoo"},
	"spa":                {"leisure", "spa"},
	"cafe":               {"amenity", "cafe"},
	"lodging":            {"tourism", "hotel"},
	"natural_feature":    {"natural", "beach"},
}

// SupportedPlaceType reports whether placeType can be queried
func SupportedPlaceType(placeType string) bool {
	_, ok := placeTypeTags[placeType]
	return ok
}
