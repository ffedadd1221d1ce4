package models

import (
	"math"
	"time"
)

// Coordinates represents a geographic point
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RoundCoordinate rounds a coordinate to 5 decimal places (~1m precision)
func RoundCoordinate(v float64) float64 {
	return math.Round(v*100000) / 100000
}

// SamePoint reports whether two coordinates are equal after rounding
func SamePoint(a, b Coordinates) bool {
	return RoundCoordinate(a.Lat) == RoundCoordinate(b.Lat) &&
		RoundCoordinate(a.Lng) == RoundCoordinate(b.Lng)
}

// Location is a point of interest known to the catalog.
// Identity is ID; records are never modified once stored.
type Location struct {
	ID       string  `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	Lat      float64 `json:"lat" db:"lat"`
	Lng      float64 `json:"lng" db:"lng"`
	Category string  `json:"category" db:"category"`
}

// GetCoords returns the coordinates of the location
func (l *Location) GetCoords() Coordinates {
	return Coordinates{Lat: l.Lat, Lng: l.Lng}
}

// Itinerary is a saved route owned by a single user
type Itinerary struct {
	ID            int64        `json:"id"`
	UserID        string       `json:"user_id"`
	Name          string       `json:"name"`
	Route         Route        `json:"route"`
	Suggestions   []string     `json:"suggestions"`
	StartLocation *Coordinates `json:"start_location,omitempty"`
	EndLocation   *Coordinates `json:"end_location,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Preferences is the interpreted form of a user's free-text request
type Preferences struct {
	Keywords   []string           `json:"keywords"`
	Categories map[string]float64 `json:"categories"`
	Source     string             `json:"source"`
}

// DistanceCacheEntry represents a cached distance lookup for one travel mode
type DistanceCacheEntry struct {
	Mode           TravelMode  `json:"mode"`
	Origin         Coordinates `json:"origin"`
	Destination    Coordinates `json:"destination"`
	DistanceMeters float64     `json:"distance_meters"`
}

// TravelMode selects the routing profile used for cost and geometry lookups
type TravelMode string

const (
	ModeDriving TravelMode = "driving"
	ModeWalking TravelMode = "walking"
	ModeCycling TravelMode = "cycling"
)
