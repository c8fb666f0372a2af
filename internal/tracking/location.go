package tracking

import (
	"context"
	"math"
	"time"

	"github.com/i474232898/weather-location-tracker/internal/forecast"
)

// Coordinates are WGS84 degrees.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

// Valid reports whether the coordinates are finite and in range.
func (c Coordinates) Valid() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lon) &&
		c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// coordinateTolerance is roughly ten metres at the equator.
const coordinateTolerance = 1e-4

// Same reports whether two coordinates name the same place.
func (c Coordinates) Same(o Coordinates) bool {
	return math.Abs(c.Lat-o.Lat) < coordinateTolerance && math.Abs(c.Lon-o.Lon) < coordinateTolerance
}

// Location is a place the user tracks.
type Location struct {
	ID          string      `json:"id"`
	Coordinates Coordinates `json:"coordinates"`
	DisplayName string      `json:"displayName"`
	AdminArea   string      `json:"adminArea,omitempty"`
	Country     string      `json:"country,omitempty"`
	// TimeZoneID is learned from the first successful forecast.
	TimeZoneID string `json:"timeZoneId,omitempty"`
	// ListIndex is the position in the user's list; indices are always 0..N-1.
	ListIndex     int       `json:"listIndex"`
	IsPrimary     bool      `json:"isPrimary"`
	LastFetchedAt time.Time `json:"lastFetchedAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Target returns the forecast refresh target of the location.
func (l Location) Target() forecast.Target {
	return forecast.Target{ID: l.ID, Lat: l.Coordinates.Lat, Lon: l.Coordinates.Lon}
}

// Store persists the tracked locations.
type Store interface {
	// List returns every location ordered by ListIndex.
	List(ctx context.Context) ([]Location, error)
	// Save inserts or replaces a location.
	Save(ctx context.Context, loc Location) error
	// SaveOrder assigns ListIndex i to ids[i].
	SaveOrder(ctx context.Context, ids []string) error
	Delete(ctx context.Context, id string) error
}
