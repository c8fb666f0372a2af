package geocode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kelvins/geocoder"
)

var (
	ErrNotConfigured = errors.New("geocoding is not configured")
	ErrNoResults     = errors.New("no geocoding results")
	ErrEmptyQuery    = errors.New("empty geocoding query")
)

// Query is a place name to resolve.
type Query struct {
	Name      string `json:"name"`
	AdminArea string `json:"adminArea,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Place is a resolved location.
type Place struct {
	Name      string  `json:"name"`
	AdminArea string  `json:"adminArea,omitempty"`
	Country   string  `json:"country,omitempty"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

// Geocoder turns names into coordinates and back.
type Geocoder interface {
	Lookup(ctx context.Context, q Query) (Place, error)
	Reverse(ctx context.Context, lat, lon float64) (Place, error)
}

// GoogleGeocoder uses the Google Geocoding API through kelvins/geocoder.
type GoogleGeocoder struct {
	forward func(geocoder.Address) (geocoder.Location, error)
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

// NewGoogleGeocoder returns a geocoder using apiKey, or ErrNotConfigured when
// the key is empty.
func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNotConfigured
	}

	// kelvins/geocoder reads its key from a package variable.
	geocoder.ApiKey = apiKey

	return &GoogleGeocoder{
		forward: geocoder.Geocoding,
		reverse: geocoder.GeocodingReverse,
	}, nil
}

func (g *GoogleGeocoder) Lookup(ctx context.Context, q Query) (Place, error) {
	name := strings.TrimSpace(q.Name)
	if name == "" {
		return Place{}, ErrEmptyQuery
	}

	addr := geocoder.Address{
		City:    name,
		State:   strings.TrimSpace(q.AdminArea),
		Country: strings.TrimSpace(q.Country),
	}

	loc, err := await(ctx, func() (geocoder.Location, error) { return g.forward(addr) })
	if err != nil {
		return Place{}, fmt.Errorf("geocode %q: %w", name, err)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		return Place{}, fmt.Errorf("geocode %q: %w", name, ErrNoResults)
	}

	return Place{
		Name:      name,
		AdminArea: addr.State,
		Country:   addr.Country,
		Lat:       loc.Latitude,
		Lon:       loc.Longitude,
	}, nil
}

func (g *GoogleGeocoder) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	addrs, err := await(ctx, func() ([]geocoder.Address, error) {
		return g.reverse(geocoder.Location{Latitude: lat, Longitude: lon})
	})
	if err != nil {
		return Place{}, fmt.Errorf("reverse geocode %f,%f: %w", lat, lon, err)
	}
	if len(addrs) == 0 {
		return Place{}, fmt.Errorf("reverse geocode %f,%f: %w", lat, lon, ErrNoResults)
	}

	a := addrs[0]
	name := a.City
	if name == "" {
		name = a.FormattedAddress
	}
	return Place{
		Name:      name,
		AdminArea: a.State,
		Country:   a.Country,
		Lat:       lat,
		Lon:       lon,
	}, nil
}

// await runs fn, which cannot be cancelled, and stops waiting when ctx ends.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}
