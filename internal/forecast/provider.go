package forecast

import (
	"context"
)

// Provider abstracts the remote forecast source.
type Provider interface {
	Name() string
	FetchForecast(ctx context.Context, lat, lon float64) (Payload, error)
}

// Target identifies the location a refresh is for.
type Target struct {
	ID  string
	Lat float64
	Lon float64
}
