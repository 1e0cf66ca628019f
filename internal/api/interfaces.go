package api

import (
	"context"

	"github.com/neexbeast/weather-aggregator/internal/weather"
)

// WeatherService defines the lookups needed by the weather handlers.
type WeatherService interface {
	ByName(ctx context.Context, name, units string) (*weather.ComposedResult, error)
	ByCoordinates(ctx context.Context, lat, lon float64, units string) (*weather.ComposedResult, error)
}

// KeyValidator checks that the configured upstream API key is accepted.
type KeyValidator interface {
	ValidateKey(ctx context.Context) error
}

// Locator resolves an IP address to a location.
type Locator interface {
	Locate(ctx context.Context, callerIP string) (*weather.GeoLocation, error)
}

// HistoryStore defines the history operations needed by handlers.
// Every history.Store implementation satisfies it.
type HistoryStore interface {
	Append(ctx context.Context, location string, snapshot weather.Snapshot) error
	All(ctx context.Context) ([]weather.HistoryRecord, error)
	Ping(ctx context.Context) error
}
