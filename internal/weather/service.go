package weather

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Provider is the upstream surface the Service needs. *Client satisfies it.
type Provider interface {
	FetchCurrent(ctx context.Context, q Query, units string) (*Snapshot, error)
	FetchForecast(ctx context.Context, q Query, units string) (*ForecastResponse, error)
	FetchAirQuality(ctx context.Context, lat, lon float64) (*AirQuality, error)
}

// Service fetches current weather, forecast and air quality and composes them.
type Service struct {
	provider      Provider
	zone          *time.Location
	useCityOffset bool
	log           *slog.Logger
}

// NewService constructs a Service. Forecast days are bucketed in zone, or in
// the forecast city's own UTC offset when useCityOffset is set.
func NewService(p Provider, zone *time.Location, useCityOffset bool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{provider: p, zone: zone, useCityOffset: useCityOffset, log: log}
}

// ByName looks up a free-text location. If the current-weather call fails its
// error is returned and nothing else is fetched. Forecast and air quality
// failures are carried inline in the result.
func (s *Service) ByName(ctx context.Context, name, units string) (*ComposedResult, error) {
	q := ByName(name)

	current, err := s.provider.FetchCurrent(ctx, q, units)
	if err != nil {
		s.log.Warn("current weather fetch failed", "location", name, "err", err)
		return nil, err
	}

	var (
		forecast    []DailyForecast
		forecastErr error
		air         *AirQuality
		airErr      error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer s.recoverAs("forecast", &err)
		forecast, forecastErr = s.forecast(gCtx, q, units)
		return nil
	})
	g.Go(func() (err error) {
		defer s.recoverAs("air quality", &err)
		air, airErr = s.airQuality(gCtx, current.Coord.Lat, current.Coord.Lon)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching weather for %s: %w", name, err)
	}

	res := Compose(current, forecast, forecastErr, air, airErr)
	return &res, nil
}

// ByCoordinates fetches all three parts concurrently regardless of individual
// failures. A failed current-weather call is returned as the error; forecast
// and air quality failures are carried inline.
func (s *Service) ByCoordinates(ctx context.Context, lat, lon float64, units string) (*ComposedResult, error) {
	q := ByCoords(lat, lon)

	var (
		current     *Snapshot
		currentErr  error
		forecast    []DailyForecast
		forecastErr error
		air         *AirQuality
		airErr      error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer s.recoverAs("current weather", &err)
		current, currentErr = s.provider.FetchCurrent(gCtx, q, units)
		if currentErr != nil {
			s.log.Warn("current weather fetch failed", "location", q.String(), "err", currentErr)
		}
		return nil
	})
	g.Go(func() (err error) {
		defer s.recoverAs("forecast", &err)
		forecast, forecastErr = s.forecast(gCtx, q, units)
		return nil
	})
	g.Go(func() (err error) {
		defer s.recoverAs("air quality", &err)
		air, airErr = s.airQuality(gCtx, lat, lon)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching weather for %s: %w", q, err)
	}

	if currentErr != nil {
		return nil, currentErr
	}

	res := Compose(current, forecast, forecastErr, air, airErr)
	return &res, nil
}

func (s *Service) forecast(ctx context.Context, q Query, units string) ([]DailyForecast, error) {
	f, err := s.provider.FetchForecast(ctx, q, units)
	if err != nil {
		s.log.Warn("forecast fetch failed", "location", q.String(), "err", err)
		return nil, err
	}
	return AggregateForecast(f.List, ForecastLocation(f, s.zone, s.useCityOffset)), nil
}

func (s *Service) airQuality(ctx context.Context, lat, lon float64) (*AirQuality, error) {
	a, err := s.provider.FetchAirQuality(ctx, lat, lon)
	if err != nil {
		s.log.Warn("air quality fetch failed", "lat", lat, "lon", lon, "err", err)
		return nil, err
	}
	return a, nil
}

// recoverAs turns a panic in a fan-out goroutine into an error.
func (s *Service) recoverAs(part string, err *error) {
	if r := recover(); r != nil {
		s.log.Error(part+" fetch panicked", "recover", r)
		*err = fmt.Errorf("%s fetch panicked: %v", part, r)
	}
}
