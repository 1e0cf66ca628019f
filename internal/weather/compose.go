package weather

// IsDay reports whether the snapshot was taken between sunrise (inclusive) and
// sunset (exclusive), using only the snapshot's own timestamps.
func IsDay(s *Snapshot) bool {
	if s == nil {
		return false
	}
	return s.Sys.Sunrise <= s.Dt && s.Dt < s.Sys.Sunset
}

// Compose merges the fetched parts into one result around a successful
// current-weather snapshot. Forecast and air quality may carry an error
// instead of data.
func Compose(current *Snapshot, forecast []DailyForecast, forecastErr error, air *AirQuality, airErr error) ComposedResult {
	return ComposedResult{
		Current:       current,
		Forecast:      forecast,
		ForecastErr:   forecastErr,
		AirQuality:    air,
		AirQualityErr: airErr,
		IsDay:         IsDay(current),
	}
}
