package weather

import (
	"encoding/json"
	"fmt"
)

// Coord is a latitude/longitude pair as reported by OpenWeatherMap.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Condition is a single weather condition entry (e.g. id 800, "clear sky").
type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// MainMetrics holds the temperature, humidity and pressure block.
type MainMetrics struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
	SeaLevel  int     `json:"sea_level,omitempty"`
	GrndLevel int     `json:"grnd_level,omitempty"`
}

// Wind holds wind speed and direction.
type Wind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
	Gust  float64 `json:"gust,omitempty"`
}

// Clouds holds cloud cover in percent.
type Clouds struct {
	All int `json:"all"`
}

// Sys holds the sunrise/sunset block of a current-weather reading.
type Sys struct {
	Country string `json:"country"`
	Sunrise int64  `json:"sunrise"`
	Sunset  int64  `json:"sunset"`
}

// Snapshot is a single point-in-time weather reading for one location.
type Snapshot struct {
	Coord      Coord       `json:"coord"`
	Weather    Condition   `json:"weather"`
	Main       MainMetrics `json:"main"`
	Visibility *int        `json:"visibility,omitempty"`
	Wind       Wind        `json:"wind"`
	Clouds     Clouds      `json:"clouds"`
	Dt         int64       `json:"dt"`
	Sys        Sys         `json:"sys"`
	Timezone   int         `json:"timezone"`
	Name       string      `json:"name"`
	Country    string      `json:"country"`
}

// ForecastEntry is one 3-hour sample of the upstream forecast list. An entry
// decoded from JSON keeps its original bytes in Raw and re-encodes to them, so
// fields not modelled here (rain, snow, sys.pod) survive into "hourly".
type ForecastEntry struct {
	Dt         int64       `json:"dt"`
	Main       MainMetrics `json:"main"`
	Weather    []Condition `json:"weather"`
	Clouds     Clouds      `json:"clouds"`
	Wind       Wind        `json:"wind"`
	Visibility int         `json:"visibility,omitempty"`
	Pop        float64     `json:"pop"`
	DtTxt      string      `json:"dt_txt,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// forecastEntryFields has ForecastEntry's layout without its JSON methods.
type forecastEntryFields ForecastEntry

// UnmarshalJSON decodes the modelled fields and retains the raw entry.
func (e *ForecastEntry) UnmarshalJSON(b []byte) error {
	var f forecastEntryFields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*e = ForecastEntry(f)
	e.Raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON emits the raw upstream entry when there is one.
func (e ForecastEntry) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(forecastEntryFields(e))
}

// ForecastCity is the city block of the forecast response.
type ForecastCity struct {
	Name     string `json:"name"`
	Country  string `json:"country"`
	Coord    Coord  `json:"coord"`
	Timezone int    `json:"timezone"`
	Sunrise  int64  `json:"sunrise"`
	Sunset   int64  `json:"sunset"`
}

// ForecastResponse is the parsed 5-day/3-hour forecast.
type ForecastResponse struct {
	City ForecastCity
	List []ForecastEntry
}

// DailyForecast summarises all forecast entries that fall on one calendar date.
type DailyForecast struct {
	Date    string          `json:"date"`
	MinTemp float64         `json:"min_temp"`
	MaxTemp float64         `json:"max_temp"`
	Weather Condition       `json:"weather"`
	Hourly  []ForecastEntry `json:"hourly"`
}

// AirQuality is the first sample of the air pollution list for a coordinate.
type AirQuality struct {
	Dt   int64 `json:"dt"`
	Main struct {
		AQI int `json:"aqi"`
	} `json:"main"`
	Components map[string]float64 `json:"components"`
}

// HistoryRecord is one stored name-based lookup.
type HistoryRecord struct {
	Location  string   `json:"location"`
	Weather   Snapshot `json:"weather"`
	Timestamp string   `json:"timestamp"`
}

// Query identifies a location either by free-text name or by coordinates.
type Query struct {
	Name      string
	Lat       float64
	Lon       float64
	HasCoords bool
}

// ByName builds a name-based Query.
func ByName(name string) Query {
	return Query{Name: name}
}

// ByCoords builds a coordinate-based Query.
func ByCoords(lat, lon float64) Query {
	return Query{Lat: lat, Lon: lon, HasCoords: true}
}

// String returns a human-readable form for logs.
func (q Query) String() string {
	if q.HasCoords {
		return fmt.Sprintf("%.4f,%.4f", q.Lat, q.Lon)
	}
	return q.Name
}

// ComposedResult is the merged response document. Current is always present;
// a failed forecast or air quality part is serialised as {"error": "..."} in
// place of its data.
type ComposedResult struct {
	Current    *Snapshot
	Forecast   []DailyForecast
	AirQuality *AirQuality
	IsDay      bool

	ForecastErr   error
	AirQualityErr error
}

// ErrorBody is the JSON shape used for every error payload.
type ErrorBody struct {
	Error string `json:"error"`
}

// MarshalJSON renders the result as {current, forecast, air_quality, is_day}.
func (r ComposedResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Current    any  `json:"current"`
		Forecast   any  `json:"forecast"`
		AirQuality any  `json:"air_quality"`
		IsDay      bool `json:"is_day"`
	}{IsDay: r.IsDay}

	out.Current = r.Current
	if r.ForecastErr != nil {
		out.Forecast = ErrorBody{Error: r.ForecastErr.Error()}
	} else if r.Forecast == nil {
		out.Forecast = []DailyForecast{}
	} else {
		out.Forecast = r.Forecast
	}
	out.AirQuality = partOrError(r.AirQuality, r.AirQualityErr)

	return json.Marshal(out)
}

func partOrError[T any](v *T, err error) any {
	if err != nil {
		return ErrorBody{Error: err.Error()}
	}
	return v
}
