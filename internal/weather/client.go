package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 10 * time.Second
	defaultBaseURL = "https://api.openweathermap.org/data/2.5"
	defaultUnits   = "metric"

	// validationCity is the benign lookup used to check the API key.
	validationCity = "London"
)

// Upstream service names, used in error messages.
const (
	serviceWeather  = "Weather"
	serviceForecast = "Forecast"
	serviceAir      = "Air Quality"
)

// newHTTPClient returns an http.Client with the given timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// doGet performs a GET request and returns the status code and raw body.
// Only transport failures are returned as errors.
func doGet(ctx context.Context, client *http.Client, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	Units   string
	Timeout time.Duration
	// Delay is waited before every outbound request.
	Delay time.Duration
	// Limiter, when set, is shared by every request the client makes.
	Limiter    *rate.Limiter
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the OpenWeatherMap current, forecast and air pollution APIs.
type Client struct {
	apiKey  string
	baseURL string
	units   string
	delay   time.Duration
	limiter *rate.Limiter
	client  *http.Client
	log     *slog.Logger
}

// NewClient constructs a Client; zero-valued options fall back to defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		units:   opts.Units,
		delay:   opts.Delay,
		limiter: opts.Limiter,
		client:  opts.HTTPClient,
		log:     opts.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.units == "" {
		c.units = defaultUnits
	}
	if c.client == nil {
		c.client = newHTTPClient(opts.Timeout)
	}
	if c.log == nil {
		c.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// pace blocks on the shared limiter and then the fixed courtesy delay.
func (c *Client) pace(ctx context.Context) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait canceled: %w", err)
		}
	}
	if c.delay <= 0 {
		return nil
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// get issues one paced GET to endpoint and returns the body of a 200 answer.
func (c *Client) get(ctx context.Context, service, endpoint string, params url.Values) ([]byte, error) {
	if err := c.pace(ctx); err != nil {
		return nil, connectionError(service, err)
	}

	params.Set("appid", c.apiKey)
	rawURL := c.baseURL + "/" + endpoint + "?" + params.Encode()
	c.log.Debug("upstream request", "service", service, "url", redactKey(rawURL))

	status, body, err := doGet(ctx, c.client, rawURL)
	if err != nil {
		err = redactURLError(err)
		c.log.Error("upstream request failed", "service", service, "err", err)
		return nil, connectionError(service, err)
	}
	if status != http.StatusOK {
		c.log.Error("upstream returned error status", "service", service, "status", status, "body", string(body))
		return nil, statusError(service, status, string(body))
	}
	return body, nil
}

func (c *Client) locationParams(q Query, units string) url.Values {
	params := url.Values{}
	if q.HasCoords {
		params.Set("lat", formatCoord(q.Lat))
		params.Set("lon", formatCoord(q.Lon))
	} else {
		params.Set("q", q.Name)
	}
	if units == "" {
		units = c.units
	}
	params.Set("units", units)
	return params
}

type owmCurrentResponse struct {
	Coord      *Coord       `json:"coord"`
	Weather    []Condition  `json:"weather"`
	Main       *MainMetrics `json:"main"`
	Visibility *int         `json:"visibility"`
	Wind       *Wind        `json:"wind"`
	Clouds     *Clouds      `json:"clouds"`
	Dt         *int64       `json:"dt"`
	Sys        *Sys         `json:"sys"`
	Timezone   *int         `json:"timezone"`
	Name       *string      `json:"name"`
}

// FetchCurrent retrieves current conditions. An empty units uses the client default.
func (c *Client) FetchCurrent(ctx context.Context, q Query, units string) (*Snapshot, error) {
	body, err := c.get(ctx, serviceWeather, "weather", c.locationParams(q, units))
	if err != nil {
		return nil, err
	}

	var raw owmCurrentResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, formatError(serviceWeather, fmt.Errorf("decoding current weather: %w", err))
	}

	switch {
	case raw.Coord == nil:
		return nil, formatError(serviceWeather, missingField("coord"))
	case len(raw.Weather) == 0:
		return nil, formatError(serviceWeather, missingField("weather"))
	case raw.Main == nil:
		return nil, formatError(serviceWeather, missingField("main"))
	case raw.Wind == nil:
		return nil, formatError(serviceWeather, missingField("wind"))
	case raw.Clouds == nil:
		return nil, formatError(serviceWeather, missingField("clouds"))
	case raw.Dt == nil:
		return nil, formatError(serviceWeather, missingField("dt"))
	case raw.Sys == nil:
		return nil, formatError(serviceWeather, missingField("sys"))
	case raw.Timezone == nil:
		return nil, formatError(serviceWeather, missingField("timezone"))
	case raw.Name == nil:
		return nil, formatError(serviceWeather, missingField("name"))
	}

	return &Snapshot{
		Coord:      *raw.Coord,
		Weather:    raw.Weather[0],
		Main:       *raw.Main,
		Visibility: raw.Visibility,
		Wind:       *raw.Wind,
		Clouds:     *raw.Clouds,
		Dt:         *raw.Dt,
		Sys:        *raw.Sys,
		Timezone:   *raw.Timezone,
		Name:       *raw.Name,
		Country:    raw.Sys.Country,
	}, nil
}

type owmForecastResponse struct {
	City ForecastCity       `json:"city"`
	List *[]json.RawMessage `json:"list"`
}

// owmForecastFields holds the entry fields aggregation cannot do without.
type owmForecastFields struct {
	Dt   *int64 `json:"dt"`
	Main *struct {
		TempMin *float64 `json:"temp_min"`
		TempMax *float64 `json:"temp_max"`
	} `json:"main"`
	Weather []Condition `json:"weather"`
}

// FetchForecast retrieves the raw 5-day/3-hour forecast list.
func (c *Client) FetchForecast(ctx context.Context, q Query, units string) (*ForecastResponse, error) {
	body, err := c.get(ctx, serviceForecast, "forecast", c.locationParams(q, units))
	if err != nil {
		return nil, err
	}

	var raw owmForecastResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, formatError(serviceForecast, fmt.Errorf("decoding forecast: %w", err))
	}
	if raw.List == nil {
		return nil, formatError(serviceForecast, missingField("list"))
	}

	entries := make([]ForecastEntry, 0, len(*raw.List))
	for i, item := range *raw.List {
		var f owmForecastFields
		if err := json.Unmarshal(item, &f); err != nil {
			return nil, formatError(serviceForecast, fmt.Errorf("decoding list[%d]: %w", i, err))
		}
		if missing := missingForecastField(f); missing != "" {
			return nil, formatError(serviceForecast, missingField(fmt.Sprintf("list[%d].%s", i, missing)))
		}

		var e ForecastEntry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, formatError(serviceForecast, fmt.Errorf("decoding list[%d]: %w", i, err))
		}
		entries = append(entries, e)
	}

	return &ForecastResponse{City: raw.City, List: entries}, nil
}

func missingForecastField(f owmForecastFields) string {
	switch {
	case f.Dt == nil:
		return "dt"
	case f.Main == nil:
		return "main"
	case f.Main.TempMin == nil:
		return "main.temp_min"
	case f.Main.TempMax == nil:
		return "main.temp_max"
	case len(f.Weather) == 0:
		return "weather"
	}
	return ""
}

type owmAirResponse struct {
	List []AirQuality `json:"list"`
}

// FetchAirQuality retrieves the first air pollution sample for a coordinate.
func (c *Client) FetchAirQuality(ctx context.Context, lat, lon float64) (*AirQuality, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(lat))
	params.Set("lon", formatCoord(lon))

	body, err := c.get(ctx, serviceAir, "air_pollution", params)
	if err != nil {
		return nil, err
	}

	var raw owmAirResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, formatError(serviceAir, fmt.Errorf("decoding air pollution: %w", err))
	}
	if len(raw.List) == 0 {
		return nil, formatError(serviceAir, missingField("list[0]"))
	}

	return &raw.List[0], nil
}

// ValidateKey performs one benign current-weather lookup to check that the
// configured API key is accepted.
func (c *Client) ValidateKey(ctx context.Context) error {
	params := url.Values{}
	params.Set("q", validationCity)
	_, err := c.get(ctx, serviceWeather, "weather", params)
	return err
}

func missingField(name string) error {
	return fmt.Errorf("missing field %q", name)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// redactURLError rewrites the URL carried by a *url.Error so the API key
// never reaches logs or response bodies.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: redactKey(ue.URL), Err: ue.Err}
}

// redactKey hides the appid value so URLs can be logged.
func redactKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("appid") {
		q.Set("appid", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
