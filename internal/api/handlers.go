package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/neexbeast/weather-aggregator/internal/weather"
)

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	weather  WeatherService
	keys     KeyValidator
	locator  Locator
	history  HistoryStore
	validate *validator.Validate
	log      *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(svc WeatherService, keys KeyValidator, loc Locator, hist HistoryStore, log *slog.Logger) *Handlers {
	return &Handlers{
		weather:  svc,
		keys:     keys,
		locator:  loc,
		history:  hist,
		validate: validator.New(),
		log:      log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, weather.ErrorBody{Error: msg})
}

// statusFor maps an error from the weather layer to an HTTP status.
func statusFor(err error) int {
	var ve *weather.ValidationError
	var ue *weather.UpstreamError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, weather.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.As(err, &ue):
		if ue.Kind == weather.KindStatus &&
			(ue.StatusCode == http.StatusBadRequest || ue.StatusCode == http.StatusNotFound) {
			return ue.StatusCode
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type weatherRequest struct {
	Location string `json:"location" validate:"required"`
	Units    string `json:"units" validate:"omitempty,oneof=metric imperial standard"`
}

type coordinateQuery struct {
	Lat   float64 `validate:"gte=-90,lte=90"`
	Lon   float64 `validate:"gte=-180,lte=180"`
	Units string  `validate:"omitempty,oneof=metric imperial standard"`
}

// PostWeather handles POST /weather.
// Looks up a location by name and records the current snapshot in history.
func (h *Handlers) PostWeather(w http.ResponseWriter, r *http.Request) {
	var req weatherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	res, err := h.weather.ByName(r.Context(), req.Location, req.Units)
	if err != nil {
		h.log.Error("weather lookup failed", "location", req.Location, "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	if res.Current != nil {
		if err := h.history.Append(r.Context(), req.Location, *res.Current); err != nil {
			h.log.Error("history append failed", "location", req.Location, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, res)
}

// WeatherByCoordinates handles GET /weather/coordinates?lat=&lon=.
func (h *Handlers) WeatherByCoordinates(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseCoordinates(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	res, err := h.weather.ByCoordinates(r.Context(), q.Lat, q.Lon, q.Units)
	if err != nil {
		h.log.Error("coordinate lookup failed", "lat", q.Lat, "lon", q.Lon, "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) parseCoordinates(r *http.Request) (coordinateQuery, error) {
	values := r.URL.Query()
	latRaw, lonRaw := values.Get("lat"), values.Get("lon")
	if latRaw == "" || lonRaw == "" {
		return coordinateQuery{}, weather.NewValidationError("Latitude and longitude are required")
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return coordinateQuery{}, weather.NewValidationError("invalid latitude %q", latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return coordinateQuery{}, weather.NewValidationError("invalid longitude %q", lonRaw)
	}

	q := coordinateQuery{Lat: lat, Lon: lon, Units: values.Get("units")}
	if err := h.validate.Struct(q); err != nil {
		return coordinateQuery{}, weather.NewValidationError("%s", validationMessage(err))
	}
	return q, nil
}

// validationMessage renders the first failed field of a validator error.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldName(fe.Field()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fieldName(fe.Field()), fe.Param())
	default:
		return fmt.Sprintf("%s is out of range", fieldName(fe.Field()))
	}
}

func fieldName(f string) string {
	switch f {
	case "Location":
		return "location"
	case "Units":
		return "units"
	case "Lat":
		return "latitude"
	case "Lon":
		return "longitude"
	}
	return f
}

// ValidateAPI handles GET /validate-api.
func (h *Handlers) ValidateAPI(w http.ResponseWriter, r *http.Request) {
	err := h.keys.ValidateKey(r.Context())
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": "API key is valid",
		})
		return
	}

	h.log.Warn("api key validation failed", "err", err)

	var ue *weather.UpstreamError
	if errors.As(err, &ue) && ue.Kind == weather.KindStatus {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status":  "error",
			"message": fmt.Sprintf("API key validation failed: %d", ue.StatusCode),
			"details": ue.Body,
		})
		return
	}

	writeJSON(w, http.StatusBadGateway, map[string]string{
		"status":  "error",
		"message": fmt.Sprintf("Error during API validation: %v", err),
	})
}

// History handles GET /history.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	records, err := h.history.All(r.Context())
	if err != nil {
		h.log.Error("history read failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if records == nil {
		records = []weather.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetLocation handles GET /get_location.
// The caller's address is used when public, otherwise the server's own.
func (h *Handlers) GetLocation(w http.ResponseWriter, r *http.Request) {
	loc, err := h.locator.Locate(r.Context(), clientIP(r))
	if err != nil {
		h.log.Error("location lookup failed", "err", err)
		status, msg := locationFailure(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// locationFailure maps a Locate error to its status and message.
// A non-200 answer from either lookup service is a 400.
func locationFailure(err error) (int, string) {
	var ue *weather.UpstreamError
	badStatus := errors.As(err, &ue) && ue.Kind == weather.KindStatus

	switch {
	case errors.Is(err, weather.ErrLocationNotFound):
		return http.StatusNotFound, "Location not found"
	case badStatus && errors.Is(err, weather.ErrIPLookup):
		return http.StatusBadRequest, "Failed to get IP address"
	case badStatus && errors.Is(err, weather.ErrGeoLookup):
		return http.StatusBadRequest, "Failed to get location from IP"
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks history backend connectivity.
func HealthHandlerFunc(history pinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := history.Ping(ctx); err != nil {
			log.Error("health check: history ping failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "degraded",
				"history": "error",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"history": "ok",
		})
	}
}
