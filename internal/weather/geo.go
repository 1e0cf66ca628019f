package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	ipifyDefaultURL = "https://api.ipify.org"
	ipAPIDefaultURL = "http://ip-api.com/json"

	serviceIPLookup  = "IP lookup"
	serviceGeoLookup = "Geolocation"
)

var (
	// ErrIPLookup marks a failure of the public-IP service.
	ErrIPLookup = errors.New("failed to get IP address")
	// ErrGeoLookup marks a failure of the IP-to-location service.
	ErrGeoLookup = errors.New("failed to get location from IP")
)

// GeoLocation is a resolved city/country/coordinate for an IP address.
type GeoLocation struct {
	City    string  `json:"city"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// GeoLocator resolves a public IP to a location via ipify and ip-api.
type GeoLocator struct {
	ipURL  string
	geoURL string
	client *http.Client
}

// NewGeoLocator constructs a GeoLocator; empty URLs use the public services.
func NewGeoLocator(ipURL, geoURL string, timeout time.Duration) *GeoLocator {
	if ipURL == "" {
		ipURL = ipifyDefaultURL
	}
	if geoURL == "" {
		geoURL = ipAPIDefaultURL
	}
	return &GeoLocator{
		ipURL:  strings.TrimRight(ipURL, "/"),
		geoURL: strings.TrimRight(geoURL, "/"),
		client: newHTTPClient(timeout),
	}
}

type ipifyResponse struct {
	IP string `json:"ip"`
}

type ipAPIResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	City    string  `json:"city"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Locate resolves callerIP to a location. When callerIP is empty or not a
// public address, the server's public IP is looked up first.
func (g *GeoLocator) Locate(ctx context.Context, callerIP string) (*GeoLocation, error) {
	ip := callerIP
	if !isPublicIP(ip) {
		resolved, err := g.publicIP(ctx)
		if err != nil {
			return nil, err
		}
		ip = resolved
	}

	status, body, err := doGet(ctx, g.client, g.geoURL+"/"+ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeoLookup, connectionError(serviceGeoLookup, err))
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", ErrGeoLookup, statusError(serviceGeoLookup, status, string(body)))
	}

	var raw ipAPIResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeoLookup, formatError(serviceGeoLookup, err))
	}
	if raw.Status != "success" {
		return nil, fmt.Errorf("%w: %s: %s", ErrLocationNotFound, ip, raw.Message)
	}

	return &GeoLocation{City: raw.City, Country: raw.Country, Lat: raw.Lat, Lon: raw.Lon}, nil
}

func (g *GeoLocator) publicIP(ctx context.Context) (string, error) {
	status, body, err := doGet(ctx, g.client, g.ipURL+"?format=json")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIPLookup, connectionError(serviceIPLookup, err))
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: %w", ErrIPLookup, statusError(serviceIPLookup, status, string(body)))
	}

	var raw ipifyResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIPLookup, formatError(serviceIPLookup, err))
	}
	if raw.IP == "" {
		return "", fmt.Errorf("%w: %w", ErrIPLookup, formatError(serviceIPLookup, missingField("ip")))
	}
	return raw.IP, nil
}

func isPublicIP(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.IsGlobalUnicast() && !ip.IsPrivate() && !ip.IsLoopback()
}
