package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGeocodeURL is the Google Geocoding API endpoint
const DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// ErrNoLocation is returned when the service answered without coordinates
var ErrNoLocation = errors.New("geocoder returned no location")

// Point is a latitude/longitude pair
type Point struct {
	Lat float64
	Lon float64
}

// Geocoder resolves an ISO country code to a representative point
type Geocoder interface {
	Geocode(ctx context.Context, countryCode string) (Point, error)
}

// GoogleGeocoder queries the Google Geocoding API with a country component filter
type GoogleGeocoder struct {
	baseURL string
	key     string
	http    *http.Client
}

// NewGoogleGeocoder creates a geocoder; baseURL defaults to DefaultGeocodeURL
func NewGoogleGeocoder(baseURL, key string, timeout time.Duration) (*GoogleGeocoder, error) {
	if key == "" {
		return nil, errors.New("geocoding API key is required")
	}
	if baseURL == "" {
		baseURL = DefaultGeocodeURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleGeocoder{baseURL: baseURL, key: key, http: &http.Client{Timeout: timeout}}, nil
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location *struct {
				Lat *float64 `json:"lat"`
				Lng *float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode implements Geocoder
func (g *GoogleGeocoder) Geocode(ctx context.Context, countryCode string) (Point, error) {
	q := url.Values{}
	q.Set("components", "country:"+strings.ToUpper(countryCode))
	q.Set("key", g.key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Point{}, fmt.Errorf("failed to create geocode request: %w", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("geocode request failed for %s: %w", countryCode, scrubURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Point{}, fmt.Errorf("geocoder returned HTTP %d for %s: %s", resp.StatusCode, countryCode, string(body))
	}

	var out geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Point{}, fmt.Errorf("failed to decode geocode response: %w", err)
	}

	switch out.Status {
	case "OK":
	case "ZERO_RESULTS":
		return Point{}, ErrNoLocation
	default:
		return Point{}, fmt.Errorf("geocoder status %s for %s: %s", out.Status, countryCode, out.ErrorMessage)
	}
	if len(out.Results) == 0 {
		return Point{}, ErrNoLocation
	}
	loc := out.Results[0].Geometry.Location
	if loc == nil || loc.Lat == nil || loc.Lng == nil {
		return Point{}, ErrNoLocation
	}
	return Point{Lat: *loc.Lat, Lon: *loc.Lng}, nil
}

// scrubURLError drops the request URL, which carries the API key
func scrubURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
