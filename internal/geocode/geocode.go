// Package geocode names the place under a latitude/longitude using a
// Nominatim-compatible reverse geocoding service.
package geocode

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
	"time"

	"github.com/star/starglobe/internal/metrics"
)

// DefaultURL is the public Nominatim reverse endpoint.
const DefaultURL = "https://nominatim.openstreetmap.org/reverse"

// UnknownLocation is shown whenever no place name is available.
const UnknownLocation = "Unknown location"

// ErrNoLocation reports that the service has no place at the point, which is
// the normal answer over open ocean.
var ErrNoLocation = errors.New("no location")

const maxResponseBytes = 256 << 10

// Cache stores looked-up names. An empty value records a point with no
// location.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Config configures a Client.
type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// Client performs reverse lookups.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      Cache
	logger     *slog.Logger
}

// NewClient creates a Client. cache may be nil.
func NewClient(cfg Config, cache Cache, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "starglobe/1.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		logger:     logger,
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       any    `json:"error"`
}

// Reverse returns the display name of the place at (lat, lon).
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)
	if c.cache != nil {
		name, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("geocode cache read failed", "key", key, "error", err)
		case ok && name == "":
			metrics.IncGeocode("cache_hit")
			return "", ErrNoLocation
		case ok:
			metrics.IncGeocode("cache_hit")
			return name, nil
		}
	}

	name, err := c.lookup(ctx, lat, lon)
	switch {
	case errors.Is(err, ErrNoLocation):
		metrics.IncGeocode("no_location")
	case err != nil:
		metrics.IncGeocode("error")
		return "", err
	default:
		metrics.IncGeocode("found")
	}

	if c.cache != nil {
		if serr := c.cache.Set(ctx, key, name, c.cfg.CacheTTL); serr != nil {
			c.logger.Warn("geocode cache write failed", "key", key, "error", serr)
		}
	}
	return name, err
}

// Describe is Reverse for display: any failure becomes UnknownLocation.
func (c *Client) Describe(ctx context.Context, lat, lon float64) string {
	name, err := c.Reverse(ctx, lat, lon)
	if err != nil {
		if !errors.Is(err, ErrNoLocation) {
			c.logger.Warn("reverse geocode failed", "lat", lat, "lon", lon, "error", err)
		}
		return UnknownLocation
	}
	return name
}

func (c *Client) lookup(ctx context.Context, lat, lon float64) (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parsing geocode URL: %w", err)
	}
	q := u.Query()
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocoding: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d from geocoder", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	var r reverseResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("decoding geocode response: %w", err)
	}
	if r.Error != nil || r.DisplayName == "" {
		return "", ErrNoLocation
	}
	return r.DisplayName, nil
}

// cacheKey rounds to 0.1 degree, about 11 km at the equator.
func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("starglobe:geocode:%.1f:%.1f", lat, lon)
}
