package tracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/star/starglobe/internal/transform"
)

// DefaultTLEURL serves the ISS element set.
const DefaultTLEURL = "https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle"

const maxTLEBytes = 1 << 20

// TLEConfig configures a TLESource.
type TLEConfig struct {
	URL string
	// CatalogNumber selects an entry when the document holds several; zero
	// takes the first.
	CatalogNumber int
	// MaxAge is how long fetched elements are used before refetching.
	MaxAge  time.Duration
	Timeout time.Duration
}

// TLESource computes the position by propagating a two-line element set with
// SGP4 to the current time. Elements are refetched after MaxAge; if that
// fails the previous set stays in use.
type TLESource struct {
	cfg        TLEConfig
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	elements  *Elements
	sat       satellite.Satellite
	fetchedAt time.Time
}

// NewTLESource creates a TLESource.
func NewTLESource(cfg TLEConfig, logger *slog.Logger) *TLESource {
	if cfg.URL == "" {
		cfg.URL = DefaultTLEURL
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 12 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TLESource{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

func (s *TLESource) Name() string { return "tle" }

// Elements returns the element set in use, or nil before the first fetch.
func (s *TLESource) Elements() *Elements {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elements
}

// Fetch propagates to the current time.
func (s *TLESource) Fetch(ctx context.Context) (Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if s.elements == nil || now.Sub(s.fetchedAt) > s.cfg.MaxAge {
		if err := s.refresh(ctx, now); err != nil {
			if s.elements == nil {
				return Position{}, err
			}
			s.logger.Warn("TLE refresh failed, keeping previous elements",
				"error", err,
				"fetched_at", s.fetchedAt.Format(time.RFC3339),
			)
		}
	}
	return s.propagate(now)
}

func (s *TLESource) refresh(ctx context.Context, now time.Time) error {
	data, err := s.download(ctx)
	if err != nil {
		return err
	}
	entries, err := ParseElements(bytes.NewReader(data), s.logger)
	if err != nil {
		return err
	}

	var chosen *Elements
	for i := range entries {
		if s.cfg.CatalogNumber == 0 || entries[i].CatalogNumber == s.cfg.CatalogNumber {
			chosen = &entries[i]
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("%w: no TLE entry for catalog number %d in %d entries", ErrMalformed, s.cfg.CatalogNumber, len(entries))
	}

	s.elements = chosen
	s.sat = satellite.TLEToSat(chosen.Line1, chosen.Line2, satellite.GravityWGS72)
	s.fetchedAt = now
	s.logger.Info("TLE loaded",
		"name", chosen.Name,
		"catalog_number", chosen.CatalogNumber,
		"epoch", chosen.Epoch.Format(time.RFC3339),
	)
	return nil
}

func (s *TLESource) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, s.cfg.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTLEBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxTLEBytes {
		return nil, fmt.Errorf("TLE response exceeds %d byte limit", maxTLEBytes)
	}
	return body, nil
}

func (s *TLESource) propagate(now time.Time) (Position, error) {
	year, month, day := now.Date()
	hour, min, sec := now.Clock()

	eci, _ := satellite.Propagate(s.sat, year, int(month), day, hour, min, sec)
	ecef := transform.ToEarthFixed(transform.Inertial{X: eci.X, Y: eci.Y, Z: eci.Z}, now.Truncate(time.Second))
	if !transform.Plausible(ecef) {
		return Position{}, fmt.Errorf("%w: implausible propagated position for %s", ErrMalformed, s.elements.Name)
	}

	g := transform.ToGeodetic(ecef)
	p := Position{Lon: g.LonDeg, Lat: g.LatDeg, Timestamp: now, Source: s.Name()}
	if err := p.validate(); err != nil {
		return Position{}, err
	}
	return p, nil
}
