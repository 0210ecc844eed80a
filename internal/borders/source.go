package borders

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/paulmach/orb"
)

// Config selects where the border dataset comes from.
type Config struct {
	Path     string // Local GeoJSON file.
	URL      string // Remote GeoJSON document; preferred over Path when set.
	CacheDir string // Where downloaded copies are kept.
	MaxFiles int    // Cached copies to keep (default: 3).
}

// Source resolves the dataset from a URL (with an on-disk fallback) or a
// local file.
type Source struct {
	cfg     Config
	fetcher *Fetcher
	cache   *Cache
	logger  *slog.Logger
}

// NewSource creates a Source for cfg.
func NewSource(cfg Config, logger *slog.Logger) *Source {
	s := &Source{cfg: cfg, logger: logger}
	if cfg.URL != "" {
		s.fetcher = NewFetcher(cfg.URL, logger)
		if cfg.CacheDir != "" {
			s.cache = NewCache(cfg.CacheDir, cfg.MaxFiles)
		}
	}
	return s
}

// Load reads and decodes the dataset.
func (s *Source) Load(ctx context.Context) ([]orb.Geometry, error) {
	data, origin, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	geoms, err := Decode(data, s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("border dataset loaded", "origin", origin, "features", len(geoms))
	return geoms, nil
}

func (s *Source) read(ctx context.Context) ([]byte, string, error) {
	if s.fetcher != nil {
		data, err := s.fetcher.Fetch(ctx)
		if err == nil {
			if s.cache != nil {
				if err := s.cache.Write(data, time.Now()); err != nil {
					s.logger.Warn("failed to cache border dataset", "error", err)
				}
			}
			return data, s.fetcher.SourceURL(), nil
		}
		s.logger.Warn("border dataset download failed", "url", s.fetcher.SourceURL(), "error", err)

		if s.cache != nil {
			data, ts, cerr := s.cache.LoadLatest()
			if cerr == nil {
				s.logger.Info("using cached border dataset", "cached_at", ts.Format(time.RFC3339))
				return data, "cache", nil
			}
			s.logger.Debug("no cached border dataset", "error", cerr)
		}
	}

	if s.cfg.Path == "" {
		return nil, "", ErrNoDataset
	}
	data, err := os.ReadFile(s.cfg.Path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrNoDataset, err)
	}
	return data, s.cfg.Path, nil
}
