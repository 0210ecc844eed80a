// Package borders reads the GeoJSON border dataset drawn on the globe.
//
// Only the parts of the document the globe uses are decoded: the features
// array, each entry's type tag, its geometry and coordinates. Entries are
// returned as orb geometries so callers can switch on the variant.
package borders

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNoDataset is returned when no border dataset could be read.
var ErrNoDataset = errors.New("no border dataset available")

// document is the envelope of the border dataset. Features are kept raw so
// that each entry can be dispatched on its own type tag.
type document struct {
	Features []json.RawMessage `json:"features"`
}

type typeTag struct {
	Type string `json:"type"`
}

// Decode parses a GeoJSON document and returns one geometry per usable entry
// of its features array, in document order.
//
// Entries are either Feature objects (their geometry is used) or bare
// geometries. Entries that cannot be decoded are logged and skipped.
func Decode(data []byte, logger *slog.Logger) ([]orb.Geometry, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding border dataset: %w", err)
	}

	geoms := make([]orb.Geometry, 0, len(doc.Features))
	for i, raw := range doc.Features {
		g, err := decodeEntry(raw)
		if err != nil {
			logger.Warn("skipping border feature", "index", i, "error", err)
			continue
		}
		geoms = append(geoms, g)
	}
	return geoms, nil
}

func decodeEntry(raw json.RawMessage) (orb.Geometry, error) {
	var tag typeTag
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("reading type: %w", err)
	}

	switch tag.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding feature: %w", err)
		}
		if f.Geometry == nil {
			return nil, errors.New("feature has no geometry")
		}
		return f.Geometry, nil
	case "Polygon", "MultiPolygon":
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", tag.Type, err)
		}
		return g.Geometry(), nil
	default:
		return nil, fmt.Errorf("unsupported type %q", tag.Type)
	}
}
