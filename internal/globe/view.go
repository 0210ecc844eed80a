// Package globe holds the state of the one rotatable globe view: the border
// polygons projected onto the sphere, the accumulated rotation and the screen
// geometry they are drawn with.
//
// A View is not safe for concurrent use. The viewer loop owns it and is the
// only goroutine that loads, rotates or reads it.
package globe

import (
	"log/slog"
	"math"

	"github.com/paulmach/orb"

	"github.com/star/starglobe/internal/sphere"
)

const (
	// MinRingPoints drops rings with fewer raw points (small islands).
	MinRingPoints = 125
	// TargetRingPoints bounds the points kept per ring when downsampling.
	TargetRingPoints = 200
	// MinStride is the smallest downsampling stride.
	MinStride = 3
)

// Polygon is a closed ring of sphere points; the last point connects back to
// the first.
type Polygon []sphere.Point

// View owns the polygons of one globe and the rotation applied to them.
type View struct {
	width, height float64
	radius        float64 // rim radius R
	depth         float64 // satellite marker radius D

	source   []orb.Geometry
	polygons []Polygon
	rotation float64

	logger *slog.Logger
}

// NewView creates an empty view sized for a width x height surface.
func NewView(width, height float64, logger *slog.Logger) *View {
	v := &View{logger: logger}
	v.setSize(width, height)
	return v
}

func (v *View) setSize(width, height float64) {
	v.width, v.height = width, height
	size := math.Min(width, height)
	v.radius = math.Floor(size / 3)
	v.depth = math.Floor(size / 2.5)
}

// Load replaces the polygons with those built from geoms and remembers geoms
// as the source for later reloads. Rotation is reset to zero.
func (v *View) Load(geoms []orb.Geometry) {
	v.source = geoms
	v.reload()
}

func (v *View) reload() {
	v.polygons = nil
	v.rotation = 0

	var dropped, unsupported int
	for _, g := range v.source {
		switch g := g.(type) {
		case orb.Polygon:
			if len(g) > 0 && !v.addRing(g[0]) {
				dropped++
			}
		case orb.MultiPolygon:
			for _, poly := range g {
				if len(poly) > 0 && !v.addRing(poly[0]) {
					dropped++
				}
			}
		default:
			unsupported++
			v.logger.Warn("unsupported border geometry", "type", geometryType(g))
		}
	}

	v.logger.Debug("globe polygons loaded",
		"polygons", len(v.polygons),
		"points", v.PointCount(),
		"dropped_rings", dropped,
		"unsupported", unsupported,
		"radius", v.radius,
	)
}

// addRing downsamples ring and appends it as a polygon. It reports false when
// the ring is too small to keep.
func (v *View) addRing(ring orb.Ring) bool {
	if len(ring) < MinRingPoints {
		return false
	}

	stride := max(len(ring)/TargetRingPoints, MinStride)
	poly := make(Polygon, 0, len(ring)/stride+1)
	for i := 0; i < len(ring); i += stride {
		poly = append(poly, sphere.FromDegrees(v.radius, sphere.GeoPoint{Lon: ring[i][0], Lat: ring[i][1]}, 0))
	}
	v.polygons = append(v.polygons, poly)
	return true
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}

// ApplyRotation turns every polygon by angle radians about the vertical screen
// axis, in place, and adds angle to the accumulated rotation.
func (v *View) ApplyRotation(angle float64) {
	v.rotation += angle
	if angle == 0 {
		return
	}
	for _, poly := range v.polygons {
		for i, p := range poly {
			poly[i] = sphere.Rotate(p, angle)
		}
	}
}

// Resize recomputes the projection for a new surface size. Polygons are
// rebuilt from the source at the new radius, which discards the rotation.
func (v *View) Resize(width, height float64) {
	v.setSize(width, height)
	v.reload()
	v.ApplyRotation(0)
}

// Polygons returns the current polygons. Callers must not retain them across
// a Load, Resize or ApplyRotation.
func (v *View) Polygons() []Polygon {
	return v.polygons
}

// Rotation returns the accumulated rotation in radians since the last load.
func (v *View) Rotation() float64 {
	return v.rotation
}

// Radius returns the rim radius R in pixels.
func (v *View) Radius() float64 {
	return v.radius
}

// Depth returns the radius D at which the satellite marker is placed.
func (v *View) Depth() float64 {
	return v.depth
}

// Size returns the surface size.
func (v *View) Size() (width, height float64) {
	return v.width, v.height
}

// Center returns the screen position of the globe center.
func (v *View) Center() (x, y float64) {
	return v.width / 2, v.height / 2
}

// PointCount returns the number of points over all polygons.
func (v *View) PointCount() int {
	var n int
	for _, p := range v.polygons {
		n += len(p)
	}
	return n
}

// Stats is a snapshot of the view for status reporting.
type Stats struct {
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Radius   float64 `json:"radius"`
	Depth    float64 `json:"depth"`
	Rotation float64 `json:"rotation_radians"`
	Polygons int     `json:"polygons"`
	Points   int     `json:"points"`
}

// Stats returns a snapshot of the view.
func (v *View) Stats() Stats {
	return Stats{
		Width:    v.width,
		Height:   v.height,
		Radius:   v.radius,
		Depth:    v.depth,
		Rotation: v.rotation,
		Polygons: len(v.polygons),
		Points:   v.PointCount(),
	}
}
