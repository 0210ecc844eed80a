// Package clip projects sphere polygons onto the screen and clips them to the
// visible hemisphere.
//
// Each polygon is walked once. Runs of visible vertices become LineTo steps
// through their orthographic projection. Where an edge leaves the visible
// hemisphere the path is taken to the rim, and where it comes back the rim is
// traced with an Arc from the exit to the re-entry point, so filled shapes stay
// closed even when part of them is behind the globe.
package clip

import (
	"math"

	"github.com/star/starglobe/internal/sphere"
)

// Clipper projects onto a view centered at (CX, CY) whose rim has radius R.
type Clipper struct {
	CX, CY float64
	R      float64
}

// New returns a Clipper for the given view center and rim radius.
func New(cx, cy, r float64) Clipper {
	return Clipper{CX: cx, CY: cy, R: r}
}

// Project returns the screen position of p, dropping depth.
func (c Clipper) Project(p sphere.Point) (x, y float64) {
	return c.CX + p.Y, c.CY - p.Z
}

// Rim returns the screen position of the rim point at the given azimuth.
func (c Clipper) Rim(angle float64) (x, y float64) {
	return c.CX + c.R*math.Cos(angle), c.CY - c.R*math.Sin(angle)
}

// scan holds the walk state for one polygon.
type scan struct {
	c    Clipper
	path Path

	start       *sphere.Point
	lastInside  *sphere.Point
	lastOutside *sphere.Point
}

// Clip walks poly (implicitly closed) and returns the primitives for its
// visible part. Polygons with fewer than two points, and polygons that are
// entirely hidden, produce an empty path.
func (c Clipper) Clip(poly []sphere.Point) Path {
	if len(poly) < 2 {
		return nil
	}

	s := &scan{c: c, path: make(Path, 0, len(poly)+2)}
	for i := range poly {
		s.step(poly[i], false)
	}
	s.step(poly[0], true)
	s.close()

	if len(s.path) == 0 {
		return nil
	}
	return s.path
}

func (s *scan) step(p sphere.Point, wrap bool) {
	if !sphere.Visible(p) {
		if s.lastOutside == nil && s.lastInside != nil {
			a := crossing(p, *s.lastInside)
			x, y := s.c.Rim(a)
			s.emit(Primitive{Op: LineTo, X: x, Y: y})
		}
		s.lastOutside = &p
		return
	}

	crossed := s.lastOutside != nil
	if crossed {
		a := crossing(p, *s.lastOutside)
		if s.lastInside == nil {
			x, y := s.c.Rim(a)
			s.emit(Primitive{Op: MoveTo, X: x, Y: y})
		} else {
			s.emit(s.rimArc(*s.lastInside, a))
		}
	}

	// On the wrap step the surface closes the path back to its first vertex.
	if !wrap || crossed {
		x, y := s.c.Project(p)
		s.emit(Primitive{Op: LineTo, X: x, Y: y})
	}

	if s.start == nil {
		s.start = &p
	}
	s.lastInside = &p
	s.lastOutside = nil
}

// close traces the rim back to the opening vertex when the walk ended on the
// hidden side.
func (s *scan) close() {
	if s.start == nil || s.lastOutside == nil || s.lastInside == nil {
		return
	}
	a := crossing(*s.start, *s.lastOutside)
	s.emit(s.rimArc(*s.lastInside, a))
}

// rimArc builds the rim arc from the azimuth of the last visible vertex to the
// re-entry azimuth, taking the shorter way round.
func (s *scan) rimArc(from sphere.Point, to float64) Primitive {
	fromLon, _ := sphere.ToGeographic(from)
	start := -fromLon
	end := -to
	diff := sphere.NMod(end-start, math.Pi)
	return Primitive{
		Op:     Arc,
		CX:     s.c.CX,
		CY:     s.c.CY,
		Radius: s.c.R,
		Start:  start,
		End:    end,
		CCW:    diff < 0,
	}
}

func (s *scan) emit(p Primitive) {
	s.path = append(s.path, p)
}

// crossing estimates the rim azimuth where the edge between a and b crosses
// the hemisphere boundary.
func crossing(a, b sphere.Point) float64 {
	aLon, aLat := sphere.ToGeographic(a)
	bLon, bLat := sphere.ToGeographic(b)
	return AngleAtBorder(aLon, aLat, bLon, bLat)
}

// AngleAtBorder interpolates the azimuth at which the edge from start to end
// reaches elevation zero. The interpolation is linear in view-frame angles,
// which is close enough for densely sampled rings.
func AngleAtBorder(startLon, startLat, endLon, endLat float64) float64 {
	if endLat == startLat {
		return sphere.NMod(startLon+endLon, math.Pi) / 2
	}

	ratio := -startLat / sphere.FloorMod(endLat-startLat, math.Pi)
	return sphere.NMod(startLon+sphere.NMod(endLon-startLon, math.Pi)*ratio, math.Pi)
}
