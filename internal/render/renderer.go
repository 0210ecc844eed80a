// Package render draws a globe view onto a Surface: the background disk, the
// clipped border polygons, the satellite ground shadow and the satellite
// marker.
package render

import (
	"image/color"
	"math"

	"github.com/star/starglobe/internal/clip"
	"github.com/star/starglobe/internal/globe"
	"github.com/star/starglobe/internal/sphere"
)

// Layer names a group of draw calls.
type Layer string

const (
	LayerGlobe  Layer = "globe"
	LayerShadow Layer = "shadow"
	LayerMarker Layer = "marker"
)

// Style holds the colors and sizes of a draw pass.
type Style struct {
	Background   color.NRGBA
	Border       color.NRGBA
	Shadow       color.NRGBA
	Marker       color.NRGBA
	MarkerRadius float64
	// ShadowSize is the octagon radius around the satellite, in degrees.
	ShadowSize float64
}

// DefaultStyle returns the standard globe colors.
func DefaultStyle() Style {
	return Style{
		Background:   color.NRGBA{R: 50, G: 60, B: 80, A: 128},
		Border:       color.NRGBA{R: 255, G: 200, B: 150, A: 191},
		Shadow:       color.NRGBA{A: 255},
		Marker:       color.NRGBA{R: 255, A: 255},
		MarkerRadius: 5,
		ShadowSize:   1,
	}
}

// DrawReport summarizes one draw pass.
type DrawReport struct {
	Layers        []Layer `json:"layers"`
	Paths         int     `json:"paths"`
	Primitives    int     `json:"primitives"`
	MarkerVisible bool    `json:"marker_visible"`
}

// Renderer orchestrates a draw pass.
type Renderer struct {
	style Style
}

// New creates a Renderer with the given style.
func New(style Style) *Renderer {
	return &Renderer{style: style}
}

// Draw clears s and draws v. With a satellite position the marker is placed
// at depth D above the surface: when it faces the viewer the globe is drawn
// first, then the shadow and the marker; otherwise the marker is drawn first
// so the globe covers it.
func (r *Renderer) Draw(s Surface, v *globe.View, sat *sphere.GeoPoint) DrawReport {
	var rep DrawReport
	s.Clear()

	if sat == nil {
		r.drawGlobe(s, v, &rep)
		return rep
	}

	cx, cy := v.Center()
	m := sphere.FromDegrees(v.Depth(), *sat, v.Rotation())
	mx, my := cx+m.Y, cy-m.Z

	if m.X > 0 {
		rep.MarkerVisible = true
		r.drawGlobe(s, v, &rep)
		r.drawShadow(s, v, *sat, &rep)
		r.drawMarker(s, mx, my, &rep)
	} else {
		r.drawMarker(s, mx, my, &rep)
		r.drawGlobe(s, v, &rep)
	}
	return rep
}

func (r *Renderer) drawGlobe(s Surface, v *globe.View, rep *DrawReport) {
	cx, cy := v.Center()
	s.FillEllipse(cx, cy, v.Radius(), v.Radius(), r.style.Background)

	c := clip.New(cx, cy, v.Radius())
	for _, poly := range v.Polygons() {
		r.fill(s, c.Clip(poly), r.style.Border, rep)
	}
	rep.Layers = append(rep.Layers, LayerGlobe)
}

// drawShadow fills an octagon around the satellite's ground position.
func (r *Renderer) drawShadow(s Surface, v *globe.View, sat sphere.GeoPoint, rep *DrawReport) {
	octagon := make([]sphere.Point, 8)
	for k := range octagon {
		sin, cos := math.Sincos(float64(k) * math.Pi / 4)
		g := sphere.GeoPoint{
			Lon: sat.Lon + r.style.ShadowSize*cos,
			Lat: sat.Lat + r.style.ShadowSize*sin,
		}
		octagon[k] = sphere.FromDegrees(v.Radius(), g, v.Rotation())
	}

	cx, cy := v.Center()
	r.fill(s, clip.New(cx, cy, v.Radius()).Clip(octagon), r.style.Shadow, rep)
	rep.Layers = append(rep.Layers, LayerShadow)
}

func (r *Renderer) drawMarker(s Surface, x, y float64, rep *DrawReport) {
	s.FillEllipse(x, y, r.style.MarkerRadius, r.style.MarkerRadius, r.style.Marker)
	rep.Layers = append(rep.Layers, LayerMarker)
}

func (r *Renderer) fill(s Surface, path clip.Path, c color.NRGBA, rep *DrawReport) {
	if len(path) == 0 {
		return
	}
	s.FillPath(path, c)
	rep.Paths++
	rep.Primitives += len(path)
}
