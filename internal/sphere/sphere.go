// Package sphere holds the coordinate conversions used by the globe view.
//
// Points live on a sphere of radius R in a view frame where X is depth (the
// viewer looks along +X), Y is the horizontal screen axis and Z the vertical
// screen axis. The visible hemisphere is X >= 0.
package sphere

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
)

// Point is a cartesian position on the sphere in the view frame.
type Point = r3.Vector

// GeoPoint is a (longitude, latitude) pair in degrees as read from a dataset.
type GeoPoint struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Radians returns the longitude and latitude of g in radians.
func (g GeoPoint) Radians() (lon, lat float64) {
	return (s1.Angle(g.Lon) * s1.Degree).Radians(), (s1.Angle(g.Lat) * s1.Degree).Radians()
}

// ToCartesian converts a longitude/latitude in radians to a point on a sphere
// of radius r.
func ToCartesian(r, lon, lat float64) Point {
	c := math.Cos(lat)
	return Point{
		X: r * c * math.Cos(lon),
		Y: r * c * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}

// FromDegrees converts g to a point on a sphere of radius r after shifting its
// longitude by offset radians.
func FromDegrees(r float64, g GeoPoint, offset float64) Point {
	lon, lat := g.Radians()
	return ToCartesian(r, lon+offset, lat)
}

// ToGeographic maps p back to angles in the view frame.
//
// The returned longitude is the azimuth of p around the screen center,
// counter-clockwise from +Y (east) in (-π, π]. The returned latitude is the
// elevation of p out of the screen plane towards the viewer, in [-π/2, π/2];
// it is positive exactly on the visible hemisphere.
func ToGeographic(p Point) (lon, lat float64) {
	lon = math.Atan2(p.Z, p.Y)
	lat = math.Atan2(p.X, math.Hypot(p.Y, p.Z))
	return lon, lat
}

// FromGeographic is the inverse of ToGeographic: it places the point with the
// given view-frame azimuth and elevation on a sphere of radius r.
func FromGeographic(r, lon, lat float64) Point {
	c := math.Cos(lat)
	return Point{
		X: r * math.Sin(lat),
		Y: r * c * math.Cos(lon),
		Z: r * c * math.Sin(lon),
	}
}

// LonLat is the inverse of ToCartesian. It returns the true longitude and
// latitude of p in radians. Longitude is undefined at the poles and reported
// as zero there.
func LonLat(p Point) (lon, lat float64) {
	if p.X == 0 && p.Y == 0 {
		return 0, math.Copysign(math.Pi/2, p.Z)
	}
	return math.Atan2(p.Y, p.X), math.Atan2(p.Z, math.Hypot(p.X, p.Y))
}

// Rotate turns p by theta radians about the vertical screen axis.
func Rotate(p Point, theta float64) Point {
	s, c := math.Sincos(theta)
	return Point{
		X: p.X*c - p.Y*s,
		Y: p.X*s + p.Y*c,
		Z: p.Z,
	}
}

// Visible reports whether p is on the hemisphere facing the viewer.
func Visible(p Point) bool {
	return p.X >= 0
}

// FloorMod returns a mod m with the sign of m.
func FloorMod(a, m float64) float64 {
	return a - m*math.Floor(a/m)
}

// NMod wraps a into [-m, m).
func NMod(a, m float64) float64 {
	return FloorMod(a+m, 2*m) - m
}
