// Package transform converts propagated satellite positions to a ground
// point: inertial (TEME, km) to Earth-fixed (ECEF, m) by a GMST-only
// rotation, then ECEF to WGS-84 geodetic latitude and longitude.
//
// Polar motion and the equation of the equinoxes are ignored. The error is
// well under a kilometer, far below one pixel of the globe view.
package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00 TT).
const j2000 = 2451545.0

// Inertial is a position in the TEME frame as produced by SGP4, in km.
type Inertial struct {
	X, Y, Z float64
}

// EarthFixed is a position in the ECEF frame, in meters.
type EarthFixed struct {
	X, Y, Z float64
}

// JulianDate converts t to a Julian Date.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	frac := (float64(t.Hour()) + float64(t.Minute())/60 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600) / 24

	if m <= 2 {
		y--
		m += 12
	}
	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5 + frac
}

// GMST returns Greenwich Mean Sidereal Time in radians, [0, 2π), using the
// IAU-82 model.
func GMST(t time.Time) float64 {
	tu := (JulianDate(t) - j2000) / 36525

	sec := 67310.54841 +
		(876600*3600+8640184.812866)*tu +
		0.093104*tu*tu -
		6.2e-6*tu*tu*tu

	sec = math.Mod(sec, 86400)
	if sec < 0 {
		sec += 86400
	}
	return sec / 86400 * 2 * math.Pi
}

// ToEarthFixed rotates p about the polar axis by the sidereal angle at t.
func ToEarthFixed(p Inertial, t time.Time) EarthFixed {
	return ToEarthFixedGMST(p, GMST(t))
}

// ToEarthFixedGMST is ToEarthFixed with a precomputed GMST angle.
func ToEarthFixedGMST(p Inertial, gmst float64) EarthFixed {
	s, c := math.Sincos(gmst)
	return EarthFixed{
		X: (p.X*c + p.Y*s) * 1000,
		Y: (-p.X*s + p.Y*c) * 1000,
		Z: p.Z * 1000,
	}
}

// Plausible reports whether p is a finite position between 6200 km and
// 50000 km from the Earth's center. SGP4 returns garbage rather than an error
// for decayed or badly formed element sets.
func Plausible(p EarthFixed) bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	r := math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
	return r >= 6200e3 && r <= 50000e3
}
