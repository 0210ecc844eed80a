package transform

import "math"

// WGS-84 ellipsoid.
const (
	wgs84A  = 6378137.0
	wgs84F  = 1 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// Geodetic is a WGS-84 position in degrees and meters above the ellipsoid.
type Geodetic struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
	AltM   float64 `json:"alt_m"`
}

// ToGeodetic converts p with Bowring's iteration, which settles in two or
// three rounds for orbital altitudes.
func ToGeodetic(p EarthFixed) Geodetic {
	lon := math.Atan2(p.Y, p.X)
	rho := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, rho*(1-wgs84E2))
	var n float64
	for range 5 {
		sin := math.Sin(lat)
		n = wgs84A / math.Sqrt(1-wgs84E2*sin*sin)
		lat = math.Atan2(p.Z+wgs84E2*n*sin, rho)
	}

	sin, cos := math.Sincos(lat)
	n = wgs84A / math.Sqrt(1-wgs84E2*sin*sin)
	var alt float64
	if math.Abs(cos) > 1e-10 {
		alt = rho/cos - n
	} else {
		alt = math.Abs(p.Z)/math.Abs(sin) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatDeg: lat * 180 / math.Pi,
		LonDeg: lon * 180 / math.Pi,
		AltM:   alt,
	}
}

// FromGeodetic is the inverse of ToGeodetic.
func FromGeodetic(g Geodetic) EarthFixed {
	lat := g.LatDeg * math.Pi / 180
	lon := g.LonDeg * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)

	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	return EarthFixed{
		X: (n + g.AltM) * cosLat * cosLon,
		Y: (n + g.AltM) * cosLat * sinLon,
		Z: (n*(1-wgs84E2) + g.AltM) * sinLat,
	}
}
