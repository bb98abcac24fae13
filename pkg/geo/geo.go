// Package geo implements the great-circle math behind station search.
package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used for all distances
	EarthRadiusKm = 6371.0

	// minCosLat keeps the longitude delta finite near the poles
	minCosLat = 1e-6
)

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Haversine returns the great-circle distance in kilometres between two points
// given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := radians(lat1)
	lat2Rad := radians(lat2)
	dLat := lat2Rad - lat1Rad
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)

	// rounding can push a a hair above 1 for antipodal points
	return EarthRadiusKm * 2 * math.Asin(math.Min(1, math.Sqrt(a)))
}

// RoundKm rounds a distance to metre precision (3 decimals)
func RoundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}

// LonRange is an inclusive longitude interval with Min <= Max
type LonRange struct {
	Min float64
	Max float64
}

// BoundingBox is a latitude/longitude rectangle containing every point within
// a radius of its centre. MinLon/MaxLon are unwrapped and may fall outside
// [-180, 180]; use LonRanges for queries.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// NewBoundingBox computes the prefilter box for radiusKm around (lat, lon).
//
// The longitude delta is radius/(R*cos(lat)) widened to the exact spherical
// bound asin(sin(d)/cos(lat)) where that is larger, so the box always contains
// the whole disk. A disk reaching a pole spans every longitude.
func NewBoundingBox(lat, lon, radiusKm float64) BoundingBox {
	angular := radiusKm / EarthRadiusKm
	deltaLat := degrees(angular)
	cosLat := math.Max(minCosLat, math.Cos(radians(lat)))
	deltaLon := degrees(angular / cosLat)

	if s := math.Sin(angular) / cosLat; angular >= math.Pi/2 || s >= 1 {
		deltaLon = 180
	} else {
		deltaLon = math.Max(deltaLon, degrees(math.Asin(s)))
	}

	return BoundingBox{
		MinLat: lat - deltaLat,
		MaxLat: lat + deltaLat,
		MinLon: lon - deltaLon,
		MaxLon: lon + deltaLon,
	}
}

// NormalizeLon wraps a longitude into [-180, 180)
func NormalizeLon(lon float64) float64 {
	return math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
}

// LonRanges returns the box's longitude span as one or two ranges inside
// [-180, 180], splitting it where it crosses the antimeridian.
func (b BoundingBox) LonRanges() []LonRange {
	if b.MaxLon-b.MinLon >= 360 {
		return []LonRange{{Min: -180, Max: 180}}
	}

	minLon := NormalizeLon(b.MinLon)
	maxLon := NormalizeLon(b.MaxLon)
	if minLon <= maxLon {
		return []LonRange{{Min: minLon, Max: maxLon}}
	}
	return []LonRange{
		{Min: minLon, Max: 180},
		{Min: -180, Max: maxLon},
	}
}

// Contains reports whether a point lies inside the box, honouring the
// antimeridian split.
func (b BoundingBox) Contains(lat, lon float64) bool {
	if lat < b.MinLat || lat > b.MaxLat {
		return false
	}
	for _, r := range b.LonRanges() {
		if lon >= r.Min && lon <= r.Max {
			return true
		}
	}
	return false
}
