// Package geo implements great-circle distance and distance-based scoring.
package geo

import (
	"math"

	"github.com/playperu/radioguessr/internal/radioguessr"
)

const (
	EarthRadiusKm = 6371.0

	MaxScore      = 5000
	MaxDistanceKm = 20000.0
)

// Distance returns the haversine distance in kilometres between a and b.
func Distance(a, b radioguessr.Coord) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	sinDLat := math.Sin(toRad(b.Lat-a.Lat) / 2)
	sinDLon := math.Sin(toRad(b.Lon-a.Lon) / 2)

	// Single product keeps Distance(a, b) == Distance(b, a) bit for bit.
	cosProduct := math.Cos(lat1) * math.Cos(lat2)

	h := sinDLat*sinDLat + sinDLon*sinDLon*cosProduct
	// Rounding can push h slightly outside [0, 1] for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Score applies ScoreWith using the default 5000 points over 20000 km.
func Score(distanceKm float64) int {
	return ScoreWith(distanceKm, MaxScore, MaxDistanceKm)
}

// ScoreWith falls off linearly from maxScore at zero distance to 0 at maxDistanceKm and beyond.
func ScoreWith(distanceKm float64, maxScore int, maxDistanceKm float64) int {
	if math.IsNaN(distanceKm) || maxDistanceKm <= 0 {
		return 0
	}
	frac := 1 - distanceKm/maxDistanceKm
	frac = math.Min(1, math.Max(0, frac))
	return int(math.Round(frac * float64(maxScore)))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
