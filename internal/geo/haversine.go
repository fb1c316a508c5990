// Package geo implements the spherical great-circle distance used by radius searches.
package geo

import (
	"fmt"
	"math"
)

const EarthRadiusKm = 6371.0

// DistanceKm is the spherical law-of-cosines form of the great-circle distance.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	cos := math.Cos(phi1)*math.Cos(phi2)*math.Cos(dLon) + math.Sin(phi1)*math.Sin(phi2)
	return EarthRadiusKm * math.Acos(clamp(cos))
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// DistanceSQL renders the same formula as a PostgreSQL expression. latCol and
// lonCol are column references; latParam and lonParam are placeholder indexes
// for the origin. The acos argument is clamped because rounding can push it
// just past 1 for identical points.
func DistanceSQL(latCol, lonCol string, latParam, lonParam int) string {
	return fmt.Sprintf(
		`(%[5]g * acos(LEAST(1.0, GREATEST(-1.0, `+
			`cos(radians($%[3]d)) * cos(radians(%[1]s)) * cos(radians(%[2]s) - radians($%[4]d)) + `+
			`sin(radians($%[3]d)) * sin(radians(%[1]s))))))`,
		latCol, lonCol, latParam, lonParam, EarthRadiusKm)
}

// ValidCoordinates rejects latitudes outside ±90 and longitudes outside ±180.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
