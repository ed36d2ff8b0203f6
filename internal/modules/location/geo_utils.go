// README: Pure geographic helpers; distances, radius checks and display formatting.
package location

import (
	"fmt"
	"math"

	"giftwave/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	return haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// WithinRadius reports whether target lies within radiusKm of origin, inclusive.
func WithinRadius(origin, target types.Point, radiusKm float64) bool {
	return HaversineKm(origin, target) <= radiusKm
}

// SortByDistance performs an insertion sort (fine for small N) on any slice
// where each element exposes a distance via the accessor function. Equal
// distances keep their input order.
func SortByDistance[T any](items []T, dist func(T) float64) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && dist(items[j]) > dist(key) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}

// FormatDistance renders metres below 1 km, one decimal below 10 km and whole
// kilometres beyond.
func FormatDistance(km float64) string {
	switch {
	case km < 1:
		return fmt.Sprintf("%dm", int(km*1000))
	case km < 10:
		return fmt.Sprintf("%.1fkm", km)
	default:
		return fmt.Sprintf("%.0fkm", km)
	}
}
