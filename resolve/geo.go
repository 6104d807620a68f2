package resolve

import (
	"math"
	"strings"
)

// unknownDistanceKm penalizes resources without coordinates so any resource
// with a known location beats them.
const unknownDistanceKm = 10000.0

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)
	a := math.Pow(math.Sin(dlat/2), 2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Pow(math.Sin(dlon/2), 2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// geoLookup maps location labels to coordinates for requesters that send a
// name instead of explicit lat/lon.
var geoLookup = []struct {
	key string
	lat float64
	lon float64
}{
	{"maranello", 44.53, 10.86},
	{"italy", 41.90, 12.50},
	{"stuttgart", 48.78, 9.18},
	{"germany", 51.16, 10.45},
	{"eu", 50.85, 4.35},
	{"london", 51.51, -0.13},
	{"new york", 40.71, -74.01},
	{"us", 39.83, -98.58},
	{"global", 0.0, 0.0},
}

// locateByName resolves a free-form location label against the lookup
// table by substring, first entry wins.
func locateByName(geo string) (lat, lon float64, ok bool) {
	if geo == "" {
		return 0, 0, false
	}
	lower := strings.ToLower(geo)
	for _, entry := range geoLookup {
		if strings.Contains(lower, entry.key) {
			return entry.lat, entry.lon, true
		}
	}
	return 0, 0, false
}
