// Package geo provides proximity search over carpark locations.
package geo

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/parkpulse/parkpulse/internal/model"
)

const earthRadiusM = 6371000.0

// DistanceM returns the great-circle distance in meters between two
// WGS84 points.
func DistanceM(lat1, lon1, lat2, lon2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundsAround returns a bounding box covering a radius around a point.
// The box over-approximates the circle; callers filter by true distance
// afterwards.
func BoundsAround(lat, lon, radiusM float64) *geom.Bounds {
	dLat := radiusM / earthRadiusM * 180 / math.Pi
	dLon := dLat / math.Cos(lat*math.Pi/180)
	return geom.NewBounds(geom.XY).Set(lon-dLon, lat-dLat, lon+dLon, lat+dLat)
}

// CarparkDistance pairs a carpark with its distance from a query point.
type CarparkDistance struct {
	Carpark   model.Carpark `json:"carpark"`
	DistanceM float64       `json:"distance_m"`
}

// Nearest filters carparks to those within radiusM of the query point and
// returns them ordered nearest first, at most limit entries. Carparks
// without a resolved location are skipped.
func Nearest(carparks []model.Carpark, lat, lon, radiusM float64, limit int) []CarparkDistance {
	var out []CarparkDistance
	for _, c := range carparks {
		if !c.HasLocation() {
			continue
		}
		d := DistanceM(lat, lon, c.Latitude, c.Longitude)
		if d > radiusM {
			continue
		}
		out = append(out, CarparkDistance{Carpark: c, DistanceM: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
