// Package geo holds the distance math shared by the nearby read path and the
// duplicate-merge resolver.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// Mean Earth radius in meters. Spherical haversine is accurate to well under
// a meter at the sub-kilometer alert ranges used here.
const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two WGS-84
// points in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// BoundingBox is an approximate lat/lon rectangle used to bound the scan
// cost of geo queries before the exact haversine refine.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// BoundingBoxAround returns the box covering radiusKm around the point,
// using the 111 km/degree approximation.
func BoundingBoxAround(lat, lon, radiusKm float64) BoundingBox {
	latDelta := radiusKm / 111.0
	lonDelta := radiusKm / (111.0 * math.Cos(lat*math.Pi/180))

	return BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLon: lon - lonDelta,
		MaxLon: lon + lonDelta,
	}
}

// Merge resolution is serialized per coarse S2 cell so that two
// near-simultaneous submissions for the same new sighting cannot both miss
// each other's uncommitted report. Level 13 cells are ~1.2 km across, which
// covers the 200 m default duplicate radius with margin.
const mergeLockLevel = 13

// MergeLockCell returns the serialization bucket for a submission at the
// given point.
func MergeLockCell(lat, lon float64) s2.CellID {
	return s2.CellIDFromLatLng(s2.LatLngFromDegrees(lat, lon)).Parent(mergeLockLevel)
}
