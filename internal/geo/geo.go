// Package geo ranks candidates by great-circle distance from a reference point.
package geo

import (
	"math"
	"sort"
)

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lon float64
}

// NewPoint returns nil when either coordinate is missing.
func NewPoint(lat, lon *float64) *Point {
	if lat == nil || lon == nil {
		return nil
	}
	return &Point{Lat: *lat, Lon: *lon}
}

// Valid reports whether the point lies within latitude and longitude bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Haversine returns the distance between a and b in kilometres.
func Haversine(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Round2 rounds km to two decimal places.
func Round2(km float64) float64 {
	return math.Round(km*100) / 100
}

// Ranked is an item paired with its rounded distance from the reference point.
type Ranked[T any] struct {
	Item       T
	DistanceKm float64
}

// Rank returns items ordered nearest first. Items whose location is nil are
// dropped. Equal distances keep their input order.
func Rank[T any](ref Point, items []T, loc func(T) *Point) []Ranked[T] {
	out := make([]Ranked[T], 0, len(items))
	for _, it := range items {
		p := loc(it)
		if p == nil {
			continue
		}
		out = append(out, Ranked[T]{Item: it, DistanceKm: Round2(Haversine(ref, *p))})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
