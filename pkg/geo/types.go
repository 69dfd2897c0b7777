// Package geo provides common geographic types and calculations.
// It keeps coordinate rectangles and their derived measurements in one place
// so the query builder, place search and CLI agree on them.
package geo

import (
	"fmt"
	"math"
	"strconv"
)

// EarthRadius is the mean radius of Earth according to WGS-84 in meters
const EarthRadius = 6371000.0

const (
	// kmPerDegreeLat is the approximate length of one degree of latitude
	kmPerDegreeLat = 110.574
	// kmPerDegreeLonEquator is the length of one degree of longitude at the equator
	kmPerDegreeLonEquator = 111.320
)

// Location represents a geographic coordinate (latitude and longitude)
// with standardized JSON field names.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// BoundingBox represents a geographic bounding box with southwest and northeast corners
type BoundingBox struct {
	MinLat float64 `json:"minLat"` // Southern edge
	MinLon float64 `json:"minLon"` // Western edge
	MaxLat float64 `json:"maxLat"` // Northern edge
	MaxLon float64 `json:"maxLon"` // Eastern edge
}

// NewBoundingBox creates a new empty bounding box
func NewBoundingBox() *BoundingBox {
	return &BoundingBox{
		MinLat: 90.0, // inverted so the first point sets every edge
		MinLon: 180.0,
		MaxLat: -90.0,
		MaxLon: -180.0,
	}
}

// ExtendWithPoint extends the bounding box to include the specified point
func (bb *BoundingBox) ExtendWithPoint(lat, lon float64) {
	if lat < bb.MinLat {
		bb.MinLat = lat
	}
	if lat > bb.MaxLat {
		bb.MaxLat = lat
	}
	if lon < bb.MinLon {
		bb.MinLon = lon
	}
	if lon > bb.MaxLon {
		bb.MaxLon = lon
	}
}

// Valid reports whether the box has finite edges with south < north and west < east.
func (bb BoundingBox) Valid() bool {
	for _, v := range []float64{bb.MinLat, bb.MinLon, bb.MaxLat, bb.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return bb.MinLat < bb.MaxLat && bb.MinLon < bb.MaxLon
}

// String returns the box in Overpass order (south,west,north,east) using the
// shortest decimal form of each edge.
func (bb BoundingBox) String() string {
	return fmt.Sprintf("%s,%s,%s,%s",
		formatCoord(bb.MinLat), formatCoord(bb.MinLon),
		formatCoord(bb.MaxLat), formatCoord(bb.MaxLon))
}

// Center returns the midpoint of the box
func (bb BoundingBox) Center() Location {
	return Location{
		Latitude:  (bb.MinLat + bb.MaxLat) / 2,
		Longitude: (bb.MinLon + bb.MaxLon) / 2,
	}
}

// AreaKm2 estimates the area of the box in square kilometres using a flat
// approximation that is adequate for the small extents users query.
func (bb BoundingBox) AreaKm2() float64 {
	latKm := math.Abs(bb.MaxLat-bb.MinLat) * kmPerDegreeLat
	midLat := (bb.MinLat + bb.MaxLat) / 2
	lonKm := math.Abs(bb.MaxLon-bb.MinLon) * kmPerDegreeLonEquator * math.Cos(midLat*math.Pi/180)
	return latKm * lonKm
}

// FormatArea renders an area in km² the way the query UI shows it:
// square metres below 1 km², two decimals below 100 km², whole km² below
// 10 000 km² and thousands of km² above that.
func FormatArea(km2 float64) string {
	switch {
	case km2 < 1:
		return groupThousands(int64(math.Round(km2*1e6))) + " m²"
	case km2 < 100:
		return strconv.FormatFloat(km2, 'f', 2, 64) + " km²"
	case km2 < 10000:
		return strconv.FormatFloat(math.Round(km2), 'f', 0, 64) + " km²"
	default:
		return strconv.FormatFloat(km2/1000, 'f', 1, 64) + "k km²"
	}
}

// groupThousands formats n with comma separators (1234567 -> "1,234,567")
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if n < 0 {
		neg = true
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// HaversineDistance calculates the great-circle distance between two points
// on the Earth's surface given their latitude and longitude in degrees.
// The result is returned in meters.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	dlat := lat2Rad - lat1Rad
	dlon := lon2Rad - lon1Rad
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return EarthRadius * c
}
