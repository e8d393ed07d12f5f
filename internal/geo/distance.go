// Package geo converts raw GPS fixes into distances and step estimates.
package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	// EarthRadiusMeters is the mean radius used by the spherical-earth approximation.
	EarthRadiusMeters = 6371000.0
	// AverageStepLengthMeters is the stride used to turn distance into steps.
	AverageStepLengthMeters = 0.762
)

// ErrInvalidCoordinate is returned for NaN, infinite or out-of-range coordinates.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Validate rejects coordinates the distance functions cannot handle.
func Validate(p Point) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return fmt.Errorf("%w: not a finite number", ErrInvalidCoordinate)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90,90]", ErrInvalidCoordinate, p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180,180]", ErrInvalidCoordinate, p.Lng)
	}
	return nil
}

// DistanceMeters returns the great-circle distance between a and b using the haversine formula.
func DistanceMeters(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// StepsFromDistance estimates the number of steps needed to cover meters.
func StepsFromDistance(meters float64) int {
	if meters <= 0 || math.IsNaN(meters) {
		return 0
	}
	return int(math.Round(meters / AverageStepLengthMeters))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
