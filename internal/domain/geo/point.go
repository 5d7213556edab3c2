package geo

import "errors"

// ErrInvalidCoordinates is returned for points outside the valid lat/lng range
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Point is a position in decimal degrees
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Validate checks latitude and longitude ranges
func (p Point) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}
