// Package geojson holds the minimal GeoJSON subset used for case
// locations: a Feature wrapping a Point geometry.
package geojson

import (
	"fmt"

	"github.com/epiwatch/casestore/internal/domain"
)

// Geometry and feature type markers, fixed by the GeoJSON spec.
const (
	PointType   = "Point"
	FeatureType = "Feature"
)

// Point is a GeoJSON point. Coordinates are [latitude, longitude].
type Point struct {
	Type        string    `json:"type" bson:"type"`
	Coordinates []float64 `json:"coordinates" bson:"coordinates"`
}

// NewPoint creates a point from latitude and longitude.
func NewPoint(lat, lon float64) Point {
	return Point{Type: PointType, Coordinates: []float64{lat, lon}}
}

// Validate checks the point's shape and coordinate ranges.
func (p Point) Validate() error {
	if p.Type != PointType {
		return fmt.Errorf("geometry type must be %q, got %q: %w", PointType, p.Type, domain.ErrValidation)
	}
	if len(p.Coordinates) != 2 {
		return fmt.Errorf("point needs exactly 2 coordinates, got %d: %w", len(p.Coordinates), domain.ErrValidation)
	}
	lat, lon := p.Coordinates[0], p.Coordinates[1]
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]: %w", lat, domain.ErrValidation)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]: %w", lon, domain.ErrValidation)
	}
	return nil
}

// Feature is a GeoJSON feature with a point geometry. Properties must
// carry a three-letter uppercase country code under "country".
type Feature struct {
	Type       string         `json:"type" bson:"type"`
	Geometry   Point          `json:"geometry" bson:"geometry"`
	Properties map[string]any `json:"properties" bson:"properties"`
}

// Country returns the country code from the feature properties.
func (f Feature) Country() string {
	c, _ := f.Properties["country"].(string)
	return c
}

// Validate checks the feature type, nested geometry and country code.
func (f Feature) Validate() error {
	if f.Type != FeatureType {
		return fmt.Errorf("feature type must be %q, got %q: %w", FeatureType, f.Type, domain.ErrValidation)
	}
	if err := f.Geometry.Validate(); err != nil {
		return err
	}
	if err := validCountry(f.Country()); err != nil {
		return err
	}
	return nil
}

func validCountry(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("country %q must be a 3-letter code: %w", code, domain.ErrValidation)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("country %q must be uppercase letters: %w", code, domain.ErrValidation)
		}
	}
	return nil
}
