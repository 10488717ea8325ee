// Package geo provides device location, geocoding and the formatting of
// structured places into single line delivery addresses.
package geo

import (
	"context"
	"fmt"
	"strings"

	"github.com/atinyakov/GophFood/internal/models"
)

// Viewport deltas used when the map is recentred on a coordinate.
const (
	LatitudeDelta  = 0.015
	LongitudeDelta = 0.0121
)

// Place is a structured reverse geocoding result. Any field may be empty.
type Place struct {
	StreetNumber string `json:"streetNumber,omitempty"`
	Street       string `json:"street,omitempty"`
	District     string `json:"district,omitempty"`
	Subregion    string `json:"subregion,omitempty"`
	City         string `json:"city,omitempty"`
	Region       string `json:"region,omitempty"`
	Country      string `json:"country,omitempty"`
	PostalCode   string `json:"postalCode,omitempty"`
}

// Candidate is a forward geocoding hit offered to the user.
type Candidate struct {
	ID          int                `json:"id"`
	Title       string             `json:"title"`
	Subtitle    string             `json:"subtitle"`
	Coordinates models.Coordinates `json:"coordinates"`
}

// Viewport is the visible map area.
type Viewport struct {
	Center   models.Coordinates `json:"center"`
	LatDelta float64            `json:"latitudeDelta"`
	LngDelta float64            `json:"longitudeDelta"`
}

// ViewportAt returns the default viewport centred on c.
func ViewportAt(c models.Coordinates) Viewport {
	return Viewport{Center: c, LatDelta: LatitudeDelta, LngDelta: LongitudeDelta}
}

// Region is the service area. Device fixes outside of it are replaced by
// Fallback.
type Region struct {
	MinLat   float64
	MaxLat   float64
	MinLng   float64
	MaxLng   float64
	Fallback models.Coordinates
}

// DefaultRegion covers Vietnam and falls back to central Ho Chi Minh City.
func DefaultRegion() Region {
	return Region{
		MinLat:   8.0,
		MaxLat:   24.0,
		MinLng:   102.0,
		MaxLng:   110.0,
		Fallback: models.Coordinates{Lat: 10.7769, Lng: 106.7009},
	}
}

// Contains reports whether c lies inside the region, bounds included.
func (r Region) Contains(c models.Coordinates) bool {
	return c.Lat >= r.MinLat && c.Lat <= r.MaxLat &&
		c.Lng >= r.MinLng && c.Lng <= r.MaxLng
}

// Clamp returns c when it lies inside the region and Fallback otherwise.
func (r Region) Clamp(c models.Coordinates) models.Coordinates {
	if r.Contains(c) {
		return c
	}
	return r.Fallback
}

// FormatCoordinates prints c with six decimals.
func FormatCoordinates(c models.Coordinates) string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lng)
}

// FormatPlace joins the available fields of p into one line. The city is
// skipped when it repeats the region. The result is empty when p carries no
// usable field.
func FormatPlace(p Place) string {
	var parts []string

	if street := strings.TrimSpace(p.StreetNumber + " " + p.Street); street != "" {
		parts = append(parts, street)
	}

	switch {
	case p.District != "":
		parts = append(parts, p.District)
	case p.Subregion != "":
		parts = append(parts, p.Subregion)
	}
	if p.City != "" && p.City != p.Region {
		parts = append(parts, p.City)
	}
	if p.Region != "" {
		parts = append(parts, p.Region)
	}
	return strings.TrimSpace(strings.Join(parts, ", "))
}

// Describe reverse geocodes c into an address line, falling back to the
// printed coordinates when the geocoder fails or resolves nothing.
func Describe(ctx context.Context, g Geocoder, c models.Coordinates) string {
	if g == nil {
		return FormatCoordinates(c)
	}
	places, err := g.Reverse(ctx, c)
	if err != nil || len(places) == 0 {
		return FormatCoordinates(c)
	}
	if line := FormatPlace(places[0]); line != "" {
		return line
	}
	return FormatCoordinates(c)
}
