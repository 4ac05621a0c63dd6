package domain

import "context"

// GeocodingResult is the place a provider reports for a warning's centroid.
// A zero FormattedAddress means the provider had nothing to say.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // provider relevance, 0 to 1
}

// Geocoder names the place nearest a coordinate. Warnings only ever carry
// geometry, so lookups are reverse-only.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
