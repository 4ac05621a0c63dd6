package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding names the place nearest the center of a warning's
// bounding box. If geocoder is nil the event is returned untouched; failures
// only set Location.Source so the warning still goes out.
func EnrichWithGeocoding(ctx context.Context, event WarningEvent, geocoder Geocoder, logger *slog.Logger) WarningEvent {
	if geocoder == nil {
		return event
	}
	if event.BBox == nil {
		event.Location.Source = "original"
		return event
	}

	lat, lon := event.BBox.Center()
	result, err := geocoder.ReverseGeocode(ctx, lat, lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"event_id", event.ID,
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		event.Location.Source = "failed"
		return event
	}
	if result.FormattedAddress == "" {
		event.Location.Source = "original"
		return event
	}

	event.Location = Location{
		PlaceName:        result.PlaceName,
		FormattedAddress: result.FormattedAddress,
		Confidence:       result.Confidence,
		Source:           "reverse",
	}
	return event
}
