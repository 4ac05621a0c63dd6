package domain

import (
	"encoding/json"
	"time"
)

// BoundingBox is a lon/lat extent in WGS-84 degrees.
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Center returns the midpoint of the box as (lat, lon).
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.South + b.North) / 2, (b.West + b.East) / 2
}

// Location holds reverse-geocoding enrichment for a warning's polygon center.
type Location struct {
	PlaceName        string  `json:"place_name,omitempty"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	Source           string  `json:"source,omitempty"` // "reverse", "original", "failed"
}

// WarningEvent is one detected warning, rebuilt from the feed on every poll.
// Derived URLs are empty when their inputs are missing.
type WarningEvent struct {
	ID           string     `json:"id"`
	Phenomenon   string     `json:"phenomenon"`
	Office       string     `json:"office,omitempty"`
	EventNumber  *int       `json:"event_number,omitempty"`
	Year         *int       `json:"year,omitempty"`
	Phenomena    string     `json:"phenomena,omitempty"`
	Significance string     `json:"significance,omitempty"`
	Status       string     `json:"status,omitempty"`
	Issue        *time.Time `json:"issue,omitempty"`
	Expire       *time.Time `json:"expire,omitempty"`
	PolygonBegin *time.Time `json:"polygon_begin,omitempty"`
	PolygonEnd   *time.Time `json:"polygon_end,omitempty"`
	WindTag      string     `json:"wind_tag,omitempty"`
	HailTag      string     `json:"hail_tag,omitempty"`
	TornadoTag   string     `json:"tornado_tag,omitempty"`
	DamageTag    string     `json:"damage_tag,omitempty"`
	IsPDS        bool       `json:"is_pds"`
	IsEmergency  bool       `json:"is_emergency"`
	ProductID    string     `json:"product_id,omitempty"`

	Geometry json.RawMessage `json:"geometry,omitempty"`
	BBox     *BoundingBox    `json:"bbox,omitempty"`

	RadarURL string `json:"radar_url,omitempty"`
	PlotURL  string `json:"plot_url,omitempty"`
	TextURL  string `json:"text_url,omitempty"`

	Location Location `json:"location,omitzero"`
}

// DiscussionItem is one mesoscale discussion parsed from the RSS feed.
type DiscussionItem struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Link      string     `json:"link,omitempty"`
	Body      string     `json:"body"`
	ImageURL  string     `json:"image_url,omitempty"`
	Published *time.Time `json:"published,omitempty"`
}

// Event classes, one per outbound webhook.
const (
	ClassWarnings    = "warnings"
	ClassDiscussions = "discussions"
)

// Notification is a delivered message, as published to the event stream.
// Exactly one of Warning or Discussion is set, matching Class.
type Notification struct {
	ID         string          `json:"id"`
	Class      string          `json:"class"`
	Content    string          `json:"content"`
	Simulated  bool            `json:"simulated,omitempty"`
	DetectedAt time.Time       `json:"detected_at"`
	Warning    *WarningEvent   `json:"warning,omitempty"`
	Discussion *DiscussionItem `json:"discussion,omitempty"`
}
