package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FeedDocument is the upstream GeoJSON feature collection. Features are kept
// raw so one malformed record cannot fail the whole document; [Extract]
// decodes them individually.
type FeedDocument struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// Feature is a single decoded feed record.
type Feature struct {
	ID         FlexString        `json:"id"`
	Properties FeatureProperties `json:"properties"`
	Geometry   json.RawMessage   `json:"geometry"`
}

// FeatureProperties lists the storm-based warning properties the service
// reads. Pointer fields are optional upstream and stay nil when absent or null.
type FeatureProperties struct {
	PS           string      `json:"ps"` // phenomenon label, e.g. "Tornado Warning"
	WFO          *string     `json:"wfo"`
	EventID      *int        `json:"eventid"`
	Year         *int        `json:"year"`
	Phenomena    *string     `json:"phenomena"`
	Significance *string     `json:"significance"`
	Status       string      `json:"status"`
	Issue        *string     `json:"issue"`
	Expire       *string     `json:"expire"`
	PolygonBegin *string     `json:"polygon_begin"`
	PolygonEnd   *string     `json:"polygon_end"`
	ProductID    *string     `json:"product_id"`
	WindTag      *FlexString `json:"windtag"`
	HailTag      *FlexString `json:"hailtag"`
	TornadoTag   *FlexString `json:"tornadotag"`
	DamageTag    *FlexString `json:"damagetag"`
	IsPDS        bool        `json:"is_pds"`
	IsEmergency  bool        `json:"is_emergency"`
}

// FlexString decodes a JSON string or number into its string form. The feed
// emits threat tags and ids as either depending on the product.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	s := n.String()
	if strings.Contains(s, ".") && !strings.ContainsAny(s, "eE") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	*f = FlexString(s)
	return nil
}

// String returns the tag value, or "" for a nil tag.
func (f *FlexString) String() string {
	if f == nil {
		return ""
	}
	return string(*f)
}

// DecodeFeature parses one raw feature.
func DecodeFeature(raw json.RawMessage) (Feature, error) {
	var f Feature
	if err := json.Unmarshal(raw, &f); err != nil {
		return Feature{}, err
	}
	return f, nil
}

// vtecKey builds a stable identifier from the VTEC tuple when the feature
// carries no id of its own. Returns "" when any part is missing.
func (p FeatureProperties) vtecKey() string {
	if !p.hasVTEC() {
		return ""
	}
	return strings.Join([]string{
		strconv.Itoa(*p.Year), *p.WFO, *p.Phenomena, *p.Significance, strconv.Itoa(*p.EventID),
	}, "-")
}

func (p FeatureProperties) hasVTEC() bool {
	return nonEmpty(p.WFO) && p.Year != nil && nonEmpty(p.Phenomena) &&
		nonEmpty(p.Significance) && p.EventID != nil
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
