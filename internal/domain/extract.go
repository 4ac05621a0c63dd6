package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Defaults for extraction against the IEM services.
const (
	TornadoWarning        = "Tornado Warning"
	DefaultPadding        = 0.2
	DefaultRadarMapURL    = "https://mesonet.agron.iastate.edu/GIS/radmap.php"
	DefaultPlotURL        = "https://mesonet.agron.iastate.edu/plotting/auto/plot.py"
	DefaultRawTextURL     = "https://mesonet.agron.iastate.edu/api/1/nwstext.json"
	autoplotWarningPlotID = 208
)

// ExtractOptions controls which records are kept and where derived URLs point.
type ExtractOptions struct {
	Phenomenon  string
	Padding     float64 // degrees added to each side of the polygon extent
	RadarMapURL string
	PlotURL     string
	RawTextURL  string
}

// DefaultExtractOptions targets tornado warnings with the IEM endpoints.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Phenomenon:  TornadoWarning,
		Padding:     DefaultPadding,
		RadarMapURL: DefaultRadarMapURL,
		PlotURL:     DefaultPlotURL,
		RawTextURL:  DefaultRawTextURL,
	}
}

// Extract keeps the records whose phenomenon label equals opts.Phenomenon and
// converts them to WarningEvents in feed order. Malformed records, records of
// other phenomena, and records with no usable identifier are skipped.
func Extract(doc FeedDocument, opts ExtractOptions) []WarningEvent {
	events := make([]WarningEvent, 0, len(doc.Features))
	for _, raw := range doc.Features {
		f, err := DecodeFeature(raw)
		if err != nil {
			continue
		}
		if f.Properties.PS != opts.Phenomenon {
			continue
		}
		ev, ok := buildWarningEvent(f, opts)
		if !ok {
			continue
		}
		events = append(events, ev)
	}
	return events
}

func buildWarningEvent(f Feature, opts ExtractOptions) (WarningEvent, bool) {
	p := f.Properties

	id := strings.TrimSpace(string(f.ID))
	if id == "" {
		id = p.vtecKey()
	}
	if id == "" {
		return WarningEvent{}, false
	}

	ev := WarningEvent{
		ID:           id,
		Phenomenon:   p.PS,
		Office:       deref(p.WFO),
		EventNumber:  p.EventID,
		Year:         p.Year,
		Phenomena:    deref(p.Phenomena),
		Significance: deref(p.Significance),
		Status:       p.Status,
		Issue:        optionalTime(p.Issue),
		Expire:       optionalTime(p.Expire),
		PolygonBegin: optionalTime(p.PolygonBegin),
		PolygonEnd:   optionalTime(p.PolygonEnd),
		WindTag:      p.WindTag.String(),
		HailTag:      p.HailTag.String(),
		TornadoTag:   p.TornadoTag.String(),
		DamageTag:    p.DamageTag.String(),
		IsPDS:        p.IsPDS,
		IsEmergency:  p.IsEmergency,
		ProductID:    strings.TrimSpace(deref(p.ProductID)),
		Geometry:     f.Geometry,
		BBox:         BoundingBoxFromGeometry(f.Geometry, opts.Padding),
	}

	if ev.BBox != nil && ev.Issue != nil {
		ev.RadarURL = RadarMapURL(opts.RadarMapURL, *ev.BBox, *ev.Issue)
	}
	if p.hasVTEC() {
		ev.PlotURL = PlotImageURL(opts.PlotURL, *p.WFO, *p.Year, *p.Phenomena, *p.Significance, *p.EventID)
	}
	if ev.ProductID != "" {
		ev.TextURL = RawTextURL(opts.RawTextURL, ev.ProductID)
	}
	return ev, true
}

// BoundingBoxFromGeometry returns the extent of a Polygon or MultiPolygon
// expanded by padding degrees on every side. Any other geometry, or one with
// no coordinates, yields nil.
func BoundingBoxFromGeometry(raw []byte, padding float64) *BoundingBox {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil || g == nil {
		return nil
	}

	var polys []orb.Polygon
	switch v := g.Geometry().(type) {
	case orb.Polygon:
		polys = []orb.Polygon{v}
	case orb.MultiPolygon:
		polys = v
	default:
		return nil
	}

	// The extent covers every ring of every polygon; empty rings are skipped.
	var points orb.MultiPoint
	for _, poly := range polys {
		for _, ring := range poly {
			points = append(points, ring...)
		}
	}
	if len(points) == 0 {
		return nil
	}

	b := points.Bound().Pad(padding)
	return &BoundingBox{
		West:  b.Left(),
		South: b.Bottom(),
		East:  b.Right(),
		North: b.Top(),
	}
}

// RadarMapURL builds the radar map image link for a box at the given time.
func RadarMapURL(base string, box BoundingBox, at time.Time) string {
	bbox := fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", box.West, box.South, box.East, box.North)
	return fmt.Sprintf("%s?layers[]=uscounties&layers[]=nexrad&layers[]=sbw&ts=%s&bbox=%s",
		base, RadarTimestamp(at), bbox)
}

// PlotImageURL builds the autoplot link for a single VTEC event.
func PlotImageURL(base, wfo string, year int, phenomena, significance string, etn int) string {
	q := fmt.Sprintf("%d::network=WFO::wfo=%s::year=%d::phenomenav=%s::significancev=%s::etn=%d::opt=single::_r=t::dpi=100.png",
		autoplotWarningPlotID,
		url.PathEscape(strings.TrimSpace(wfo)),
		year,
		url.PathEscape(strings.TrimSpace(phenomena)),
		url.PathEscape(strings.TrimSpace(significance)),
		etn,
	)
	return base + "?q=" + q
}

// RawTextURL builds the product text link.
func RawTextURL(base, productID string) string {
	return base + "?" + url.Values{"product_id": {productID}}.Encode()
}

func optionalTime(s *string) *time.Time {
	if !nonEmpty(s) {
		return nil
	}
	t, err := ParseTimestamp(*s)
	if err != nil {
		return nil
	}
	return &t
}

// VTECLabel renders "OUN TO.W #45" style labels for messages and logs.
func (e WarningEvent) VTECLabel() string {
	var b strings.Builder
	b.WriteString(e.Office)
	if e.Phenomena != "" {
		b.WriteString(" " + e.Phenomena)
		if e.Significance != "" {
			b.WriteString("." + e.Significance)
		}
	}
	if e.EventNumber != nil {
		b.WriteString(" #" + strconv.Itoa(*e.EventNumber))
	}
	return strings.TrimSpace(b.String())
}
