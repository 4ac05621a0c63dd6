// Package domain models National Weather Service (NWS) storm-based warnings and
// Storm Prediction Center (SPC) mesoscale discussions as they arrive from the
// public feeds, and the notifications derived from them.
//
// # Data Sources
//
// Warnings come from the Iowa Environmental Mesonet (IEM) storm-based warning
// GeoJSON service. It answers two kinds of query:
//
//	?ts=2024-05-26T19:00Z                          every product valid at that instant
//	?sts=2024-05-26T00:00Z&ets=2024-05-27T00:00Z   every product whose validity intersects the window
//
// Each feature carries the polygon of one warning and a flat property bag. The
// properties this package reads are described on [FeatureProperties]; every one
// of them is optional and absence is handled per field.
//
// Discussions come from the SPC mesoscale discussion RSS feed. Each item's
// description is HTML wrapping a graphic (<img src="...mcd0845.png">) and the
// forecaster text.
//
// # VTEC Conventions
//
// A warning is identified by its Valid Time Event Code (VTEC) tuple:
//
//	office (wfo)         3-4 letter Weather Forecast Office, e.g. "OUN"
//	year                 4-digit year of issuance
//	phenomena            2-letter hazard code, "TO" for tornado
//	significance         1-letter code, "W" for warning
//	event number (etn)   sequential per office, phenomena, significance and year
//
// The tuple is what the IEM autoplot service needs to render the warning plot;
// without all five the plot URL cannot be built and is omitted.
//
// # Derived URLs
//
// Three links are derived per warning, each only when its inputs are present:
//
//	radar map   padded bounding box of the polygon + issue time as YYYYMMDDHHMM (UTC)
//	plot image  the five VTEC fields
//	raw text    the product identifier
//
// # Timestamps
//
// Feed and user supplied timestamps go through [NormalizeTimestamp], which
// produces "2006-01-02T15:04:05Z" in UTC. The radar map service is the one
// consumer that wants a different shape, see [RadarTimestamp].
package domain
