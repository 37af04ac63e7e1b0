// Package domain models historical aerial-reconnaissance photo indexes as
// GeoJSON features and holds the pure parts of the pipeline: date handling,
// payload normalization and date-range filtering.
//
// # Source payloads
//
// Archives publish their indexes in one of three shapes:
//
//	{"type":"FeatureCollection","features":[...]}          canonical, used as-is
//	[{"latitude":48.8,"longitude":2.3,"date":"1944-06-06"}] flat records
//	[{"geometry":{"type":"Point","coordinates":[2.3,48.8]},"date":"..."}]
//
// Flat records get a point geometry in GeoJSON [lon, lat] order. Records with no
// usable position are dropped; a payload that is not JSON, or not one of these
// shapes, contributes nothing but does not stop other sources from loading.
//
// # Dates
//
// Dates are compared as [Epoch] values (Unix milliseconds, UTC). A bare
// YYYY-MM-DD is ambiguous, so every call site picks an [Anchor]: range starts
// use the first millisecond of the day, range ends the last, and feature dates
// use UTC midnight. The configured date property is copied from a record's
// "date" field during normalization so the filter reads a single key.
//
// # Provenance
//
// Each feature carries a "provenance" property (nara, barch, ign, wur, or unset
// for generic) resolved once during normalization. Renderers dispatch on
// [ProvenanceOf] instead of sniffing record fields.
package domain
