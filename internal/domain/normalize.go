package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrInvalidJSON marks a source whose payload is not valid JSON.
	ErrInvalidJSON = errors.New("invalid json")
	// ErrUnsupportedShape marks a source that is neither a FeatureCollection nor a record array.
	ErrUnsupportedShape = errors.New("unsupported payload shape")

	errNotObject     = errors.New("record is not an object")
	errNotFeature    = errors.New("collection member is not a feature")
	errNoPosition    = errors.New("record has no latitude/longitude")
	errNoCoordinates = errors.New("record geometry has no coordinates")
)

const (
	recordDateField     = "date"
	recordGeometryField = "geometry"
	naraIDField         = "naId"
)

// NormalizeReport counts record-level outcomes for one source.
type NormalizeReport struct {
	Records  int `json:"records"`
	Features int `json:"features"`
	Dropped  int `json:"dropped"`
}

// Normalizer converts raw source payloads into canonical GeoJSON features that
// carry the configured date property and a resolved provenance tag.
type Normalizer struct {
	dateProperty string
	logger       *slog.Logger
}

// NewNormalizer creates a Normalizer writing dates under dateProperty.
func NewNormalizer(dateProperty string, logger *slog.Logger) *Normalizer {
	if dateProperty == "" {
		dateProperty = DefaultDateProperty
	}
	return &Normalizer{dateProperty: dateProperty, logger: logger}
}

// DateProperty returns the configured date-property key.
func (n *Normalizer) DateProperty() string {
	return n.dateProperty
}

// Normalize parses one payload. Records lacking position data and collection
// members that are not valid features are dropped and counted in the report; a payload that cannot be used at all returns an error
// wrapping ErrInvalidJSON or ErrUnsupportedShape.
func (n *Normalizer) Normalize(raw RawSource) ([]*geojson.Feature, NormalizeReport, error) {
	var report NormalizeReport

	body := bytes.TrimSpace(raw.Body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, report, fmt.Errorf("normalize %s: %w", raw.Source, ErrInvalidJSON)
	}

	switch body[0] {
	case '{':
		return n.normalizeCollection(raw, body)
	case '[':
		return n.normalizeRecords(raw, body)
	default:
		return nil, report, fmt.Errorf("normalize %s: top-level %s: %w", raw.Source, jsonKind(body), ErrUnsupportedShape)
	}
}

func (n *Normalizer) normalizeCollection(raw RawSource, body []byte) ([]*geojson.Feature, NormalizeReport, error) {
	var report NormalizeReport

	var head struct {
		Type     string          `json:"type"`
		Features json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, report, fmt.Errorf("normalize %s: %w", raw.Source, ErrInvalidJSON)
	}
	if head.Type != "FeatureCollection" || jsonKind(head.Features) != "array" {
		return nil, report, fmt.Errorf("normalize %s: object of type %q: %w", raw.Source, head.Type, ErrUnsupportedShape)
	}

	var members []json.RawMessage
	if err := json.Unmarshal(head.Features, &members); err != nil {
		return nil, report, fmt.Errorf("normalize %s: %w", raw.Source, ErrInvalidJSON)
	}

	features := make([]*geojson.Feature, 0, len(members))
	for i, member := range members {
		report.Records++
		f, err := geojson.UnmarshalFeature(member)
		if err == nil && f.Type != "Feature" {
			err = errNotFeature
		}
		if err != nil {
			report.Dropped++
			n.logger.Warn("dropping feature",
				"source", raw.Source.String(),
				"index", i,
				"error", err,
			)
			continue
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		foldForeignMembers(f.Properties, member)
		if raw.Provenance != ProvenanceGeneric && ProvenanceOf(f) == ProvenanceGeneric {
			f.Properties[ProvenanceProperty] = raw.Provenance.String()
		}
		features = append(features, f)
	}
	report.Features = len(features)
	return features, report, nil
}

// foldForeignMembers copies top-level feature members that geojson.Feature has
// no field for into props. Existing properties win.
func foldForeignMembers(props geojson.Properties, member json.RawMessage) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(member, &fields); err != nil {
		return
	}
	for k, v := range fields {
		switch k {
		case "type", "id", "bbox", "geometry", "properties":
			continue
		}
		if _, ok := props[k]; ok {
			continue
		}
		var value any
		if err := json.Unmarshal(v, &value); err != nil {
			continue
		}
		props[k] = value
	}
}

func (n *Normalizer) normalizeRecords(raw RawSource, body []byte) ([]*geojson.Feature, NormalizeReport, error) {
	var report NormalizeReport

	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, report, fmt.Errorf("normalize %s: %w", raw.Source, ErrInvalidJSON)
	}

	features := make([]*geojson.Feature, 0, len(records))
	for i, rec := range records {
		report.Records++
		f, err := n.normalizeRecord(rec, raw.Provenance)
		if err != nil {
			report.Dropped++
			n.logger.Warn("dropping record",
				"source", raw.Source.String(),
				"index", i,
				"error", err,
			)
			continue
		}
		features = append(features, f)
	}
	report.Features = len(features)
	return features, report, nil
}

func (n *Normalizer) normalizeRecord(rec json.RawMessage, src Provenance) (*geojson.Feature, error) {
	var fields map[string]any
	if err := json.Unmarshal(rec, &fields); err != nil || fields == nil {
		return nil, errNotObject
	}

	var f *geojson.Feature
	if geom, ok := fields[recordGeometryField]; ok && geom != nil {
		g, err := decodeGeometry(geom)
		if err != nil {
			return nil, err
		}
		f = geojson.NewFeature(g)
		f.Properties = recordProperties(fields)
		if date, ok := fields[recordDateField]; ok && present(date) {
			f.Properties[n.dateProperty] = date
		}
	} else {
		lat, okLat := coordinate(fields["latitude"])
		lon, okLon := coordinate(fields["longitude"])
		if !okLat || !okLon {
			return nil, errNoPosition
		}
		f = geojson.NewFeature(orb.Point{lon, lat})
		f.Properties = geojson.Properties(fields)
		delete(f.Properties, recordGeometryField)
		if n.dateProperty != recordDateField && present(fields[recordDateField]) && !present(fields[n.dateProperty]) {
			f.Properties[n.dateProperty] = fields[recordDateField]
		}
	}

	resolveProvenance(f.Properties, src)
	return f, nil
}

// recordProperties moves every field except the geometry into a property map.
// A nested "properties" object is merged; top-level fields take precedence.
func recordProperties(fields map[string]any) geojson.Properties {
	props := make(geojson.Properties, len(fields))
	if nested, ok := fields["properties"].(map[string]any); ok {
		for k, v := range nested {
			props[k] = v
		}
	}
	for k, v := range fields {
		switch k {
		case recordGeometryField:
			continue
		case "properties":
			if _, ok := v.(map[string]any); ok {
				continue
			}
		case "type":
			if v == "Feature" {
				continue
			}
		}
		props[k] = v
	}
	return props
}

func decodeGeometry(v any) (orb.Geometry, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errNoCoordinates
	}
	coords, ok := m["coordinates"].([]any)
	if !ok || len(coords) == 0 {
		return nil, errNoCoordinates
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode geometry: %w", err)
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	if g.Geometry() == nil {
		return nil, errNoCoordinates
	}
	return g.Geometry(), nil
}

// resolveProvenance stores the provenance tag once so renderers never sniff fields.
// Order: an explicit valid tag, then the source default, then a NARA id field.
func resolveProvenance(props geojson.Properties, src Provenance) {
	if s, ok := props[ProvenanceProperty].(string); ok {
		if p, err := ParseProvenance(s); err == nil && p != ProvenanceGeneric {
			props[ProvenanceProperty] = p.String()
			return
		}
	}

	p := src
	if p == ProvenanceGeneric && present(props[naraIDField]) {
		p = ProvenanceNARA
	}
	if p == ProvenanceGeneric {
		delete(props, ProvenanceProperty)
		return
	}
	props[ProvenanceProperty] = p.String()
}

func coordinate(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// present mirrors truthiness for the scalar values a record can carry.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	default:
		return true
	}
}

func jsonKind(data []byte) string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "empty"
	}
	switch data[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 'n':
		return "null"
	case 't', 'f':
		return "boolean"
	default:
		return "number"
	}
}
