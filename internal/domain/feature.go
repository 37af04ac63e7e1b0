package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
)

// DefaultDateProperty is the property key the filter reads when none is configured.
const DefaultDateProperty = "date"

// Source is one configured data location.
type Source struct {
	Name       string     `yaml:"name" json:"name,omitempty"`
	Location   string     `yaml:"location" json:"location"`
	Provenance Provenance `yaml:"provenance" json:"provenance,omitempty"`
}

func (s Source) String() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Location
}

// RawSource is a fetched, not yet parsed payload. It only lives during ingestion.
type RawSource struct {
	Source
	Body []byte
}

// Dataset is the authoritative working dataset of one full load.
// It is never mutated after construction; a reload replaces it wholesale.
type Dataset struct {
	ID         string
	LoadedAt   time.Time
	Collection *geojson.FeatureCollection
}

// NewDataset wraps features in a FeatureCollection stamped with a fresh id.
func NewDataset(features []*geojson.Feature) *Dataset {
	fc := geojson.NewFeatureCollection()
	if features != nil {
		fc.Features = features
	}
	return &Dataset{
		ID:         uuid.NewString(),
		LoadedAt:   clock.Now().UTC(),
		Collection: fc,
	}
}

// Features returns the dataset's features; nil-safe.
func (d *Dataset) Features() []*geojson.Feature {
	if d == nil || d.Collection == nil {
		return nil
	}
	return d.Collection.Features
}

// Len returns the number of features in the dataset.
func (d *Dataset) Len() int {
	return len(d.Features())
}

// View is what a renderer receives: either the whole dataset (Range nil) or a
// filtered subset of it. Views share feature pointers with the dataset and must
// be treated as read-only.
type View struct {
	DatasetID  string                     `json:"dataset_id"`
	Generation uint64                     `json:"generation"`
	Range      *DateRange                 `json:"range,omitempty"`
	Collection *geojson.FeatureCollection `json:"collection"`
}

// Len returns the number of features in the view.
func (v View) Len() int {
	if v.Collection == nil {
		return 0
	}
	return len(v.Collection.Features)
}
