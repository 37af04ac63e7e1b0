package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/recon-map/internal/domain"
)

const (
	// PopupProperty carries rendered popup markup on display features.
	PopupProperty = "popup"
	// ClusterRadius is the marker clustering radius in pixels.
	ClusterRadius = 70
	// BoundsPadding extends fitted bounds on every side by this fraction.
	BoundsPadding = 0.1
)

// MapView is a view prepared for a map display.
type MapView struct {
	DatasetID     string                     `json:"dataset_id"`
	Generation    uint64                     `json:"generation"`
	Start         string                     `json:"start,omitempty"`
	End           string                     `json:"end,omitempty"`
	Count         int                        `json:"count"`
	Bounds        *[4]float64                `json:"bounds,omitempty"` // minLon, minLat, maxLon, maxLat
	ClusterRadius int                        `json:"cluster_radius"`
	Features      *geojson.FeatureCollection `json:"features"`
}

// Build annotates every feature with its popup and computes padded bounds.
// Dataset features are shared, so annotations go on shallow copies.
func Build(view domain.View, popups *Popups, dateProperty string) MapView {
	mv := MapView{
		DatasetID:     view.DatasetID,
		Generation:    view.Generation,
		ClusterRadius: ClusterRadius,
		Features:      geojson.NewFeatureCollection(),
	}
	if view.Range != nil {
		mv.Start = domain.FormatDate(view.Range.Start)
		mv.End = domain.FormatDate(view.Range.End)
	}
	if view.Collection == nil {
		return mv
	}

	for _, f := range view.Collection.Features {
		if f == nil {
			continue
		}
		c := *f
		c.Properties = f.Properties.Clone()
		if c.Properties == nil {
			c.Properties = geojson.Properties{}
		}
		c.Properties[PopupProperty] = popups.Content(f, dateProperty)
		mv.Features.Append(&c)
	}
	mv.Count = len(mv.Features.Features)

	if b, ok := Bounds(view.Collection); ok {
		mv.Bounds = &[4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}
	return mv
}

// Bounds returns the bound of every geometry in fc, padded by BoundsPadding.
// It reports false when fc has no geometry.
func Bounds(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	if fc == nil {
		return orb.Bound{}, false
	}
	var (
		bound orb.Bound
		found bool
	)
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		b := f.Geometry.Bound()
		if !found {
			bound, found = b, true
			continue
		}
		bound = bound.Union(b)
	}
	if !found {
		return orb.Bound{}, false
	}
	return Pad(bound, BoundsPadding), true
}

// Pad grows b on every side by ratio times its width and height.
func Pad(b orb.Bound, ratio float64) orb.Bound {
	dx := (b.Max.X() - b.Min.X()) * ratio
	dy := (b.Max.Y() - b.Min.Y()) * ratio
	return orb.Bound{
		Min: orb.Point{b.Min.X() - dx, b.Min.Y() - dy},
		Max: orb.Point{b.Max.X() + dx, b.Max.Y() + dy},
	}
}
