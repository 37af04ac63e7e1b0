package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// ErrCorruptFeature is returned when the dataset holds a feature the filter cannot read.
var ErrCorruptFeature = errors.New("corrupt feature")

// cancelCheckInterval is how many features are scanned between context checks.
const cancelCheckInterval = 1024

// FeatureEpoch reads and parses a feature's date property with the exact anchor.
// Features without a string date, or with an unparsable one, report false.
func FeatureEpoch(f *geojson.Feature, dateProperty string) (Epoch, bool) {
	if f == nil {
		return InvalidEpoch, false
	}
	s, ok := f.Properties[dateProperty].(string)
	if !ok || s == "" {
		return InvalidEpoch, false
	}
	e := ParseDate(s, AnchorExact)
	return e, e.Valid()
}

// FilterByDate returns the features whose date falls inside r, bounds included,
// in their original order. Features without a date never match. The input is
// not modified, so callers always filter the authoritative dataset rather than
// a previous result.
func FilterByDate(ctx context.Context, features []*geojson.Feature, r DateRange, dateProperty string) ([]*geojson.Feature, error) {
	out := make([]*geojson.Feature, 0)
	if !r.Valid() {
		return out, nil
	}

	for i, f := range features {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if f == nil {
			return nil, fmt.Errorf("filter feature %d: %w", i, ErrCorruptFeature)
		}
		e, ok := FeatureEpoch(f, dateProperty)
		if !ok {
			continue
		}
		if r.Contains(e) {
			out = append(out, f)
		}
	}
	return out, nil
}

// FilterDataset runs FilterByDate over a dataset and wraps the result as a View.
func FilterDataset(ctx context.Context, ds *Dataset, r DateRange, dateProperty string) (View, error) {
	features, err := FilterByDate(ctx, ds.Features(), r, dateProperty)
	if err != nil {
		return View{}, err
	}
	fc := geojson.NewFeatureCollection()
	fc.Features = features

	rng := r
	view := View{Range: &rng, Collection: fc}
	if ds != nil {
		view.DatasetID = ds.ID
	}
	return view, nil
}

// DateExtent returns the narrowest day-aligned range covering every dated feature.
// It reports false when no feature carries a parsable date.
func DateExtent(features []*geojson.Feature, dateProperty string) (DateRange, bool) {
	lo, hi := InvalidEpoch, InvalidEpoch
	for _, f := range features {
		e, ok := FeatureEpoch(f, dateProperty)
		if !ok {
			continue
		}
		if !lo.Valid() || e < lo {
			lo = e
		}
		if !hi.Valid() || e > hi {
			hi = e
		}
	}
	if !lo.Valid() {
		return DateRange{Start: InvalidEpoch, End: InvalidEpoch}, false
	}
	return DateRange{
		Start: ParseDate(FormatDate(lo), AnchorStart),
		End:   ParseDate(FormatDate(hi), AnchorEnd),
	}, true
}
