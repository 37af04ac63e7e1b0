package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/recon-map/internal/domain"
)

const scansCollection = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [13.40, 52.52]}, "properties": {"name": "berlin", "date": "1945-04-20"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-0.37, 49.18]}, "properties": {"name": "caen", "date": "1944-06-06"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [6.96, 50.94]}, "properties": {"name": "cologne", "date": "1943-05-01"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [4.48, 51.92]}, "properties": {"name": "rotterdam"}}
	]
}`

const fiveFeatures = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 1]}, "properties": {"name": "c1", "date": "1944-01-01"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [2, 2]}, "properties": {"name": "c2", "date": "1944-01-02"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [3, 3]}, "properties": {"name": "c3", "date": "1944-01-03"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [4, 4]}, "properties": {"name": "c4", "date": "1944-01-04"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [5, 5]}, "properties": {"name": "c5", "date": "1944-01-05"}}
	]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubResponse struct {
	body  string
	err   error
	delay time.Duration
}

// stubFetcher serves canned payloads keyed by source location.
type stubFetcher struct {
	mu        sync.Mutex
	responses map[string]stubResponse
	calls     int
}

func newStubFetcher(responses map[string]stubResponse) *stubFetcher {
	return &stubFetcher{responses: responses}
}

func (f *stubFetcher) set(location string, resp stubResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[location] = resp
}

func (f *stubFetcher) Fetch(ctx context.Context, src domain.Source) ([]byte, error) {
	f.mu.Lock()
	resp, ok := f.responses[src.Location]
	f.calls++
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("fetch %s: status 404: %w", src.Location, domain.ErrUnexpectedStatus)
	}
	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return []byte(resp.body), nil
}

// recordingRenderer captures every rendered view.
type recordingRenderer struct {
	mu    sync.Mutex
	views []domain.View
	err   error
}

func (r *recordingRenderer) Render(_ context.Context, view domain.View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.views = append(r.views, view)
	return nil
}

func (r *recordingRenderer) rendered() []domain.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.View(nil), r.views...)
}

func (r *recordingRenderer) last() (domain.View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return domain.View{}, false
	}
	return r.views[len(r.views)-1], true
}

func featureNames(view domain.View) []string {
	var out []string
	if view.Collection == nil {
		return out
	}
	for _, f := range view.Collection.Features {
		out = append(out, f.Properties.MustString("name", ""))
	}
	return out
}

func day(s string, anchor domain.Anchor) domain.Epoch {
	return domain.ParseDate(s, anchor)
}

func dayRange(start, end string) domain.DateRange {
	return domain.DateRange{Start: day(start, domain.AnchorStart), End: day(end, domain.AnchorEnd)}
}
