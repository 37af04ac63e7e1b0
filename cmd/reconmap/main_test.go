package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/recon-map/internal/adapter/source"
	"github.com/couchcryptid/recon-map/internal/domain"
	"github.com/couchcryptid/recon-map/internal/observability"
	"github.com/couchcryptid/recon-map/internal/pipeline"
)

const validCollection = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [13.40, 52.52]}, "properties": {"name": "berlin", "date": "1945-04-20"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-0.37, 49.18]}, "properties": {"name": "caen", "date": "1944-06-06", "provenance": "ign"}}
	]
}`

const recordsWithGaps = `[
	{"latitude": 48.85, "longitude": 2.35, "date": "1944-08-25", "name": "paris"},
	{"latitude": 50.94, "longitude": 6.96, "name": "undated"},
	{"name": "nowhere"}
]`

func writeSource(t *testing.T, dir, name, body string) domain.Source {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return domain.Source{Name: name, Location: path}
}

func testIngester() *pipeline.Ingester {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return pipeline.NewIngester(source.FileFetcher{}, domain.NewNormalizer("date", logger), nil, logger, observability.NewMetricsForTesting(), 2)
}

func TestRunValidate_Passes(t *testing.T) {
	src := writeSource(t, t.TempDir(), "scans.geojson", validCollection)

	var out bytes.Buffer
	code := runValidate(context.Background(), testIngester(), []domain.Source{src}, "date", true, &out)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "All validations passed.")
	assert.Contains(t, out.String(), "Dates: 1944-06-06..1945-04-20")
	assert.Contains(t, out.String(), "ign")
}

func TestRunValidate_AdvisoryUnlessStrict(t *testing.T) {
	src := writeSource(t, t.TempDir(), "records.json", recordsWithGaps)

	var out bytes.Buffer
	code := runValidate(context.Background(), testIngester(), []domain.Source{src}, "date", false, &out)
	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "WARN")

	out.Reset()
	code = runValidate(context.Background(), testIngester(), []domain.Source{src}, "date", true, &out)
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "1 of 3 records dropped")
	assert.Contains(t, out.String(), "1 of 2 features have no parsable")
}

func TestRunValidate_FailsOnBrokenSource(t *testing.T) {
	dir := t.TempDir()
	good := writeSource(t, dir, "scans.geojson", validCollection)
	broken := writeSource(t, dir, "broken.json", `{"type": "Feature"`)
	missing := domain.Source{Name: "missing", Location: filepath.Join(dir, "missing.json")}

	var out bytes.Buffer
	code := runValidate(context.Background(), testIngester(), []domain.Source{good, broken, missing}, "date", false, &out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "parse failed")
	assert.Contains(t, out.String(), "fetch failed")
	assert.Contains(t, out.String(), "Validation FAILED.")
}

func TestExportRange(t *testing.T) {
	f := func(date string) *geojson.Feature {
		feat := geojson.NewFeature(orb.Point{0, 0})
		feat.Properties["date"] = date
		return feat
	}
	ds := domain.NewDataset([]*geojson.Feature{f("1943-05-01"), f("1945-04-20")})

	rng, err := exportRange(ds, "date", "", "")
	require.NoError(t, err)
	assert.Equal(t, "1943-05-01..1945-04-20", rng.String())

	rng, err = exportRange(ds, "date", "1944-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, "1944-01-01..1945-04-20", rng.String())

	_, err = exportRange(ds, "date", "", "later")
	require.ErrorIs(t, err, pipeline.ErrInvalidValue)
}

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "reconmap version")
}
