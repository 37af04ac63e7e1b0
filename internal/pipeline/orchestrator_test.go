package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/recon-map/internal/domain"
	"github.com/couchcryptid/recon-map/internal/observability"
)

type orchestratorFixture struct {
	orch     *Orchestrator
	fetcher  *stubFetcher
	renderer *recordingRenderer
	clock    *clockwork.FakeClock
	metrics  *observability.Metrics
}

func newOrchestratorFixture(t *testing.T, reload time.Duration) *orchestratorFixture {
	t.Helper()
	fetcher := newStubFetcher(map[string]stubResponse{
		"scans.geojson": {body: scansCollection},
	})
	renderer := &recordingRenderer{}
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	ing := newTestIngester(fetcher, metrics, 2)

	orch := NewOrchestrator(
		[]domain.Source{{Name: "scans", Location: "scans.geojson"}},
		ing, renderer, nil, discardLogger(), metrics,
		OrchestratorOptions{Clock: clock, Debounce: testDebounce, DateProperty: "date", ReloadInterval: reload},
	)
	t.Cleanup(orch.Close)
	return &orchestratorFixture{orch: orch, fetcher: fetcher, renderer: renderer, clock: clock, metrics: metrics}
}

func TestOrchestrator_LoadRendersFullDataset(t *testing.T) {
	fx := newOrchestratorFixture(t, 0)
	require.ErrorIs(t, fx.orch.CheckReadiness(context.Background()), ErrNotReady)

	report, err := fx.orch.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, report.AllFailed())

	view, ok := fx.renderer.last()
	require.True(t, ok)
	assert.Equal(t, []string{"berlin", "caen", "cologne", "rotterdam"}, featureNames(view))
	assert.Nil(t, view.Range)
	assert.Equal(t, fx.orch.Dataset().ID, view.DatasetID)

	assert.Equal(t, dayRange("1943-05-01", "1945-04-20"), fx.orch.Range())
	assert.Equal(t, fx.orch.Range(), fx.orch.Extent())
	require.NoError(t, fx.orch.CheckReadiness(context.Background()))
	assert.InDelta(t, 4, testutil.ToFloat64(fx.metrics.DatasetFeatures), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(fx.metrics.PipelineReady), 0)
}

func TestOrchestrator_RangeChangeFilters(t *testing.T) {
	fx := newOrchestratorFixture(t, 0)
	_, err := fx.orch.Load(context.Background())
	require.NoError(t, err)

	r, err := fx.orch.OnRangeChange("date-start", day("1944-01-01", domain.AnchorStart))
	require.NoError(t, err)
	assert.Equal(t, dayRange("1944-01-01", "1945-04-20"), r)

	_, err = fx.orch.OnRangeChange("date-end", day("1944-12-31", domain.AnchorEnd))
	require.NoError(t, err)

	fx.clock.Advance(testDebounce)
	require.Eventually(t, func() bool { return len(fx.renderer.rendered()) == 2 }, 2*time.Second, 5*time.Millisecond)
	fx.orch.Coordinator().Wait()

	view, _ := fx.renderer.last()
	assert.Equal(t, []string{"caen"}, featureNames(view))
	require.NotNil(t, view.Range)
	assert.Equal(t, dayRange("1944-01-01", "1944-12-31"), *view.Range)
}

func TestOrchestrator_WidenRestoresFeatures(t *testing.T) {
	fx := newOrchestratorFixture(t, 0)
	_, err := fx.orch.Load(context.Background())
	require.NoError(t, err)

	_, err = fx.orch.OnRangeChange("date-start", day("1945-01-01", domain.AnchorStart))
	require.NoError(t, err)
	fx.clock.Advance(testDebounce)
	require.Eventually(t, func() bool { return len(fx.renderer.rendered()) == 2 }, 2*time.Second, 5*time.Millisecond)

	_, err = fx.orch.OnRangeChange("date-start", day("1943-01-01", domain.AnchorStart))
	require.NoError(t, err)
	fx.clock.Advance(testDebounce)
	require.Eventually(t, func() bool { return len(fx.renderer.rendered()) == 3 }, 2*time.Second, 5*time.Millisecond)

	view, _ := fx.renderer.last()
	assert.Equal(t, []string{"berlin", "caen", "cologne"}, featureNames(view))
}

func TestOrchestrator_RangeChangeClamps(t *testing.T) {
	fx := newOrchestratorFixture(t, 0)
	_, err := fx.orch.Load(context.Background())
	require.NoError(t, err)

	r, err := fx.orch.OnRangeChange("date-start", day("1950-01-01", domain.AnchorStart))
	require.NoError(t, err)
	assert.Equal(t, r.End, r.Start)
	assert.True(t, r.Valid())
}

func TestOrchestrator_RangeChangeErrors(t *testing.T) {
	fx := newOrchestratorFixture(t, 0)

	_, err := fx.orch.OnRangeChange("date-start", day("1944-01-01", domain.AnchorStart))
	require.ErrorIs(t, err, ErrNotReady)

	_, err = fx.orch.Load(context.Background())
	require.NoError(t, err)

	_, err = fx.orch.OnRangeChange("zoom", day("1944-01-01", domain.AnchorStart))
	require.Error(t, err)

	_, err = fx.orch.OnRangeChange("date-end", domain.InvalidEpoch)
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestOrchestrator_AllSourcesFailed(t *testing.T) {
	fx := newOrchestratorFixture(t, 0)
	fx.fetcher.set("scans.geojson", stubResponse{body: "not json"})

	report, err := fx.orch.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, report.AllFailed())
	assert.Equal(t, 0, fx.orch.Dataset().Len())
	assert.False(t, fx.orch.Range().Valid())

	view, ok := fx.renderer.last()
	require.True(t, ok)
	assert.Equal(t, 0, view.Len())
}

func TestOrchestrator_RunReloads(t *testing.T) {
	fx := newOrchestratorFixture(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- fx.orch.Run(ctx) }()

	require.Eventually(t, func() bool { return fx.orch.CheckReadiness(ctx) == nil }, 2*time.Second, 5*time.Millisecond)
	firstID := fx.orch.Dataset().ID

	fx.fetcher.set("scans.geojson", stubResponse{body: fiveFeatures})
	require.NoError(t, fx.clock.BlockUntilContext(ctx, 1))
	fx.clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		ds := fx.orch.Dataset()
		return ds != nil && ds.ID != firstID && ds.Len() == 5
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, dayRange("1944-01-01", "1944-01-05"), fx.orch.Range())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
