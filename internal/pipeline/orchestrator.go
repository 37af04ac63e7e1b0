package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/recon-map/internal/domain"
	"github.com/couchcryptid/recon-map/internal/observability"
)

var (
	// ErrNotReady is returned for range changes before the first dataset load.
	ErrNotReady = errors.New("dataset not loaded")
	// ErrInvalidValue is returned when a range control receives an unparsable date.
	ErrInvalidValue = errors.New("invalid date value")
)

// OrchestratorOptions tunes an Orchestrator. Zero values select defaults.
type OrchestratorOptions struct {
	Clock          clockwork.Clock
	Debounce       time.Duration
	DateProperty   string
	ReloadInterval time.Duration
}

// Orchestrator owns the loaded dataset and the active date range, and wires
// ingestion, filtering and rendering together. The dataset is replaced
// wholesale on reload; readers always see either the old or the new one.
type Orchestrator struct {
	sources      []domain.Source
	ingester     *Ingester
	coordinator  *Coordinator
	progress     *ProgressBus
	logger       *slog.Logger
	metrics      *observability.Metrics
	clock        clockwork.Clock
	dateProperty string
	reload       time.Duration

	mu      sync.RWMutex
	dataset *domain.Dataset
	rng     domain.DateRange
	extent  domain.DateRange
	report  IngestReport
	ready   atomic.Bool
}

// NewOrchestrator creates an Orchestrator rendering through renderer.
func NewOrchestrator(sources []domain.Source, ingester *Ingester, renderer Renderer, progress *ProgressBus, logger *slog.Logger, metrics *observability.Metrics, opts OrchestratorOptions) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.DateProperty == "" {
		opts.DateProperty = domain.DefaultDateProperty
	}
	o := &Orchestrator{
		sources:      sources,
		ingester:     ingester,
		progress:     progress,
		logger:       logger,
		metrics:      metrics,
		clock:        opts.Clock,
		dateProperty: opts.DateProperty,
		reload:       opts.ReloadInterval,
		rng:          domain.DateRange{Start: domain.InvalidEpoch, End: domain.InvalidEpoch},
		extent:       domain.DateRange{Start: domain.InvalidEpoch, End: domain.InvalidEpoch},
	}
	o.coordinator = NewCoordinator(o.filter, renderer, progress, logger, metrics, CoordinatorOptions{
		Clock:    opts.Clock,
		Debounce: opts.Debounce,
	})
	return o
}

func (o *Orchestrator) filter(ctx context.Context, r domain.DateRange) (domain.View, error) {
	return domain.FilterDataset(ctx, o.Dataset(), r, o.dateProperty)
}

// Load ingests all sources, replaces the dataset, resets the range to the
// dataset's date extent and renders the full dataset. Source failures are
// reported, not returned; the error is non-nil only when ctx ends.
func (o *Orchestrator) Load(ctx context.Context) (IngestReport, error) {
	ds, report, err := o.ingester.Ingest(ctx, o.sources)
	if err != nil {
		return report, err
	}

	extent, ok := domain.DateExtent(ds.Features(), o.dateProperty)
	if !ok {
		extent = domain.DateRange{Start: domain.InvalidEpoch, End: domain.InvalidEpoch}
	}

	o.mu.Lock()
	o.dataset = ds
	o.extent = extent
	o.rng = extent
	o.report = report
	o.mu.Unlock()

	o.metrics.DatasetFeatures.Set(float64(ds.Len()))
	o.metrics.DatasetLoads.Inc()

	if report.AllFailed() {
		o.logger.Error("no source could be loaded", "sources", len(report.Sources))
		o.progress.Publish(Progress{Phase: PhaseError, Message: "no source could be loaded"})
	}

	view := domain.View{DatasetID: ds.ID, Collection: ds.Collection}
	if err := o.coordinator.Present(ctx, view); err != nil {
		o.logger.Error("initial render failed", "dataset_id", ds.ID, "error", err)
	}

	o.ready.Store(true)
	o.metrics.PipelineReady.Set(1)
	return report, nil
}

// OnRangeChange moves the bound named by controlID to value, clamping it
// against the other bound, and schedules a debounced filter pass.
func (o *Orchestrator) OnRangeChange(controlID string, value domain.Epoch) (domain.DateRange, error) {
	ctrl, err := domain.ParseControl(controlID)
	if err != nil {
		return domain.DateRange{}, err
	}
	if !value.Valid() {
		return domain.DateRange{}, fmt.Errorf("%s: %w", ctrl, ErrInvalidValue)
	}
	if !o.ready.Load() {
		return domain.DateRange{}, ErrNotReady
	}

	o.mu.Lock()
	o.rng = o.rng.Move(ctrl, value)
	r := o.rng
	o.mu.Unlock()

	o.coordinator.Request(r)
	return r, nil
}

// Run loads the dataset, then reloads it on every reload interval until ctx
// ends. With no interval it loads once and waits for ctx.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.Load(ctx); err != nil {
		return ignoreCancel(err)
	}

	if o.reload <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := o.clock.NewTicker(o.reload)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			o.logger.Info("reloading sources")
			if _, err := o.Load(ctx); err != nil {
				return ignoreCancel(err)
			}
		}
	}
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Dataset returns the current dataset, nil before the first load.
func (o *Orchestrator) Dataset() *domain.Dataset {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.dataset
}

// Range returns the active date range.
func (o *Orchestrator) Range() domain.DateRange {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.rng
}

// Extent returns the date extent of the current dataset.
func (o *Orchestrator) Extent() domain.DateRange {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.extent
}

// Report returns the outcome of the last load.
func (o *Orchestrator) Report() IngestReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.report
}

// DateProperty returns the configured date-property key.
func (o *Orchestrator) DateProperty() string { return o.dateProperty }

// FilterState returns the coordinator state.
func (o *Orchestrator) FilterState() State { return o.coordinator.State() }

// Coordinator exposes the filter coordinator for state inspection.
func (o *Orchestrator) Coordinator() *Coordinator { return o.coordinator }

// Progress exposes the progress bus for subscribers.
func (o *Orchestrator) Progress() *ProgressBus { return o.progress }

// CheckReadiness reports whether a dataset has been loaded.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return ErrNotReady
	}
	return nil
}

// Close stops filtering and marks the orchestrator not ready.
func (o *Orchestrator) Close() {
	o.coordinator.Close()
	o.ready.Store(false)
	o.metrics.PipelineReady.Set(0)
}
