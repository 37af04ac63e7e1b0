package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/recon-map/internal/domain"
	"github.com/couchcryptid/recon-map/internal/observability"
)

// Stage records how far a source got before it finished or failed.
type Stage string

const (
	StageFetch Stage = "fetch"
	StageParse Stage = "parse"
	StageOK    Stage = "ok"
)

// SourceResult is the outcome of ingesting one source.
type SourceResult struct {
	Source domain.Source
	Stage  Stage
	Report domain.NormalizeReport
	Err    error
}

// OK reports whether the source contributed to the dataset.
func (r SourceResult) OK() bool { return r.Err == nil }

// IngestReport lists per-source outcomes in source order.
type IngestReport struct {
	Sources []SourceResult
}

// Failed returns the number of sources that contributed nothing.
func (r IngestReport) Failed() int {
	n := 0
	for _, s := range r.Sources {
		if !s.OK() {
			n++
		}
	}
	return n
}

// AllFailed reports whether no source could be loaded.
func (r IngestReport) AllFailed() bool {
	return r.Failed() == len(r.Sources)
}

// Features returns the total number of features accepted across sources.
func (r IngestReport) Features() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Report.Features
	}
	return n
}

// Dropped returns the total number of records rejected across sources.
func (r IngestReport) Dropped() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Report.Dropped
	}
	return n
}

// Ingester fetches and normalizes every source concurrently and merges the
// results into one dataset. A failing source is logged and skipped; it never
// aborts the load.
type Ingester struct {
	fetcher     domain.Fetcher
	normalizer  *domain.Normalizer
	progress    *ProgressBus
	logger      *slog.Logger
	metrics     *observability.Metrics
	concurrency int
}

// NewIngester creates an Ingester. concurrency bounds simultaneous fetches.
func NewIngester(fetcher domain.Fetcher, normalizer *domain.Normalizer, progress *ProgressBus, logger *slog.Logger, metrics *observability.Metrics, concurrency int) *Ingester {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Ingester{
		fetcher:     fetcher,
		normalizer:  normalizer,
		progress:    progress,
		logger:      logger,
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// Ingest loads all sources. Features keep source order, then in-source order,
// regardless of completion order. The error is non-nil only when ctx ends
// before every source finished.
func (i *Ingester) Ingest(ctx context.Context, sources []domain.Source) (*domain.Dataset, IngestReport, error) {
	total := len(sources)
	results := make([]SourceResult, total)
	perSource := make([][]*geojson.Feature, total)

	var fetched, parsed atomic.Int64
	i.progress.Publish(Progress{Phase: PhaseDownloading, Total: total})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx, src := range sources {
		g.Go(func() error {
			results[idx], perSource[idx] = i.ingestOne(gctx, src, total, &fetched, &parsed)
			return nil
		})
	}
	_ = g.Wait()

	report := IngestReport{Sources: results}
	if err := ctx.Err(); err != nil {
		return domain.NewDataset(nil), report, fmt.Errorf("ingest sources: %w", err)
	}

	var all []*geojson.Feature
	for _, fs := range perSource {
		all = append(all, fs...)
	}
	ds := domain.NewDataset(all)

	i.logger.Info("dataset loaded",
		"dataset_id", ds.ID,
		"sources", total,
		"failed_sources", report.Failed(),
		"features", ds.Len(),
		"dropped", report.Dropped(),
	)
	return ds, report, nil
}

func (i *Ingester) ingestOne(ctx context.Context, src domain.Source, total int, fetched, parsed *atomic.Int64) (SourceResult, []*geojson.Feature) {
	start := time.Now()
	body, err := i.fetcher.Fetch(ctx, src)
	i.metrics.SourceFetchDuration.Observe(time.Since(start).Seconds())
	i.progress.Publish(Progress{Phase: PhaseDownloading, Completed: int(fetched.Add(1)), Total: total, Message: src.String()})

	defer func() {
		i.progress.Publish(Progress{Phase: PhaseParsing, Completed: int(parsed.Add(1)), Total: total, Message: src.String()})
	}()

	if err != nil {
		i.metrics.SourceFetches.WithLabelValues("error").Inc()
		i.logger.Warn("source fetch failed", "source", src.String(), "location", src.Location, "error", err)
		return SourceResult{Source: src, Stage: StageFetch, Err: err}, nil
	}
	i.metrics.SourceFetches.WithLabelValues("success").Inc()

	features, report, err := i.normalizer.Normalize(domain.RawSource{Source: src, Body: body})
	if err != nil {
		i.metrics.SourceParseFailures.Inc()
		i.logger.Warn("source parse failed", "source", src.String(), "location", src.Location, "error", err)
		return SourceResult{Source: src, Stage: StageParse, Err: err}, nil
	}

	i.metrics.FeaturesNormalized.Add(float64(report.Features))
	i.metrics.RecordsDropped.Add(float64(report.Dropped))
	i.logger.Debug("source normalized",
		"source", src.String(),
		"records", report.Records,
		"features", report.Features,
		"dropped", report.Dropped,
	)
	return SourceResult{Source: src, Stage: StageOK, Report: report}, features
}
