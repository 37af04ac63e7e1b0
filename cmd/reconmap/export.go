package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/recon-map/internal/domain"
	"github.com/couchcryptid/recon-map/internal/observability"
	"github.com/couchcryptid/recon-map/internal/pipeline"
)

func exportCmd() *cobra.Command {
	var start, end, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Load all sources once and write the date-filtered features as GeoJSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}
			return runExport(cmd.Context(), start, end, w)
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "first acquisition date (YYYY-MM-DD); defaults to the earliest")
	cmd.Flags().StringVar(&end, "end", "", "last acquisition date (YYYY-MM-DD); defaults to the latest")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	return cmd
}

func runExport(ctx context.Context, start, end string, w io.Writer) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ing := newIngester(cfg, nil, logger, observability.NewMetrics())
	ds, report, err := ing.Ingest(ctx, cfg.Sources)
	if err != nil {
		return err
	}
	if report.AllFailed() {
		return fmt.Errorf("no source could be loaded (%d sources)", len(report.Sources))
	}

	rng, err := exportRange(ds, cfg.DateProperty, start, end)
	if err != nil {
		return err
	}

	view, err := domain.FilterDataset(ctx, ds, rng, cfg.DateProperty)
	if err != nil {
		return err
	}
	logger.Info("export complete", "range", rng.String(), "features", view.Len(), "dataset_features", ds.Len())

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view.Collection)
}

// exportRange resolves the window, falling back to the dataset's date extent.
func exportRange(ds *domain.Dataset, dateProperty, start, end string) (domain.DateRange, error) {
	rng, _ := domain.DateExtent(ds.Features(), dateProperty)
	if start != "" {
		rng.Start = domain.ParseDate(start, domain.AnchorStart)
		if !rng.Start.Valid() {
			return rng, fmt.Errorf("--start %q: %w", start, pipeline.ErrInvalidValue)
		}
	}
	if end != "" {
		rng.End = domain.ParseDate(end, domain.AnchorEnd)
		if !rng.End.Valid() {
			return rng, fmt.Errorf("--end %q: %w", end, pipeline.ErrInvalidValue)
		}
	}
	return rng, nil
}
