package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/recon-map/internal/domain"
	"github.com/couchcryptid/recon-map/internal/observability"
	"github.com/couchcryptid/recon-map/internal/pipeline"
)

// errValidationFailed signals a non-zero exit after the report is printed.
var errValidationFailed = errors.New("validation failed")

func validateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load every configured source and report ingestion problems",
		Long: `validate fetches and normalizes each configured source once and prints a
per-source report. It exits non-zero when a source cannot be loaded, and with
--strict also when records are dropped or features carry no usable date.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ing := newIngester(cfg, nil, logger, observability.NewMetrics())
			if code := runValidate(cmd.Context(), ing, cfg.Sources, cfg.DateProperty, strict, cmd.OutOrStdout()); code != 0 {
				return errValidationFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on dropped records and undated features")
	return cmd
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name     string
	errors   []string
	advisory bool
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func runValidate(ctx context.Context, ing *pipeline.Ingester, sources []domain.Source, dateProperty string, strict bool, w io.Writer) int {
	fmt.Fprintln(w, "=== Source Validation ===")
	fmt.Fprintln(w)

	ds, report, err := ing.Ingest(ctx, sources)
	if err != nil {
		fmt.Fprintf(w, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateSources(report),
		validateRecords(report, strict),
		validateDates(ds, dateProperty, strict),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		switch {
		case p.passed():
		case p.advisory:
			status = fmt.Sprintf("\033[33mWARN (%d)\033[0m", len(p.errors))
		default:
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-36s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Sources: %d (%d failed), features: %d, dropped records: %d\n",
		len(report.Sources), report.Failed(), ds.Len(), report.Dropped())
	if rng, ok := domain.DateExtent(ds.Features(), dateProperty); ok {
		fmt.Fprintf(w, "Dates: %s\n", rng)
	}
	printProvenance(w, ds)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func validateSources(report pipeline.IngestReport) *phase {
	p := &phase{name: "Phase 1: Sources (fetch + parse)"}
	for _, r := range report.Sources {
		if !r.OK() {
			p.errorf("%s: %s failed: %v", r.Source, r.Stage, r.Err)
		}
	}
	if len(report.Sources) > 0 && report.AllFailed() {
		p.errorf("no source could be loaded")
	}
	return p
}

func validateRecords(report pipeline.IngestReport, strict bool) *phase {
	p := &phase{name: "Phase 2: Record shapes", advisory: !strict}
	for _, r := range report.Sources {
		if r.OK() && r.Report.Dropped > 0 {
			p.errorf("%s: %d of %d records dropped (no usable position)", r.Source, r.Report.Dropped, r.Report.Records)
		}
	}
	return p
}

func validateDates(ds *domain.Dataset, dateProperty string, strict bool) *phase {
	p := &phase{name: "Phase 3: Acquisition dates", advisory: !strict}
	undated := 0
	for _, f := range ds.Features() {
		if _, ok := domain.FeatureEpoch(f, dateProperty); !ok {
			undated++
		}
	}
	if undated > 0 {
		p.errorf("%d of %d features have no parsable %q property and never match a date filter", undated, ds.Len(), dateProperty)
	}
	return p
}

func printProvenance(w io.Writer, ds *domain.Dataset) {
	counts := map[string]int{}
	for _, f := range ds.Features() {
		name := domain.ProvenanceOf(f).String()
		if name == "" {
			name = "generic"
		}
		counts[name]++
	}
	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(w, "  %-8s %d\n", n, counts[n])
	}
}
