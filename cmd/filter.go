package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/siteresolve/internal/config"
	"github.com/sells-group/siteresolve/internal/facility"
	"github.com/sells-group/siteresolve/internal/monitoring"
	"github.com/sells-group/siteresolve/internal/pipeline"
	"github.com/sells-group/siteresolve/internal/sitematch"
)

var (
	filterInput       string
	filterOutput      string
	filterBrands      string
	filterMode        string
	filterConcurrency int
	filterMetricsFile string
	filterNoStore     bool
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Choose a website for every facility in a table",
	Long: `Reads the scraper's facility table (CSV or XLSX), resolves every row against the
brand registry, and writes the table back with two extra columns: the chosen
website (NULL when none qualified) and whether it is a known brand site.

Examples:
  # Use the paths from config.yaml
  siteresolve filter

  # Explicit paths, best-match mode, no run history
  siteresolve filter --input in.csv --output out.xlsx --mode best_match --no-store`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		applyFilterFlags(cfg)
		if err := cfg.Validate("filter"); err != nil {
			return err
		}
		return runFilter(cmd.Context(), cfg)
	},
}

func init() {
	filterCmd.Flags().StringVar(&filterInput, "input", "", "facility table to read (default from facilities_with_possible_web)")
	filterCmd.Flags().StringVar(&filterOutput, "output", "", "table to write (default from facilities_with_filtered_web)")
	filterCmd.Flags().StringVar(&filterBrands, "brands", "", "brand site list path or URL (default from brand_sites)")
	filterCmd.Flags().StringVar(&filterMode, "mode", "", "resolve mode: last_match or best_match (default from resolve.mode)")
	filterCmd.Flags().IntVar(&filterConcurrency, "concurrency", 0, "max facilities resolved concurrently (default from filter.concurrency)")
	filterCmd.Flags().StringVar(&filterMetricsFile, "metrics-file", "", "write Prometheus metrics for the run to this file")
	filterCmd.Flags().BoolVar(&filterNoStore, "no-store", false, "do not record the run in the store")
	rootCmd.AddCommand(filterCmd)
}

// applyFilterFlags overrides configuration with any flags that were set.
func applyFilterFlags(c *config.Config) {
	if filterInput != "" {
		c.FacilitiesWithPossibleWeb = filterInput
	}
	if filterOutput != "" {
		c.FacilitiesWithFilteredWeb = filterOutput
	}
	if filterBrands != "" {
		c.BrandSites = filterBrands
	}
	if filterMode != "" {
		c.Resolve.Mode = filterMode
	}
	if filterConcurrency > 0 {
		c.Filter.Concurrency = filterConcurrency
	}
	if filterNoStore {
		c.Store.Driver = "none"
	}
}

func runFilter(ctx context.Context, c *config.Config) error {
	opener := newOpener(c.Fetch)

	resolver, err := loadResolver(ctx, opener, c.BrandSites, c.Resolve.Mode)
	if err != nil {
		return err
	}

	inFormat, _ := facility.ParseFormat(c.Filter.InputFormat)
	outFormat, _ := facility.ParseFormat(c.Filter.OutputFormat)

	table, err := facility.Read(ctx, opener, c.FacilitiesWithPossibleWeb, inFormat, c.Filter.Columns)
	if err != nil {
		return eris.Wrap(err, "filter: read facilities")
	}

	st, err := initStore(ctx, c.Store)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close() //nolint:errcheck
	}

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	metrics.SetBrandEntries(resolver.Registry().Len())

	f := pipeline.NewFilter(resolver, st, metrics, c.Filter.Concurrency)
	out := c.FacilitiesWithFilteredWeb
	report, runErr := f.Run(ctx, table, pipeline.RunInfo{
		Source: c.FacilitiesWithPossibleWeb,
		Output: out,
	}, func(_ context.Context, results []sitematch.Result) error {
		header, rows, err := table.Augment(results)
		if err != nil {
			return err
		}
		return facility.Write(out, outFormat, header, rows)
	})

	if filterMetricsFile != "" {
		if err := prometheus.WriteToTextfile(filterMetricsFile, reg); err != nil {
			zap.L().Warn("filter: write metrics file", zap.String("path", filterMetricsFile), zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}

	printFilterSummary(report, out)
	return nil
}

func printFilterSummary(report *pipeline.Report, out string) {
	s := report.Stats
	runID := "-"
	if report.Run != nil {
		runID = report.Run.ID
	}
	fmt.Fprintf(os.Stderr, "Wrote %s: %d rows, %d resolved (%d by name, %d by brand), %d known brand, %d unreadable. Run %s\n",
		out, s.Rows, s.Resolved, s.ByName, s.ByBrand, s.KnownBrand, s.Unreadable, runID)
}
