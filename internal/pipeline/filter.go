// Package pipeline resolves facility tables in batch and records each run.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/siteresolve/internal/facility"
	"github.com/sells-group/siteresolve/internal/model"
	"github.com/sells-group/siteresolve/internal/monitoring"
	"github.com/sells-group/siteresolve/internal/sitematch"
	"github.com/sells-group/siteresolve/internal/store"
)

const defaultConcurrency = 8

// Filter resolves many facilities concurrently over one shared resolver.
type Filter struct {
	resolver    *sitematch.Resolver
	store       store.Store
	metrics     *monitoring.Metrics
	concurrency int
}

// NewFilter creates a Filter. st and metrics may be nil.
func NewFilter(resolver *sitematch.Resolver, st store.Store, metrics *monitoring.Metrics, concurrency int) *Filter {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Filter{
		resolver:    resolver,
		store:       st,
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// Resolve resolves every facility and returns the results in input order.
// It fails only when ctx is cancelled.
func (f *Filter) Resolve(ctx context.Context, facilities []sitematch.Facility) ([]sitematch.Result, error) {
	results := make([]sitematch.Result, len(facilities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, fac := range facilities {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := f.resolver.Resolve(fac)
			f.metrics.ObserveResult(r)
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve facilities")
	}
	return results, nil
}

// RunInfo describes where a batch came from and where it goes.
type RunInfo struct {
	Source string
	Output string
}

// Report is the outcome of a batch run.
type Report struct {
	// Run is nil when no store is configured.
	Run     *model.Run
	Results []sitematch.Result
	Stats   model.RunStats
}

// WriteFunc receives the results, in row order, before the run is marked
// complete. A returned error fails the run.
type WriteFunc func(ctx context.Context, results []sitematch.Result) error

// Run resolves every row of t, hands the results to write, and records the
// run and its resolutions in the store.
func (f *Filter) Run(ctx context.Context, t *facility.Table, info RunInfo, write WriteFunc) (*Report, error) {
	start := time.Now()
	log := zap.L().With(zap.String("source", info.Source))
	report := &Report{}

	if f.store != nil {
		run, err := f.store.CreateRun(ctx, model.NewRun{
			Source:       info.Source,
			Output:       info.Output,
			Mode:         string(f.resolver.Mode()),
			BrandEntries: f.resolver.Registry().Len(),
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		report.Run = run
		log = log.With(zap.String("run_id", run.ID))
	}
	log.Info("filter run started",
		zap.Int("rows", len(t.Rows)),
		zap.String("mode", string(f.resolver.Mode())),
		zap.Int("concurrency", f.concurrency),
	)

	err := f.run(ctx, t, report, write)
	report.Stats.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		f.metrics.ObserveRun(model.RunStatusFailed, time.Since(start))
		log.Error("filter run failed", zap.Error(err))
		if report.Run != nil {
			// The caller's ctx may be the reason for the failure.
			failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if failErr := f.store.FailRun(failCtx, report.Run.ID, err.Error(), &report.Stats); failErr != nil {
				log.Error("record failed run", zap.Error(failErr))
			}
			report.Run.Status = model.RunStatusFailed
			report.Run.Error = err.Error()
		}
		return report, err
	}

	if report.Run != nil {
		if err := f.store.CompleteRun(ctx, report.Run.ID, &report.Stats); err != nil {
			return report, eris.Wrap(err, "pipeline: complete run")
		}
		report.Run.Status = model.RunStatusComplete
		report.Run.Stats = &report.Stats
	}
	f.metrics.ObserveRun(model.RunStatusComplete, time.Since(start))

	log.Info("filter run complete",
		zap.Int("rows", report.Stats.Rows),
		zap.Int("resolved", report.Stats.Resolved),
		zap.Int("by_name", report.Stats.ByName),
		zap.Int("by_brand", report.Stats.ByBrand),
		zap.Int("known_brand", report.Stats.KnownBrand),
		zap.Int("malformed_urls", report.Stats.Malformed),
		zap.Int("unreadable_rows", report.Stats.Unreadable),
		zap.Int64("duration_ms", report.Stats.DurationMs),
	)
	return report, nil
}

func (f *Filter) run(ctx context.Context, t *facility.Table, report *Report, write WriteFunc) error {
	results, err := f.Resolve(ctx, t.Facilities())
	if err != nil {
		return err
	}
	report.Results = results

	for i, r := range results {
		report.Stats.Add(r)
		if t.Rows[i].ParseErr != nil {
			report.Stats.Unreadable++
			f.metrics.ObserveUnreadableRow()
		}
	}

	if write != nil {
		if err := write(ctx, results); err != nil {
			return eris.Wrap(err, "pipeline: write results")
		}
	}

	if report.Run != nil {
		resolutions := make([]model.Resolution, len(results))
		for i, r := range results {
			resolutions[i] = model.NewResolution(report.Run.ID, t.Rows[i].Index, t.Rows[i].Facility, r)
		}
		if _, err := f.store.SaveResolutions(ctx, report.Run.ID, resolutions); err != nil {
			return eris.Wrap(err, "pipeline: save resolutions")
		}
	}
	return nil
}
