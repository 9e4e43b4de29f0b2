package enrich

import (
	"context"
	"fmt"
	"sync"

	"afdata/autofocus"
	"afdata/core"
	"afdata/metrics"
	"afdata/util/goroutine"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CoverageFetcher requests the signature coverage of one sample
type CoverageFetcher interface {
	SampleCoverage(ctx context.Context, sha256 string) (*autofocus.Coverage, error)
}

// CoverageProgress is reported after each lookup
type CoverageProgress struct {
	Done   int
	Total  int
	SHA256 string
	Bucket core.BucketInfo
}

// CoverageReport summarizes a coverage pass
type CoverageReport struct {
	Looked  int
	Skipped int
	States  map[core.SigState]int
}

// CoveragePass adds signature coverage to every found sample of a run
type CoveragePass struct {
	fetcher  CoverageFetcher
	workers  int
	logger   *zap.SugaredLogger
	progress func(CoverageProgress)
}

// NewCoveragePass creates a pass; workers below 1 run lookups one at a time
func NewCoveragePass(fetcher CoverageFetcher, workers int, logger *zap.SugaredLogger) *CoveragePass {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CoveragePass{fetcher: fetcher, workers: workers, logger: logger}
}

// OnProgress registers a callback invoked after each lookup
func (p *CoveragePass) OnProgress(fn func(CoverageProgress)) {
	p.progress = fn
}

// Run looks up coverage for each found record with a sha256 and stores it on the record.
// Records keep their order; not-found records pass through unchanged. Any lookup error
// ends the pass.
func (p *CoveragePass) Run(ctx context.Context, records []*core.EnrichedRecord) (*CoverageReport, error) {
	var targets []*core.EnrichedRecord
	report := &CoverageReport{States: make(map[core.SigState]int)}
	for _, rec := range records {
		if !rec.Found() || rec.SHA256Hash == "" {
			report.Skipped++
			metrics.CoverageLookups.WithLabelValues("skipped").Inc()
			continue
		}
		targets = append(targets, rec)
	}

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, rec := range targets {
		g.Go(goroutine.Safe("coverage-"+rec.SHA256Hash, p.logger, func() error {
			cov, err := p.fetcher.SampleCoverage(gctx, rec.SHA256Hash)
			if err != nil {
				metrics.CoverageLookups.WithLabelValues("error").Inc()
				return fmt.Errorf("coverage lookup for %s: %w", rec.SHA256Hash, err)
			}
			metrics.CoverageLookups.WithLabelValues("ok").Inc()
			metrics.RecordQuota(cov.Bucket.MinutePointsRemaining, cov.Bucket.DailyPointsRemaining)

			rec.SigCoverage = buildCoverage(cov)

			mu.Lock()
			done++
			if p.progress != nil {
				p.progress(CoverageProgress{Done: done, Total: len(targets), SHA256: rec.SHA256Hash, Bucket: cov.Bucket})
			}
			mu.Unlock()
			return nil
		}))
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	for _, rec := range targets {
		report.Looked++
		report.States[rec.SigStateAll]++
	}
	p.logger.Infow("Signature coverage pass complete", "looked_up", report.Looked, "skipped", report.Skipped)
	return report, nil
}

func buildCoverage(cov *autofocus.Coverage) *core.SigCoverage {
	sc := &core.SigCoverage{}
	for _, family := range core.SigFamilies() {
		sc.Set(family, cov.Coverage[family])
	}
	sc.SigStateAll = core.ClassifyCoverage(cov.Raw())
	return sc
}
