package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"stickytweets/internal/ingest"
	"stickytweets/internal/logging"
	"stickytweets/internal/metrics"
)

// Ingester runs one full search-and-store pass.
type Ingester interface {
	IngestAll(ctx context.Context, terms []string) (ingest.Result, error)
}

// RunTask runs one ingestion pass for host, counting and logging the outcome.
func RunTask(ctx context.Context, ing Ingester, host string, terms []string) (ingest.Result, error) {
	start := time.Now()
	metrics.IngestRuns.WithLabelValues(host).Inc()
	res, err := ing.IngestAll(ctx, terms)
	metrics.ObserveIngestDuration(start)
	fields := map[string]any{
		"host":     host,
		"pages":    res.Pages,
		"seen":     res.Seen,
		"inserted": res.Inserted,
		"evicted":  res.Evicted,
		"skipped":  res.Skipped,
		"removed":  res.Removed,
		"elapsed":  time.Since(start).String(),
	}
	if err != nil {
		metrics.IngestErrors.WithLabelValues(host).Inc()
		fields["error"] = err.Error()
		logging.Error("ingest_task", fields)
		return res, err
	}
	logging.Info("ingest_task", fields)
	return res, nil
}

// Watch runs a task right away and then on every tick of schedule until ctx
// is cancelled. A tick that fires while the previous run is still going is
// skipped. Task errors are logged and do not stop the loop.
func Watch(ctx context.Context, ing Ingester, schedule, host string, terms []string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() { _, _ = RunTask(ctx, ing, host, terms) }); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	_, _ = RunTask(ctx, ing, host, terms)
	c.Start()
	logging.Info("watch_start", map[string]any{"host": host, "schedule": schedule})
	<-ctx.Done()
	<-c.Stop().Done()
	logging.Info("watch_stop", map[string]any{"host": host})
	return ctx.Err()
}
