package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stickytweets_ingest_runs_total",
		Help: "Total ingestion runs",
	}, []string{"host"})
	IngestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stickytweets_ingest_errors_total",
		Help: "Total failed ingestion runs",
	}, []string{"host"})
	IngestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stickytweets_ingest_duration_seconds",
		Help:    "Ingestion duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	SearchPages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stickytweets_search_pages_total",
		Help: "Search result pages fetched",
	})
	Records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stickytweets_records_total",
		Help: "Search records by store outcome (inserted, evicted, skipped)",
	}, []string{"outcome"})
	DuplicatesRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stickytweets_duplicates_removed_total",
		Help: "Rows deleted by the deduplication pass",
	})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stickytweets_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stickytweets_command_runs_total",
		Help: "CLI command invocations",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stickytweets_command_errors_total",
		Help: "CLI command failures",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(IngestRuns, IngestErrors, IngestDuration, SearchPages, Records,
		DuplicatesRemoved, APIRetries, CommandRuns, CommandErrors)
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

// Serve runs the metrics server on addr until ctx is done. An empty addr
// disables it.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ObserveIngestDuration records a run duration
func ObserveIngestDuration(start time.Time) {
	IngestDuration.Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
