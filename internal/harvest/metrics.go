package harvest

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// RecordsWritten tracks the number of records written to shards.
	RecordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_records_written_total",
		Help: "The total number of normalized records written to shards.",
	})
	// DedupeSkips tracks documents skipped because they were already visited.
	DedupeSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_dedupe_skips_total",
		Help: "The total number of documents skipped by the visited set.",
	})
	// FetchErrors tracks fetches that failed after exhausting retries.
	FetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_fetch_errors_total",
		Help: "The total number of documents dropped after fetch retries.",
	})
	// FetchRetries tracks individual retried fetch attempts.
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_fetch_retries_total",
		Help: "The total number of retried fetch attempts.",
	})
	// QualityRejects tracks documents dropped by the minimum-length gate.
	QualityRejects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_quality_rejects_total",
		Help: "The total number of documents rejected by the quality gate.",
	})
	// ShardRotations tracks how often a full shard was closed and a new one
	// opened.
	ShardRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_shard_rotations_total",
		Help: "The total number of shard files finalized at the record threshold.",
	})
)

// MetricsHandler serves the default Prometheus registry, which carries the
// harvester counters above, under /metrics.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// StartMetricsServer exposes MetricsHandler on addr in the background. The
// caller owns the returned server and closes it when the run ends.
func StartMetricsServer(addr string, logger *zap.Logger) (*http.Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics server listening", zap.String("addr", ln.Addr().String()))
	return srv, nil
}
