// Package metrics exposes Prometheus counters for the bridge and an optional
// HTTP endpoint serving them.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts inbound JSON-RPC requests by method and outcome.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bundocs_requests_total",
		Help: "Total inbound JSON-RPC requests by method and outcome",
	}, []string{"method", "outcome"})

	// UpstreamAttempts counts HTTP attempts against the docs endpoint.
	UpstreamAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bundocs_upstream_attempts_total",
		Help: "Total HTTP attempts against the docs endpoint",
	})

	// UpstreamRetries counts attempts that were retried after a transient failure.
	UpstreamRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bundocs_upstream_retries_total",
		Help: "Total upstream attempts retried after a transient failure",
	})

	// UpstreamFailures counts forwarded requests that exhausted their attempts.
	UpstreamFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bundocs_upstream_failures_total",
		Help: "Total forwarded requests that failed after all attempts",
	})

	// RecordsSkipped counts malformed SSE records dropped during extraction.
	RecordsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bundocs_sse_records_skipped_total",
		Help: "Total malformed SSE records skipped during extraction",
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bundocs_build_info",
		Help: "Build information",
	}, []string{"date", "sha", "version"})
)

// SetBuildInfo records the build identity as a constant gauge.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// StartMetricsServer starts an HTTP server exposing Prometheus metrics on
// /metrics and a health probe on /healthz, shut down when ctx is done.
// It returns the address it is listening on.
func StartMetricsServer(ctx context.Context, addr string) (string, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		RequestsTotal,
		UpstreamAttempts,
		UpstreamRetries,
		UpstreamFailures,
		RecordsSkipped,
		buildInfo,
	)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	srv := &http.Server{Handler: r}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	actual := ln.Addr().String()
	go func() {
		<-ctx.Done()
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(c)
	}()
	go func() { _ = srv.Serve(ln) }()
	return actual, nil
}
