// Package metrics provides Prometheus metrics for the H200 index pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ExtractionAttemptsTotal counts strategy attempts per provider and outcome.
	ExtractionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_attempts_total",
			Help: "Total number of extraction strategy attempts",
		},
		[]string{"provider", "strategy", "outcome"},
	)

	// ObservationsTotal counts canonical price observations produced.
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_observations_total",
			Help: "Total number of canonical price observations produced",
		},
		[]string{"provider"},
	)

	// ProviderPriceUSD is the last canonical price seen per provider.
	ProviderPriceUSD = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provider_price_usd_hourly",
			Help: "Last canonical price per provider in USD per hour per GPU",
		},
		[]string{"provider"},
	)

	// IndexPriceUSD is the last composite index price computed.
	IndexPriceUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "index_price_usd_hourly",
			Help: "Last composite H200 index price in USD per hour per GPU",
		},
	)

	// ValidationDecisionsTotal counts validation gate outcomes.
	ValidationDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_decisions_total",
			Help: "Total number of validation gate decisions",
		},
		[]string{"outcome"},
	)

	// PublicationAttemptsTotal counts publication attempts per sink and outcome.
	PublicationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publication_attempts_total",
			Help: "Total number of publication attempts",
		},
		[]string{"sink", "outcome"},
	)

	// PublicationDuration is a histogram of publication latency per sink.
	PublicationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publication_duration_seconds",
			Help:    "Duration of publication operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	// RateFetchesTotal counts currency rate fetches per endpoint and outcome.
	RateFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_fetches_total",
			Help: "Total number of currency conversion rate fetches",
		},
		[]string{"endpoint", "outcome"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		ExtractionAttemptsTotal,
		ObservationsTotal,
		ProviderPriceUSD,
		IndexPriceUSD,
		ValidationDecisionsTotal,
		PublicationAttemptsTotal,
		PublicationDuration,
		RateFetchesTotal,
	)
}

// ServeHTTP starts the metrics HTTP server on the given address.
func ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

// ObservePublication records one publication attempt.
func ObservePublication(sink string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	PublicationAttemptsTotal.WithLabelValues(sink, outcome).Inc()
	PublicationDuration.WithLabelValues(sink).Observe(time.Since(start).Seconds())
}
