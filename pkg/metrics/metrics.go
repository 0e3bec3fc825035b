// Package metrics exposes Prometheus metrics for tree evaluations and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Evaluation outcomes recorded by ObserveEvaluation.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeTooLarge = "too_large"
	OutcomeTimeout  = "timeout"
	OutcomeError    = "error"
)

// Collector holds all Prometheus metrics for the service on its own registry.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Evaluation metrics
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	EvaluationPaths    prometheus.Histogram

	// Explainer metrics
	Explanations *prometheus.CounterVec
}

// NewCollector creates a collector with the given namespace and registers Go runtime
// and process metrics alongside it.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tree_evaluations_total",
				Help:      "Total number of decision tree evaluations by outcome",
			},
			[]string{"outcome"},
		),
		EvaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tree_evaluation_duration_seconds",
				Help:      "Time spent validating, enumerating and ranking one tree",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
		),
		EvaluationPaths: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tree_evaluation_paths",
				Help:      "Number of paths produced by successful evaluations",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		Explanations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recommendation_explanations_total",
				Help:      "Total number of LLM explanation requests by provider and status",
			},
			[]string{"provider", "status"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Evaluations,
		c.EvaluationDuration,
		c.EvaluationPaths,
		c.Explanations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry the collector's metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveEvaluation records one evaluation. paths is only observed for OutcomeOK.
func (c *Collector) ObserveEvaluation(outcome string, elapsed time.Duration, paths int) {
	c.Evaluations.WithLabelValues(outcome).Inc()
	c.EvaluationDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeOK {
		c.EvaluationPaths.Observe(float64(paths))
	}
}

// ObserveExplanation records one explainer call.
func (c *Collector) ObserveExplanation(provider string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Explanations.WithLabelValues(provider, status).Inc()
}
