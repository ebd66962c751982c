// Copyright 2026 The Palisade Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package serve

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_decisions_total",
			Help: "Total number of gate decisions by verdict and rule.",
		},
		[]string{"verdict", "rule"},
	)

	evalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "palisade_eval_duration_microseconds",
			Help: "Gate evaluation duration in microseconds.",
			Buckets: []float64{
				1, 5, 10, 50, 100, 500,
				1000, 5000, 10000, 50000, 100000,
			},
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palisade_http_requests_total",
			Help: "Total HTTP requests by status code.",
		},
		[]string{"code"},
	)

	eventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "palisade_event_subscribers",
			Help: "Current number of connected event stream clients.",
		},
	)

	metricsRegistry = prometheus.NewRegistry()
)

func init() {
	metricsRegistry.MustRegister(
		decisionsTotal,
		evalDuration,
		httpRequestsTotal,
		eventSubscribers,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
}

// RecordDecision records a gate decision for Prometheus metrics.
func RecordDecision(verdict, rule string, duration time.Duration) {
	if rule == "" {
		rule = "none"
	}
	decisionsTotal.With(prometheus.Labels{"verdict": verdict, "rule": rule}).Inc()
	evalDuration.Observe(float64(duration.Microseconds()))
}

// SetEventSubscribers sets the connected event client gauge.
func SetEventSubscribers(n int) {
	eventSubscribers.Set(float64(n))
}

// MetricsHandler returns an HTTP handler for the /metrics endpoint.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
}
