// Package metrics exposes tycho's activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Metrics struct {
	registry *prometheus.Registry

	// requests by verb (start, status, delete, modify) and outcome
	Requests *prometheus.CounterVec

	// request duration by verb
	RequestDuration *prometheus.HistogramVec

	// config reloads by outcome
	ConfigReloads *prometheus.CounterVec
}

// New creates metrics registered to a new registry, with go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tycho_requests_total",
				Help: "Total number of system requests by verb and outcome",
			},
			[]string{"verb", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tycho_request_duration_seconds",
				Help:    "System request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"verb"},
		),
		ConfigReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tycho_config_reloads_total",
				Help: "Total number of config reloads by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.Requests,
		m.RequestDuration,
		m.ConfigReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Observe records a request of verb, which began at `begin` and ended with err.
func (m *Metrics) Observe(verb string, begin time.Time, err error) {
	m.Requests.WithLabelValues(verb, outcome(err)).Inc()
	m.RequestDuration.WithLabelValues(verb).Observe(time.Since(begin).Seconds())
}

// Reloaded records a config reload.
func (m *Metrics) Reloaded(err error) {
	m.ConfigReloads.WithLabelValues(outcome(err)).Inc()
}

// Handler serves metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
