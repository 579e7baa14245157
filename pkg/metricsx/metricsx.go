// Package metricsx holds the Prometheus counters of the authentication core.
// A nil *Metrics is valid and records nothing.
package metricsx

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gatekeeper"

type Metrics struct {
	registry           *prometheus.Registry
	verificationResult *prometheus.CounterVec
	relayResult        *prometheus.CounterVec
	apiKeyChecks       *prometheus.CounterVec
	jobs               *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		verificationResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_consume_total",
			Help:      "Verification code consumption attempts by code type and outcome.",
		}, []string{"type", "outcome"}),
		relayResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_relay_total",
			Help:      "OAuth relay steps by stage (authorize, callback, token) and outcome.",
		}, []string{"stage", "outcome"}),
		apiKeyChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apikey_checks_total",
			Help:      "API key checks by tier and result.",
		}, []string{"tier", "valid"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs by type and outcome.",
		}, []string{"type", "outcome"}),
	}
	reg.MustRegister(
		m.verificationResult,
		m.relayResult,
		m.apiKeyChecks,
		m.jobs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// VerificationConsumed counts one consumption attempt.
func (m *Metrics) VerificationConsumed(codeType, outcome string) {
	if m == nil {
		return
	}
	m.verificationResult.WithLabelValues(codeType, outcome).Inc()
}

// RelayStep counts one relay stage result.
func (m *Metrics) RelayStep(stage, outcome string) {
	if m == nil {
		return
	}
	m.relayResult.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) APIKeyChecked(tier string, valid bool) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.apiKeyChecks.WithLabelValues(tier, v).Inc()
}

// JobFinished counts one processed background job. It matches the jobx
// observer signature.
func (m *Metrics) JobFinished(jobType, outcome string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(jobType, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
