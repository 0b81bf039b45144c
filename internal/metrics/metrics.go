// Package metrics records deployment and verification outcomes as
// Prometheus collectors.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "ubexdeploy"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics implements deploy.Observer and verify.Recorder on a private
// registry.
type Metrics struct {
	registry      *prometheus.Registry
	deployments   *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	verifications *prometheus.CounterVec
}

// New creates the collectors and registers them.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		deployments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deployments_total",
			Help:      "Deployment actions by component and result.",
		}, []string{"component", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "deployment_duration_seconds",
			Help:      "Time spent in a single deployment action.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"component"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Post-deployment checks by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.deployments, m.duration, m.verifications)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDeployment records one deployment action.
func (m *Metrics) ObserveDeployment(component string, elapsed time.Duration, err error) {
	m.deployments.WithLabelValues(component, result(err)).Inc()
	m.duration.WithLabelValues(component).Observe(elapsed.Seconds())
}

// ObserveVerification records one check.
func (m *Metrics) ObserveVerification(err error) {
	m.verifications.WithLabelValues(result(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}),
	)
}

// Push sends the current values to a Pushgateway, grouped by network.
func (m *Metrics) Push(ctx context.Context, url, job, network string) error {
	err := push.New(url, job).
		Gatherer(m.registry).
		Grouping("network", network).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
