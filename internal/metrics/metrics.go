// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memohai/playbot/internal/channel"
	"github.com/memohai/playbot/internal/jobs"
	"github.com/memohai/playbot/internal/media"
)

const namespace = "playbot"

// Metrics owns a private registry so tests and multiple instances do not clash.
type Metrics struct {
	registry *prometheus.Registry

	ProviderAttempts *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	Requests         *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	DeliveryLatency  *prometheus.HistogramVec
	JobsExpired      prometheus.Counter
}

// New registers all collectors, including Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Resolver provider attempts by outcome.",
		}, []string{"provider", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_seconds",
			Help:      "Time spent in a single provider attempt.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		}, []string{"provider"}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Play requests by channel and outcome.",
		}, []string{"channel", "outcome"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Decided jobs by media kind and outcome.",
		}, []string{"kind", "outcome"}),
		DeliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_seconds",
			Help:      "Time from decision to delivery or failure.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"kind"}),
		JobsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_expired_total",
			Help:      "Previews that expired without a decision.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ProviderAttempts,
		m.ProviderLatency,
		m.Requests,
		m.Deliveries,
		m.DeliveryLatency,
		m.JobsExpired,
	)
	return m
}

// TrackPendingJobs exports the size of the job registry as a gauge.
func (m *Metrics) TrackPendingJobs(registry *jobs.Registry) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_pending",
		Help:      "Open previews awaiting a decision.",
	}, func() float64 {
		return float64(registry.Len())
	}))
}

// ObserveProvider matches resolver.Observer.
func (m *Metrics) ObserveProvider(provider, outcome string, elapsed time.Duration) {
	m.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RequestFinished records a play request outcome.
func (m *Metrics) RequestFinished(channelType channel.ChannelType, outcome string) {
	m.Requests.WithLabelValues(channelType.String(), outcome).Inc()
}

// DeliveryFinished records a decided job outcome.
func (m *Metrics) DeliveryFinished(kind media.MediaType, outcome string, elapsed time.Duration) {
	m.Deliveries.WithLabelValues(string(kind), outcome).Inc()
	m.DeliveryLatency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// JobExpired is the job registry's expiry hook.
func (m *Metrics) JobExpired(*jobs.PendingJob) {
	m.JobsExpired.Inc()
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
