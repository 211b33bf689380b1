package infra

import (
	"time"

	"quota-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics publica as decisões do rate limit.
//
// Os labels são só limiter e outcome; a chave do cliente nunca vira label.
type PrometheusMetrics struct {
	decisions *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	swept     prometheus.Counter
}

// NewPrometheusMetrics registra os coletores em reg. Use prometheus.NewRegistry()
// em testes para não colidir com o registry global.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_gateway_decisions_total",
				Help: "Total number of rate limit decisions by limiter and outcome",
			},
			[]string{"limiter", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quota_gateway_consume_duration_seconds",
				Help:    "Duration of rate limit consume calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs a ~160ms
			},
			[]string{"limiter"},
		),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quota_gateway_local_swept_total",
			Help: "Total number of expired local records reclaimed by the sweeper",
		}),
	}
	reg.MustRegister(m.decisions, m.duration, m.swept)
	return m
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)

func (m *PrometheusMetrics) ObserveDecision(limiter string, outcome domain.Outcome, elapsed time.Duration) {
	m.decisions.WithLabelValues(limiter, outcome.String()).Inc()
	m.duration.WithLabelValues(limiter).Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) ObserveSweep(removed int) {
	m.swept.Add(float64(removed))
}
