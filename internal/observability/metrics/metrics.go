package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProxyMetrics exposes counters/histograms for the Clinicorp proxy.
type ProxyMetrics struct {
	requestsTotal    *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	credentialSource *prometheus.CounterVec
}

func NewProxyMetrics(reg prometheus.Registerer) *ProxyMetrics {
	m := &ProxyMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odontomarket",
			Subsystem: "clinicorp",
			Name:      "proxy_requests_total",
			Help:      "Total proxy invocations by outcome code",
		}, []string{"method", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "odontomarket",
			Subsystem: "clinicorp",
			Name:      "upstream_latency_seconds",
			Help:      "Latency of upstream Clinicorp calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		credentialSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "odontomarket",
			Subsystem: "clinicorp",
			Name:      "credential_source_total",
			Help:      "Which storage source yielded the upstream credentials",
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.upstreamLatency, m.credentialSource)
	return m
}

func (m *ProxyMetrics) ObserveRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, outcome).Inc()
}

func (m *ProxyMetrics) ObserveUpstreamLatency(method string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(method).Observe(seconds)
}

func (m *ProxyMetrics) ObserveCredentialSource(source string) {
	if m == nil {
		return
	}
	m.credentialSource.WithLabelValues(source).Inc()
}
