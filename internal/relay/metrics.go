package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks relay Prometheus metrics. All names carry the
// notifyrelay_ prefix.
type Metrics struct {
	// RequestsTotal counts /notify calls by outcome ("accepted", "rejected").
	RequestsTotal *prometheus.CounterVec

	// DeliveriesTotal counts background deliveries by sink and result
	// ("success", "failure").
	DeliveriesTotal *prometheus.CounterVec

	// DeliveryDuration tracks how long a sink took per delivery.
	DeliveryDuration *prometheus.HistogramVec

	// ConfigReloads counts applied hot reloads of the master config.
	ConfigReloads prometheus.Counter

	reg prometheus.Registerer
}

// NewMetrics creates and registers the relay metrics on reg.
// Panics if registration fails (expected during initialization only).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifyrelay_notify_requests_total",
				Help: "Total /notify requests by outcome",
			},
			[]string{"outcome"},
		),
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifyrelay_deliveries_total",
				Help: "Total notification deliveries by sink and result",
			},
			[]string{"sink", "result"},
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "notifyrelay_delivery_duration_seconds",
				Help:    "Notification delivery duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"sink"},
		),
		ConfigReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "notifyrelay_config_reloads_total",
				Help: "Total master config reloads applied without restart",
			},
		),
		reg: reg,
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.DeliveriesTotal,
		m.DeliveryDuration,
		m.ConfigReloads,
	)
	return m
}

// TrackInFlight registers a gauge reading the in-flight delivery count.
func (m *Metrics) TrackInFlight(fn func() int64) {
	if m == nil || fn == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "notifyrelay_deliveries_in_flight",
			Help: "Deliveries started but not finished",
		},
		func() float64 { return float64(fn()) },
	))
}

// RecordRequest is nil-safe so handlers can run without metrics.
func (m *Metrics) RecordRequest(accepted bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDelivery implements sink.Observer.
func (m *Metrics) ObserveDelivery(sinkName string, err error, d time.Duration) {
	if m == nil {
		return
	}
	if sinkName == "" {
		sinkName = "none"
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.DeliveriesTotal.WithLabelValues(sinkName, result).Inc()
	m.DeliveryDuration.WithLabelValues(sinkName).Observe(d.Seconds())
}

func (m *Metrics) RecordReload() {
	if m == nil {
		return
	}
	m.ConfigReloads.Inc()
}
