package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shop holds the service's collectors. A nil *Shop records nothing.
type Shop struct {
	Requests        *prometheus.CounterVec
	LatencyMS       *prometheus.HistogramVec
	CheckoutSteps   *prometheus.CounterVec
	OrdersCompleted *prometheus.CounterVec
	PaymentFailures *prometheus.CounterVec
}

func New(reg prometheus.Registerer, service string) *Shop {
	m := &Shop{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shop",
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		CheckoutSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: service,
			Name:      "checkout_steps_total",
			Help:      "Checkout requests by flow, step and outcome.",
		}, []string{"flow", "step", "outcome"}),
		OrdersCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: service,
			Name:      "orders_completed_total",
			Help:      "Orders finalized by flow.",
		}, []string{"flow"}),
		PaymentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shop",
			Subsystem: service,
			Name:      "payment_failures_total",
			Help:      "Payment attempts rejected or failed by flow.",
		}, []string{"flow"}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.CheckoutSteps, m.OrdersCompleted, m.PaymentFailures)
	return m
}

func (m *Shop) Step(flow string, step int, outcome string) {
	if m == nil {
		return
	}
	m.CheckoutSteps.WithLabelValues(flow, strconv.Itoa(step), outcome).Inc()
}

func (m *Shop) OrderCompleted(flow string) {
	if m == nil {
		return
	}
	m.OrdersCompleted.WithLabelValues(flow).Inc()
}

func (m *Shop) PaymentFailed(flow string) {
	if m == nil {
		return
	}
	m.PaymentFailures.WithLabelValues(flow).Inc()
}

func (m *Shop) ObserveRequest(route string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(started).Milliseconds()))
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
