package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clickcart"

// Checkout holds the orchestration collectors.
type Checkout struct {
	Outcomes      *prometheus.CounterVec // operation, outcome
	FinalizeMS    prometheus.Histogram
	Notifications *prometheus.CounterVec // event, result
	Releases      *prometheus.CounterVec // result
}

// NewCheckout creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewCheckout(reg prometheus.Registerer) *Checkout {
	m := &Checkout{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "operations_total",
			Help:      "Checkout operations by outcome.",
		}, []string{"operation", "outcome"}),
		FinalizeMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "finalize_duration_ms",
			Help:      "FinalizeOrder latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dispatch_total",
			Help:      "Notification dispatch attempts by result.",
		}, []string{"event", "result"}),
		Releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "compensating_releases_total",
			Help:      "Reservations released after a failed commit.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Outcomes, m.FinalizeMS, m.Notifications, m.Releases)
	}
	return m
}

// Server holds HTTP collectors.
type Server struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServer(reg prometheus.Registerer, service string) *Server {
	service = strings.ReplaceAll(service, "-", "_")
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route"})
	if reg != nil {
		reg.MustRegister(requests, latency)
	}
	return &Server{Requests: requests, LatencyMS: latency}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
