// Package metrics exposes Prometheus counters for the real-time core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is the recording surface used by the broker, services and
// middleware.
type MetricsCollector interface {
	RecordEventPublished(eventType string, delivered, dropped int)
	RecordSessions(authenticated, guests int)
	RecordClaim(outcome string)
	RecordCallEnded(status string, durationSeconds int)
	RecordHeart(action string)
	RecordMomentsExpired(count int)
	RecordHTTPStatus(statusCode int)
	RecordStoreLatency(op string, d time.Duration)
}

// Claim outcomes.
const (
	ClaimSuccess        = "success"
	ClaimNoAvailability = "no_availability"
	ClaimError          = "error"
)

type Collector struct {
	eventsDelivered *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	sessions        *prometheus.GaugeVec
	claims          *prometheus.CounterVec
	callsEnded      *prometheus.CounterVec
	callDuration    prometheus.Histogram
	hearts          *prometheus.CounterVec
	momentsExpired  prometheus.Counter
	httpStatus      *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jojo_events_delivered_total",
			Help: "Real-time events handed to a session buffer.",
		}, []string{"event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jojo_events_dropped_total",
			Help: "Real-time events dropped because a session buffer was full.",
		}, []string{"event"}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jojo_sessions",
			Help: "Live transport sessions by identity kind.",
		}, []string{"kind"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jojo_claims_total",
			Help: "Moment claim attempts by outcome.",
		}, []string{"outcome"}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jojo_calls_ended_total",
			Help: "Calls reaching a terminal status.",
		}, []string{"status"}),
		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jojo_call_duration_seconds",
			Help:    "Capped duration of completed calls.",
			Buckets: []float64{1, 5, 10, 15, 20, 25, 30},
		}),
		hearts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jojo_hearts_total",
			Help: "Heart additions and removals.",
		}, []string{"action"}),
		momentsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jojo_moments_expired_total",
			Help: "Moments marked expired by the sweep.",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jojo_http_status_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jojo_store_latency_seconds",
			Help:    "Latency of store-backed service operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		c.eventsDelivered,
		c.eventsDropped,
		c.sessions,
		c.claims,
		c.callsEnded,
		c.callDuration,
		c.hearts,
		c.momentsExpired,
		c.httpStatus,
		c.storeLatency,
	)

	return c
}

func (c *Collector) RecordEventPublished(eventType string, delivered, dropped int) {
	if delivered > 0 {
		c.eventsDelivered.WithLabelValues(eventType).Add(float64(delivered))
	}
	if dropped > 0 {
		c.eventsDropped.WithLabelValues(eventType).Add(float64(dropped))
	}
}

func (c *Collector) RecordSessions(authenticated, guests int) {
	c.sessions.WithLabelValues("authenticated").Set(float64(authenticated))
	c.sessions.WithLabelValues("guest").Set(float64(guests))
}

func (c *Collector) RecordClaim(outcome string) {
	c.claims.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordCallEnded(status string, durationSeconds int) {
	c.callsEnded.WithLabelValues(status).Inc()
	if status == "completed" {
		c.callDuration.Observe(float64(durationSeconds))
	}
}

func (c *Collector) RecordHeart(action string) {
	c.hearts.WithLabelValues(action).Inc()
}

func (c *Collector) RecordMomentsExpired(count int) {
	c.momentsExpired.Add(float64(count))
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

func (c *Collector) RecordStoreLatency(op string, d time.Duration) {
	c.storeLatency.WithLabelValues(op).Observe(d.Seconds())
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordEventPublished(string, int, int) {}
func (Nop) RecordSessions(int, int) {}
func (Nop) RecordClaim(string) {}
func (Nop) RecordCallEnded(string, int) {}
func (Nop) RecordHeart(string) {}
func (Nop) RecordMomentsExpired(int) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordStoreLatency(string, time.Duration) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler serves the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
