// Package metrics exposes Prometheus metrics for the HTTP surface, the user
// directory and the file reaper.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes used as the result label.
const (
	ResultSuccess     = "success"
	ResultRejected    = "rejected"
	ResultDeactivated = "deactivated"
	ResultError       = "error"
)

// Recorder is what the service layer reports to.
type Recorder interface {
	RecordRegistration(result string)
	RecordLogin(result string)
	RecordUpload(result string)
}

// Collector holds the registered collectors.
type Collector struct {
	requests      *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	reaperPending prometheus.Gauge
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "userapi_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_registrations_total",
			Help: "Registration attempts by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_profile_picture_uploads_total",
			Help: "Profile picture uploads by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userapi_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route pattern.",
		}, []string{"route"}),
		reaperPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "userapi_file_reaper_pending",
			Help: "Files waiting for a deletion retry.",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.registrations,
		c.logins,
		c.uploads,
		c.rateLimited,
		c.reaperPending,
	)

	return c
}

func (c *Collector) RecordRegistration(result string) {
	c.registrations.WithLabelValues(result).Inc()
}

func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) RecordUpload(result string) {
	c.uploads.WithLabelValues(result).Inc()
}

// RecordRateLimited counts a request turned away with 429.
func (c *Collector) RecordRateLimited(route string) {
	c.rateLimited.WithLabelValues(route).Inc()
}

// SetReaperPending reports the file reaper backlog.
func (c *Collector) SetReaperPending(count int) {
	c.reaperPending.Set(float64(count))
}

// Middleware records request count and latency per chi route pattern, so
// path parameters do not explode the label space.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(response, request.ProtoMajor)

		next.ServeHTTP(wrapped, request)

		route := "unmatched"
		if routeContext := chi.RouteContext(request.Context()); routeContext != nil {
			if pattern := routeContext.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := wrapped.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.requests.WithLabelValues(request.Method, route, strconv.Itoa(status)).Inc()
		c.latency.WithLabelValues(request.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything; used when metrics are not wired.
type Nop struct{}

func (Nop) RecordRegistration(string) {}
func (Nop) RecordLogin(string)        {}
func (Nop) RecordUpload(string)       {}
