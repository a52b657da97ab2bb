package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shopforge",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopforge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopforge",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	jobsAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopforge",
			Subsystem: "jobs",
			Name:      "added_total",
			Help:      "Total number of jobs enqueued.",
		},
		[]string{"queue"},
	)

	jobsSettled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopforge",
			Subsystem: "jobs",
			Name:      "settled_total",
			Help:      "Total number of jobs settled.",
		},
		[]string{"queue", "result"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopforge",
			Subsystem: "jobs",
			Name:      "run_duration_seconds",
			Help:      "Duration of job executions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
		[]string{"queue"},
	)

	emailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopforge",
			Subsystem: "email",
			Name:      "sends_total",
			Help:      "Total number of email delivery attempts.",
		},
		[]string{"status"},
	)

	collectionRebuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shopforge",
			Subsystem: "collections",
			Name:      "rebuilds_total",
			Help:      "Total number of collection membership rebuilds.",
		},
	)

	collectionRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "shopforge",
			Subsystem: "collections",
			Name:      "rebuild_duration_seconds",
			Help:      "Duration of collection membership rebuilds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	eventsDropped = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "shopforge",
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events lost to slow bus subscribers.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		jobsAdded,
		jobsSettled,
		jobDuration,
		emailsSent,
		collectionRebuilds,
		collectionRebuildDuration,
		eventsDropped,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordJobAdded records a job enqueue. Wire into jobqueue.Service.SetHooks.
func RecordJobAdded(queue string) {
	if queue == "" {
		queue = "unknown"
	}
	jobsAdded.WithLabelValues(queue).Inc()
}

// RecordJobSettled records a job settling with its terminal result.
func RecordJobSettled(queue, result string, duration time.Duration) {
	if queue == "" {
		queue = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobsSettled.WithLabelValues(queue, result).Inc()
	jobDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// RecordEmailSend records one delivery attempt outcome.
func RecordEmailSend(success bool) {
	status := "failed"
	if success {
		status = "sent"
	}
	emailsSent.WithLabelValues(status).Inc()
}

// RecordCollectionRebuild records one membership rebuild.
func RecordCollectionRebuild(duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	collectionRebuilds.Inc()
	collectionRebuildDuration.Observe(duration.Seconds())
}

// SetEventsDropped mirrors the bus drop counter into the registry.
func SetEventsDropped(n uint64) {
	eventsDropped.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource IDs so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	return "/" + parts[0] + "/:id"
}
