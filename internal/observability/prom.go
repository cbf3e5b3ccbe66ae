package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Prom struct {
	RequestsTotal    *prometheus.CounterVec
	RequestsDuration *prometheus.HistogramVec
	InFlight         *prometheus.GaugeVec

	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Pipeline
	PipelineRows         *prometheus.CounterVec
	PipelineRowDuration  prometheus.Histogram
	PipelineScans        *prometheus.CounterVec
	PipelineScanDuration prometheus.Histogram
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tickethub",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestsDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tickethub",
				Name:      "http_request_duration_seconds",
				Help:      "Admin API latency by route.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route", "status"},
		),
		InFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tickethub",
				Name:      "http_in_flight_requests",
				Help:      "Current number of in-flight HTTP requests.",
			},
			[]string{"method", "route"},
		),
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tickethub",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tickethub",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),

		PipelineRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tickethub",
				Subsystem: "pipeline",
				Name:      "rows_total",
				Help:      "Registration row outcomes by result.",
			},
			[]string{"result"}, // claimed|generated|sent|failed|skipped|email_deferred
		),
		PipelineRowDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tickethub",
				Subsystem: "pipeline",
				Name:      "row_duration_seconds",
				Help:      "Time to drive one registration row through the pipeline.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		PipelineScans: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tickethub",
				Subsystem: "pipeline",
				Name:      "scans_total",
				Help:      "Completed scans of the registration source by status.",
			},
			[]string{"status"},
		),
		PipelineScanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "tickethub",
				Subsystem: "pipeline",
				Name:      "scan_duration_seconds",
				Help:      "Duration of a full scan of the registration source.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),
	}
	reg.MustRegister(p.RequestsTotal, p.RequestsDuration, p.InFlight, p.DbQueryDuration, p.DbErrorsTotal, p.PipelineRows, p.PipelineRowDuration, p.PipelineScans, p.PipelineScanDuration)

	return p
}

// GinHandleMiddleware records request counts and latency by route template. Probe
// and scrape routes are not recorded.
func (p *Prom) GinHandleMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		route := ctx.FullPath()
		switch route {
		case "/metrics", "/healthz", "/readyz":
			ctx.Next()
			return
		case "":
			route = "unmatched"
		}

		start := time.Now()
		method := ctx.Request.Method
		inFlight := p.InFlight.WithLabelValues(method, route)
		inFlight.Inc()
		defer inFlight.Dec()

		ctx.Next()

		status := strconv.Itoa(ctx.Writer.Status())
		p.RequestsTotal.WithLabelValues(method, route, status).Inc()
		p.RequestsDuration.WithLabelValues(method, route, status).Observe(time.Since(start).Seconds())
	}
}
