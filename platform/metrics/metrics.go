// Package metrics registers the Prometheus collectors for webhooks, CRM calls and sync runs.
// This is part of the platform layer and contains no business logic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound CRM webhook events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	syncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_records_total",
			Help: "Records processed by the reconciliation job",
		},
		[]string{"entity", "outcome"},
	)

	syncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_sync_run_duration_seconds",
			Help:    "Duration of full reconciliation runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"trigger", "success"},
	)

	crmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_requests_total",
			Help: "Outbound CRM API requests by operation and status code",
		},
		[]string{"operation", "status"},
	)

	leadConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_conversions_total",
			Help: "Leads removed because they converted to a deal",
		},
		[]string{"source"},
	)
)

// RecordWebhookEvent counts one webhook delivery.
func RecordWebhookEvent(kind, outcome string) {
	webhookEventsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordSyncRecords adds n records with the given outcome (created, updated, skipped, removed).
func RecordSyncRecords(entity, outcome string, n int) {
	if n <= 0 {
		return
	}
	syncRecordsTotal.WithLabelValues(entity, outcome).Add(float64(n))
}

// ObserveSyncRun records the duration of a full run.
func ObserveSyncRun(trigger string, success bool, d time.Duration) {
	syncRunDuration.WithLabelValues(trigger, strconv.FormatBool(success)).Observe(d.Seconds())
}

// RecordCRMRequest counts one outbound CRM request; status 0 means a transport error.
func RecordCRMRequest(operation string, status int) {
	crmRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

// RecordLeadConversion counts a converted lead by source (webhook_lead, webhook_deal, sync).
func RecordLeadConversion(source string) {
	leadConversionsTotal.WithLabelValues(source).Inc()
}

// Middleware records request counts and latency using the matched route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry for scraping.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
