// Package metrics exposes Prometheus collectors for the webstack service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	upstreamRequestsTotal      *prometheus.CounterVec
	upstreamDurationSeconds    *prometheus.HistogramVec
	keywordCacheEventsTotal    *prometheus.CounterVec
	keywordCacheDomains        prometheus.Gauge
	bronSessionsActive         prometheus.Gauge
	healthProbesTotal          *prometheus.CounterVec
	healthRemediationsTotal    *prometheus.CounterVec
	healthAlertsOpen           prometheus.Gauge
	auditJobsTotal             *prometheus.CounterVec
	auditPagesTotal            *prometheus.CounterVec
	auditBytesTotal            *prometheus.CounterVec
	auditActiveWorkers         prometheus.Gauge
	auditRateLimitDelaySeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webstack_upstream_requests_total",
				Help: "Total proxy calls to third-party APIs, labeled by upstream and outcome.",
			},
			[]string{"upstream", "outcome"},
		)

		upstreamDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webstack_upstream_duration_seconds",
				Help:    "Histogram of third-party API latencies, labeled by upstream.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"upstream"},
		)

		keywordCacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webstack_keyword_cache_events_total",
				Help: "Keyword cache activity, labeled by event (hit, miss, evict, expire, purge).",
			},
			[]string{"event"},
		)

		keywordCacheDomains = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webstack_keyword_cache_domains",
				Help: "Number of domains currently held by the keyword cache.",
			},
		)

		bronSessionsActive = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webstack_bron_sessions_active",
				Help: "Live sessions held by the BRON bridge.",
			},
		)

		healthProbesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webstack_health_probes_total",
				Help: "Health probes executed, labeled by check and result.",
			},
			[]string{"check", "result"},
		)

		healthRemediationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webstack_health_remediations_total",
				Help: "Remediation attempts, labeled by check, remedy, and outcome.",
			},
			[]string{"check", "remedy", "outcome"},
		)

		healthAlertsOpen = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webstack_health_alerts_open",
				Help: "Unresolved health alerts.",
			},
		)

		auditJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webstack_audit_jobs_total",
				Help: "Total number of audit jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		auditPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webstack_audit_pages_total",
				Help: "Total number of pages audited, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		auditBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webstack_audit_bytes_total",
				Help: "Total number of bytes fetched during audits, labeled by site.",
			},
			[]string{"site"},
		)

		auditActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "webstack_audit_active_workers",
				Help: "Number of workers currently processing an audit job.",
			},
		)

		auditRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webstack_audit_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveUpstream records one proxy call to a third-party API.
func ObserveUpstream(upstream, outcome string, duration time.Duration) {
	upstreamRequestsTotal.WithLabelValues(upstream, outcome).Inc()
	upstreamDurationSeconds.WithLabelValues(upstream).Observe(duration.Seconds())
}

// ObserveKeywordCache counts a cache event (hit, miss, evict, expire, purge).
func ObserveKeywordCache(event string) {
	keywordCacheEventsTotal.WithLabelValues(event).Inc()
}

// SetKeywordCacheDomains reports the current cache population.
func SetKeywordCacheDomains(n int) {
	keywordCacheDomains.Set(float64(n))
}

// SetBronSessionsActive reports the live session count on the bridge.
func SetBronSessionsActive(n int) {
	bronSessionsActive.Set(float64(n))
}

// ObserveHealthProbe counts a probe result (ok or fail) per check.
func ObserveHealthProbe(check, result string) {
	healthProbesTotal.WithLabelValues(check, result).Inc()
}

// ObserveRemediation counts a remediation attempt per check and remedy.
func ObserveRemediation(check, remedy, outcome string) {
	healthRemediationsTotal.WithLabelValues(check, remedy, outcome).Inc()
}

// SetOpenAlerts reports the number of unresolved alerts.
func SetOpenAlerts(n int) {
	healthAlertsOpen.Set(float64(n))
}

// ObserveAuditJob increments the audit job counter for the given status.
func ObserveAuditJob(status string) {
	auditJobsTotal.WithLabelValues(status).Inc()
}

// ObserveAuditPage increments the audit page metrics.
func ObserveAuditPage(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	auditPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		auditBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// IncActiveWorkers increments the active audit workers gauge.
func IncActiveWorkers() {
	auditActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active audit workers gauge.
func DecActiveWorkers() {
	auditActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a per-host rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	auditRateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
