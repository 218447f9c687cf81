package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Blackwoodproductions/webstack-services/internal/events"
)

// PrometheusSink exports audit and monitor progress metrics via
// Prometheus. It owns the collectors for audits started/completed/
// running, per-site page fetch counters, and alert lifecycle counters.
type PrometheusSink struct {
	auditsStarted   prometheus.Counter
	auditsCompleted *prometheus.CounterVec
	auditsRunning   prometheus.Gauge
	auditRuntime    *prometheus.HistogramVec

	pageRequests *prometheus.CounterVec
	pageBytes    *prometheus.CounterVec
	pageDuration *prometheus.HistogramVec

	alertTransitions *prometheus.CounterVec
	remediesApplied  *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		auditsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webstack_audits_started_total",
			Help: "Total audit jobs that have started.",
		}),
		auditsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webstack_audits_completed_total",
			Help: "Total audit jobs completed partitioned by result.",
		}, []string{"result"}),
		auditsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webstack_audits_running",
			Help: "Current number of running audit jobs.",
		}),
		auditRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webstack_audit_runtime_seconds",
			Help:    "Wall time per completed audit job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		pageRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webstack_page_fetches_total",
			Help: "Page fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		pageBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webstack_page_bytes_total",
			Help: "Bytes downloaded per audited site.",
		}, []string{"site"}),
		pageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webstack_page_fetch_duration_seconds",
			Help:    "Page fetch duration partitioned by site and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"site", "status_class"}),
		alertTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webstack_alert_transitions_total",
			Help: "Alert lifecycle transitions partitioned by check and transition.",
		}, []string{"check", "transition"}),
		remediesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webstack_remedies_applied_total",
			Help: "Remediation attempts partitioned by check and remedy.",
		}, []string{"check", "remedy"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.auditsStarted,
		s.auditsCompleted,
		s.auditsRunning,
		s.auditRuntime,
		s.pageRequests,
		s.pageBytes,
		s.pageDuration,
		s.alertTransitions,
		s.remediesApplied,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []events.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt events.Event) {
	switch evt.Kind {
	case events.KindAuditStart, events.KindAuditDone, events.KindAuditError, events.KindAuditCanceled:
		s.handleAuditEvent(evt)
	case events.KindPageFetch:
		s.handlePageEvent(evt)
	case events.KindAlertRaised:
		s.alertTransitions.WithLabelValues(evt.Check, "raised").Inc()
	case events.KindAlertResolved:
		s.alertTransitions.WithLabelValues(evt.Check, "resolved").Inc()
	case events.KindRemedy:
		s.remediesApplied.WithLabelValues(evt.Check, evt.Remedy).Inc()
	}
}

func (s *PrometheusSink) handleAuditEvent(evt events.Event) {
	switch evt.Kind {
	case events.KindAuditStart:
		s.auditsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.auditsRunning.Inc()
		}
	case events.KindAuditDone:
		s.auditsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case events.KindAuditError:
		s.auditsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	case events.KindAuditCanceled:
		s.auditsCompleted.WithLabelValues("canceled").Inc()
		s.observeRuntime(evt, "canceled")
	}
	if evt.Kind != events.KindAuditStart && s.tracker.complete(evt.JobID) {
		s.auditsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt events.Event, label string) {
	if evt.Dur > 0 {
		s.auditRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handlePageEvent(evt events.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(events.StatusOther)
	}
	s.pageRequests.WithLabelValues(site, statusClass).Inc()
	if evt.Bytes > 0 {
		s.pageBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.pageDuration.WithLabelValues(site, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[[16]byte]struct{})}
}

func (t *jobTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
