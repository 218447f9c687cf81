package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Blackwoodproductions/webstack-services/internal/backoff"
	"github.com/Blackwoodproductions/webstack-services/internal/config"
	"github.com/Blackwoodproductions/webstack-services/internal/events"
	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
)

const defaultFailureThreshold = 3

// Deps bundles the monitor's collaborators.
type Deps struct {
	Probes    ProbeStore
	Alerts    AlertStore
	Purger    CachePurger
	Refresher SessionRefresher
	Policy    *backoff.Policy
	Emitter   Emitter
	Clock     Clock
	IDs       IDGenerator
	// Client performs the probe requests. A default client with the
	// configured probe timeout is used when nil.
	Client *http.Client
}

// Monitor probes the configured checks and applies scripted remedies
// once a check crosses the consecutive-failure threshold.
type Monitor struct {
	cfg       config.HealthConfig
	threshold int
	cooldown  time.Duration
	client    *http.Client
	probes    ProbeStore
	alerts    AlertStore
	purger    CachePurger
	refresher SessionRefresher
	policy    *backoff.Policy
	emitter   Emitter
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger

	// runMu serializes check execution. The interval ticker and the
	// cron endpoint share one Monitor; overlapping runs would race the
	// find-unresolved/raise sequence and duplicate open alerts.
	runMu sync.Mutex

	mu       sync.Mutex
	failures map[string]int
	last     map[string]ProbeResult
	open     map[string]bool
}

// NewMonitor builds a Monitor from configuration.
func NewMonitor(cfg config.HealthConfig, deps Deps, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = defaultFailureThreshold
	}
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
	client := deps.Client
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.ProbeTimeoutSeconds) * time.Second}
	}
	policy := deps.Policy
	if policy == nil {
		policy = backoff.NewPolicy()
	}
	return &Monitor{
		cfg:       cfg,
		threshold: threshold,
		cooldown:  cooldown,
		client:    client,
		probes:    deps.Probes,
		alerts:    deps.Alerts,
		purger:    deps.Purger,
		refresher: deps.Refresher,
		policy:    policy,
		emitter:   deps.Emitter,
		clock:     deps.Clock,
		ids:       deps.IDs,
		logger:    logger.Named("health.monitor"),
		failures:  make(map[string]int),
		last:      make(map[string]ProbeResult),
		open:      make(map[string]bool),
	}
}

// Run probes every check on the configured interval until the context
// is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	interval := time.Duration(m.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce probes every configured check sequentially and returns the
// resulting statuses. It is also the cron entry point behind
// POST /v1/health/run; concurrent calls run one at a time so a check
// never holds more than one open alert.
func (m *Monitor) RunOnce(ctx context.Context) []CheckStatus {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	for _, chk := range m.cfg.Checks {
		if ctx.Err() != nil {
			break
		}
		m.runCheck(ctx, chk)
	}
	return m.Statuses()
}

// Statuses reports the monitor's current view of every check.
func (m *Monitor) Statuses() []CheckStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CheckStatus, 0, len(m.cfg.Checks))
	for _, chk := range m.cfg.Checks {
		st := CheckStatus{
			Name:                chk.Name,
			URL:                 chk.URL,
			Remedy:              chk.Remedy,
			State:               m.stateLocked(chk.Name),
			ConsecutiveFailures: m.failures[chk.Name],
		}
		if res, ok := m.last[chk.Name]; ok {
			ts := res.ObservedAt
			st.LastProbe = &ts
			st.LastError = res.ErrorText
		}
		out = append(out, st)
	}
	return out
}

func (m *Monitor) stateLocked(check string) State {
	n := m.failures[check]
	switch {
	case n == 0:
		return StateHealthy
	case n < m.threshold:
		return StateDegraded
	default:
		return StateFailing
	}
}

func (m *Monitor) runCheck(ctx context.Context, chk config.HealthCheckConfig) {
	res := m.probeAndRecord(ctx, chk)
	if res.OK {
		m.onSuccess(ctx, chk, res)
		return
	}

	m.mu.Lock()
	m.failures[chk.Name]++
	count := m.failures[chk.Name]
	m.mu.Unlock()

	if count < m.threshold {
		m.logger.Warn("check degraded",
			zap.String("check", chk.Name),
			zap.Int("consecutive_failures", count),
			zap.String("error", res.ErrorText))
		return
	}

	m.ensureAlert(ctx, chk, res)
	if chk.Remedy == "" {
		return
	}

	reprobe := m.remediate(ctx, chk)
	if reprobe.OK {
		metrics.ObserveRemediation(chk.Name, chk.Remedy, "recovered")
		m.onSuccess(ctx, chk, reprobe)
		return
	}
	metrics.ObserveRemediation(chk.Name, chk.Remedy, "still_failing")
	m.logger.Error("remediation did not recover check",
		zap.String("check", chk.Name),
		zap.String("remedy", chk.Remedy),
		zap.String("error", reprobe.ErrorText))
}

// onSuccess resets the failure counter and resolves any open alert.
func (m *Monitor) onSuccess(ctx context.Context, chk config.HealthCheckConfig, res ProbeResult) {
	m.mu.Lock()
	m.failures[chk.Name] = 0
	m.mu.Unlock()

	alert, found, err := m.alerts.FindUnresolved(ctx, chk.Name)
	if err != nil {
		m.logger.Error("lookup unresolved alert",
			zap.String("check", chk.Name), zap.Error(err))
		return
	}
	if !found {
		m.markOpen(chk.Name, false)
		return
	}
	if err := m.alerts.Resolve(ctx, alert.ID, res.ObservedAt); err != nil {
		m.logger.Error("resolve alert",
			zap.String("check", chk.Name),
			zap.String("alert_id", alert.ID),
			zap.Error(err))
		return
	}
	m.markOpen(chk.Name, false)
	m.emit(events.Event{
		TS:    res.ObservedAt,
		Kind:  events.KindAlertResolved,
		Check: chk.Name,
		Note:  alert.Message,
	})
	m.logger.Info("alert resolved",
		zap.String("check", chk.Name),
		zap.String("alert_id", alert.ID))
}

// ensureAlert raises an alert for a failing check unless one is
// already open. Repeated failing cycles never duplicate an alert.
func (m *Monitor) ensureAlert(ctx context.Context, chk config.HealthCheckConfig, res ProbeResult) {
	_, found, err := m.alerts.FindUnresolved(ctx, chk.Name)
	if err != nil {
		m.logger.Error("lookup unresolved alert",
			zap.String("check", chk.Name), zap.Error(err))
		return
	}
	if found {
		m.markOpen(chk.Name, true)
		return
	}

	id, err := m.ids.NewID()
	if err != nil {
		m.logger.Error("mint alert id", zap.Error(err))
		return
	}
	alert := Alert{
		ID:       id,
		Check:    chk.Name,
		Message:  fmt.Sprintf("check %s failing: %s", chk.Name, res.ErrorText),
		RaisedAt: res.ObservedAt,
	}
	if err := m.alerts.Raise(ctx, alert); err != nil {
		m.logger.Error("raise alert",
			zap.String("check", chk.Name), zap.Error(err))
		return
	}
	m.markOpen(chk.Name, true)
	m.emit(events.Event{
		TS:    res.ObservedAt,
		Kind:  events.KindAlertRaised,
		Check: chk.Name,
		Note:  alert.Message,
	})
	m.logger.Error("alert raised",
		zap.String("check", chk.Name),
		zap.String("alert_id", alert.ID),
		zap.String("error", res.ErrorText))
}

// remediate runs the scripted remedy for the check type, then
// re-probes. The retry_backoff remedy's bounded probes double as the
// re-probe.
func (m *Monitor) remediate(ctx context.Context, chk config.HealthCheckConfig) ProbeResult {
	m.emit(events.Event{
		TS:     m.clock.Now(),
		Kind:   events.KindRemedy,
		Check:  chk.Name,
		Remedy: chk.Remedy,
	})
	m.logger.Info("running remediation",
		zap.String("check", chk.Name),
		zap.String("remedy", chk.Remedy))

	switch chk.Remedy {
	case config.RemedyCacheClear:
		if m.purger != nil {
			dropped := m.purger.Purge()
			m.logger.Info("keyword cache purged", zap.Int("dropped", dropped))
		}
	case config.RemedyTokenRefresh:
		if m.refresher != nil {
			refreshed := m.refresher.RefreshAll(ctx)
			m.logger.Info("bron sessions refreshed", zap.Int("count", refreshed))
		}
	case config.RemedyCooldown:
		select {
		case <-ctx.Done():
		case <-time.After(m.cooldown):
		}
	case config.RemedyRetryBackoff:
		var res ProbeResult
		for attempt := 0; attempt < m.policy.MaxAttempts(); attempt++ {
			if err := m.policy.Wait(ctx, attempt); err != nil {
				res.Check = chk.Name
				res.ErrorText = err.Error()
				res.ObservedAt = m.clock.Now()
				return res
			}
			res = m.probeAndRecord(ctx, chk)
			if res.OK {
				break
			}
		}
		return res
	}
	return m.probeAndRecord(ctx, chk)
}

func (m *Monitor) probeAndRecord(ctx context.Context, chk config.HealthCheckConfig) ProbeResult {
	res := m.probe(ctx, chk)

	outcome := "fail"
	if res.OK {
		outcome = "ok"
	}
	metrics.ObserveHealthProbe(chk.Name, outcome)

	if m.probes != nil {
		if err := m.probes.RecordProbe(ctx, res); err != nil {
			m.logger.Error("record probe result",
				zap.String("check", chk.Name), zap.Error(err))
		}
	}

	m.mu.Lock()
	m.last[chk.Name] = res
	m.mu.Unlock()
	return res
}

func (m *Monitor) probe(ctx context.Context, chk config.HealthCheckConfig) ProbeResult {
	res := ProbeResult{
		Check:      chk.Name,
		ObservedAt: m.clock.Now(),
	}
	if id, err := m.ids.NewID(); err == nil {
		res.ID = id
	}

	method := chk.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, chk.URL, nil)
	if err != nil {
		res.ErrorText = fmt.Sprintf("build probe request: %v", err)
		return res
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.ErrorText = fmt.Sprintf("probe request: %v", err)
		return res
	}
	defer resp.Body.Close() //nolint:errcheck // body unused

	res.StatusCode = resp.StatusCode
	expect := chk.ExpectStatus
	if expect == 0 {
		expect = http.StatusOK
	}
	if resp.StatusCode != expect {
		res.ErrorText = fmt.Sprintf("unexpected status %d (want %d)", resp.StatusCode, expect)
		return res
	}
	res.OK = true
	return res
}

func (m *Monitor) markOpen(check string, open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if open {
		m.open[check] = true
	} else {
		delete(m.open, check)
	}
	metrics.SetOpenAlerts(len(m.open))
}

func (m *Monitor) emit(event events.Event) {
	if m.emitter == nil {
		return
	}
	m.emitter.Emit(event)
}
