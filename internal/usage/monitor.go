// Package usage tracks provider invocations, spend, and limit alerts.
// The monitor is process-local: aggregates reset on restart, which is a
// documented limitation of the system rather than something to paper over
// with persistence.
package usage

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// maxRecords bounds the raw record log. Older records are evicted ring-style;
// the per-provider aggregates are unaffected by eviction.
const maxRecords = 10000

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Record is one provider invocation. Cache hits carry cached=true and zero
// cost; misses carry the provider's configured per-call cost estimate.
type Record struct {
	Provider  string    `json:"provider"`
	Endpoint  string    `json:"endpoint"`
	Timestamp time.Time `json:"timestamp"`
	Cached    bool      `json:"cached"`
	Cost      float64   `json:"cost"`
}

// AlertConfig sets limits for one rate-limited provider. Loaded at startup,
// immutable thereafter. Zero limits disable the corresponding check.
type AlertConfig struct {
	Provider              string  `mapstructure:"provider" json:"provider"`
	DailyLimit            int     `mapstructure:"daily_limit" json:"daily_limit"`
	MonthlyLimit          int     `mapstructure:"monthly_limit" json:"monthly_limit"`
	CostLimit             float64 `mapstructure:"cost_limit" json:"cost_limit"`
	AlertThresholdPercent float64 `mapstructure:"alert_threshold_percent" json:"alert_threshold_percent"`
}

// Alert is raised when a provider crosses the configured threshold percent
// of one of its limits. Each provider/metric/bucket combination fires at
// most once.
type Alert struct {
	Provider string  `json:"provider"`
	Metric   string  `json:"metric"` // daily_calls, monthly_calls, monthly_cost
	Bucket   string  `json:"bucket"` // the day or month the alert applies to
	Current  float64 `json:"current"`
	Limit    float64 `json:"limit"`
}

// NotificationSink delivers alerts. Delivery is pluggable; the default sink
// only logs.
type NotificationSink interface {
	Notify(alert Alert)
}

// LogSink logs alerts through zap. The production default until a real
// delivery channel is configured.
type LogSink struct {
	Logger *zap.Logger
}

func (s *LogSink) Notify(alert Alert) {
	s.Logger.Warn("usage alert threshold crossed",
		zap.String("provider", alert.Provider),
		zap.String("metric", alert.Metric),
		zap.String("bucket", alert.Bucket),
		zap.Float64("current", alert.Current),
		zap.Float64("limit", alert.Limit),
	)
}

// PeriodStats aggregates calls and cost for one provider over one bucket.
type PeriodStats struct {
	TotalCalls  int     `json:"total_calls"`
	CachedCalls int     `json:"cached_calls"`
	TotalCost   float64 `json:"total_cost"`
}

// CacheHitRate returns cached/total, or 0 for an empty bucket.
func (s PeriodStats) CacheHitRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.CachedCalls) / float64(s.TotalCalls)
}

// ProviderReport is the per-provider section of a full usage report.
type ProviderReport struct {
	Provider     string      `json:"provider"`
	Today        PeriodStats `json:"today"`
	ThisMonth    PeriodStats `json:"this_month"`
	CacheHitRate float64     `json:"cache_hit_rate"`
}

// Monitor accumulates usage records and checks alert thresholds. Safe for
// concurrent use; all state is guarded by one mutex since recording is cheap
// relative to the network calls it tracks.
type Monitor struct {
	mu      sync.Mutex
	clock   func() time.Time
	records [maxRecords]Record
	next    int
	count   int
	daily   map[string]map[string]*PeriodStats // provider -> day bucket
	monthly map[string]map[string]*PeriodStats // provider -> month bucket
	alerts  map[string]AlertConfig
	fired   map[string]struct{}
	sink    NotificationSink
}

// NewMonitor creates a monitor with the given per-provider alert configs.
// sink may be nil, in which case alerts are silently deduplicated but not
// delivered anywhere.
func NewMonitor(alerts []AlertConfig, sink NotificationSink) *Monitor {
	byProvider := make(map[string]AlertConfig, len(alerts))
	for _, a := range alerts {
		byProvider[a.Provider] = a
	}
	return &Monitor{
		clock:   time.Now,
		daily:   make(map[string]map[string]*PeriodStats),
		monthly: make(map[string]map[string]*PeriodStats),
		alerts:  byProvider,
		fired:   make(map[string]struct{}),
		sink:    sink,
	}
}

// Record registers one provider invocation and evaluates alert thresholds.
// Implements the cache package's Recorder interface.
func (m *Monitor) Record(providerName, endpoint string, cached bool, cost float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	rec := Record{
		Provider:  providerName,
		Endpoint:  endpoint,
		Timestamp: now,
		Cached:    cached,
		Cost:      cost,
	}

	m.records[m.next] = rec
	m.next = (m.next + 1) % maxRecords
	if m.count < maxRecords {
		m.count++
	}

	m.bump(m.daily, providerName, now.Format(dayLayout), cached, cost)
	m.bump(m.monthly, providerName, now.Format(monthLayout), cached, cost)

	m.checkAlerts(providerName, now)
}

func (m *Monitor) bump(agg map[string]map[string]*PeriodStats, providerName, bucket string, cached bool, cost float64) {
	buckets, ok := agg[providerName]
	if !ok {
		buckets = make(map[string]*PeriodStats)
		agg[providerName] = buckets
	}
	stats, ok := buckets[bucket]
	if !ok {
		stats = &PeriodStats{}
		buckets[bucket] = stats
	}
	stats.TotalCalls++
	if cached {
		stats.CachedCalls++
	}
	stats.TotalCost += cost
}

// checkAlerts runs with m.mu held.
func (m *Monitor) checkAlerts(providerName string, now time.Time) {
	cfg, ok := m.alerts[providerName]
	if !ok {
		return
	}
	pct := cfg.AlertThresholdPercent
	if pct <= 0 {
		pct = 80
	}

	day := now.Format(dayLayout)
	month := now.Format(monthLayout)

	if cfg.DailyLimit > 0 {
		calls := m.statsFor(m.daily, providerName, day).TotalCalls
		m.maybeFire(providerName, "daily_calls", day, float64(calls), float64(cfg.DailyLimit), pct)
	}
	if cfg.MonthlyLimit > 0 {
		calls := m.statsFor(m.monthly, providerName, month).TotalCalls
		m.maybeFire(providerName, "monthly_calls", month, float64(calls), float64(cfg.MonthlyLimit), pct)
	}
	if cfg.CostLimit > 0 {
		cost := m.statsFor(m.monthly, providerName, month).TotalCost
		m.maybeFire(providerName, "monthly_cost", month, cost, cfg.CostLimit, pct)
	}
}

func (m *Monitor) statsFor(agg map[string]map[string]*PeriodStats, providerName, bucket string) PeriodStats {
	if buckets, ok := agg[providerName]; ok {
		if stats, ok := buckets[bucket]; ok {
			return *stats
		}
	}
	return PeriodStats{}
}

func (m *Monitor) maybeFire(providerName, metric, bucket string, current, limit, pct float64) {
	if current < limit*pct/100 {
		return
	}
	key := providerName + "|" + metric + "|" + bucket
	if _, done := m.fired[key]; done {
		return
	}
	m.fired[key] = struct{}{}

	if m.sink != nil {
		m.sink.Notify(Alert{
			Provider: providerName,
			Metric:   metric,
			Bucket:   bucket,
			Current:  current,
			Limit:    limit,
		})
	}
}

// Stats returns the current bucket's aggregate for one provider. period is
// "daily" or "monthly"; anything else is treated as monthly.
func (m *Monitor) Stats(providerName, period string) PeriodStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if period == "daily" {
		return m.statsFor(m.daily, providerName, now.Format(dayLayout))
	}
	return m.statsFor(m.monthly, providerName, now.Format(monthLayout))
}

// Report returns today's and this month's aggregates for every provider
// that has recorded at least one call.
func (m *Monitor) Report() []ProviderReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	day := now.Format(dayLayout)
	month := now.Format(monthLayout)

	names := make([]string, 0, len(m.monthly))
	for name := range m.monthly {
		names = append(names, name)
	}
	sort.Strings(names)

	reports := make([]ProviderReport, 0, len(names))
	for _, name := range names {
		monthStats := m.statsFor(m.monthly, name, month)
		reports = append(reports, ProviderReport{
			Provider:     name,
			Today:        m.statsFor(m.daily, name, day),
			ThisMonth:    monthStats,
			CacheHitRate: monthStats.CacheHitRate(),
		})
	}
	return reports
}

// Recent returns up to n of the most recent raw records, newest first.
func (m *Monitor) Recent(n int) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > m.count {
		n = m.count
	}
	out := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + maxRecords) % maxRecords
		out = append(out, m.records[idx])
	}
	return out
}
