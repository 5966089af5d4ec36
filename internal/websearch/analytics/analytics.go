// Package analytics aggregates per-execution search metrics in memory:
// a bounded rolling history plus provider, query, error and hourly counters.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/ai-search-backend/internal/pkg/logger"
	"github.com/lk2023060901/ai-search-backend/internal/websearch/types"
)

const (
	DefaultMaxHistory    = 1000
	DefaultRetentionDays = 30

	// HourBucketLayout formats hourly bucket keys (UTC)
	HourBucketLayout = "2006-01-02-15"

	FormatJSON = "json"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

// Metric is one immutable record per search execution
type Metric struct {
	ID            string    `json:"id"`
	Query         string    `json:"query"`
	Provider      string    `json:"provider"`
	Success       bool      `json:"success"`
	ResultCount   int       `json:"result_count"`
	ResponseTime  float64   `json:"response_time"` // seconds
	Timestamp     time.Time `json:"timestamp"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CacheHit      bool      `json:"cache_hit"`
	FilteredCount int       `json:"filtered_count"`
}

// Store persists metrics outside the process. It is optional.
type Store interface {
	Save(ctx context.Context, m *Metric) error
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// HistoryLoader is implemented by stores that can replay recent metrics.
type HistoryLoader interface {
	Recent(ctx context.Context, limit int) ([]*Metric, error)
}

// Config holds analytics settings
type Config struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxHistory    int  `mapstructure:"max_history"`
	RetentionDays int  `mapstructure:"retention_days"`
}

// DefaultConfig returns the default analytics configuration
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		MaxHistory:    DefaultMaxHistory,
		RetentionDays: DefaultRetentionDays,
	}
}

type ProviderStats struct {
	TotalSearches      int     `json:"total_searches"`
	SuccessfulSearches int     `json:"successful_searches"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResponseTime    float64 `json:"avg_response_time"`
	ErrorCount         int     `json:"error_count"`
	CacheHits          int     `json:"cache_hits"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
}

type QueryCount struct {
	Query     string `json:"query"`
	Frequency int    `json:"frequency"`
}

type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

type HourBucket struct {
	Searches  int `json:"searches"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

type OverallStats struct {
	TotalSearches      int     `json:"total_searches"`
	SuccessfulSearches int     `json:"successful_searches"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResponseTime    float64 `json:"avg_response_time"`
	CacheHits          int     `json:"cache_hits"`
	CacheHitRate       float64 `json:"cache_hit_rate"`
	UniqueQueries      int     `json:"unique_queries"`
	MostActiveHour     string  `json:"most_active_hour,omitempty"`
	RetentionDays      int     `json:"retention_days"`
}

type PerformanceReport struct {
	OverallStats  OverallStats             `json:"overall_stats"`
	ProviderStats map[string]ProviderStats `json:"provider_stats"`
	TopQueries    []QueryCount             `json:"top_queries"`
	ErrorSummary  []ErrorCount             `json:"error_summary"`
	HourlyTrends  map[string]HourBucket    `json:"hourly_trends"`
	Timestamp     time.Time                `json:"timestamp"`
}

type providerCounter struct {
	total             int
	successes         int
	errors            int
	cacheHits         int
	totalResponseTime float64
}

// Option configures Analytics
type Option func(*Analytics)

// WithStore attaches a persistent sink
func WithStore(s Store) Option {
	return func(a *Analytics) { a.store = s }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(a *Analytics) { a.logger = l }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(a *Analytics) { a.now = now }
}

// Analytics is safe for concurrent use
type Analytics struct {
	config Config
	store  Store
	logger *logger.Logger
	now    func() time.Time

	mu        sync.RWMutex
	history   []*Metric
	providers map[string]*providerCounter
	queries   map[string]int
	errors    map[string]int
	hourly    map[string]*HourBucket
}

// New creates an Analytics instance
func New(cfg Config, opts ...Option) *Analytics {
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}

	a := &Analytics{
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logger.L()
	}
	a.logger = a.logger.Named("analytics")
	a.resetLocked()
	return a
}

// Enabled reports whether recording is active
func (a *Analytics) Enabled() bool {
	return a.config.Enabled
}

// Record stores a metric for exec. It never panics and is a no-op when disabled.
func (a *Analytics) Record(ctx context.Context, exec *types.SearchExecution, responseTime time.Duration, cacheHit bool, filteredCount int) {
	if !a.config.Enabled || exec == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.WithContext(ctx).Warn("analytics record failed", zap.Any("panic", r))
		}
	}()

	m := &Metric{
		ID:            uuid.NewString(),
		Query:         exec.Query,
		Provider:      exec.Provider,
		Success:       exec.Success,
		ResultCount:   len(exec.Results),
		ResponseTime:  responseTime.Seconds(),
		Timestamp:     a.now().UTC(),
		ErrorMessage:  exec.Error,
		CacheHit:      cacheHit,
		FilteredCount: filteredCount,
	}

	a.mu.Lock()
	a.appendLocked(m)
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.Save(ctx, m); err != nil {
			a.logger.WithContext(ctx).Warn("analytics store save failed", zap.String("metric_id", m.ID), zap.Error(err))
		}
	}
}

func (a *Analytics) appendLocked(m *Metric) {
	a.history = append(a.history, m)
	if overflow := len(a.history) - a.config.MaxHistory; overflow > 0 {
		a.history = append([]*Metric(nil), a.history[overflow:]...)
	}

	pc, ok := a.providers[m.Provider]
	if !ok {
		pc = &providerCounter{}
		a.providers[m.Provider] = pc
	}
	pc.total++
	pc.totalResponseTime += m.ResponseTime
	if m.Success {
		pc.successes++
	} else {
		pc.errors++
	}
	if m.CacheHit {
		pc.cacheHits++
	}

	if q := normalizeQuery(m.Query); q != "" {
		a.queries[q]++
	}
	if m.ErrorMessage != "" {
		a.errors[m.ErrorMessage]++
	}

	bucketKey := m.Timestamp.UTC().Format(HourBucketLayout)
	bucket, ok := a.hourly[bucketKey]
	if !ok {
		bucket = &HourBucket{}
		a.hourly[bucketKey] = bucket
	}
	bucket.Searches++
	if m.Success {
		bucket.Successes++
	} else {
		bucket.Failures++
	}
}

// ProviderStats returns aggregated counters per provider label
func (a *Analytics) ProviderStats() map[string]ProviderStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.providerStatsLocked()
}

func (a *Analytics) providerStatsLocked() map[string]ProviderStats {
	out := make(map[string]ProviderStats, len(a.providers))
	for name, pc := range a.providers {
		out[name] = ProviderStats{
			TotalSearches:      pc.total,
			SuccessfulSearches: pc.successes,
			SuccessRate:        ratio(pc.successes, pc.total),
			AvgResponseTime:    avg(pc.totalResponseTime, pc.total),
			ErrorCount:         pc.errors,
			CacheHits:          pc.cacheHits,
			CacheHitRate:       ratio(pc.cacheHits, pc.total),
		}
	}
	return out
}

// TopQueries returns the most frequent normalized queries
func (a *Analytics) TopQueries(limit int) []QueryCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.topQueriesLocked(limit)
}

func (a *Analytics) topQueriesLocked(limit int) []QueryCount {
	out := make([]QueryCount, 0, len(a.queries))
	for q, n := range a.queries {
		out = append(out, QueryCount{Query: q, Frequency: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Query < out[j].Query
	})
	return head(out, limit)
}

// HourlyTrends returns buckets within the trailing window of hours, including the current hour
func (a *Analytics) HourlyTrends(hours int) map[string]HourBucket {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hourlyTrendsLocked(hours)
}

func (a *Analytics) hourlyTrendsLocked(hours int) map[string]HourBucket {
	out := make(map[string]HourBucket)
	if hours <= 0 {
		return out
	}
	since := a.now().UTC().Truncate(time.Hour).Add(-time.Duration(hours-1) * time.Hour)
	for key, b := range a.hourly {
		t, err := time.Parse(HourBucketLayout, key)
		if err != nil || t.Before(since) {
			continue
		}
		out[key] = *b
	}
	return out
}

// ErrorSummary returns the most frequent error messages
func (a *Analytics) ErrorSummary(limit int) []ErrorCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.errorSummaryLocked(limit)
}

func (a *Analytics) errorSummaryLocked(limit int) []ErrorCount {
	out := make([]ErrorCount, 0, len(a.errors))
	for msg, n := range a.errors {
		out = append(out, ErrorCount{Error: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Error < out[j].Error
	})
	return head(out, limit)
}

// OverallStats summarizes every recorded execution
func (a *Analytics) OverallStats() OverallStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.overallStatsLocked()
}

func (a *Analytics) overallStatsLocked() OverallStats {
	var total, successes, cacheHits int
	var responseTime float64
	for _, pc := range a.providers {
		total += pc.total
		successes += pc.successes
		cacheHits += pc.cacheHits
		responseTime += pc.totalResponseTime
	}

	var mostActive string
	var mostSearches int
	for key, b := range a.hourly {
		if b.Searches > mostSearches || (b.Searches == mostSearches && key < mostActive) {
			mostActive, mostSearches = key, b.Searches
		}
	}

	return OverallStats{
		TotalSearches:      total,
		SuccessfulSearches: successes,
		SuccessRate:        ratio(successes, total),
		AvgResponseTime:    avg(responseTime, total),
		CacheHits:          cacheHits,
		CacheHitRate:       ratio(cacheHits, total),
		UniqueQueries:      len(a.queries),
		MostActiveHour:     mostActive,
		RetentionDays:      a.config.RetentionDays,
	}
}

// PerformanceReport bundles the standard views
func (a *Analytics) PerformanceReport() PerformanceReport {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return PerformanceReport{
		OverallStats:  a.overallStatsLocked(),
		ProviderStats: a.providerStatsLocked(),
		TopQueries:    a.topQueriesLocked(10),
		ErrorSummary:  a.errorSummaryLocked(5),
		HourlyTrends:  a.hourlyTrendsLocked(24),
		Timestamp:     a.now().UTC(),
	}
}

// ExportHistory serializes the rolling history. Only "json" is supported.
func (a *Analytics) ExportHistory(format string) (string, error) {
	if !strings.EqualFold(strings.TrimSpace(format), FormatJSON) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	a.mu.RLock()
	history := make([]*Metric, len(a.history))
	copy(history, a.history)
	a.mu.RUnlock()

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal history: %w", err)
	}
	return string(data), nil
}

// History returns a copy of the rolling history, oldest first
func (a *Analytics) History() []Metric {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Metric, len(a.history))
	for i, m := range a.history {
		out[i] = *m
	}
	return out
}

// CleanupOldData drops history entries and hourly buckets older than the retention window
// and prunes the store. It returns the number of in-memory history entries removed.
func (a *Analytics) CleanupOldData(ctx context.Context) int {
	cutoff := a.now().UTC().AddDate(0, 0, -a.config.RetentionDays)

	a.mu.Lock()
	kept := a.history[:0:0]
	for _, m := range a.history {
		if !m.Timestamp.Before(cutoff) {
			kept = append(kept, m)
		}
	}
	removed := len(a.history) - len(kept)
	a.history = kept

	cutoffBucket := cutoff.Truncate(time.Hour)
	for key := range a.hourly {
		t, err := time.Parse(HourBucketLayout, key)
		if err != nil || t.Before(cutoffBucket) {
			delete(a.hourly, key)
		}
	}
	a.mu.Unlock()

	if a.store != nil {
		pruned, err := a.store.Prune(ctx, cutoff)
		if err != nil {
			a.logger.WithContext(ctx).Warn("analytics store prune failed", zap.Error(err))
		} else if pruned > 0 {
			a.logger.WithContext(ctx).Info("analytics store pruned", zap.Int64("rows", pruned))
		}
	}

	if removed > 0 {
		a.logger.WithContext(ctx).Info("analytics history cleaned", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed
}

// Restore replays the newest persisted metrics into memory, skipping those
// outside the retention window. Stores without HistoryLoader restore nothing.
func (a *Analytics) Restore(ctx context.Context) (int, error) {
	loader, ok := a.store.(HistoryLoader)
	if !ok {
		return 0, nil
	}
	metrics, err := loader.Recent(ctx, a.config.MaxHistory)
	if err != nil {
		return 0, err
	}

	cutoff := a.now().UTC().AddDate(0, 0, -a.config.RetentionDays)
	restored := 0

	a.mu.Lock()
	for _, m := range metrics {
		if m == nil || m.Timestamp.Before(cutoff) {
			continue
		}
		a.appendLocked(m)
		restored++
	}
	a.mu.Unlock()

	a.logger.WithContext(ctx).Info("analytics history restored", zap.Int("metrics", restored))
	return restored, nil
}

// Reset clears all in-memory state
func (a *Analytics) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *Analytics) resetLocked() {
	a.history = nil
	a.providers = make(map[string]*providerCounter)
	a.queries = make(map[string]int)
	a.errors = make(map[string]int)
	a.hourly = make(map[string]*HourBucket)
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func head[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
