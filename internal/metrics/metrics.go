// Package metrics holds in-process counters surfaced by internal/monitor
// and snapshotted into model.ProcessingStats at the end of each cycle by
// the orchestrator. A Metrics instance lives on AppContext rather than as
// a package-level global, so tests can run cycles in isolation.
package metrics

import (
	"sync"
	"time"
)

// Metrics is a mutex-guarded set of pipeline counters.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	ArticlesIngested   int64
	ArticlesProcessed  int64
	AICallsTotal       int64
	AICallsCacheHit    int64
	DuplicatesFiltered int64
	LanguageFiltered   int64
	AdsPreFiltered     int64
	ArticlesPersisted  int64
	MessagesSent       int64
	Errors             int64

	// Timings
	LastCycleDuration    time.Duration
	AverageCycleDuration time.Duration
	TotalCycleDuration   time.Duration
	CycleCount           int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

// New returns a fresh, healthy Metrics instance.
func New() *Metrics {
	return &Metrics{IsHealthy: true}
}

func (m *Metrics) IncrementArticlesIngested() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesIngested++
}

func (m *Metrics) IncrementArticlesProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesProcessed++
}

func (m *Metrics) IncrementAICall(cacheHit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AICallsTotal++
	if cacheHit {
		m.AICallsCacheHit++
	}
}

func (m *Metrics) IncrementDuplicatesFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesFiltered++
}

func (m *Metrics) IncrementLanguageFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LanguageFiltered++
}

func (m *Metrics) IncrementAdsPreFiltered() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdsPreFiltered++
}

func (m *Metrics) IncrementArticlesPersisted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesPersisted++
}

func (m *Metrics) IncrementMessagesSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
}

func (m *Metrics) IncrementErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors++
}

func (m *Metrics) RecordCycleDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastCycleDuration = duration
	m.TotalCycleDuration += duration
	m.CycleCount++

	if m.CycleCount > 0 {
		m.AverageCycleDuration = m.TotalCycleDuration / time.Duration(m.CycleCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// GetStats returns a snapshot suitable for JSON encoding by internal/monitor.
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"articles_ingested":        m.ArticlesIngested,
		"articles_processed":       m.ArticlesProcessed,
		"ai_calls_total":           m.AICallsTotal,
		"ai_calls_cache_hit":       m.AICallsCacheHit,
		"duplicates_filtered":      m.DuplicatesFiltered,
		"language_filtered":        m.LanguageFiltered,
		"ads_pre_filtered":         m.AdsPreFiltered,
		"articles_persisted":       m.ArticlesPersisted,
		"messages_sent":            m.MessagesSent,
		"errors":                   m.Errors,
		"last_cycle_duration_ms":   m.LastCycleDuration.Milliseconds(),
		"average_cycle_duration_ms": m.AverageCycleDuration.Milliseconds(),
		"last_run_time":            m.LastRunTime.Format(time.RFC3339),
		"last_error_time":          m.LastErrorTime.Format(time.RFC3339),
		"last_error":               m.LastError,
		"is_healthy":               m.IsHealthy,
	}
}
