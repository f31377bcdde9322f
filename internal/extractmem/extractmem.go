// Package extractmem implements C4, the per-domain extraction memory:
// which selector/strategy last worked for a domain, how stable that
// domain's extraction has been, and whether it is worth spending an AI
// call on selector discovery. Grounded on the rolling-average and
// best-method-selection shape of original_source's
// domain_stability_tracker.py and extraction_memory.py, adapted to the
// stricter stability thresholds stated explicitly elsewhere (80% 7-day
// success rate and 5 consecutive successes).
package extractmem

import (
	"context"
	"sync"
	"time"

	"github.com/deusflow/newsagg/internal/cache"
	"github.com/deusflow/newsagg/internal/model"
)

const (
	stableMinSuccessRate7d    = 0.80
	stableMinConsecutiveOK    = 5
	stableRegressionFailures  = 2 // consecutive failures with no intervening success needed to destabilize
	ineffectiveFailureRate    = 0.80
	ineffectiveMinAttempts    = 2
	renderIneffectiveRate     = 0.95 // headless render gets a much higher bar before being blacklisted
	readCacheTTL              = 5 * time.Minute
	defaultRenderTimeoutMS    = 8000
	minRenderTimeoutMS        = 4000
	maxRenderTimeoutMS        = 30000

	aiConsecutiveFailureThreshold = 3               // strategy 6 is worth trying once an unstable domain fails this many times in a row
	aiInvokeCooldown              = 24 * time.Hour  // minimum gap between AI selector-discovery calls against the same domain
	maxDailyAISelectorCalls       = 50               // daily budget shared across every domain
)

// Store persists extraction patterns and attempts. Implemented by
// internal/persistqueue; kept as a narrow interface here (Design Notes'
// "capability interface" pattern) so extractmem has no storage dependency.
type Store interface {
	GetPattern(ctx context.Context, domain string) (*model.ExtractionPattern, error)
	UpsertPattern(ctx context.Context, p *model.ExtractionPattern) error
	RecordAttempt(ctx context.Context, a *model.ExtractionAttempt) error

	GetDomainStability(ctx context.Context, domain string) (model.DomainStability, error)
	UpdateMethodStats(ctx context.Context, domain string, strategy model.ExtractionStrategy, success bool, elapsedMS int64) error
	UpdateRenderTimeout(ctx context.Context, domain string, timeoutMS int64) error
	DailyAISelectorCalls(ctx context.Context, day time.Time) (int, error)
	RecordAISelectorCall(ctx context.Context, day time.Time) error
	TouchLastAIAnalysis(ctx context.Context, domain string, at time.Time) error
}

// Memory is the in-process façade over Store, adding a bounded 5-minute
// read cache and per-domain write serialization (a striped mutex keyed by
// domain, so concurrent workers extracting different domains never block
// each other).
type Memory struct {
	store     Store
	readCache *cache.Cache

	stripeMu sync.Mutex
	stripes  map[string]*sync.Mutex
}

// New builds a Memory backed by store.
func New(store Store) *Memory {
	return &Memory{
		store:     store,
		readCache: cache.NewWithCapacity(2000),
		stripes:   make(map[string]*sync.Mutex),
	}
}

func (m *Memory) domainLock(domain string) *sync.Mutex {
	m.stripeMu.Lock()
	defer m.stripeMu.Unlock()
	mu, ok := m.stripes[domain]
	if !ok {
		mu = &sync.Mutex{}
		m.stripes[domain] = mu
	}
	return mu
}

// Lookup returns the learned pattern for domain, if any, serving from the
// 5-minute read cache when fresh.
func (m *Memory) Lookup(ctx context.Context, domain string) (*model.ExtractionPattern, error) {
	if cached, ok := m.readCache.Get(domain); ok {
		if p, ok := cached.(*model.ExtractionPattern); ok {
			return p, nil
		}
	}
	p, err := m.store.GetPattern(ctx, domain)
	if err != nil {
		return nil, err
	}
	if p != nil {
		m.readCache.Set(domain, p, readCacheTTL)
	}
	return p, nil
}

// RecordAttempt records one extraction try and updates the rolling
// per-domain pattern statistics, serialized per domain so concurrent
// attempts against the same domain cannot race the read-modify-write.
func (m *Memory) RecordAttempt(ctx context.Context, a *model.ExtractionAttempt) error {
	lock := m.domainLock(a.Domain)
	lock.Lock()
	defer lock.Unlock()

	if err := m.store.RecordAttempt(ctx, a); err != nil {
		return err
	}
	if err := m.store.UpdateMethodStats(ctx, a.Domain, a.Strategy, a.Success, a.ExtractionTimeMS); err != nil {
		return err
	}

	pattern, err := m.store.GetPattern(ctx, a.Domain)
	if err != nil {
		return err
	}
	if pattern == nil {
		pattern = &model.ExtractionPattern{
			Domain:   a.Domain,
			Strategy: a.Strategy,
		}
	}

	if a.Success {
		pattern.SuccessCount++
		pattern.ConsecutiveSuccess++
		pattern.ConsecutiveFailure = 0
		pattern.SelectorPattern = a.SelectorUsed
		pattern.Strategy = a.Strategy
		n := float64(pattern.SuccessCount)
		pattern.QualityScoreAvg = rollingAvg(pattern.QualityScoreAvg, n, a.QualityScore)
		pattern.ContentLengthAvg = rollingAvg(pattern.ContentLengthAvg, n, float64(a.ContentLength))
	} else {
		pattern.FailureCount++
		pattern.ConsecutiveFailure++
		pattern.ConsecutiveSuccess = 0
	}

	total := pattern.SuccessCount + pattern.FailureCount
	if total > 0 {
		pattern.SuccessRate7d = float64(pattern.SuccessCount) / float64(total)
	}
	pattern.IsStable = computeStable(pattern)
	pattern.LastUsedAt = time.Now()

	if err := m.store.UpsertPattern(ctx, pattern); err != nil {
		return err
	}
	m.readCache.Set(a.Domain, pattern, readCacheTTL)
	return nil
}

func rollingAvg(currentAvg, countAfterThisOne, newValue float64) float64 {
	if countAfterThisOne <= 1 {
		return newValue
	}
	return (currentAvg*(countAfterThisOne-1) + newValue) / countAfterThisOne
}

func computeStable(p *model.ExtractionPattern) bool {
	wasStable := p.IsStable
	if p.SuccessRate7d >= stableMinSuccessRate7d && p.ConsecutiveSuccess >= stableMinConsecutiveOK {
		return true
	}
	// A stable domain only regresses on a real regression: two consecutive
	// failures with no success in between. A single blip leaves it stable.
	if wasStable && p.ConsecutiveFailure >= stableRegressionFailures {
		return false
	}
	return wasStable
}

// ShouldInvokeAI reports whether an AI-assisted selector-discovery call
// (strategy 6) is worth spending given this domain's history. True iff the
// domain is not stable, it has failed aiConsecutiveFailureThreshold times
// in a row, its last AI analysis (if any) is older than aiInvokeCooldown,
// and the shared daily AI-selector budget is not exhausted.
func (m *Memory) ShouldInvokeAI(ctx context.Context, domain string) (bool, error) {
	p, err := m.Lookup(ctx, domain)
	if err != nil {
		return false, err
	}
	if p == nil || p.IsStable {
		return false, nil
	}
	if p.ConsecutiveFailure < aiConsecutiveFailureThreshold {
		return false, nil
	}
	if !p.LastAIAnalysisAt.IsZero() && time.Since(p.LastAIAnalysisAt) < aiInvokeCooldown {
		return false, nil
	}
	calls, err := m.store.DailyAISelectorCalls(ctx, time.Now())
	if err != nil {
		return false, err
	}
	if calls >= maxDailyAISelectorCalls {
		return false, nil
	}
	return true, nil
}

// RecordAIInvocation stamps domain's AI-analysis cooldown and spends one
// unit of the shared daily budget, called once strategy 6 actually fires
// (regardless of whether the selector it returns ends up validating).
func (m *Memory) RecordAIInvocation(ctx context.Context, domain string) error {
	now := time.Now()
	if err := m.store.RecordAISelectorCall(ctx, now); err != nil {
		return err
	}
	return m.store.TouchLastAIAnalysis(ctx, domain, now)
}

// DomainStability returns the aggregated per-method attempt counters for
// domain, used by the extractor to skip methods IneffectiveMethods flags
// and to adapt the headless-render timeout.
func (m *Memory) DomainStability(ctx context.Context, domain string) (model.DomainStability, error) {
	return m.store.GetDomainStability(ctx, domain)
}

// RenderTimeout returns the current adaptive render-timeout budget for
// domain, falling back to defaultRenderTimeoutMS when nothing is recorded.
func (m *Memory) RenderTimeout(ctx context.Context, domain string) (int64, error) {
	stability, err := m.store.GetDomainStability(ctx, domain)
	if err != nil {
		return defaultRenderTimeoutMS, err
	}
	if stability.RenderTimeoutMS <= 0 {
		return defaultRenderTimeoutMS, nil
	}
	return stability.RenderTimeoutMS, nil
}

// AdjustRenderTimeout grows or shrinks domain's render-timeout budget after
// a headless-render attempt and persists the result.
func (m *Memory) AdjustRenderTimeout(ctx context.Context, domain string, current int64, consecutiveFailures, consecutiveSuccesses int) error {
	next := AdaptiveRenderTimeout(current, consecutiveFailures, consecutiveSuccesses)
	return m.store.UpdateRenderTimeout(ctx, domain, next)
}

// IneffectiveMethods returns the strategies that should be skipped for
// domain: those failing at or above ineffectiveFailureRate with at least
// ineffectiveMinAttempts tries, except headless render, which is only
// blacklisted above renderIneffectiveRate (it is the most expensive
// strategy to try, so the bar to give up on it is much higher).
func IneffectiveMethods(stability model.DomainStability) []model.ExtractionStrategy {
	var out []model.ExtractionStrategy
	for strat, succ := range stability.MethodSuccessCounts {
		fail := stability.MethodFailureCounts[strat]
		total := succ + fail
		if total < ineffectiveMinAttempts {
			continue
		}
		failureRate := float64(fail) / float64(total)
		threshold := ineffectiveFailureRate
		if strat == model.StrategyHeadlessRender {
			threshold = renderIneffectiveRate
		}
		if failureRate >= threshold {
			out = append(out, strat)
		}
	}
	return out
}

// AdaptiveRenderTimeout grows the render timeout budget after consecutive
// failures and shrinks it after consecutive successes, bounded to
// [minRenderTimeoutMS, maxRenderTimeoutMS].
func AdaptiveRenderTimeout(current int64, consecutiveFailures, consecutiveSuccesses int) int64 {
	if current <= 0 {
		current = defaultRenderTimeoutMS
	}
	switch {
	case consecutiveFailures > 0:
		current = current + current/2
	case consecutiveSuccesses > 2:
		current = current - current/4
	}
	if current < minRenderTimeoutMS {
		current = minRenderTimeoutMS
	}
	if current > maxRenderTimeoutMS {
		current = maxRenderTimeoutMS
	}
	return current
}
