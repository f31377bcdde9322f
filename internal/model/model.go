// Package model holds the persisted domain entities shared across every
// pipeline component: sources, articles, categories and their mapping
// tables, extraction memory, scheduling, and daily digests.
package model

import "time"

// SourceKind identifies which adapter in internal/sources handles a Source.
type SourceKind string

const (
	SourceRSS        SourceKind = "rss"
	SourceTelegram   SourceKind = "telegram"
	SourcePageMonitor SourceKind = "page_monitor"
	SourceGeneric    SourceKind = "generic"
)

// Source is a configured ingestion point.
type Source struct {
	ID             int64
	Name           string
	Kind           SourceKind
	URL            string
	Config         map[string]string
	FetchInterval  time.Duration
	Enabled        bool
	ConsecutiveErr int
	LastError      string
	LastFetchedAt  time.Time
	CreatedAt      time.Time
}

// Article is a single ingested and (eventually) enriched item.
type Article struct {
	ID              int64
	SourceID        int64
	URL             string
	CanonicalURL    string
	Title           string
	OptimizedTitle  string
	Content         string
	Summary         string
	Language        string
	PublishedAt     time.Time
	FetchedAt       time.Time
	ContentHash     string
	SimilarityKey   string
	QualityScore    float64
	IsAd            bool
	MediaFiles      []string
	ExtractionMethod string
	SummaryProcessed  bool
	CategoryProcessed bool
	AdProcessed       bool
	AdConfidence      float64
	AdType            string
	AdReasoning       string
	AdMarkers         []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ArticleAnalysisUpdate is C7's unified-analysis output, shaped so
// persistqueue can persist it without depending on internal/ai's types.
type ArticleAnalysisUpdate struct {
	OptimizedTitle    string
	Summary           string
	IsAd              bool
	AdConfidence      float64
	AdType            string
	AdReasoning       string
	AdMarkers         []string
	CategoryProcessed bool
}

// Category is a node in the fixed, admin-configurable taxonomy.
type Category struct {
	ID          int64
	Name        string
	DisplayName string
	IsDefault   bool
}

// ArticleCategory is the association between an Article and a Category,
// carrying the confidence the AI assigned it (used for descending-order
// category lists and cap-at-K trimming).
type ArticleCategory struct {
	ArticleID  int64
	CategoryID int64
	Confidence float64
}

// CategoryMapping maps a free-form AI label onto a fixed Category.
// Unmapped labels are recorded (CategoryID zero) so operators can see
// what the model proposed and add a mapping later.
type CategoryMapping struct {
	ID         int64
	RawLabel   string
	Normalized string
	CategoryID int64
	CreatedAt  time.Time
}

// ExtractionStrategy names one of the six extraction strategies in C3.
type ExtractionStrategy string

const (
	StrategyLearnedSelector ExtractionStrategy = "learned_selector"
	StrategyDensity         ExtractionStrategy = "density_heuristic"
	StrategyStructuredData  ExtractionStrategy = "structured_data"
	StrategyCSSList         ExtractionStrategy = "css_selector_list"
	StrategyHeadlessRender  ExtractionStrategy = "headless_render"
	StrategyAISelector      ExtractionStrategy = "ai_selector_discovery"
)

// ExtractionPattern is the per-domain learned selector and its running
// success/failure statistics, as described in C4.
type ExtractionPattern struct {
	ID                  int64
	Domain              string
	SelectorPattern     string
	Strategy            ExtractionStrategy
	SuccessCount        int
	FailureCount        int
	ConsecutiveSuccess  int
	ConsecutiveFailure  int
	SuccessRate7d       float64
	QualityScoreAvg     float64
	ContentLengthAvg    float64
	DiscoveredBy        ExtractionStrategy
	IsStable            bool
	LastUsedAt          time.Time
	LastAIAnalysisAt    time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ExtractionAttempt is one row per extraction try, feeding C4's rolling
// windows and diagnostics.
type ExtractionAttempt struct {
	ID                   int64
	ArticleURL           string
	Domain               string
	Strategy             ExtractionStrategy
	SelectorUsed         string
	Success              bool
	ContentLength        int
	QualityScore         float64
	ExtractionTimeMS     int64
	ErrorMessage          string
	AIAnalysisTriggered  bool
	HTTPStatusCode       int
	CreatedAt            time.Time
}

// DomainStability is the derived per-domain, per-method view used to
// decide which strategies to try and in what order.
type DomainStability struct {
	Domain              string
	MethodSuccessCounts map[ExtractionStrategy]int
	MethodFailureCounts map[ExtractionStrategy]int
	MethodAvgTimeMS     map[ExtractionStrategy]float64
	RenderTimeoutMS     int64
	UpdatedAt           time.Time
}

// BestMethod returns the strategy with the highest success rate, ties
// broken by success count then lower average time, or ok=false if no
// attempts are recorded.
func (d DomainStability) BestMethod() (strategy ExtractionStrategy, ok bool) {
	type candidate struct {
		strategy ExtractionStrategy
		rate     float64
		count    int
		avgTime  float64
	}
	var best *candidate
	for s, succ := range d.MethodSuccessCounts {
		fail := d.MethodFailureCounts[s]
		total := succ + fail
		if total == 0 {
			continue
		}
		c := candidate{
			strategy: s,
			rate:     float64(succ) / float64(total),
			count:    succ,
			avgTime:  d.MethodAvgTimeMS[s],
		}
		if best == nil ||
			c.rate > best.rate ||
			(c.rate == best.rate && c.count > best.count) ||
			(c.rate == best.rate && c.count == best.count && c.avgTime < best.avgTime) {
			best = &c
		}
	}
	if best == nil {
		return "", false
	}
	return best.strategy, true
}

// ScheduleSetting configures one recurring named task for the scheduler.
type ScheduleSetting struct {
	ID              int64
	TaskName        string
	Enabled         bool
	IntervalSeconds int64
	Timezone        string
	TimeoutSeconds  int64
	IsRunning       bool
	StartedAt       time.Time
	LastRunAt       time.Time
	LastError       string
	NextRunAt       time.Time
}

// DailySummary is the per-category, per-day digest persisted by the
// orchestrator and assembled (never re-generated) by the digest adapters.
type DailySummary struct {
	ID          int64
	Day         time.Time
	CategoryID  int64
	ArticleIDs  []int64
	Headline    string
	BodyText    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AIUsageTracking is the per-day AI call counter backing C4's daily
// budget check and C7's cache-hit-rate diagnostics.
type AIUsageTracking struct {
	Day       time.Time
	Calls     int
	CacheHits int
}

// ProcessingStats is a per-day counter row updated by the orchestrator.
type ProcessingStats struct {
	Day              time.Time
	ArticlesIngested int
	ArticlesProcessed int
	AICalls          int
	Errors           int
	DurationMS       int64
}
