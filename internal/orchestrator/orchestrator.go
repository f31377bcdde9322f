// Package orchestrator implements C12: the single driver that ties every
// other component into one cycle. Grounded on Alekseyt9-ArticlesScanner's
// usecase.Pipeline.ProcessDay (internal/usecase/pipeline.go), generalized
// from one sequential fetch/rank/summarize/notify pass over a single
// source into a bounded-parallel, multi-source, multi-stage cycle with
// partial-failure isolation at each step.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/newsagg/internal/ai"
	"github.com/deusflow/newsagg/internal/category"
	"github.com/deusflow/newsagg/internal/extractor"
	"github.com/deusflow/newsagg/internal/metrics"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/persistqueue"
	"github.com/deusflow/newsagg/internal/smartfilter"
	"github.com/deusflow/newsagg/internal/sources"
)

// MinItemsPerCategory is the N in "for each category with >= N items,
// build a daily summary".
const MinItemsPerCategory = 3

// Digest is the combined, no-additional-AI-call assembly C12 step 4
// produces. Output adapters render it; they do not generate content.
type Digest struct {
	Day        time.Time
	Categories []CategoryDigest
}

// CategoryDigest is one category's slice of the combined digest.
type CategoryDigest struct {
	CategoryID   int64
	CategoryName string
	Headline     string
	BodyText     string
	ArticleIDs   []int64
}

// Publisher is the capability an output adapter (Telegram, Telegraph)
// exposes to the orchestrator.
type Publisher interface {
	Publish(ctx context.Context, digest Digest) error
}

// Orchestrator drives one full cycle: ingest, enrich, summarize, publish.
type Orchestrator struct {
	registry   *sources.Registry
	store      *persistqueue.Storage
	extractor  *extractor.Extractor
	ai         *ai.Client
	categories *category.Engine
	seen       smartfilter.SeenChecker
	publishers []Publisher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	maxWorkers           int
	maxConsecutiveErrors int
}

// Config tunes the Orchestrator's concurrency caps.
type Config struct {
	MaxWorkers           int
	MaxConsecutiveErrors int
}

// New wires every pipeline component into a ready Orchestrator.
func New(registry *sources.Registry, store *persistqueue.Storage, ext *extractor.Extractor, aiClient *ai.Client,
	categories *category.Engine, seen smartfilter.SeenChecker, publishers []Publisher, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Orchestrator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 5
	}
	return &Orchestrator{
		registry:             registry,
		store:                store,
		extractor:            ext,
		ai:                   aiClient,
		categories:           categories,
		seen:                 seen,
		publishers:           publishers,
		metrics:              m,
		logger:               logger,
		maxWorkers:           cfg.MaxWorkers,
		maxConsecutiveErrors: cfg.MaxConsecutiveErrors,
	}
}

// RunCycle executes steps 1-5 of the ingestion cycle. Per-source and
// per-article failures are isolated and logged; they never abort the
// cycle. The caller is expected to invoke this from the scheduler's
// "ingest_and_publish" task.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	start := time.Now()
	stats := model.ProcessingStats{Day: time.Now().Truncate(24 * time.Hour)}

	ingested := o.ingestAll(ctx)
	stats.ArticlesIngested = ingested

	processed, aiCalls, errCount := o.enrichAll(ctx)
	stats.ArticlesProcessed = processed
	stats.AICalls = aiCalls
	stats.Errors += errCount

	if err := o.buildAndPublishDigest(ctx, time.Now()); err != nil {
		stats.Errors++
		o.logWarn("digest build/publish failed", "error", err)
	}

	stats.DurationMS = time.Since(start).Milliseconds()
	if err := o.store.RecordProcessingStats(ctx, stats); err != nil {
		o.logWarn("recording processing stats failed", "error", err)
	}
	if o.metrics != nil {
		o.metrics.RecordCycleDuration(time.Since(start))
	}
	return nil
}

// ingestAll runs step 1: fetch every enabled source in parallel (bounded
// by maxWorkers), filter via smartfilter, and upsert raw candidates.
func (o *Orchestrator) ingestAll(ctx context.Context) int {
	sourcesList, err := o.store.ListSources(ctx)
	if err != nil {
		o.logWarn("listing sources failed", "error", err)
		return 0
	}

	sem := make(chan struct{}, o.maxWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0

	for i := range sourcesList {
		src := &sourcesList[i]
		if !src.Enabled {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(src *model.Source) {
			defer wg.Done()
			defer func() { <-sem }()
			n := o.ingestOne(ctx, src)
			mu.Lock()
			total += n
			mu.Unlock()
		}(src)
	}
	wg.Wait()
	return total
}

func (o *Orchestrator) ingestOne(ctx context.Context, src *model.Source) int {
	items, err := o.registry.Fetch(ctx, src, o.maxConsecutiveErrors)
	if saveErr := o.store.UpdateSourceState(ctx, src); saveErr != nil {
		o.logWarn("persisting source state failed", "source", src.Name, "error", saveErr)
	}
	if err != nil {
		o.logWarn("source fetch failed", "source", src.Name, "error", err)
		return 0
	}

	count := 0
	for _, item := range items {
		cand := smartfilter.Candidate{URL: item.URL, Title: item.Title, Content: item.Content, Language: item.Language, PublishedAt: item.PublishedAt}
		if smartfilter.IsDuplicate(o.seen, cand) {
			if o.metrics != nil {
				o.metrics.IncrementDuplicatesFiltered()
			}
			continue
		}
		if !smartfilter.LanguageAllowed(item.Language, src.Config["allow_other_languages"] == "true") {
			if o.metrics != nil {
				o.metrics.IncrementLanguageFiltered()
			}
			continue
		}
		if smartfilter.IsBoilerplate(item.Content) {
			continue
		}
		if smartfilter.LooksLikeAd(item.Content) {
			if o.metrics != nil {
				o.metrics.IncrementAdsPreFiltered()
			}
			continue
		}

		article := &model.Article{
			SourceID:      src.ID,
			URL:           item.URL,
			Title:         item.Title,
			Content:       item.Content,
			Language:      item.Language,
			PublishedAt:   item.PublishedAt,
			FetchedAt:     item.FetchedAt,
			ContentHash:   smartfilter.ContentHash(item.Title, item.Content),
			SimilarityKey: smartfilter.SimilarityKey(cand),
			MediaFiles:    item.MediaFiles,
		}
		if err := o.store.UpsertArticle(ctx, article); err != nil {
			o.logWarn("upserting article failed", "url", item.URL, "error", err)
			continue
		}
		if o.metrics != nil {
			o.metrics.IncrementArticlesIngested()
		}
		count++
	}
	return count
}

// enrichAll runs step 2: for each unprocessed article, ensure its body
// (C3), run unified analysis (C7), map categories (C8), and persist,
// bounded by maxWorkers (itself bounded by the AI client's own rate
// limiter regardless of worker count).
func (o *Orchestrator) enrichAll(ctx context.Context) (processed, aiCalls, errCount int) {
	articles, err := o.store.UnprocessedArticles(ctx, 500)
	if err != nil {
		o.logWarn("listing unprocessed articles failed", "error", err)
		return 0, 0, 1
	}

	sem := make(chan struct{}, o.maxWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := range articles {
		a := articles[i]
		wg.Add(1)
		sem <- struct{}{}
		go func(a model.Article) {
			defer wg.Done()
			defer func() { <-sem }()
			ok, callMade := o.enrichOne(ctx, a)
			mu.Lock()
			if ok {
				processed++
			} else {
				errCount++
			}
			if callMade {
				aiCalls++
			}
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return processed, aiCalls, errCount
}

func (o *Orchestrator) enrichOne(ctx context.Context, a model.Article) (ok bool, calledAI bool) {
	if a.Content == "" {
		result, err := o.extractor.Extract(ctx, a.URL)
		if err != nil {
			o.logWarn("extraction failed", "url", a.URL, "error", err)
			return false, false
		}
		if err := o.store.UpdateArticleBody(ctx, a.ID, result.Content, result.QualityScore, string(result.Strategy)); err != nil {
			o.logWarn("persisting extracted body failed", "url", a.URL, "error", err)
			return false, false
		}
		a.Content = result.Content
	}

	analysis, err := o.ai.AnalyzeArticleComplete(ctx, a.Title, a.Content, a.URL)
	calledAI = true
	if err != nil {
		o.logWarn("ai analysis failed", "url", a.URL, "error", err)
		return false, calledAI
	}

	categoryProcessed := false
	if !analysis.IsAdvertisement {
		if _, err := o.categories.Resolve(ctx, a.ID, analysis.Categories); err != nil {
			o.logWarn("category resolution failed", "url", a.URL, "error", err)
			return false, calledAI
		}
		categoryProcessed = true
	}

	update := model.ArticleAnalysisUpdate{
		OptimizedTitle:    analysis.OptimizedTitle,
		Summary:           analysis.Summary,
		IsAd:              analysis.IsAdvertisement,
		AdConfidence:      analysis.AdConfidence,
		AdType:            string(analysis.AdType),
		AdReasoning:       analysis.AdReasoning,
		AdMarkers:         analysis.AdMarkers,
		CategoryProcessed: categoryProcessed,
	}
	if err := o.store.UpdateArticleAnalysis(ctx, a.ID, update); err != nil {
		o.logWarn("persisting analysis failed", "url", a.URL, "error", err)
		return false, calledAI
	}

	if o.metrics != nil {
		o.metrics.IncrementArticlesProcessed()
	}
	return true, calledAI
}

// buildAndPublishDigest runs steps 3-4: group the day's processed
// articles by category, build a DailySummary for every category with at
// least MinItemsPerCategory items, then assemble (not generate) a
// combined digest message and push it to every configured publisher.
func (o *Orchestrator) buildAndPublishDigest(ctx context.Context, day time.Time) error {
	byCategory, err := o.store.ArticleBriefsForDayByCategory(ctx, day)
	if err != nil {
		return fmt.Errorf("grouping articles by category: %w", err)
	}

	digest := Digest{Day: day.Truncate(24 * time.Hour)}
	for categoryID, articles := range byCategory {
		if len(articles) < MinItemsPerCategory {
			continue
		}
		name, err := o.store.CategoryName(ctx, categoryID)
		if err != nil {
			o.logWarn("resolving category name failed", "category_id", categoryID, "error", err)
			continue
		}

		briefsText := formatBriefs(articles)
		summaryText, err := o.ai.CategorySummary(ctx, name, briefsText)
		if err != nil {
			o.logWarn("category summary generation failed", "category_id", categoryID, "error", err)
			continue
		}

		ids := make([]int64, len(articles))
		for i, a := range articles {
			ids[i] = a.ID
		}
		sum := &model.DailySummary{Day: digest.Day, CategoryID: categoryID, ArticleIDs: ids, Headline: name, BodyText: summaryText}
		if err := o.store.SaveDailySummary(ctx, sum); err != nil {
			o.logWarn("saving daily summary failed", "category_id", categoryID, "error", err)
			continue
		}

		digest.Categories = append(digest.Categories, CategoryDigest{
			CategoryID: categoryID, CategoryName: name, Headline: name, BodyText: summaryText, ArticleIDs: ids,
		})
	}

	if len(digest.Categories) == 0 {
		return nil
	}

	for _, pub := range o.publishers {
		if err := pub.Publish(ctx, digest); err != nil {
			// Emission failures are retried on the next cycle, not here.
			o.logWarn("publisher failed", "error", err)
		} else if o.metrics != nil {
			o.metrics.IncrementMessagesSent()
		}
	}
	return nil
}

func formatBriefs(articles []model.Article) string {
	text := ""
	for _, a := range articles {
		title := a.OptimizedTitle
		if title == "" {
			title = a.Title
		}
		text += fmt.Sprintf("- %s: %s\n", title, a.Summary)
	}
	return text
}

func (o *Orchestrator) logWarn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
	if o.metrics != nil {
		o.metrics.IncrementErrors()
	}
}
