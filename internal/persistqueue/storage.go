package persistqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/deusflow/newsagg/internal/model"
)

// Storage is the concrete Store every pipeline component depends on
// through its own narrow capability interface (extractmem.Store,
// category.Store, smartfilter.SeenChecker). Reads run directly against
// the pool; writes route through Queue.Enqueue so concurrent workers
// never interleave updates to the same logical row set.
type Storage struct {
	q *Queue
}

// NewStorage wraps q as a Storage.
func NewStorage(q *Queue) *Storage { return &Storage{q: q} }

// ---- extractmem.Store ----

func (s *Storage) GetPattern(ctx context.Context, domain string) (*model.ExtractionPattern, error) {
	row := s.q.DB().QueryRowContext(ctx, `
		SELECT domain, selector_pattern, strategy, success_count, failure_count,
		       consecutive_success, consecutive_failure, success_rate_7d,
		       quality_score_avg, content_length_avg, is_stable, last_used_at,
		       last_ai_analysis_at, created_at, updated_at
		FROM extraction_patterns WHERE domain = $1`, domain)

	var p model.ExtractionPattern
	var lastAI sql.NullTime
	err := row.Scan(&p.Domain, &p.SelectorPattern, &p.Strategy, &p.SuccessCount, &p.FailureCount,
		&p.ConsecutiveSuccess, &p.ConsecutiveFailure, &p.SuccessRate7d,
		&p.QualityScoreAvg, &p.ContentLengthAvg, &p.IsStable, &p.LastUsedAt,
		&lastAI, &p.CreatedAt, &p.UpdatedAt)
	if lastAI.Valid {
		p.LastAIAnalysisAt = lastAI.Time
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistqueue: get pattern: %w", err)
	}
	return &p, nil
}

func (s *Storage) UpsertPattern(ctx context.Context, p *model.ExtractionPattern) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: "extraction_patterns:" + p.Domain,
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO extraction_patterns
					(domain, selector_pattern, strategy, success_count, failure_count,
					 consecutive_success, consecutive_failure, success_rate_7d,
					 quality_score_avg, content_length_avg, is_stable, last_used_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
				ON CONFLICT (domain) DO UPDATE SET
					selector_pattern = EXCLUDED.selector_pattern,
					strategy = EXCLUDED.strategy,
					success_count = EXCLUDED.success_count,
					failure_count = EXCLUDED.failure_count,
					consecutive_success = EXCLUDED.consecutive_success,
					consecutive_failure = EXCLUDED.consecutive_failure,
					success_rate_7d = EXCLUDED.success_rate_7d,
					quality_score_avg = EXCLUDED.quality_score_avg,
					content_length_avg = EXCLUDED.content_length_avg,
					is_stable = EXCLUDED.is_stable,
					last_used_at = EXCLUDED.last_used_at,
					updated_at = NOW()`,
				p.Domain, p.SelectorPattern, p.Strategy, p.SuccessCount, p.FailureCount,
				p.ConsecutiveSuccess, p.ConsecutiveFailure, p.SuccessRate7d,
				p.QualityScoreAvg, p.ContentLengthAvg, p.IsStable, p.LastUsedAt)
			return err
		},
	})
}

func (s *Storage) RecordAttempt(ctx context.Context, a *model.ExtractionAttempt) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: "extraction_attempts:" + a.Domain,
		BatchKey: "extraction_attempts",
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO extraction_attempts
					(article_url, domain, strategy, selector_used, success, content_length,
					 quality_score, extraction_time_ms, error_message, ai_analysis_triggered, http_status_code)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				a.ArticleURL, a.Domain, a.Strategy, a.SelectorUsed, a.Success, a.ContentLength,
				a.QualityScore, a.ExtractionTimeMS, a.ErrorMessage, a.AIAnalysisTriggered, a.HTTPStatusCode)
			return err
		},
	})
}

// GetDomainStability loads the per-method attempt counters backing C4's
// IneffectiveMethods and adaptive render timeout.
func (s *Storage) GetDomainStability(ctx context.Context, domain string) (model.DomainStability, error) {
	out := model.DomainStability{
		Domain:              domain,
		MethodSuccessCounts: map[model.ExtractionStrategy]int{},
		MethodFailureCounts: map[model.ExtractionStrategy]int{},
		MethodAvgTimeMS:     map[model.ExtractionStrategy]float64{},
	}
	rows, err := s.q.DB().QueryContext(ctx, `
		SELECT strategy, success_count, failure_count, avg_time_ms, render_timeout_ms, updated_at
		FROM domain_stability WHERE domain = $1`, domain)
	if err != nil {
		return out, fmt.Errorf("persistqueue: get domain stability: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var strat model.ExtractionStrategy
		var succ, fail int
		var avgMS float64
		var renderTimeoutMS int64
		var updatedAt time.Time
		if err := rows.Scan(&strat, &succ, &fail, &avgMS, &renderTimeoutMS, &updatedAt); err != nil {
			return out, err
		}
		out.MethodSuccessCounts[strat] = succ
		out.MethodFailureCounts[strat] = fail
		out.MethodAvgTimeMS[strat] = avgMS
		if renderTimeoutMS > out.RenderTimeoutMS {
			out.RenderTimeoutMS = renderTimeoutMS
		}
		if updatedAt.After(out.UpdatedAt) {
			out.UpdatedAt = updatedAt
		}
	}
	return out, rows.Err()
}

// UpdateMethodStats folds one extraction attempt into domain_stability's
// per-(domain, strategy) rolling counters.
func (s *Storage) UpdateMethodStats(ctx context.Context, domain string, strategy model.ExtractionStrategy, success bool, elapsedMS int64) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: "domain_stability:" + domain,
		Exec: func(tx *sql.Tx) error {
			var succInc, failInc int
			if success {
				succInc = 1
			} else {
				failInc = 1
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO domain_stability (domain, strategy, success_count, failure_count, avg_time_ms, updated_at)
				VALUES ($1,$2,$3,$4,$5,NOW())
				ON CONFLICT (domain, strategy) DO UPDATE SET
					success_count = domain_stability.success_count + EXCLUDED.success_count,
					failure_count = domain_stability.failure_count + EXCLUDED.failure_count,
					avg_time_ms = (domain_stability.avg_time_ms * (domain_stability.success_count + domain_stability.failure_count) + EXCLUDED.avg_time_ms)
						/ (domain_stability.success_count + domain_stability.failure_count + 1),
					updated_at = NOW()`,
				domain, strategy, succInc, failInc, float64(elapsedMS))
			return err
		},
	})
}

// UpdateRenderTimeout persists C4's adaptively grown/shrunk headless
// render timeout budget for domain.
func (s *Storage) UpdateRenderTimeout(ctx context.Context, domain string, timeoutMS int64) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: "domain_stability:" + domain,
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO domain_stability (domain, strategy, render_timeout_ms, updated_at)
				VALUES ($1, $2, $3, NOW())
				ON CONFLICT (domain, strategy) DO UPDATE SET
					render_timeout_ms = EXCLUDED.render_timeout_ms,
					updated_at = NOW()`,
				domain, model.StrategyHeadlessRender, timeoutMS)
			return err
		},
	})
}

// RecordAISelectorCall increments the daily AI-selector-discovery call
// counter backing C4's should_invoke_ai daily budget gate.
func (s *Storage) RecordAISelectorCall(ctx context.Context, day time.Time) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: "ai_usage_tracking",
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO ai_usage_tracking (day, calls) VALUES ($1, 1)
				ON CONFLICT (day) DO UPDATE SET calls = ai_usage_tracking.calls + 1`,
				day.Truncate(24*time.Hour))
			return err
		},
	})
}

// DailyAISelectorCalls reports how many AI-selector-discovery calls have
// already been spent on day.
func (s *Storage) DailyAISelectorCalls(ctx context.Context, day time.Time) (int, error) {
	var n int
	err := s.q.DB().QueryRowContext(ctx, `SELECT calls FROM ai_usage_tracking WHERE day = $1`, day.Truncate(24*time.Hour)).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("persistqueue: daily ai selector calls: %w", err)
	}
	return n, nil
}

// TouchLastAIAnalysis stamps the pattern's cooldown timestamp after an AI
// selector-discovery call, independent of the success/failure counters
// RecordAttempt updates.
func (s *Storage) TouchLastAIAnalysis(ctx context.Context, domain string, at time.Time) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: "extraction_patterns:" + domain,
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				UPDATE extraction_patterns SET last_ai_analysis_at = $1 WHERE domain = $2`, at, domain)
			return err
		},
	})
}

// ---- category.Store ----

func (s *Storage) LookupMapping(ctx context.Context, aiCategory string) (*model.CategoryMapping, error) {
	row := s.q.DB().QueryRowContext(ctx, `
		SELECT id, raw_label, normalized, category_id, created_at
		FROM category_mapping WHERE raw_label = $1 OR normalized = $1 LIMIT 1`, aiCategory)

	var m model.CategoryMapping
	err := row.Scan(&m.ID, &m.RawLabel, &m.Normalized, &m.CategoryID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persistqueue: lookup mapping: %w", err)
	}
	return &m, nil
}

func (s *Storage) RecordUnmapped(ctx context.Context, rawLabel, normalized string) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: "category_mapping",
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO category_mapping (raw_label, normalized, category_id)
				VALUES ($1, $2, NULL)
				ON CONFLICT (raw_label) DO NOTHING`, rawLabel, normalized)
			return err
		},
	})
}

func (s *Storage) CategoryIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.q.DB().QueryRowContext(ctx, `SELECT id FROM categories WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("persistqueue: category id by name: %w", err)
	}
	return id, nil
}

// SaveArticleCategories batch-inserts rows for one article using
// squirrel to build the multi-row VALUES list, grounded on the batched
// dynamic-SQL idiom squirrel exists for in the pack.
func (s *Storage) SaveArticleCategories(ctx context.Context, rows []model.ArticleCategory) error {
	if len(rows) == 0 {
		return nil
	}
	articleID := rows[0].ArticleID
	return s.q.Enqueue(ctx, Unit{
		ShardKey: fmt.Sprintf("article_categories:%d", articleID),
		Exec: func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM article_categories WHERE article_id = $1`, articleID); err != nil {
				return err
			}
			builder := s.q.Sq.Insert("article_categories").Columns("article_id", "category_id", "confidence")
			for _, r := range rows {
				builder = builder.Values(r.ArticleID, r.CategoryID, r.Confidence)
			}
			query, args, err := builder.ToSql()
			if err != nil {
				return fmt.Errorf("building batch insert: %w", err)
			}
			_, err = tx.ExecContext(ctx, query, args...)
			return err
		},
	})
}

// ---- smartfilter.SeenChecker ----

// SeenRecently reports whether hash (a content hash or similarity key)
// has a matching article within window. It is intentionally synchronous
// and read-only, bypassing the write queue.
func (s *Storage) SeenRecently(hash string, window time.Duration) bool {
	var count int
	err := s.q.DB().QueryRow(`
		SELECT COUNT(*) FROM articles
		WHERE (content_hash = $1 OR similarity_key = $1) AND created_at > $2`,
		hash, time.Now().Add(-window)).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// ---- article persistence (C9 core) ----

// UpsertArticle persists an article in a single round trip via
// ON CONFLICT (url) DO UPDATE, directly grounded on the teacher's
// MarkAsSent / SetTranslationCache idiom in internal/storage/postgres.go.
func (s *Storage) UpsertArticle(ctx context.Context, a *model.Article) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: "articles:" + urlShard(a.URL),
		Exec: func(tx *sql.Tx) error {
			return tx.QueryRowContext(ctx, `
				INSERT INTO articles
					(source_id, url, canonical_url, title, optimized_title, content, summary, language,
					 published_at, fetched_at, content_hash, similarity_key, quality_score, is_ad,
					 media_files, extraction_method, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW())
				ON CONFLICT (url) DO UPDATE SET
					title = EXCLUDED.title,
					optimized_title = EXCLUDED.optimized_title,
					content = EXCLUDED.content,
					summary = EXCLUDED.summary,
					quality_score = EXCLUDED.quality_score,
					is_ad = EXCLUDED.is_ad,
					media_files = EXCLUDED.media_files,
					extraction_method = EXCLUDED.extraction_method,
					updated_at = NOW()
				RETURNING id`,
				a.SourceID, a.URL, a.CanonicalURL, a.Title, a.OptimizedTitle, a.Content, a.Summary, a.Language,
				a.PublishedAt, a.FetchedAt, a.ContentHash, a.SimilarityKey, a.QualityScore, a.IsAd,
				pq.Array(a.MediaFiles), a.ExtractionMethod,
			).Scan(&a.ID)
		},
	})
}

func urlShard(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		rest := url[i+3:]
		if j := strings.IndexAny(rest, "/?#"); j >= 0 {
			return rest[:j]
		}
		return rest
	}
	return url
}

// ListSources returns every configured source, enabled or not; the
// orchestrator filters by Enabled/FetchInterval itself.
func (s *Storage) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.q.DB().QueryContext(ctx, `
		SELECT id, name, kind, url, fetch_interval_seconds, enabled,
		       consecutive_err, last_error, last_fetched_at, created_at
		FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("persistqueue: list sources: %w", err)
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		var intervalSeconds int64
		var lastErr sql.NullString
		var lastFetched sql.NullTime
		if err := rows.Scan(&src.ID, &src.Name, &src.Kind, &src.URL, &intervalSeconds, &src.Enabled,
			&src.ConsecutiveErr, &lastErr, &lastFetched, &src.CreatedAt); err != nil {
			return nil, err
		}
		src.FetchInterval = time.Duration(intervalSeconds) * time.Second
		src.LastError = lastErr.String
		if lastFetched.Valid {
			src.LastFetchedAt = lastFetched.Time
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpdateSourceState persists the fetch bookkeeping Registry.Fetch mutates
// in place on the caller's copy of a Source.
func (s *Storage) UpdateSourceState(ctx context.Context, src *model.Source) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: fmt.Sprintf("sources:%d", src.ID),
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				UPDATE sources SET consecutive_err = $1, last_error = $2, last_fetched_at = $3
				WHERE id = $4`, src.ConsecutiveErr, src.LastError, src.LastFetchedAt, src.ID)
			return err
		},
	})
}

// ---- schedule settings (C11 support) ----

func (s *Storage) ListScheduleSettings(ctx context.Context) ([]model.ScheduleSetting, error) {
	rows, err := s.q.DB().QueryContext(ctx, `
		SELECT id, task_name, enabled, interval_seconds, timezone, timeout_seconds,
		       is_running, started_at, last_run_at, last_error, next_run_at
		FROM schedule_settings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("persistqueue: list schedule settings: %w", err)
	}
	defer rows.Close()

	var out []model.ScheduleSetting
	for rows.Next() {
		var st model.ScheduleSetting
		var startedAt, lastRunAt, nextRunAt sql.NullTime
		var lastErr sql.NullString
		if err := rows.Scan(&st.ID, &st.TaskName, &st.Enabled, &st.IntervalSeconds, &st.Timezone,
			&st.TimeoutSeconds, &st.IsRunning, &startedAt, &lastRunAt, &lastErr, &nextRunAt); err != nil {
			return nil, err
		}
		st.StartedAt = startedAt.Time
		st.LastRunAt = lastRunAt.Time
		st.NextRunAt = nextRunAt.Time
		st.LastError = lastErr.String
		out = append(out, st)
	}
	return out, rows.Err()
}

// ClaimSchedule atomically flips is_running on if it was off, returning
// claimed=false if another worker already holds it (or the stuck guard
// hasn't yet forced a clear).
func (s *Storage) ClaimSchedule(ctx context.Context, id int64) (claimed bool, err error) {
	err = s.q.Enqueue(ctx, Unit{
		ShardKey: fmt.Sprintf("schedule_settings:%d", id),
		Exec: func(tx *sql.Tx) error {
			res, execErr := tx.ExecContext(ctx, `
				UPDATE schedule_settings SET is_running = TRUE, started_at = NOW()
				WHERE id = $1 AND is_running = FALSE`, id)
			if execErr != nil {
				return execErr
			}
			n, execErr := res.RowsAffected()
			if execErr != nil {
				return execErr
			}
			claimed = n == 1
			return nil
		},
	})
	return claimed, err
}

// ReleaseSchedule clears is_running and records the outcome of a run.
func (s *Storage) ReleaseSchedule(ctx context.Context, id int64, runErr error, nextRunAt time.Time) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.q.Enqueue(ctx, Unit{
		ShardKey: fmt.Sprintf("schedule_settings:%d", id),
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				UPDATE schedule_settings
				SET is_running = FALSE, last_run_at = NOW(), last_error = $1, next_run_at = $2
				WHERE id = $3`, msg, nextRunAt, id)
			return err
		},
	})
}

// ForceClearStuck clears is_running for any task whose started_at is
// older than stuckAfter, the scheduler's force-clear guard.
func (s *Storage) ForceClearStuck(ctx context.Context, stuckAfter time.Duration) (int, error) {
	res, err := s.q.DB().ExecContext(ctx, `
		UPDATE schedule_settings SET is_running = FALSE, last_error = 'force-cleared: stuck'
		WHERE is_running = TRUE AND started_at < $1`, time.Now().Add(-stuckAfter))
	if err != nil {
		return 0, fmt.Errorf("persistqueue: force clear stuck: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ---- unprocessed-article queries (orchestrator step 2) ----

// UnprocessedArticles returns up to limit articles still missing their
// AI analysis (empty summary), oldest first.
func (s *Storage) UnprocessedArticles(ctx context.Context, limit int) ([]model.Article, error) {
	rows, err := s.q.DB().QueryContext(ctx, `
		SELECT id, source_id, url, canonical_url, title, optimized_title, content, summary,
		       language, published_at, fetched_at, content_hash, similarity_key, quality_score,
		       is_ad, media_files, extraction_method
		FROM articles WHERE summary = '' ORDER BY fetched_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("persistqueue: unprocessed articles: %w", err)
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		var a model.Article
		if err := rows.Scan(&a.ID, &a.SourceID, &a.URL, &a.CanonicalURL, &a.Title, &a.OptimizedTitle,
			&a.Content, &a.Summary, &a.Language, &a.PublishedAt, &a.FetchedAt, &a.ContentHash,
			&a.SimilarityKey, &a.QualityScore, &a.IsAd, pq.Array(&a.MediaFiles), &a.ExtractionMethod); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateArticleBody persists the body C3 filled in for a candidate that
// arrived without one, before C7 analysis runs.
func (s *Storage) UpdateArticleBody(ctx context.Context, articleID int64, content string, qualityScore float64, extractionMethod string) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: fmt.Sprintf("articles:%d", articleID),
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				UPDATE articles SET content = $1, quality_score = $2, extraction_method = $3, updated_at = NOW()
				WHERE id = $4`, content, qualityScore, extractionMethod, articleID)
			return err
		},
	})
}

// UpdateArticleAnalysis persists C7's unified-analysis output onto an
// already-ingested article, including the ad_* fields and the
// summary/category/ad processed flags an Article requires
// (is_advertisement implies ad_processed: this is always set true here,
// since an ad verdict, positive or negative, was reached either way).
func (s *Storage) UpdateArticleAnalysis(ctx context.Context, articleID int64, u model.ArticleAnalysisUpdate) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: fmt.Sprintf("articles:%d", articleID),
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				UPDATE articles SET
					optimized_title = $1, summary = $2, is_ad = $3,
					summary_processed = TRUE, ad_processed = TRUE, category_processed = $4,
					ad_confidence = $5, ad_type = $6, ad_reasoning = $7, ad_markers = $8,
					updated_at = NOW()
				WHERE id = $9`,
				u.OptimizedTitle, u.Summary, u.IsAd, u.CategoryProcessed,
				u.AdConfidence, u.AdType, u.AdReasoning, pq.Array(u.AdMarkers), articleID)
			return err
		},
	})
}

// ArticleBriefsForDayByCategory groups every analyzed, non-ad article
// published on day by its assigned categories, for C12 step 3's digest
// build.
func (s *Storage) ArticleBriefsForDayByCategory(ctx context.Context, day time.Time) (map[int64][]model.Article, error) {
	rows, err := s.q.DB().QueryContext(ctx, `
		SELECT ac.category_id, a.id, a.title, a.optimized_title, a.summary, a.url
		FROM article_categories ac
		JOIN articles a ON a.id = ac.article_id
		WHERE a.is_ad = FALSE AND a.published_at >= $1 AND a.published_at < $2
		ORDER BY ac.category_id, ac.confidence DESC`,
		day.Truncate(24*time.Hour), day.Truncate(24*time.Hour).Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("persistqueue: article briefs for day: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]model.Article)
	for rows.Next() {
		var categoryID int64
		var a model.Article
		if err := rows.Scan(&categoryID, &a.ID, &a.Title, &a.OptimizedTitle, &a.Summary, &a.URL); err != nil {
			return nil, err
		}
		out[categoryID] = append(out[categoryID], a)
	}
	return out, rows.Err()
}

// CategoryName resolves a category id to its display name.
func (s *Storage) CategoryName(ctx context.Context, id int64) (string, error) {
	var name string
	err := s.q.DB().QueryRowContext(ctx, `SELECT display_name FROM categories WHERE id = $1`, id).Scan(&name)
	return name, err
}

// ---- daily summaries / processing stats ----

// SaveDailySummary overwrites any existing row for (day, category_id),
// per spec's "rerun overwrites" resolution for DailySummary reruns.
func (s *Storage) SaveDailySummary(ctx context.Context, sum *model.DailySummary) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: fmt.Sprintf("daily_summaries:%d", sum.CategoryID),
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO daily_summaries (day, category_id, article_ids, headline, body_text, updated_at)
				VALUES ($1,$2,$3,$4,$5,NOW())
				ON CONFLICT (day, category_id) DO UPDATE SET
					article_ids = EXCLUDED.article_ids,
					headline = EXCLUDED.headline,
					body_text = EXCLUDED.body_text,
					updated_at = NOW()`,
				sum.Day, sum.CategoryID, pq.Array(sum.ArticleIDs), sum.Headline, sum.BodyText)
			return err
		},
	})
}

// RecordProcessingStats upserts the running per-day counters the
// orchestrator accumulates across a cycle.
func (s *Storage) RecordProcessingStats(ctx context.Context, stats model.ProcessingStats) error {
	return s.q.Enqueue(ctx, Unit{
		ShardKey: "processing_stats",
		Exec: func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO processing_stats (day, articles_ingested, articles_processed, ai_calls, errors, duration_ms)
				VALUES ($1,$2,$3,$4,$5,$6)
				ON CONFLICT (day) DO UPDATE SET
					articles_ingested = processing_stats.articles_ingested + EXCLUDED.articles_ingested,
					articles_processed = processing_stats.articles_processed + EXCLUDED.articles_processed,
					ai_calls = processing_stats.ai_calls + EXCLUDED.ai_calls,
					errors = processing_stats.errors + EXCLUDED.errors,
					duration_ms = processing_stats.duration_ms + EXCLUDED.duration_ms`,
				stats.Day, stats.ArticlesIngested, stats.ArticlesProcessed, stats.AICalls, stats.Errors, stats.DurationMS)
			return err
		},
	})
}
