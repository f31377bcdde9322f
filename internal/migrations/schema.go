package migrations

import (
	"context"
	"database/sql"
)

// tableExists is the IsNeeded probe shared by migrations that only add a
// table: the migration is needed unless the table is already there,
// letting a restored-from-backup database self-heal its ledger instead
// of failing on a duplicate CREATE TABLE.
func tableExists(name string) func(ctx context.Context, db *sql.DB) (bool, error) {
	return func(ctx context.Context, db *sql.DB) (bool, error) {
		var exists bool
		err := db.QueryRowContext(ctx, `SELECT EXISTS (
			SELECT 1 FROM information_schema.tables WHERE table_name = $1
		)`, name).Scan(&exists)
		return !exists, err
	}
}

// columnExists is the IsNeeded probe for migrations that add a column to
// an existing table, letting them self-heal the same way tableExists does.
func columnExists(table, column string) func(ctx context.Context, db *sql.DB) (bool, error) {
	return func(ctx context.Context, db *sql.DB) (bool, error) {
		var exists bool
		err := db.QueryRowContext(ctx, `SELECT EXISTS (
			SELECT 1 FROM information_schema.columns WHERE table_name = $1 AND column_name = $2
		)`, table, column).Scan(&exists)
		return !exists, err
	}
}

// allMigrations is the fixed, ordered schema history. Versions never
// reorder or get edited in place once released; a changed requirement
// becomes a new, later version.
var allMigrations = []Migration{
	{
		Version:  1,
		Name:     "sources",
		IsNeeded: tableExists("sources"),
		SQL: `
			CREATE TABLE sources (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL,
				kind TEXT NOT NULL,
				url TEXT NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				fetch_interval_seconds BIGINT NOT NULL DEFAULT 900,
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				consecutive_err INTEGER NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				last_fetched_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX idx_sources_kind ON sources (kind);
			CREATE INDEX idx_sources_enabled ON sources (enabled);`,
	},
	{
		Version:  2,
		Name:     "categories",
		IsNeeded: tableExists("categories"),
		SQL: `
			CREATE TABLE categories (
				id BIGSERIAL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				display_name TEXT NOT NULL,
				is_default BOOLEAN NOT NULL DEFAULT FALSE
			);
			CREATE TABLE category_mapping (
				id BIGSERIAL PRIMARY KEY,
				raw_label TEXT NOT NULL UNIQUE,
				normalized TEXT NOT NULL,
				category_id BIGINT REFERENCES categories(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX idx_category_mapping_normalized ON category_mapping (normalized);`,
	},
	{
		Version:  3,
		Name:     "articles",
		IsNeeded: tableExists("articles"),
		SQL: `
			CREATE TABLE articles (
				id BIGSERIAL PRIMARY KEY,
				source_id BIGINT NOT NULL REFERENCES sources(id),
				url TEXT NOT NULL UNIQUE,
				canonical_url TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL DEFAULT '',
				optimized_title TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL DEFAULT '',
				summary TEXT NOT NULL DEFAULT '',
				language TEXT NOT NULL DEFAULT '',
				published_at TIMESTAMPTZ,
				fetched_at TIMESTAMPTZ,
				content_hash TEXT NOT NULL DEFAULT '',
				similarity_key TEXT NOT NULL DEFAULT '',
				quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
				is_ad BOOLEAN NOT NULL DEFAULT FALSE,
				media_files TEXT[] NOT NULL DEFAULT '{}',
				extraction_method TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX idx_articles_content_hash ON articles (content_hash);
			CREATE INDEX idx_articles_similarity_key ON articles (similarity_key);
			CREATE INDEX idx_articles_created_at ON articles (created_at);
			CREATE INDEX idx_articles_source_id ON articles (source_id);

			CREATE TABLE article_categories (
				article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
				category_id BIGINT NOT NULL REFERENCES categories(id),
				confidence DOUBLE PRECISION NOT NULL,
				PRIMARY KEY (article_id, category_id)
			);
			CREATE INDEX idx_article_categories_category_id ON article_categories (category_id);`,
	},
	{
		Version:  4,
		Name:     "extraction_memory",
		IsNeeded: tableExists("extraction_patterns"),
		SQL: `
			CREATE TABLE extraction_patterns (
				id BIGSERIAL PRIMARY KEY,
				domain TEXT NOT NULL UNIQUE,
				selector_pattern TEXT NOT NULL DEFAULT '',
				strategy TEXT NOT NULL DEFAULT '',
				success_count INTEGER NOT NULL DEFAULT 0,
				failure_count INTEGER NOT NULL DEFAULT 0,
				consecutive_success INTEGER NOT NULL DEFAULT 0,
				consecutive_failure INTEGER NOT NULL DEFAULT 0,
				success_rate_7d DOUBLE PRECISION NOT NULL DEFAULT 0,
				quality_score_avg DOUBLE PRECISION NOT NULL DEFAULT 0,
				content_length_avg DOUBLE PRECISION NOT NULL DEFAULT 0,
				is_stable BOOLEAN NOT NULL DEFAULT FALSE,
				last_used_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE TABLE extraction_attempts (
				id BIGSERIAL PRIMARY KEY,
				article_url TEXT NOT NULL,
				domain TEXT NOT NULL,
				strategy TEXT NOT NULL,
				selector_used TEXT NOT NULL DEFAULT '',
				success BOOLEAN NOT NULL,
				content_length INTEGER NOT NULL DEFAULT 0,
				quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
				extraction_time_ms BIGINT NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				ai_analysis_triggered BOOLEAN NOT NULL DEFAULT FALSE,
				http_status_code INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX idx_extraction_attempts_domain ON extraction_attempts (domain);
			CREATE INDEX idx_extraction_attempts_created_at ON extraction_attempts (created_at);`,
	},
	{
		Version:  5,
		Name:     "ai_usage_tracking",
		IsNeeded: tableExists("ai_usage_tracking"),
		SQL: `
			CREATE TABLE ai_usage_tracking (
				id BIGSERIAL PRIMARY KEY,
				day DATE NOT NULL,
				calls INTEGER NOT NULL DEFAULT 0,
				cache_hits INTEGER NOT NULL DEFAULT 0,
				UNIQUE (day)
			);`,
	},
	{
		Version:  6,
		Name:     "schedule_and_settings",
		IsNeeded: tableExists("schedule_settings"),
		SQL: `
			CREATE TABLE schedule_settings (
				id BIGSERIAL PRIMARY KEY,
				task_name TEXT NOT NULL UNIQUE,
				enabled BOOLEAN NOT NULL DEFAULT TRUE,
				interval_seconds BIGINT NOT NULL,
				timezone TEXT NOT NULL DEFAULT 'UTC',
				timeout_seconds BIGINT NOT NULL DEFAULT 0,
				is_running BOOLEAN NOT NULL DEFAULT FALSE,
				started_at TIMESTAMPTZ,
				last_run_at TIMESTAMPTZ,
				last_error TEXT NOT NULL DEFAULT '',
				next_run_at TIMESTAMPTZ
			);

			CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);`,
	},
	{
		Version:  7,
		Name:     "daily_summaries_and_stats",
		IsNeeded: tableExists("daily_summaries"),
		SQL: `
			CREATE TABLE daily_summaries (
				id BIGSERIAL PRIMARY KEY,
				day DATE NOT NULL,
				category_id BIGINT NOT NULL REFERENCES categories(id),
				article_ids BIGINT[] NOT NULL DEFAULT '{}',
				headline TEXT NOT NULL DEFAULT '',
				body_text TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (day, category_id)
			);

			CREATE TABLE processing_stats (
				day DATE PRIMARY KEY,
				articles_ingested INTEGER NOT NULL DEFAULT 0,
				articles_processed INTEGER NOT NULL DEFAULT 0,
				ai_calls INTEGER NOT NULL DEFAULT 0,
				errors INTEGER NOT NULL DEFAULT 0,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);`,
	},
	{
		Version:  8,
		Name:     "task_queue",
		IsNeeded: tableExists("task_queue"),
		SQL: `
			CREATE TABLE task_queue (
				id BIGSERIAL PRIMARY KEY,
				task_type TEXT NOT NULL,
				payload JSONB NOT NULL DEFAULT '{}',
				status TEXT NOT NULL DEFAULT 'pending',
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX idx_task_queue_status ON task_queue (status);`,
	},
	{
		Version:  9,
		Name:     "article_ai_flags",
		IsNeeded: columnExists("articles", "ad_markers"),
		SQL: `
			ALTER TABLE articles
				ADD COLUMN summary_processed BOOLEAN NOT NULL DEFAULT FALSE,
				ADD COLUMN category_processed BOOLEAN NOT NULL DEFAULT FALSE,
				ADD COLUMN ad_processed BOOLEAN NOT NULL DEFAULT FALSE,
				ADD COLUMN ad_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
				ADD COLUMN ad_type TEXT NOT NULL DEFAULT '',
				ADD COLUMN ad_reasoning TEXT NOT NULL DEFAULT '',
				ADD COLUMN ad_markers TEXT[] NOT NULL DEFAULT '{}';`,
	},
	{
		Version:  10,
		Name:     "extraction_ai_cooldown",
		IsNeeded: columnExists("extraction_patterns", "last_ai_analysis_at"),
		SQL:      `ALTER TABLE extraction_patterns ADD COLUMN last_ai_analysis_at TIMESTAMPTZ;`,
	},
	{
		Version:  11,
		Name:     "domain_stability",
		IsNeeded: tableExists("domain_stability"),
		SQL: `
			CREATE TABLE domain_stability (
				domain TEXT NOT NULL,
				strategy TEXT NOT NULL,
				success_count INTEGER NOT NULL DEFAULT 0,
				failure_count INTEGER NOT NULL DEFAULT 0,
				avg_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
				render_timeout_ms BIGINT NOT NULL DEFAULT 8000,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (domain, strategy)
			);`,
	},
}
