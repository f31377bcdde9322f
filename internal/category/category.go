// Package category implements C8: mapping the free-form labels C7 proposes
// onto the fixed, admin-configurable taxonomy via CategoryMapping.
package category

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/deusflow/newsagg/internal/ai"
	"github.com/deusflow/newsagg/internal/model"
)

// DefaultCap is K in "cap at K by highest confidence".
const DefaultCap = 3

// unmappedConfidencePenalty reduces confidence when a label falls through
// to DEFAULT_CATEGORY, so a genuine DEFAULT_CATEGORY match (if the AI
// ever emits it directly) still outranks an unmapped fallback.
const unmappedConfidencePenalty = 0.5

// Store is the narrow persistence capability C8 needs.
type Store interface {
	LookupMapping(ctx context.Context, aiCategory string) (*model.CategoryMapping, error)
	RecordUnmapped(ctx context.Context, rawLabel, normalized string) error
	CategoryIDByName(ctx context.Context, name string) (int64, error)
	SaveArticleCategories(ctx context.Context, rows []model.ArticleCategory) error
}

// Engine resolves AI category guesses into persisted ArticleCategory rows.
type Engine struct {
	store           Store
	defaultCategory string
	cap             int
}

// New builds an Engine. cap<=0 uses DefaultCap.
func New(store Store, defaultCategory string, cap int) *Engine {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Engine{store: store, defaultCategory: defaultCategory, cap: cap}
}

var punctuationRe = regexp.MustCompile(`[^\p{L}\p{N} ]+`)

// normalize strips punctuation/language markers and folds case, the
// "normalized form" step 2 falls back to.
func normalize(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = punctuationRe.ReplaceAllString(label, " ")
	return strings.Join(strings.Fields(label), " ")
}

// Resolve maps guesses to categories for articleID, deduplicates,
// caps at K by confidence, records unmapped labels for admin review,
// and persists the resulting ArticleCategory rows.
func (e *Engine) Resolve(ctx context.Context, articleID int64, guesses []ai.CategoryGuess) ([]model.ArticleCategory, error) {
	if len(guesses) == 0 {
		defaultID, err := e.store.CategoryIDByName(ctx, e.defaultCategory)
		if err != nil {
			return nil, err
		}
		if defaultID == 0 {
			return nil, nil
		}
		rows := []model.ArticleCategory{{ArticleID: articleID, CategoryID: defaultID, Confidence: 1.0}}
		if err := e.store.SaveArticleCategories(ctx, rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	seen := make(map[int64]model.ArticleCategory)

	for _, g := range guesses {
		categoryID, confidence, err := e.resolveOne(ctx, g)
		if err != nil {
			return nil, err
		}
		if categoryID == 0 {
			continue
		}
		if existing, ok := seen[categoryID]; !ok || confidence > existing.Confidence {
			seen[categoryID] = model.ArticleCategory{ArticleID: articleID, CategoryID: categoryID, Confidence: confidence}
		}
	}

	rows := make([]model.ArticleCategory, 0, len(seen))
	for _, row := range seen {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Confidence > rows[j].Confidence })
	if len(rows) > e.cap {
		rows = rows[:e.cap]
	}

	if err := e.store.SaveArticleCategories(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *Engine) resolveOne(ctx context.Context, g ai.CategoryGuess) (categoryID int64, confidence float64, err error) {
	// Step 1: exact case-insensitive lookup.
	mapping, err := e.store.LookupMapping(ctx, strings.ToLower(strings.TrimSpace(g.Name)))
	if err != nil {
		return 0, 0, err
	}
	if mapping != nil {
		return mapping.CategoryID, g.Confidence, nil
	}

	// Step 2: normalized-form lookup.
	normalized := normalize(g.Name)
	mapping, err = e.store.LookupMapping(ctx, normalized)
	if err != nil {
		return 0, 0, err
	}
	if mapping != nil {
		return mapping.CategoryID, g.Confidence, nil
	}

	// Step 3: record unmapped, fall back to DEFAULT_CATEGORY at reduced
	// confidence.
	if err := e.store.RecordUnmapped(ctx, g.Name, normalized); err != nil {
		return 0, 0, err
	}
	defaultID, err := e.store.CategoryIDByName(ctx, e.defaultCategory)
	if err != nil {
		return 0, 0, err
	}
	if defaultID == 0 {
		return 0, 0, nil
	}
	return defaultID, g.Confidence * unmappedConfidencePenalty, nil
}
