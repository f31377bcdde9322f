package category

import (
	"context"
	"testing"

	"github.com/deusflow/newsagg/internal/ai"
	"github.com/deusflow/newsagg/internal/model"
)

type fakeStore struct {
	mappings        map[string]*model.CategoryMapping
	categoryIDs     map[string]int64
	unmapped        []string
	savedRows       []model.ArticleCategory
	saveErr         error
}

func (f *fakeStore) LookupMapping(ctx context.Context, aiCategory string) (*model.CategoryMapping, error) {
	return f.mappings[aiCategory], nil
}

func (f *fakeStore) RecordUnmapped(ctx context.Context, rawLabel, normalized string) error {
	f.unmapped = append(f.unmapped, rawLabel)
	return nil
}

func (f *fakeStore) CategoryIDByName(ctx context.Context, name string) (int64, error) {
	return f.categoryIDs[name], nil
}

func (f *fakeStore) SaveArticleCategories(ctx context.Context, rows []model.ArticleCategory) error {
	f.savedRows = rows
	return f.saveErr
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mappings:    map[string]*model.CategoryMapping{},
		categoryIDs: map[string]int64{"other": 99},
	}
}

func TestResolveExactMappingMatch(t *testing.T) {
	store := newFakeStore()
	store.mappings["tech"] = &model.CategoryMapping{CategoryID: 5}

	e := New(store, "other", 3)
	rows, err := e.Resolve(context.Background(), 1, []ai.CategoryGuess{{Name: "tech", Confidence: 0.9}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].CategoryID != 5 || rows[0].Confidence != 0.9 {
		t.Fatalf("expected exact mapping to resolve at full confidence, got %+v", rows)
	}
}

func TestResolveNormalizedMappingMatch(t *testing.T) {
	store := newFakeStore()
	store.mappings["breaking news"] = &model.CategoryMapping{CategoryID: 7}

	e := New(store, "other", 3)
	rows, err := e.Resolve(context.Background(), 1, []ai.CategoryGuess{{Name: "Breaking-News!!", Confidence: 0.8}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].CategoryID != 7 {
		t.Fatalf("expected normalized mapping to resolve, got %+v", rows)
	}
}

func TestResolveFallsBackToDefaultWithPenalty(t *testing.T) {
	store := newFakeStore()

	e := New(store, "other", 3)
	rows, err := e.Resolve(context.Background(), 1, []ai.CategoryGuess{{Name: "totally unknown label", Confidence: 1.0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].CategoryID != 99 {
		t.Fatalf("expected fallback to default category, got %+v", rows)
	}
	if rows[0].Confidence >= 1.0 {
		t.Errorf("expected unmapped fallback confidence to be penalized, got %v", rows[0].Confidence)
	}
	if len(store.unmapped) != 1 || store.unmapped[0] != "totally unknown label" {
		t.Errorf("expected unmapped label to be recorded, got %v", store.unmapped)
	}
}

func TestResolveWithNoGuessesLinksToDefaultCategory(t *testing.T) {
	store := newFakeStore()

	e := New(store, "other", 3)
	rows, err := e.Resolve(context.Background(), 1, []ai.CategoryGuess{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].CategoryID != 99 {
		t.Fatalf("expected a zero-guess result to link to the default category, got %+v", rows)
	}
	if len(store.savedRows) != 1 {
		t.Fatalf("expected the default-category row to be persisted, got %+v", store.savedRows)
	}
	if len(store.unmapped) != 0 {
		t.Errorf("expected no unmapped-label record for an empty guess list, got %v", store.unmapped)
	}
}

func TestResolveCapsAtKByConfidence(t *testing.T) {
	store := newFakeStore()
	store.mappings["a"] = &model.CategoryMapping{CategoryID: 1}
	store.mappings["b"] = &model.CategoryMapping{CategoryID: 2}
	store.mappings["c"] = &model.CategoryMapping{CategoryID: 3}
	store.mappings["d"] = &model.CategoryMapping{CategoryID: 4}

	e := New(store, "other", 2)
	rows, err := e.Resolve(context.Background(), 1, []ai.CategoryGuess{
		{Name: "a", Confidence: 0.5},
		{Name: "b", Confidence: 0.9},
		{Name: "c", Confidence: 0.7},
		{Name: "d", Confidence: 0.3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected cap of 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].CategoryID != 2 || rows[1].CategoryID != 3 {
		t.Errorf("expected the two highest-confidence categories to survive the cap, got %+v", rows)
	}
}

func TestResolveDeduplicatesSameCategoryKeepingHigherConfidence(t *testing.T) {
	store := newFakeStore()
	store.mappings["tech"] = &model.CategoryMapping{CategoryID: 1}
	store.mappings["technology"] = &model.CategoryMapping{CategoryID: 1}

	e := New(store, "other", 3)
	rows, err := e.Resolve(context.Background(), 1, []ai.CategoryGuess{
		{Name: "tech", Confidence: 0.4},
		{Name: "technology", Confidence: 0.95},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected duplicate category IDs to collapse into one row, got %+v", rows)
	}
	if rows[0].Confidence != 0.95 {
		t.Errorf("expected the higher confidence guess to win, got %v", rows[0].Confidence)
	}
}
