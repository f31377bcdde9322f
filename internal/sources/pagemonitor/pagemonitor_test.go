package pagemonitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/deusflow/newsagg/internal/httpfetch"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/deusflow/newsagg/internal/sources"
)

func TestFetchEmitsOnlyChangedItemsAcrossCalls(t *testing.T) {
	page := `<html><body>
		<article><h2 class="title">First story</h2><a class="link" href="/a">link</a></article>
		<article><h2 class="title">Second story</h2><a class="link" href="/b">link</a></article>
	</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer server.Close()

	fetcher := httpfetch.New(4, 2, time.Second)
	a := New(fetcher)

	source := model.Source{
		ID:  1,
		URL: server.URL,
		Config: map[string]string{
			"item_selector":  "article",
			"title_selector": ".title",
			"link_selector":  ".link",
		},
	}

	first, err := a.Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("unexpected error on first fetch: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 items on first fetch, got %d", len(first))
	}

	second, err := a.Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("unexpected error on second fetch: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no items when the page content is unchanged, got %d", len(second))
	}
}

func TestFetchEmitsNewItemAfterPageChanges(t *testing.T) {
	pages := []string{
		`<article><h2 class="title">First story</h2></article>`,
		`<article><h2 class="title">First story</h2></article><article><h2 class="title">Second story</h2></article>`,
	}
	call := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pages[call]))
		if call < len(pages)-1 {
			call++
		}
	}))
	defer server.Close()

	fetcher := httpfetch.New(4, 2, time.Second)
	a := New(fetcher)
	source := model.Source{ID: 1, URL: server.URL, Config: map[string]string{"title_selector": ".title"}}

	if _, err := a.Fetch(context.Background(), source); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := a.Fetch(context.Background(), source)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("expected exactly 1 new item after the page gained a story, got %d", len(second))
	}
}

func TestNeedsBodyExtractionAlwaysFalse(t *testing.T) {
	a := New(nil)
	if a.NeedsBodyExtraction(sources.CandidateArticle{}) {
		t.Errorf("expected page monitor items to never require extraction")
	}
}
